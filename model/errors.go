package model

import (
	"fmt"
	"net/http"

	"vey.dev/pidcore/errs"
)

type ErrorCode string

const (
	ErrInvalidRequest         ErrorCode = "INVALID_REQUEST"
	ErrInvalidPID             ErrorCode = "INVALID_PID"
	ErrCredentialExpired      ErrorCode = "CREDENTIAL_EXPIRED"
	ErrCredentialSignature    ErrorCode = "CREDENTIAL_SIGNATURE_INVALID"
	ErrProofConditionMismatch ErrorCode = "PROOF_CONDITION_MISMATCH"
	ErrAccessDenied           ErrorCode = "ACCESS_DENIED"
	ErrRevocationListStale    ErrorCode = "REVOCATION_LIST_STALE"
	ErrTokenExpired           ErrorCode = "TOKEN_EXPIRED"
	ErrInvalidSignature       ErrorCode = "INVALID_SIGNATURE"
	ErrNonceReused            ErrorCode = "NONCE_REUSED"
	ErrInvalidToken           ErrorCode = "INVALID_TOKEN"
	ErrCrypto                 ErrorCode = "CRYPTO"
	ErrStorage                ErrorCode = "STORAGE"
	ErrConfig                 ErrorCode = "CONFIG"
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrInternal               ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Rule    string    `json:"rule,omitempty"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

var kindCodes = map[errs.Kind]ErrorCode{
	errs.InvalidPIDFormat:           ErrInvalidPID,
	errs.CredentialExpired:          ErrCredentialExpired,
	errs.CredentialSignatureInvalid: ErrCredentialSignature,
	errs.ProofConditionMismatch:     ErrProofConditionMismatch,
	errs.AccessDenied:               ErrAccessDenied,
	errs.RevocationListStale:        ErrRevocationListStale,
	errs.TokenExpired:               ErrTokenExpired,
	errs.TokenSignatureInvalid:      ErrInvalidSignature,
	errs.TokenNonceReused:           ErrNonceReused,
	errs.TokenMalformed:             ErrInvalidToken,
	errs.Parse:                      ErrInvalidRequest,
	errs.Crypto:                     ErrCrypto,
	errs.Storage:                    ErrStorage,
	errs.Config:                     ErrConfig,
	errs.Internal:                   ErrInternal,
}

// FromError maps err to a CodedError. Structured errors keep their rule;
// anything else becomes INTERNAL.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CodedError); ok {
		return ce
	}
	code, ok := kindCodes[errs.KindOf(err)]
	if !ok {
		code = ErrInternal
	}
	return &CodedError{Code: code, Message: err.Error(), Rule: errs.Rule(err)}
}

// HTTPStatus returns the status code a handler should answer with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrInvalidRequest, ErrInvalidPID, ErrInvalidToken, ErrProofConditionMismatch:
		return http.StatusBadRequest
	case ErrCredentialExpired, ErrCredentialSignature, ErrTokenExpired, ErrInvalidSignature:
		return http.StatusUnauthorized
	case ErrAccessDenied:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrNonceReused, ErrRevocationListStale:
		return http.StatusConflict
	case ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
