// Package errs defines the structured error taxonomy shared by the PID core.
//
// Callers should branch on Kind or RuleID rather than matching error strings.
// Error() strings are human-readable and may evolve.
package errs

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	InvalidPIDFormat           Kind = "InvalidPIDFormat"
	CredentialExpired          Kind = "CredentialExpired"
	CredentialSignatureInvalid Kind = "CredentialSignatureInvalid"
	ProofConditionMismatch     Kind = "ProofConditionMismatch"
	AccessDenied               Kind = "AccessDenied"
	RevocationListStale        Kind = "RevocationListStale"
	TokenExpired               Kind = "TokenExpired"
	TokenSignatureInvalid      Kind = "TokenSignatureInvalid"
	TokenNonceReused           Kind = "TokenNonceReused"
	TokenMalformed             Kind = "TokenMalformed"

	Parse    Kind = "Parse"
	Crypto   Kind = "Crypto"
	Storage  Kind = "Storage"
	Config   Kind = "Config"
	Internal Kind = "Internal"
)

// Error is the structured error type.
//
// RuleID is a stable identifier (e.g. PID-FMT-001, REV-SEQ-002, TOK-SIG-001)
// naming the violated rule. Message is for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error by Kind, and by RuleID when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.RuleID == "" || t.RuleID == e.RuleID
}

func New(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func Wrap(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return New(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// Rule returns the stable RuleID for a structured error, or "" if unknown.
func Rule(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
