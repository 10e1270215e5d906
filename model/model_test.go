package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"vey.dev/pidcore/errs"
)

func TestSnapshot_CodedError_JSONShape(t *testing.T) {
	b, err := json.Marshal(ErrorResponse{Error: FromError(errs.New(errs.TokenNonceReused, "HS-VER-004", "token nonce already used"))})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	const want = `{"error":{"code":"NONCE_REUSED","message":"token nonce already used","rule":"HS-VER-004"}}`
	if string(b) != want {
		t.Fatalf("snapshot mismatch:\n%s", b)
	}
}

func TestFromError(t *testing.T) {
	cases := []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{errs.New(errs.InvalidPIDFormat, "PID-FMT-001", "bad"), ErrInvalidPID, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", errs.New(errs.AccessDenied, "", "no")), ErrAccessDenied, http.StatusForbidden},
		{errs.New(errs.RevocationListStale, "REV-SEQ-001", "old"), ErrRevocationListStale, http.StatusConflict},
		{errs.New(errs.TokenExpired, "", "late"), ErrTokenExpired, http.StatusUnauthorized},
		{errs.New(errs.Storage, "", "down"), ErrStorage, http.StatusServiceUnavailable},
		{errors.New("plain"), ErrInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got := FromError(tc.err)
		if got.Code != tc.code || got.Code.HTTPStatus() != tc.status {
			t.Errorf("%v: got %s/%d", tc.err, got.Code, got.Code.HTTPStatus())
		}
	}
	if FromError(nil) != nil {
		t.Fatalf("nil error must map to nil")
	}
	ce := NewError(ErrNotFound, "missing")
	if FromError(ce) != ce || ce.Code.HTTPStatus() != http.StatusNotFound {
		t.Fatalf("CodedError must pass through")
	}
}

func TestValidatePID(t *testing.T) {
	ok := ValidatePID("JP-13-113-01")
	if !ok.Valid || ok.Depth != 4 || ok.Components == nil || ok.Components.Country != "JP" {
		t.Fatalf("unexpected %+v", ok)
	}
	bad := ValidatePID("jp-13")
	if bad.Valid || bad.Error == nil || bad.Error.Code != ErrInvalidPID {
		t.Fatalf("unexpected %+v", bad)
	}
}
