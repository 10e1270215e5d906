// Package handshake issues and verifies the single-use tokens scanned at
// pickup and delivery.
//
// A token is HMAC-SHA256 signed over its canonical JSON without the signature
// member, travels as base64 JSON (QR) or "VEY:"-prefixed base64 JSON (NFC),
// and is accepted at most once: a successful verification consumes its nonce
// in the injected NonceStore.
package handshake

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/errs"
)

type Type string

const (
	Pickup   Type = "PICKUP"
	Delivery Type = "DELIVERY"
)

func (t Type) valid() bool { return t == Pickup || t == Delivery }

// ParseType accepts PICKUP or DELIVERY in any case.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.valid() {
		return "", errs.New(errs.Parse, "HS-TYPE-001", "handshake type must be PICKUP or DELIVERY, got "+s)
	}
	return t, nil
}

const (
	Version       = "1.0"
	DefaultExpiry = time.Hour
	NFCPrefix     = "VEY:"
)

// Timestamps are Unix milliseconds.
//
// Metadata numbers come back from Decode as json.Number, not float64, so a
// decoded token is not reflect.DeepEqual to the one that was generated.
// What round-trips is the encoding: Encode(Decode(s)) returns s, nested
// objects included, and the signature keeps verifying.
type Token struct {
	Version       string         `json:"version"`
	Type          Type           `json:"type"`
	WaybillNumber string         `json:"waybillNumber"`
	OrderID       string         `json:"orderId"`
	CarrierCode   string         `json:"carrierCode"`
	Timestamp     int64          `json:"timestamp"`
	ExpiresAt     int64          `json:"expiresAt"`
	Nonce         string         `json:"nonce"`
	Signature     string         `json:"signature"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (t Token) IssuedAt() time.Time { return time.UnixMilli(t.Timestamp).UTC() }
func (t Token) Expiry() time.Time { return time.UnixMilli(t.ExpiresAt).UTC() }

func (t Token) signingBytes() ([]byte, error) {
	return canonical.Without(t, "signature")
}

func malformed(rule, msg string, cause error) error {
	return errs.Wrap(errs.TokenMalformed, rule, msg, cause)
}

// Encode returns base64(JSON) of t. The JSON is canonical, so encoding a
// decoded token reproduces the original string.
func Encode(t Token) (string, error) {
	b, err := canonical.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode parses a base64(JSON) token. Metadata numbers are kept as
// json.Number so the signature still covers the exact digits that were sent.
func Decode(s string) (Token, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Token{}, malformed("HS-DEC-001", "empty token", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return Token{}, malformed("HS-DEC-002", "token is not base64", err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var t Token
	if err := dec.Decode(&t); err != nil {
		return Token{}, malformed("HS-DEC-003", "token is not JSON", err)
	}
	if dec.More() {
		return Token{}, malformed("HS-DEC-004", "trailing data after token", nil)
	}
	if err := checkFields(t); err != nil {
		return Token{}, err
	}
	return t, nil
}

func checkFields(t Token) error {
	switch {
	case t.Version == "":
		return malformed("HS-FLD-001", "token has no version", nil)
	case !t.Type.valid():
		return malformed("HS-FLD-002", "unknown token type "+string(t.Type), nil)
	case t.WaybillNumber == "" || t.OrderID == "" || t.CarrierCode == "":
		return malformed("HS-FLD-003", "token needs waybillNumber, orderId and carrierCode", nil)
	case t.Nonce == "":
		return malformed("HS-FLD-004", "token has no nonce", nil)
	case t.Signature == "":
		return malformed("HS-FLD-005", "token is unsigned", nil)
	case t.ExpiresAt <= t.Timestamp:
		return malformed("HS-FLD-006", "token expires before it was issued", nil)
	}
	return nil
}

func EncodeNFC(t Token) (string, error) {
	s, err := Encode(t)
	if err != nil {
		return "", err
	}
	return NFCPrefix + s, nil
}

func DecodeNFC(s string) (Token, error) {
	if !strings.HasPrefix(s, NFCPrefix) {
		return Token{}, malformed("HS-NFC-001", "NFC payload lacks "+NFCPrefix+" prefix", nil)
	}
	return Decode(strings.TrimPrefix(s, NFCPrefix))
}

// QRPayload is the string rendered into the QR code.
func QRPayload(t Token) (string, error) { return Encode(t) }
