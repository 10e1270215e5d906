package handshake

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
)

// hmacInfo binds derived keys to this token format.
const hmacInfo = "vey-handshake-token-v1"

// A rejected Result carries one of five reasons. The first four describe the
// token; ReasonUnavailable describes the verifier.
const (
	ReasonInvalidToken     = "INVALID_TOKEN"
	ReasonTokenExpired     = "TOKEN_EXPIRED"
	ReasonInvalidSignature = "INVALID_SIGNATURE"
	ReasonNonceReused      = "NONCE_REUSED"
	// ReasonUnavailable means the nonce store could not answer. The token is
	// rejected and its nonce is not consumed.
	ReasonUnavailable = "NONCE_STORE_UNAVAILABLE"
)

type Result struct {
	Valid  bool   `json:"valid"`
	Token  *Token `json:"token,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Err converts a failed result into the matching structured error:
// INVALID_TOKEN to TokenMalformed, TOKEN_EXPIRED to TokenExpired,
// INVALID_SIGNATURE to TokenSignatureInvalid, NONCE_REUSED to
// TokenNonceReused and NONCE_STORE_UNAVAILABLE to Storage. Only the last is
// worth retrying, since the nonce was not consumed.
func (r Result) Err() error {
	switch r.Reason {
	case "":
		return nil
	case ReasonTokenExpired:
		return errs.New(errs.TokenExpired, "HS-VER-002", "token expired")
	case ReasonInvalidSignature:
		return errs.New(errs.TokenSignatureInvalid, "HS-VER-003", "token signature invalid")
	case ReasonNonceReused:
		return errs.New(errs.TokenNonceReused, "HS-VER-004", "token nonce already used")
	case ReasonUnavailable:
		return errs.New(errs.Storage, "HS-VER-005", "nonce store unavailable")
	default:
		return errs.New(errs.TokenMalformed, "HS-VER-001", "token malformed")
	}
}

type Service struct {
	key           []byte
	Nonces        NonceStore
	Now           func() time.Time
	Rand          io.Reader
	DefaultExpiry time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.Now = now } }
func WithRand(r io.Reader) Option { return func(s *Service) { s.Rand = r } }

func WithDefaultExpiry(d time.Duration) Option {
	return func(s *Service) { s.DefaultExpiry = d }
}

// NewService derives the token MAC key from secret (at least 16 bytes).
func NewService(secret []byte, store NonceStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errs.New(errs.Config, "HS-CFG-001", "handshake service needs a nonce store")
	}
	key, err := keys.DeriveHMACKey(secret, hmacInfo)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "HS-CFG-002", "derive handshake key", err)
	}
	s := &Service{key: key, Nonces: store, DefaultExpiry: DefaultExpiry}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) mac(t Token) ([]byte, error) {
	msg, err := t.signingBytes()
	if err != nil {
		return nil, err
	}
	m := hmac.New(sha256.New, s.key)
	m.Write(msg)
	return m.Sum(nil), nil
}

func (s *Service) sign(t Token) (string, error) {
	sum, err := s.mac(t)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

func (s *Service) nonce() (string, error) {
	r := s.Rand
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errs.Wrap(errs.Crypto, "HS-GEN-002", "generate nonce", err)
	}
	return hex.EncodeToString(b), nil
}

// Generate issues a signed token. expiresIn <= 0 uses the service default.
func (s *Service) Generate(waybillNumber, orderID, carrierCode string, typ Type, expiresIn time.Duration, metadata map[string]any) (Token, error) {
	if !typ.valid() {
		return Token{}, errs.New(errs.Parse, "HS-TYPE-001", "handshake type must be PICKUP or DELIVERY, got "+string(typ))
	}
	if waybillNumber == "" || orderID == "" || carrierCode == "" {
		return Token{}, errs.New(errs.Parse, "HS-GEN-001", "waybillNumber, orderId and carrierCode are required")
	}
	if expiresIn <= 0 {
		expiresIn = s.DefaultExpiry
		if expiresIn <= 0 {
			expiresIn = DefaultExpiry
		}
	}
	n, err := s.nonce()
	if err != nil {
		return Token{}, err
	}
	now := s.now().UnixMilli()
	t := Token{
		Version:       Version,
		Type:          typ,
		WaybillNumber: waybillNumber,
		OrderID:       orderID,
		CarrierCode:   carrierCode,
		Timestamp:     now,
		ExpiresAt:     now + expiresIn.Milliseconds(),
		Nonce:         n,
		Metadata:      metadata,
	}
	if t.Signature, err = s.sign(t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// Verify checks a scanned token string, QR or NFC form. Checks run in order:
// decoding, expiry, signature, then nonce consumption, so only a token that
// passed every other check can use up its nonce.
func (s *Service) Verify(ctx context.Context, encoded string) Result {
	var (
		t   Token
		err error
	)
	if strings.HasPrefix(encoded, NFCPrefix) {
		t, err = DecodeNFC(encoded)
	} else {
		t, err = Decode(encoded)
	}
	if err != nil {
		return Result{Reason: ReasonInvalidToken}
	}
	return s.VerifyToken(ctx, t)
}

// VerifyToken is Verify for an already decoded token.
func (s *Service) VerifyToken(ctx context.Context, t Token) Result {
	if err := checkFields(t); err != nil {
		return Result{Reason: ReasonInvalidToken}
	}
	if s.now().UnixMilli() > t.ExpiresAt {
		return Result{Reason: ReasonTokenExpired}
	}
	want, err := s.mac(t)
	if err != nil {
		return Result{Reason: ReasonInvalidToken}
	}
	got, err := hex.DecodeString(t.Signature)
	if err != nil || !hmac.Equal(got, want) {
		return Result{Reason: ReasonInvalidSignature}
	}
	fresh, err := s.Nonces.Consume(ctx, t.Nonce, t.Expiry())
	if err != nil {
		log.Error().Err(err).Str("waybill", t.WaybillNumber).Msg("nonce store consume failed")
		return Result{Reason: ReasonUnavailable}
	}
	if !fresh {
		log.Warn().
			Str("waybill", t.WaybillNumber).
			Str("carrier", t.CarrierCode).
			Str("type", string(t.Type)).
			Msg("handshake token replay rejected")
		return Result{Reason: ReasonNonceReused}
	}
	return Result{Valid: true, Token: &t}
}
