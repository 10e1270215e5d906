package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"vey.dev/pidcore/errs"
)

// PublicKey is an algorithm-tagged verification key.
//
// Text form is "<alg>:<base64>", e.g. "ed25519:3q2+7w==". Ed25519 keys also
// accept multibase (z6Mk...) and did:key forms on input.
type PublicKey struct {
	Alg   Algorithm
	Bytes []byte
}

// Ed25519PublicKey wraps a raw Ed25519 key.
func Ed25519PublicKey(pub ed25519.PublicKey) PublicKey {
	return PublicKey{Alg: Ed25519, Bytes: []byte(pub)}
}

func (k PublicKey) String() string {
	return string(k.Alg) + ":" + base64.StdEncoding.EncodeToString(k.Bytes)
}

// ParsePublicKey accepts "<alg>:<base64>", a multibase Ed25519 key or a did:key.
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "did:key:"):
		pub, err := PublicKeyFromDIDKey(s)
		if err != nil {
			return PublicKey{}, err
		}
		return Ed25519PublicKey(pub), nil
	case strings.HasPrefix(s, "z"):
		pub, err := DecodeMultibaseKey(s)
		if err != nil {
			return PublicKey{}, err
		}
		return Ed25519PublicKey(pub), nil
	}

	alg, enc, ok := strings.Cut(s, ":")
	if !ok {
		return PublicKey{}, errs.New(errs.Crypto, "KEY-PUB-001", "invalid public key encoding")
	}
	raw, err := decodeBase64(enc)
	if err != nil {
		return PublicKey{}, errs.Wrap(errs.Crypto, "KEY-PUB-002", "invalid public key base64", err)
	}
	k := PublicKey{Alg: Algorithm(alg), Bytes: raw}
	if err := k.check(); err != nil {
		return PublicKey{}, err
	}
	return k, nil
}

func (k PublicKey) check() error {
	switch k.Alg {
	case Ed25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return errs.New(errs.Crypto, "KEY-PUB-003", "invalid ed25519 public key length")
		}
	case Dilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(k.Bytes); err != nil {
			return errs.Wrap(errs.Crypto, "KEY-PUB-004", "invalid dilithium3 public key", err)
		}
	default:
		return errs.New(errs.Crypto, "KEY-PUB-005", "unsupported key algorithm")
	}
	return nil
}

// Verify checks sig over message with the same digest rule the signers use.
func (k PublicKey) Verify(message, sig []byte) error {
	if err := k.check(); err != nil {
		return err
	}
	digest, err := digestFor(hashFor(k.Alg), message)
	if err != nil {
		return err
	}
	switch k.Alg {
	case Ed25519:
		if len(sig) != ed25519.SignatureSize {
			return errs.New(errs.Crypto, "KEY-SIG-001", "invalid ed25519 signature length")
		}
		if !ed25519.Verify(ed25519.PublicKey(k.Bytes), digest, sig) {
			return errs.New(errs.Crypto, "KEY-SIG-401", "signature invalid")
		}
	case Dilithium3:
		if len(sig) != mode3.SignatureSize {
			return errs.New(errs.Crypto, "KEY-SIG-002", "invalid dilithium3 signature length")
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(k.Bytes); err != nil {
			return errs.Wrap(errs.Crypto, "KEY-PUB-004", "invalid dilithium3 public key", err)
		}
		if !mode3.Verify(&pk, digest, sig) {
			return errs.New(errs.Crypto, "KEY-SIG-401", "signature invalid")
		}
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
