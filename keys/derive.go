package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const kdfDomain = "vey-pidcore-kms-v1"

// DIDFromSeed returns the did:key identifier for an Ed25519 seed.
func DIDFromSeed(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return DIDKey(priv.Public().(ed25519.PublicKey))
}

// DeriveRoleSeed deterministically derives a role-specific Ed25519 seed from a root seed.
//
// Roles separate key usage: "issuer" signs credentials, "revocation" signs
// revocation lists, "handshake" keys token HMACs.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(kdfDomain))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	sum := h.Sum(nil)
	if len(sum) < ed25519.SeedSize {
		return nil, errors.New("kdf output too short")
	}
	out := make([]byte, ed25519.SeedSize)
	copy(out, sum[:ed25519.SeedSize])
	return out, nil
}

// DeriveHMACKey expands secret into a 32-byte MAC key bound to info using
// HKDF-SHA256. Short or low-entropy secrets are rejected.
func DeriveHMACKey(secret []byte, info string) ([]byte, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("hmac secret must be at least 16 bytes, got %d", len(secret))
	}
	r := hkdf.New(sha256.New, secret, []byte(kdfDomain), []byte(info))
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
