package keys

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"
)

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := testSeed(0)

	a, err := DeriveRoleSeed(root, "issuer")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "issuer")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveRoleSeed(root, "revocation")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatalf("expected different roles to derive different seeds")
	}

	if _, err := DeriveRoleSeed(root, "bad role"); err == nil {
		t.Fatalf("expected invalid role to fail")
	}
}

func TestDIDFromSeedIsDIDKey(t *testing.T) {
	did, err := DIDFromSeed(testSeed(0x42))
	if err != nil {
		t.Fatalf("DIDFromSeed: %v", err)
	}
	if !strings.HasPrefix(did, "did:key:z6Mk") {
		t.Fatalf("expected did:key:z6Mk prefix, got %q", did)
	}
	pub, err := PublicKeyFromDIDKey(did + "#key-1")
	if err != nil {
		t.Fatalf("PublicKeyFromDIDKey: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		t.Fatalf("expected %d pubkey bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
}

func TestDeriveHMACKey(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	a, err := DeriveHMACKey(secret, "handshake")
	if err != nil {
		t.Fatalf("DeriveHMACKey: %v", err)
	}
	b, err := DeriveHMACKey(secret, "audit")
	if err != nil {
		t.Fatalf("DeriveHMACKey: %v", err)
	}
	if len(a) != 32 || bytes.Equal(a, b) {
		t.Fatalf("expected distinct 32-byte keys per info")
	}
	if _, err := DeriveHMACKey([]byte("short"), "handshake"); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}
