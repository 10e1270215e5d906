package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func testSeed(b byte) []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b + byte(i)
	}
	return seed
}

func TestEd25519SignerSignsDigest(t *testing.T) {
	s, err := Ed25519SignerFromSeed(testSeed(0))
	if err != nil {
		t.Fatalf("Ed25519SignerFromSeed: %v", err)
	}
	msg := []byte("hello")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	digest := sha256.Sum256(msg)
	if !ed25519.Verify(ed25519.PublicKey(s.Public().Bytes), digest[:], sig) {
		t.Fatalf("signature did not verify over sha256 digest")
	}
	if err := s.Public().Verify(msg, sig); err != nil {
		t.Fatalf("PublicKey.Verify: %v", err)
	}

	sig[0] ^= 0xff
	if err := s.Public().Verify(msg, sig); err == nil {
		t.Fatalf("expected tampered signature to fail")
	}
}

func TestDilithium3SignerVerifies(t *testing.T) {
	pk, sk, err := GenerateDilithium3Keypair(io.Reader(&deterministicReader{}))
	if err != nil {
		t.Fatalf("GenerateDilithium3Keypair: %v", err)
	}
	s, err := NewDilithium3Signer(pk, sk)
	if err != nil {
		t.Fatalf("NewDilithium3Signer: %v", err)
	}

	msg := []byte("revocation list v2")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != mode3.SignatureSize {
		t.Fatalf("unexpected signature size: got %d want %d", len(sig), mode3.SignatureSize)
	}
	if err := s.Public().Verify(msg, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := s.Public().Verify([]byte("other"), sig); err == nil {
		t.Fatalf("expected wrong message to fail")
	}
}

func TestPublicKeyTextRoundTrip(t *testing.T) {
	s, err := Ed25519SignerFromSeed(testSeed(7))
	if err != nil {
		t.Fatalf("Ed25519SignerFromSeed: %v", err)
	}
	pub := s.Public()

	parsed, err := ParsePublicKey(pub.String())
	if err != nil {
		t.Fatalf("ParsePublicKey(alg form): %v", err)
	}
	if parsed.Alg != Ed25519 || string(parsed.Bytes) != string(pub.Bytes) {
		t.Fatalf("alg form mismatch")
	}

	did, err := DIDKey(ed25519.PublicKey(pub.Bytes))
	if err != nil {
		t.Fatalf("DIDKey: %v", err)
	}
	parsed, err = ParsePublicKey(did)
	if err != nil {
		t.Fatalf("ParsePublicKey(did:key): %v", err)
	}
	if string(parsed.Bytes) != string(pub.Bytes) {
		t.Fatalf("did:key form mismatch")
	}

	if _, err := ParsePublicKey("rsa:AAAA"); err == nil {
		t.Fatalf("expected unsupported algorithm to fail")
	}
}

func TestSuiteMapping(t *testing.T) {
	for _, a := range []Algorithm{Ed25519, Dilithium3} {
		got, ok := AlgorithmForSuite(a.Suite())
		if !ok || got != a {
			t.Fatalf("suite round trip failed for %s", a)
		}
	}
	if _, ok := AlgorithmForSuite("RsaSignature2018"); ok {
		t.Fatalf("unexpected suite accepted")
	}
}
