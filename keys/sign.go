package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"vey.dev/pidcore/errs"
)

// Algorithm names a signature scheme.
type Algorithm string

const (
	Ed25519    Algorithm = "ed25519"
	Dilithium3 Algorithm = "dilithium3"
)

// Suite returns the linked-data proof type written into proof blocks.
func (a Algorithm) Suite() string {
	switch a {
	case Ed25519:
		return "Ed25519Signature2020"
	case Dilithium3:
		return "Dilithium3Signature2023"
	default:
		return ""
	}
}

// AlgorithmForSuite maps a proof type back to its Algorithm.
func AlgorithmForSuite(suite string) (Algorithm, bool) {
	switch suite {
	case "Ed25519Signature2020":
		return Ed25519, true
	case "Dilithium3Signature2023":
		return Dilithium3, true
	default:
		return "", false
	}
}

// hashFor is the digest each algorithm signs. Messages are never signed raw.
func hashFor(a Algorithm) string {
	if a == Dilithium3 {
		return "sha3-256"
	}
	return "sha256"
}

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, errs.New(errs.Crypto, "KEY-HASH-001", fmt.Sprintf("unsupported hash algorithm: %q", hashAlg))
	}
}

// Signer produces detached signatures. Public returns the key that verifies them.
type Signer interface {
	Algorithm() Algorithm
	Public() PublicKey
	Sign(message []byte) ([]byte, error)
}

// Ed25519Signer signs sha256(message) with an Ed25519 private key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errs.New(errs.Crypto, "KEY-ED-001", fmt.Sprintf("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv)))
	}
	return &Ed25519Signer{key: priv}, nil
}

// Ed25519SignerFromSeed is NewEd25519Signer over ed25519.NewKeyFromSeed.
func Ed25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errs.New(errs.Crypto, "KEY-ED-002", fmt.Sprintf("seed must be %d bytes", ed25519.SeedSize))
	}
	return &Ed25519Signer{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) Algorithm() Algorithm { return Ed25519 }

func (s *Ed25519Signer) Public() PublicKey {
	return PublicKey{Alg: Ed25519, Bytes: s.key.Public().(ed25519.PublicKey)}
}

func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	digest, err := digestFor(hashFor(Ed25519), message)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(s.key, digest), nil
}

// Dilithium3Signer signs sha3-256(message) with a post-quantum Dilithium3 key.
type Dilithium3Signer struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

func NewDilithium3Signer(pub *mode3.PublicKey, priv *mode3.PrivateKey) (*Dilithium3Signer, error) {
	if pub == nil || priv == nil {
		return nil, errs.New(errs.Crypto, "KEY-DIL-001", "missing dilithium3 key")
	}
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

// Dilithium3SignerFromSeed derives a deterministic Dilithium3 keypair.
func Dilithium3SignerFromSeed(seed []byte) (*Dilithium3Signer, error) {
	if len(seed) != mode3.SeedSize {
		return nil, errs.New(errs.Crypto, "KEY-DIL-002", fmt.Sprintf("seed must be %d bytes", mode3.SeedSize))
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

func (s *Dilithium3Signer) Algorithm() Algorithm { return Dilithium3 }

func (s *Dilithium3Signer) Public() PublicKey {
	return PublicKey{Alg: Dilithium3, Bytes: s.pub.Bytes()}
}

func (s *Dilithium3Signer) Sign(message []byte) ([]byte, error) {
	digest, err := digestFor(hashFor(Dilithium3), message)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest, sig)
	return sig, nil
}
