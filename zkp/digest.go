package zkp

import (
	"crypto/sha256"
	"crypto/subtle"
)

const digestDomain = "vey-pidcore/zkp/digest/v1"

// DigestBackend binds public inputs to a circuit with SHA-256. Anyone can
// produce a valid digest; it is not zero-knowledge and not a proof.
type DigestBackend struct{}

func (DigestBackend) Name() string { return "digest" }

func (DigestBackend) ProofType() string { return "sha256-binding" }

func (DigestBackend) GenerateProof(c Circuit, public PublicInputs, _ Witness) (ProofData, error) {
	return digestOf(c, public)
}

func (DigestBackend) VerifyProof(c Circuit, public PublicInputs, data ProofData) (bool, error) {
	want, err := digestOf(c, public)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, data) == 1, nil
}

func digestOf(c Circuit, public PublicInputs) (ProofData, error) {
	st, err := statement(c, public)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte(digestDomain))
	h.Write(st)
	return h.Sum(nil), nil
}
