package credential

import (
	"time"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
)

const ProofPurposeAssertion = "assertionMethod"

// Proof is a detached linked-data style signature block.
//
// ProofValue is the multibase (base58btc) signature over the canonical JSON
// of the enclosing document with its "proof" member removed.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	ProofValue         string    `json:"proofValue"`
}

// SignDocument signs doc (minus any "proof" member) and returns a fresh proof.
func SignDocument(doc any, signer keys.Signer, verificationMethod string, created time.Time) (*Proof, error) {
	if signer == nil {
		return nil, errs.New(errs.Crypto, "PROOF-SIGN-001", "missing signer")
	}
	if verificationMethod == "" {
		return nil, errs.New(errs.Crypto, "PROOF-SIGN-002", "missing verification method")
	}
	payload, err := canonical.Without(doc, "proof")
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "PROOF-SIGN-003", "sign", err)
	}
	value, err := keys.EncodeSignature(sig)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "PROOF-SIGN-004", "encode signature", err)
	}
	return &Proof{
		Type:               signer.Algorithm().Suite(),
		Created:            created.UTC().Truncate(time.Second),
		VerificationMethod: verificationMethod,
		ProofPurpose:       ProofPurposeAssertion,
		ProofValue:         value,
	}, nil
}

// VerifyDocument checks proof against doc (minus "proof") with pub.
func VerifyDocument(doc any, proof *Proof, pub keys.PublicKey) error {
	if proof == nil {
		return errs.New(errs.CredentialSignatureInvalid, "PROOF-VER-001", "missing proof")
	}
	alg, ok := keys.AlgorithmForSuite(proof.Type)
	if !ok {
		return errs.New(errs.CredentialSignatureInvalid, "PROOF-VER-002", "unsupported proof type "+proof.Type)
	}
	if alg != pub.Alg {
		return errs.New(errs.CredentialSignatureInvalid, "PROOF-VER-003", "proof type does not match key algorithm")
	}
	sig, err := keys.DecodeSignature(proof.ProofValue)
	if err != nil {
		return errs.Wrap(errs.CredentialSignatureInvalid, "PROOF-VER-004", "invalid proofValue", err)
	}
	payload, err := canonical.Without(doc, "proof")
	if err != nil {
		return errs.Wrap(errs.CredentialSignatureInvalid, "PROOF-VER-005", "canonicalize", err)
	}
	if err := pub.Verify(payload, sig); err != nil {
		return errs.Wrap(errs.CredentialSignatureInvalid, "PROOF-VER-401", "signature invalid", err)
	}
	return nil
}
