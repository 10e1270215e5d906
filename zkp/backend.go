package zkp

import (
	"crypto/sha256"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/pid"
)

// ProofData is the opaque backend output carried in a Proof.
type ProofData []byte

// Witness is the private input to proof generation. It never leaves the
// holder.
type Witness struct {
	Address pid.Address
	// Salt blinds the witness digest so equal addresses do not produce
	// linkable commitments.
	Salt []byte
}

func (w Witness) digest() ([]byte, error) {
	b, err := canonical.Marshal(w.Address)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(b)
	h.Write(w.Salt)
	return h.Sum(nil), nil
}

// Backend produces and checks proof data for a circuit. Implementations must
// be safe for concurrent use.
type Backend interface {
	Name() string
	// ProofType is the scheme the backend actually implements, recorded on
	// each proof next to the circuit's declared proofType.
	ProofType() string
	GenerateProof(c Circuit, public PublicInputs, w Witness) (ProofData, error)
	VerifyProof(c Circuit, public PublicInputs, data ProofData) (bool, error)
}

// statement is what every backend binds to: circuit binding plus canonical
// public inputs.
func statement(c Circuit, public PublicInputs) ([]byte, error) {
	cb, err := c.binding()
	if err != nil {
		return nil, err
	}
	pb, err := canonical.Marshal(public)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(cb)+len(pb)+1)
	out = append(out, cb...)
	out = append(out, 0)
	return append(out, pb...), nil
}
