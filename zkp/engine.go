package zkp

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"time"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/pid"
)

// Proof is what a holder hands to a verifier.
type Proof struct {
	CircuitID    string       `json:"circuitId"`
	ProofType    string       `json:"proofType"`
	Backend      string       `json:"backend"`
	PublicInputs PublicInputs `json:"publicInputs"`
	Timestamp    time.Time    `json:"timestamp"`
	ProofData    string       `json:"proofData"`
	Prover       string       `json:"prover,omitempty"`
}

// Verification is the outcome of Engine.VerifyProof.
type Verification struct {
	Valid        bool          `json:"valid"`
	CircuitID    string        `json:"circuitId"`
	PublicInputs *PublicInputs `json:"publicInputs,omitempty"`
	Error        string        `json:"error,omitempty"`
	VerifiedAt   time.Time     `json:"verifiedAt"`
}

// Engine generates and verifies proofs with one Backend.
type Engine struct {
	Backend Backend
	// Prover is recorded on generated proofs when set.
	Prover string
	Now    func() time.Time
	// Rand supplies witness salts and PID token salts; crypto/rand by default.
	Rand io.Reader
}

// NewEngine returns an Engine using b.
func NewEngine(b Backend) *Engine {
	return &Engine{Backend: b}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) random(n int) ([]byte, error) {
	r := e.Rand
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errs.Wrap(errs.Internal, "ZKP-RND-001", "read random", err)
	}
	return b, nil
}

// Evaluate runs conds against addr for p and returns the public inputs. It is
// the holder-side half of GenerateProof.
func Evaluate(p string, conds Conditions, addr pid.Address) (PublicInputs, error) {
	if err := pid.Validate(p); err != nil {
		return PublicInputs{}, err
	}
	if addr.PID != "" && addr.PID != p {
		return PublicInputs{}, errs.New(errs.ProofConditionMismatch, "ZKP-GEN-002", "address belongs to a different PID")
	}
	if err := conds.validate(); err != nil {
		return PublicInputs{}, err
	}
	public := PublicInputs{PID: p, Results: make(map[string]bool, len(conds.Predicates)), ConditionsMet: true}
	for _, pr := range conds.Predicates {
		ok, err := evaluate(pr, p, addr)
		if err != nil {
			if errs.KindOf(err) == "" {
				err = errs.Wrap(errs.ProofConditionMismatch, "ZKP-PRED-020", "predicate "+pr.Key(), err)
			}
			return PublicInputs{}, err
		}
		public.Results[pr.Key()] = ok
		public.ConditionsMet = public.ConditionsMet && ok
	}
	return public, nil
}

// GenerateProof evaluates conds against addr and proves the results under c.
// The proof is produced whether or not the conditions hold; ConditionsMet in
// the public inputs carries the outcome.
func (e *Engine) GenerateProof(p string, conds Conditions, c Circuit, addr pid.Address) (Proof, error) {
	if e.Backend == nil {
		return Proof{}, errs.New(errs.Config, "ZKP-GEN-001", "engine has no backend")
	}
	if err := c.validate(); err != nil {
		return Proof{}, err
	}
	public, err := Evaluate(p, conds, addr)
	if err != nil {
		return Proof{}, err
	}
	salt, err := e.random(32)
	if err != nil {
		return Proof{}, err
	}
	data, err := e.Backend.GenerateProof(c, public, Witness{Address: addr, Salt: salt})
	if err != nil {
		return Proof{}, errs.Wrap(errs.Crypto, "ZKP-GEN-003", "backend "+e.Backend.Name(), err)
	}
	return Proof{
		CircuitID:    c.ID,
		ProofType:    c.ProofType,
		Backend:      e.Backend.ProofType(),
		PublicInputs: public,
		Timestamp:    e.now(),
		ProofData:    base64.StdEncoding.EncodeToString(data),
		Prover:       e.Prover,
	}, nil
}

// VerifyProof checks proof against c using only the proof and the circuit.
func (e *Engine) VerifyProof(proof Proof, c Circuit) Verification {
	v := Verification{CircuitID: proof.CircuitID, VerifiedAt: e.now()}
	fail := func(msg string) Verification {
		v.Error = msg
		return v
	}
	if e.Backend == nil {
		return fail("engine has no backend")
	}
	if proof.CircuitID != c.ID {
		return fail("circuit ID mismatch")
	}
	if proof.ProofType != c.ProofType {
		return fail("proof type mismatch")
	}
	if proof.Backend != e.Backend.ProofType() {
		return fail("proof was produced by backend " + proof.Backend)
	}
	if !pid.Valid(proof.PublicInputs.PID) {
		return fail("public inputs carry an invalid PID")
	}
	if !proof.PublicInputs.consistent() {
		return fail("conditionsMet does not match predicate results")
	}
	data, err := base64.StdEncoding.DecodeString(proof.ProofData)
	if err != nil {
		return fail("proofData is not base64")
	}
	ok, err := e.Backend.VerifyProof(c, proof.PublicInputs, data)
	if err != nil {
		return fail(err.Error())
	}
	if !ok {
		return fail("proof verification failed")
	}
	v.Valid = true
	pi := proof.PublicInputs
	v.PublicInputs = &pi
	return v
}

// ShippingRequest asks whether an address satisfies a shipper's conditions.
type ShippingRequest struct {
	PID           string             `json:"pid"`
	UserSignature string             `json:"userSignature,omitempty"`
	Conditions    ShippingConditions `json:"conditions"`
	RequesterID   string             `json:"requesterId"`
	Timestamp     time.Time          `json:"timestamp"`
	// Extra predicates are appended to Conditions. They are not part of the
	// wire form.
	Extra []Predicate `json:"-"`
}

type ShippingResponse struct {
	Valid     bool      `json:"valid"`
	ZKProof   *Proof    `json:"zkProof,omitempty"`
	PIDToken  string    `json:"pidToken,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidateShippingRequest generates a proof for req, re-verifies it and
// returns it with a PID token. Any failed or malformed condition yields
// valid=false with an error and no proof.
func (e *Engine) ValidateShippingRequest(req ShippingRequest, c Circuit, addr pid.Address) ShippingResponse {
	resp := ShippingResponse{Timestamp: e.now()}
	if req.RequesterID == "" {
		resp.Error = "requesterId is required"
		return resp
	}
	conds := req.Conditions.Conditions()
	conds.Predicates = append(conds.Predicates, req.Extra...)

	proof, err := e.GenerateProof(req.PID, conds, c, addr)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if !proof.PublicInputs.ConditionsMet {
		resp.Error = "address does not satisfy shipping conditions: " + strings.Join(proof.PublicInputs.Failed(), ", ")
		return resp
	}
	if v := e.VerifyProof(proof, c); !v.Valid {
		resp.Error = "proof self-check failed: " + v.Error
		return resp
	}
	salt, err := e.random(16)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	token, err := PIDToken(req.PID, req.RequesterID, salt)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Valid = true
	resp.ZKProof = &proof
	resp.PIDToken = token
	return resp
}
