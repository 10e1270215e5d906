package zkp

import (
	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/cidutil"
	"vey.dev/pidcore/errs"
)

const (
	DefaultProofType = "groth16"
	DefaultVersion   = "1.0.0"
)

// Circuit is an immutable descriptor of a predicate scheme. It is not a
// cryptographic setup: a deployment binds each ID to real proving material
// out of band and records its hash in ParamsHash.
type Circuit struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	ProofType       string `json:"proofType"`
	Version         string `json:"version"`
	ParamsHash      string `json:"paramsHash,omitempty"`
	VerificationKey string `json:"verificationKey,omitempty"`
}

type CircuitOption func(*Circuit)

func WithDescription(d string) CircuitOption { return func(c *Circuit) { c.Description = d } }

func WithProofType(t string) CircuitOption { return func(c *Circuit) { c.ProofType = t } }

func WithVersion(v string) CircuitOption { return func(c *Circuit) { c.Version = v } }

func WithVerificationKey(vk string) CircuitOption {
	return func(c *Circuit) { c.VerificationKey = vk }
}

// WithParams records the CID of the circuit's public parameters.
func WithParams(params []byte) CircuitOption {
	return func(c *Circuit) { c.ParamsHash = cidutil.String(params) }
}

// NewCircuit returns a descriptor with proofType groth16 and version 1.0.0
// unless overridden.
func NewCircuit(id, name string, opts ...CircuitOption) Circuit {
	c := Circuit{ID: id, Name: name, ProofType: DefaultProofType, Version: DefaultVersion}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func (c Circuit) validate() error {
	if c.ID == "" {
		return errs.New(errs.Parse, "ZKP-CIR-001", "circuit id is required")
	}
	if c.ProofType == "" {
		return errs.New(errs.Parse, "ZKP-CIR-002", "circuit proofType is required")
	}
	return nil
}

// binding is the part of the descriptor a proof is bound to.
func (c Circuit) binding() ([]byte, error) {
	return canonical.Marshal(struct {
		ID         string `json:"id"`
		ProofType  string `json:"proofType"`
		Version    string `json:"version"`
		ParamsHash string `json:"paramsHash,omitempty"`
	}{c.ID, c.ProofType, c.Version, c.ParamsHash})
}
