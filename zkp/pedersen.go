package zkp

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/cloudflare/circl/group"
	"github.com/fxamacker/cbor/v2"

	"vey.dev/pidcore/errs"
)

var (
	dstGeneratorH = []byte("vey-pidcore/zkp/pedersen/v1/H")
	dstWitness    = []byte("vey-pidcore/zkp/pedersen/v1/witness")
	dstChallenge  = []byte("vey-pidcore/zkp/pedersen/v1/challenge")
)

// pedersenProof is the CBOR body of PedersenBackend proof data.
//
// C = m*G + r*H commits to the witness scalar m. (T, Z1, Z2) is a
// Fiat-Shamir proof of knowledge of (m, r): z1*G + z2*H == T + e*C where e
// hashes the statement, C and T.
type pedersenProof struct {
	C  []byte `cbor:"c"`
	T  []byte `cbor:"t"`
	Z1 []byte `cbor:"z1"`
	Z2 []byte `cbor:"z2"`
}

// PedersenBackend hides the address behind a Ristretto255 Pedersen
// commitment and proves knowledge of its opening. Predicate results are
// bound to the proof but not proven.
type PedersenBackend struct {
	// Rand defaults to crypto/rand.
	Rand io.Reader

	once sync.Once
	h    group.Element
	enc  cbor.EncMode
	err  error
}

func (*PedersenBackend) Name() string { return "pedersen" }

func (*PedersenBackend) ProofType() string { return "pedersen-schnorr-ristretto255" }

func (b *PedersenBackend) init() error {
	b.once.Do(func() {
		b.h = group.Ristretto255.HashToElement([]byte("H"), dstGeneratorH)
		b.enc, b.err = cbor.CoreDetEncOptions().EncMode()
	})
	return b.err
}

func (b *PedersenBackend) rand() io.Reader {
	if b.Rand != nil {
		return b.Rand
	}
	return rand.Reader
}

func (b *PedersenBackend) GenerateProof(c Circuit, public PublicInputs, w Witness) (ProofData, error) {
	if err := b.init(); err != nil {
		return nil, errs.Wrap(errs.Internal, "ZKP-PED-001", "cbor encoder", err)
	}
	st, err := statement(c, public)
	if err != nil {
		return nil, err
	}
	wd, err := w.digest()
	if err != nil {
		return nil, err
	}
	g := group.Ristretto255
	m := g.HashToScalar(wd, dstWitness)
	r := g.RandomScalar(b.rand())
	a := g.RandomScalar(b.rand())
	bb := g.RandomScalar(b.rand())

	commit := b.pedersen(m, r)
	t := b.pedersen(a, bb)

	e, err := challenge(st, commit, t)
	if err != nil {
		return nil, err
	}
	z1 := g.NewScalar()
	z1.Mul(e, m)
	z1.Add(z1, a)
	z2 := g.NewScalar()
	z2.Mul(e, r)
	z2.Add(z2, bb)

	var p pedersenProof
	if p.C, err = commit.MarshalBinary(); err != nil {
		return nil, errs.Wrap(errs.Crypto, "ZKP-PED-002", "encode commitment", err)
	}
	if p.T, err = t.MarshalBinary(); err != nil {
		return nil, errs.Wrap(errs.Crypto, "ZKP-PED-002", "encode nonce commitment", err)
	}
	if p.Z1, err = z1.MarshalBinary(); err != nil {
		return nil, errs.Wrap(errs.Crypto, "ZKP-PED-002", "encode response", err)
	}
	if p.Z2, err = z2.MarshalBinary(); err != nil {
		return nil, errs.Wrap(errs.Crypto, "ZKP-PED-002", "encode response", err)
	}
	out, err := b.enc.Marshal(p)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "ZKP-PED-003", "encode proof", err)
	}
	return out, nil
}

// VerifyProof returns false, nil for any well-formed statement whose proof
// does not check, including undecodable proof data.
func (b *PedersenBackend) VerifyProof(c Circuit, public PublicInputs, data ProofData) (bool, error) {
	if err := b.init(); err != nil {
		return false, errs.Wrap(errs.Internal, "ZKP-PED-001", "cbor encoder", err)
	}
	st, err := statement(c, public)
	if err != nil {
		return false, err
	}
	var p pedersenProof
	if err := cbor.Unmarshal(data, &p); err != nil {
		return false, nil
	}
	g := group.Ristretto255
	commit, t := g.NewElement(), g.NewElement()
	z1, z2 := g.NewScalar(), g.NewScalar()
	if commit.UnmarshalBinary(p.C) != nil || t.UnmarshalBinary(p.T) != nil ||
		z1.UnmarshalBinary(p.Z1) != nil || z2.UnmarshalBinary(p.Z2) != nil {
		return false, nil
	}
	e, err := challenge(st, commit, t)
	if err != nil {
		return false, err
	}
	lhs := b.pedersen(z1, z2)
	rhs := g.NewElement()
	rhs.Mul(commit, e)
	rhs.Add(rhs, t)
	return lhs.IsEqual(rhs), nil
}

// pedersen returns x*G + y*H.
func (b *PedersenBackend) pedersen(x, y group.Scalar) group.Element {
	g := group.Ristretto255
	xg := g.NewElement()
	xg.MulGen(x)
	yh := g.NewElement()
	yh.Mul(b.h, y)
	return xg.Add(xg, yh)
}

func challenge(st []byte, commit, t group.Element) (group.Scalar, error) {
	cb, err := commit.MarshalBinary()
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "ZKP-PED-004", "encode commitment", err)
	}
	tb, err := t.MarshalBinary()
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "ZKP-PED-004", "encode nonce commitment", err)
	}
	msg := make([]byte, 0, len(st)+len(cb)+len(tb))
	msg = append(msg, st...)
	msg = append(msg, cb...)
	msg = append(msg, tb...)
	return group.Ristretto255.HashToScalar(msg, dstChallenge), nil
}
