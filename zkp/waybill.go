package zkp

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/cidutil"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/storage"
)

// PIDToken derives an anonymised reference to p for one requester. Without
// the salt the token cannot be linked back to p or across requesters.
func PIDToken(p, requester string, salt []byte) (string, error) {
	if err := pid.Validate(p); err != nil {
		return "", err
	}
	buf := make([]byte, 0, len(p)+len(requester)+len(salt)+2)
	buf = append(buf, p...)
	buf = append(buf, 0)
	buf = append(buf, requester...)
	buf = append(buf, 0)
	buf = append(buf, salt...)
	id, err := cidutil.Sum(buf)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type Party struct {
	Name    string `json:"name,omitempty"`
	Country string `json:"country,omitempty"`
}

type Recipient struct {
	Name     string `json:"name,omitempty"`
	PIDToken string `json:"pidToken,omitempty"`
}

type Carrier struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PackageMeta is the shipment detail a waybill may carry. None of it is an
// address.
type PackageMeta struct {
	Weight      float64
	Size        string
	CarrierZone string
	Sender      *Party
	Recipient   *Recipient
	Carrier     *Carrier
}

// Waybill binds a verified proof to a shipment.
type Waybill struct {
	WaybillID      string     `json:"waybill_id"`
	AddrPID        string     `json:"addr_pid"`
	TrackingNumber string     `json:"trackingNumber,omitempty"`
	ZKProof        Proof      `json:"zkProof"`
	ParcelWeight   float64    `json:"parcel_weight,omitempty"`
	ParcelSize     string     `json:"parcel_size,omitempty"`
	CarrierZone    string     `json:"carrier_zone,omitempty"`
	Sender         *Party     `json:"sender,omitempty"`
	Recipient      *Recipient `json:"recipient,omitempty"`
	Carrier        *Carrier   `json:"carrier,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewWaybill creates the waybill for proof. The proof must be about p and
// must report its conditions as met.
func NewWaybill(id, p string, proof Proof, trackingNumber string, meta PackageMeta) (Waybill, error) {
	return newWaybillAt(id, p, proof, trackingNumber, meta, time.Now())
}

func newWaybillAt(id, p string, proof Proof, trackingNumber string, meta PackageMeta, now time.Time) (Waybill, error) {
	if id == "" {
		return Waybill{}, errs.New(errs.Parse, "ZKP-WB-001", "waybill id is required")
	}
	if err := pid.Validate(p); err != nil {
		return Waybill{}, err
	}
	if proof.PublicInputs.PID != p {
		return Waybill{}, errs.New(errs.ProofConditionMismatch, "ZKP-WB-002", "proof is for a different PID")
	}
	if !proof.PublicInputs.ConditionsMet {
		return Waybill{}, errs.New(errs.ProofConditionMismatch, "ZKP-WB-003", "proof does not satisfy its conditions")
	}
	if meta.Weight < 0 {
		return Waybill{}, errs.New(errs.Parse, "ZKP-WB-004", "parcel weight must not be negative")
	}
	return Waybill{
		WaybillID:      id,
		AddrPID:        p,
		TrackingNumber: trackingNumber,
		ZKProof:        proof,
		ParcelWeight:   meta.Weight,
		ParcelSize:     meta.Size,
		CarrierZone:    meta.CarrierZone,
		Sender:         meta.Sender,
		Recipient:      meta.Recipient,
		Carrier:        meta.Carrier,
		CreatedAt:      now.UTC(),
	}, nil
}

// PublishWaybill stores the canonical waybill in cas.
func PublishWaybill(ctx context.Context, cas storage.CAS, w Waybill) (cid.Cid, error) {
	id, err := storage.PutDocument(ctx, cas, w)
	if err != nil {
		return cid.Undef, errs.Wrap(errs.Storage, "ZKP-WB-010", "publish waybill", err)
	}
	return id, nil
}
