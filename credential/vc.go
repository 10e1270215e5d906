// Package credential issues DID documents and AddressPIDCredentials.
//
// A credential binds a holder DID to a Place ID. It is created once, signed
// once with an Ed25519Signature2020 proof, and read-only thereafter. The
// proof covers the canonical JSON of the credential without its proof block.
package credential

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/storage"
)

const (
	CredentialsContextV1 = "https://www.w3.org/2018/credentials/v1"
	AddressPIDContextV1  = "https://w3id.org/vey/address-pid/v1"

	TypeVerifiableCredential = "VerifiableCredential"
	TypeAddressPID           = "AddressPIDCredential"
)

type Subject struct {
	ID          string `json:"id"`
	AddressPID  string `json:"addressPID"`
	CountryCode string `json:"countryCode"`
	RegionCode  string `json:"regionCode,omitempty"`
}

type VerifiableCredential struct {
	Context           []string   `json:"@context"`
	ID                string     `json:"id"`
	Type              []string   `json:"type"`
	Issuer            string     `json:"issuer"`
	IssuanceDate      time.Time  `json:"issuanceDate"`
	ExpirationDate    *time.Time `json:"expirationDate,omitempty"`
	CredentialSubject Subject    `json:"credentialSubject"`
	Proof             *Proof     `json:"proof,omitempty"`
}

// HasType reports whether t is one of the credential's types.
func (vc VerifiableCredential) HasType(t string) bool {
	for _, v := range vc.Type {
		if v == t {
			return true
		}
	}
	return false
}

// NewAddressPIDCredential builds an unsigned credential issued now.
func NewAddressPIDCredential(holder, issuer, addressPID, countryCode, regionCode string, expires *time.Time) (VerifiableCredential, error) {
	return newAddressPIDCredential(holder, issuer, addressPID, countryCode, regionCode, expires, time.Now())
}

func newAddressPIDCredential(holder, issuer, addressPID, countryCode, regionCode string, expires *time.Time, now time.Time) (VerifiableCredential, error) {
	if err := pid.Validate(addressPID); err != nil {
		return VerifiableCredential{}, err
	}
	if holder == "" || issuer == "" {
		return VerifiableCredential{}, errs.New(errs.Parse, "CRED-SUBJ-001", "holder and issuer DIDs are required")
	}
	if country, _ := pid.Country(addressPID); country != countryCode {
		return VerifiableCredential{}, errs.New(errs.InvalidPIDFormat, "CRED-SUBJ-002", "countryCode does not match PID country "+country)
	}
	issued := now.UTC().Truncate(time.Second)
	var exp *time.Time
	if expires != nil {
		e := expires.UTC().Truncate(time.Second)
		if !e.After(issued) {
			return VerifiableCredential{}, errs.New(errs.CredentialExpired, "CRED-EXP-002", "expirationDate must be after issuanceDate")
		}
		exp = &e
	}
	return VerifiableCredential{
		Context:        []string{CredentialsContextV1, AddressPIDContextV1},
		ID:             "urn:uuid:" + uuid.NewString(),
		Type:           []string{TypeVerifiableCredential, TypeAddressPID},
		Issuer:         issuer,
		IssuanceDate:   issued,
		ExpirationDate: exp,
		CredentialSubject: Subject{
			ID:          holder,
			AddressPID:  addressPID,
			CountryCode: countryCode,
			RegionCode:  regionCode,
		},
	}, nil
}

// Sign returns a copy of vc carrying a fresh proof. Any existing proof is
// replaced, never appended to.
func Sign(vc VerifiableCredential, signer keys.Signer, verificationMethod string) (VerifiableCredential, error) {
	return signAt(vc, signer, verificationMethod, time.Now())
}

func signAt(vc VerifiableCredential, signer keys.Signer, verificationMethod string, now time.Time) (VerifiableCredential, error) {
	vc.Proof = nil
	proof, err := SignDocument(vc, signer, verificationMethod, now)
	if err != nil {
		return VerifiableCredential{}, err
	}
	vc.Proof = proof
	return vc, nil
}

// Verify reports whether vc carries a valid Ed25519 proof from pub. It
// returns false on any structural defect and never panics.
func Verify(vc VerifiableCredential, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return VerifyWith(vc, keys.Ed25519PublicKey(pub)) == nil
}

// VerifyWith checks structure and signature with any supported key type.
func VerifyWith(vc VerifiableCredential, pub keys.PublicKey) error {
	if !vc.HasType(TypeAddressPID) {
		return errs.New(errs.CredentialSignatureInvalid, "CRED-STR-001", "missing AddressPIDCredential type")
	}
	if vc.Issuer == "" || vc.CredentialSubject.ID == "" {
		return errs.New(errs.CredentialSignatureInvalid, "CRED-STR-002", "missing issuer or subject")
	}
	if !pid.Valid(vc.CredentialSubject.AddressPID) {
		return errs.New(errs.InvalidPIDFormat, "CRED-STR-003", "subject addressPID is not a valid PID")
	}
	return VerifyDocument(vc, vc.Proof, pub)
}

// CheckValidity verifies the signature and that vc has not expired at now.
func CheckValidity(vc VerifiableCredential, pub keys.PublicKey, now time.Time) error {
	if err := VerifyWith(vc, pub); err != nil {
		return err
	}
	if vc.ExpirationDate != nil && !now.Before(*vc.ExpirationDate) {
		return errs.New(errs.CredentialExpired, "CRED-EXP-001", "credential expired at "+vc.ExpirationDate.Format(time.RFC3339))
	}
	return nil
}

// Issuer signs credentials under one DID and optionally publishes them.
type Issuer struct {
	DID    string
	Signer keys.Signer
	// CAS receives the canonical signed credential when set.
	CAS storage.CAS
	Now func() time.Time
}

func (is *Issuer) now() time.Time {
	if is.Now != nil {
		return is.Now()
	}
	return time.Now()
}

// Issue creates, signs and (if a CAS is configured) publishes a credential.
// ttl <= 0 issues a credential without expiration.
func (is *Issuer) Issue(ctx context.Context, holder, addressPID, countryCode, regionCode string, ttl time.Duration) (VerifiableCredential, cid.Cid, error) {
	now := is.now()
	var exp *time.Time
	if ttl > 0 {
		e := now.Add(ttl)
		exp = &e
	}
	vc, err := newAddressPIDCredential(holder, is.DID, addressPID, countryCode, regionCode, exp, now)
	if err != nil {
		return VerifiableCredential{}, cid.Undef, err
	}
	vc, err = signAt(vc, is.Signer, KeyID(is.DID), now)
	if err != nil {
		return VerifiableCredential{}, cid.Undef, err
	}
	if is.CAS == nil {
		return vc, cid.Undef, nil
	}
	id, err := Publish(ctx, is.CAS, vc)
	if err != nil {
		return VerifiableCredential{}, cid.Undef, err
	}
	return vc, id, nil
}

// Publish stores the canonical JSON of vc in cas.
func Publish(ctx context.Context, cas storage.CAS, vc VerifiableCredential) (cid.Cid, error) {
	id, err := storage.PutDocument(ctx, cas, vc)
	if err != nil {
		return cid.Undef, errs.Wrap(errs.Storage, "CRED-PUB-001", "publish credential", err)
	}
	return id, nil
}
