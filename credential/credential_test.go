package credential

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/storage"
)

func mustSigner(t *testing.T, seedByte byte) *keys.Ed25519Signer {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	s, err := keys.Ed25519SignerFromSeed(seed)
	if err != nil {
		t.Fatalf("Ed25519SignerFromSeed: %v", err)
	}
	return s
}

func pubOf(s *keys.Ed25519Signer) ed25519.PublicKey {
	return ed25519.PublicKey(s.Public().Bytes)
}

const (
	holderDID = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"
	issuerDID = "did:web:vey.example"
)

func TestNewDIDDocumentDeterministic(t *testing.T) {
	s := mustSigner(t, 1)
	a, err := NewDIDDocument(issuerDID, pubOf(s))
	if err != nil {
		t.Fatalf("NewDIDDocument: %v", err)
	}
	b, _ := NewDIDDocument(issuerDID, pubOf(s))
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("expected deterministic documents")
	}
	if len(a.Authentication) != 1 || a.Authentication[0] != issuerDID+"#key-1" {
		t.Fatalf("authentication=%v", a.Authentication)
	}
	if !strings.HasPrefix(a.VerificationMethod[0].PublicKeyMultibase, "z6Mk") {
		t.Fatalf("unexpected multibase key %q", a.VerificationMethod[0].PublicKeyMultibase)
	}
	pub, err := a.PublicKey(KeyID(issuerDID))
	if err != nil || !pub.Equal(pubOf(s)) {
		t.Fatalf("PublicKey lookup failed: %v", err)
	}
}

func TestNewAddressPIDCredentialRejectsBadPID(t *testing.T) {
	for _, bad := range []string{"", "jp-13-113", "JP", "JP_13"} {
		_, err := NewAddressPIDCredential(holderDID, issuerDID, bad, "JP", "", nil)
		if !errs.IsKind(err, errs.InvalidPIDFormat) {
			t.Fatalf("%q: expected InvalidPIDFormat, got %v", bad, err)
		}
	}
	if _, err := NewAddressPIDCredential(holderDID, issuerDID, "JP-13-113-01", "US", "", nil); err == nil {
		t.Fatalf("expected country mismatch to fail")
	}
}

func TestCredentialSubjectIsHolder(t *testing.T) {
	vc, err := NewAddressPIDCredential(holderDID, issuerDID, "JP-13-113-01", "JP", "13", nil)
	if err != nil {
		t.Fatalf("NewAddressPIDCredential: %v", err)
	}
	if vc.CredentialSubject.ID != holderDID || vc.Issuer != issuerDID {
		t.Fatalf("subject/issuer mixed up: %+v", vc)
	}
	if !vc.HasType(TypeAddressPID) {
		t.Fatalf("missing AddressPIDCredential type")
	}
}

func TestSignVerify(t *testing.T) {
	s := mustSigner(t, 2)
	vc, err := NewAddressPIDCredential(holderDID, issuerDID, "JP-13-113-01", "JP", "13", nil)
	if err != nil {
		t.Fatalf("NewAddressPIDCredential: %v", err)
	}
	signed, err := Sign(vc, s, KeyID(issuerDID))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if signed.Proof == nil || signed.Proof.Type != "Ed25519Signature2020" {
		t.Fatalf("unexpected proof %+v", signed.Proof)
	}
	if signed.Proof.VerificationMethod != issuerDID+"#key-1" {
		t.Fatalf("verificationMethod=%q", signed.Proof.VerificationMethod)
	}
	if !Verify(signed, pubOf(s)) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(signed, pubOf(mustSigner(t, 3))) {
		t.Fatalf("wrong key must not verify")
	}

	tampered := signed
	tampered.CredentialSubject.AddressPID = "JP-13-113-02"
	if Verify(tampered, pubOf(s)) {
		t.Fatalf("tampered credential must not verify")
	}

	if Verify(vc, pubOf(s)) {
		t.Fatalf("unsigned credential must not verify")
	}
	if Verify(signed, nil) {
		t.Fatalf("missing key must not verify")
	}
}

func TestVerifyAfterJSONRoundTrip(t *testing.T) {
	s := mustSigner(t, 4)
	vc, _ := NewAddressPIDCredential(holderDID, issuerDID, "US-CA-SF-94105", "US", "CA", nil)
	signed, err := Sign(vc, s, KeyID(issuerDID))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, err := json.Marshal(signed)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded VerifiableCredential
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Verify(decoded, pubOf(s)) {
		t.Fatalf("expected decoded credential to verify")
	}
}

func TestResignReplacesProof(t *testing.T) {
	s := mustSigner(t, 5)
	vc, _ := NewAddressPIDCredential(holderDID, issuerDID, "JP-13-113-01", "JP", "", nil)
	first, err := Sign(vc, s, KeyID(issuerDID))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	second, err := Sign(first, s, KeyID(issuerDID))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if second.Proof == first.Proof {
		t.Fatalf("expected a fresh proof object")
	}
	// Ed25519 is deterministic: identical payload, identical signature.
	if second.Proof.ProofValue != first.Proof.ProofValue {
		t.Fatalf("re-signing identical input changed the signature")
	}
	if !Verify(second, pubOf(s)) {
		t.Fatalf("re-signed credential must verify")
	}
}

func TestCheckValidityExpiry(t *testing.T) {
	s := mustSigner(t, 6)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := issued.Add(24 * time.Hour)
	vc, err := newAddressPIDCredential(holderDID, issuerDID, "JP-13-113-01", "JP", "", &exp, issued)
	if err != nil {
		t.Fatalf("newAddressPIDCredential: %v", err)
	}
	signed, err := signAt(vc, s, KeyID(issuerDID), issued)
	if err != nil {
		t.Fatalf("signAt: %v", err)
	}
	if err := CheckValidity(signed, s.Public(), issued.Add(time.Hour)); err != nil {
		t.Fatalf("CheckValidity before expiry: %v", err)
	}
	err = CheckValidity(signed, s.Public(), exp)
	if !errs.IsKind(err, errs.CredentialExpired) {
		t.Fatalf("expected CredentialExpired, got %v", err)
	}

	signed.CredentialSubject.RegionCode = "27"
	err = CheckValidity(signed, s.Public(), issued)
	if !errs.IsKind(err, errs.CredentialSignatureInvalid) {
		t.Fatalf("expected CredentialSignatureInvalid, got %v", err)
	}
}

func TestIssuerPublishes(t *testing.T) {
	s := mustSigner(t, 7)
	cas := storage.NewMemoryCAS()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	is := &Issuer{DID: issuerDID, Signer: s, CAS: cas, Now: func() time.Time { return fixed }}

	vc, id, err := is.Issue(context.Background(), holderDID, "JP-13-113-01", "JP", "13", 365*24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !id.Defined() {
		t.Fatalf("expected published CID")
	}
	var stored VerifiableCredential
	if err := storage.GetDocument(context.Background(), cas, id, &stored); err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.ID != vc.ID || !Verify(stored, pubOf(s)) {
		t.Fatalf("published credential does not verify")
	}
	if vc.ExpirationDate == nil || !vc.ExpirationDate.Equal(fixed.Add(365*24*time.Hour)) {
		t.Fatalf("unexpected expiration %v", vc.ExpirationDate)
	}
}
