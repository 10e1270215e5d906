package revocation

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/storage"
)

const issuer = "did:web:provider.example"

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

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

func mustEntry(t *testing.T, p, reason, newPID string, at time.Time) Entry {
	t.Helper()
	e, err := newEntryAt(p, reason, newPID, at)
	if err != nil {
		t.Fatalf("newEntryAt(%q): %v", p, err)
	}
	return e
}

func TestNewEntryValidates(t *testing.T) {
	if _, err := NewEntry("jp-13", ReasonInvalid, ""); !errs.IsKind(err, errs.InvalidPIDFormat) {
		t.Fatalf("expected InvalidPIDFormat, got %v", err)
	}
	if _, err := NewEntry("JP-13-113-01", "", ""); err == nil {
		t.Fatalf("expected missing reason to fail")
	}
	if _, err := NewEntry("JP-13-113-01", ReasonAddressChange, "JP-13-113-01"); err == nil {
		t.Fatalf("expected self-successor to fail")
	}
	if _, err := NewEntry("JP-13-113-01", "moved abroad", "US-CA-SF-01"); err != nil {
		t.Fatalf("free-text reason should be accepted: %v", err)
	}
}

func TestNewListVersioningAndSuperset(t *testing.T) {
	e1 := mustEntry(t, "JP-13-113-01", ReasonAddressChange, "JP-13-113-02", t0)
	first, err := newListAt(issuer, []Entry{e1}, nil, t0)
	if err != nil {
		t.Fatalf("newListAt: %v", err)
	}
	if first.Version != 1 || first.Previous != "" || first.MerkleRoot == "" {
		t.Fatalf("unexpected first list: %+v", first)
	}

	e2 := mustEntry(t, "JP-27-100-05", ReasonUserRequest, "", t0.Add(time.Hour))
	second, err := newListAt(issuer, []Entry{e1, e2}, &first, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("newListAt: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("version=%d, want 2", second.Version)
	}
	if len(second.Entries) != 2 {
		t.Fatalf("duplicate entry must not be repeated: %+v", second.Entries)
	}
	prevCID, _ := CID(first)
	if second.Previous != prevCID {
		t.Fatalf("previous=%q want %q", second.Previous, prevCID)
	}
	if err := ValidateSuccessor(first, second); err != nil {
		t.Fatalf("ValidateSuccessor: %v", err)
	}
	if _, err := newListAt("did:web:other.example", nil, &first, t0); !errs.IsKind(err, errs.RevocationListStale) {
		t.Fatalf("expected issuer change to be stale, got %v", err)
	}
}

func TestIsRevokedAndNewPID(t *testing.T) {
	if IsRevoked("JP-13-113-01", nil) {
		t.Fatalf("nil list must revoke nothing")
	}
	e1 := mustEntry(t, "JP-13-113-01", ReasonAddressChange, "JP-13-113-02", t0)
	e2 := mustEntry(t, "JP-13-113-01", ReasonAddressChange, "JP-13-113-03", t0.Add(time.Minute))
	l, err := newListAt(issuer, []Entry{e1, e2}, nil, t0)
	if err != nil {
		t.Fatalf("newListAt: %v", err)
	}
	if !IsRevoked("JP-13-113-01", &l) {
		t.Fatalf("expected revoked")
	}
	if IsRevoked("JP-13-113-010", &l) || IsRevoked("JP-13-113", &l) {
		t.Fatalf("revocation must match whole PIDs only")
	}
	got, ok := NewPID("JP-13-113-01", &l)
	if !ok || got != "JP-13-113-03" {
		t.Fatalf("NewPID=%q,%v want latest successor", got, ok)
	}
	if _, ok := NewPID("JP-27-100-05", &l); ok {
		t.Fatalf("unexpected successor for unrevoked pid")
	}
}

func TestValidateSuccessorRejectsRegression(t *testing.T) {
	e1 := mustEntry(t, "JP-13-113-01", ReasonInvalid, "", t0)
	e2 := mustEntry(t, "JP-13-113-02", ReasonInvalid, "", t0)
	v1, _ := newListAt(issuer, []Entry{e1}, nil, t0)
	v2, _ := newListAt(issuer, []Entry{e2}, &v1, t0)

	cases := map[string]struct {
		prev, next List
		rule       string
	}{
		"repeat":     {v2, v2, "REV-SEQ-001"},
		"regression": {v2, v1, "REV-SEQ-001"},
	}
	skip := v2
	skip.Version = 3
	cases["skip"] = struct {
		prev, next List
		rule       string
	}{v1, skip, "REV-SEQ-002"}

	dropped := v2
	dropped.Entries = []Entry{e2}
	cases["dropped"] = struct {
		prev, next List
		rule       string
	}{v1, dropped, "REV-SEQ-003"}

	foreign := v2
	foreign.Previous = "bafkreiabc"
	cases["foreign previous"] = struct {
		prev, next List
		rule       string
	}{v1, foreign, "REV-SEQ-005"}

	for name, tc := range cases {
		err := ValidateSuccessor(tc.prev, tc.next)
		if !errs.IsKind(err, errs.RevocationListStale) {
			t.Fatalf("%s: expected RevocationListStale, got %v", name, err)
		}
		if errs.Rule(err) != tc.rule {
			t.Fatalf("%s: rule=%q want %q", name, errs.Rule(err), tc.rule)
		}
	}
}

func TestSignVerify(t *testing.T) {
	s := mustSigner(t, 9)
	l, _ := newListAt(issuer, []Entry{mustEntry(t, "JP-13-113-01", ReasonInvalid, "", t0)}, nil, t0)
	signed, err := signAt(l, s, issuer+"#key-1", t0)
	if err != nil {
		t.Fatalf("signAt: %v", err)
	}
	pub := ed25519.PublicKey(s.Public().Bytes)
	if !Verify(signed, pub) {
		t.Fatalf("expected list to verify")
	}

	raw, _ := json.Marshal(signed)
	var decoded List
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Verify(decoded, pub) {
		t.Fatalf("decoded list must verify")
	}

	tampered := signed
	tampered.Entries = append([]Entry(nil), signed.Entries...)
	tampered.Entries[0].Reason = ReasonExpired
	if Verify(tampered, pub) {
		t.Fatalf("tampered entries must not verify")
	}
	bumped := signed
	bumped.Version = 7
	if Verify(bumped, pub) {
		t.Fatalf("tampered version must not verify")
	}
}

func TestSignVerifyDilithium3(t *testing.T) {
	seed := make([]byte, mode3.SeedSize)
	seed[0] = 3
	s, err := keys.Dilithium3SignerFromSeed(seed)
	if err != nil {
		t.Fatalf("Dilithium3SignerFromSeed: %v", err)
	}
	l, _ := newListAt(issuer, nil, nil, t0)
	signed, err := signAt(l, s, issuer+"#pq-1", t0)
	if err != nil {
		t.Fatalf("signAt: %v", err)
	}
	if signed.Proof.Type != "Dilithium3Signature2023" {
		t.Fatalf("proof type=%q", signed.Proof.Type)
	}
	if err := VerifyWith(signed, s.Public()); err != nil {
		t.Fatalf("VerifyWith: %v", err)
	}
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	a := mustEntry(t, "JP-13-113-01", ReasonInvalid, "", t0)
	b := mustEntry(t, "JP-13-113-02", ReasonInvalid, "", t0)
	c := mustEntry(t, "JP-13-113-03", ReasonInvalid, "", t0)
	r1, _ := MerkleRoot([]Entry{a, b, c})
	r2, _ := MerkleRoot([]Entry{a, b, c})
	r3, _ := MerkleRoot([]Entry{b, a, c})
	if r1 == "" || r1 != r2 {
		t.Fatalf("merkle root not deterministic")
	}
	if r1 == r3 {
		t.Fatalf("merkle root must depend on order")
	}
	if r, _ := MerkleRoot(nil); r != "" {
		t.Fatalf("empty root=%q", r)
	}
}

func TestMerkleRootSeparatesLeavesFromNodes(t *testing.T) {
	sum := func(b ...byte) multihash.Multihash {
		h, err := multihash.Sum(b, multihash.SHA2_256, -1)
		if err != nil {
			t.Fatalf("Sum: %v", err)
		}
		return h
	}
	leaf := func(e Entry) multihash.Multihash {
		b, err := canonical.Marshal(e)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		return sum(append([]byte{0x00}, b...)...)
	}
	a := mustEntry(t, "JP-13-113-01", ReasonInvalid, "", t0)
	b := mustEntry(t, "JP-13-113-02", ReasonInvalid, "", t0)

	single, _ := MerkleRoot([]Entry{a})
	if single != base58.Encode(leaf(a)) {
		t.Fatalf("single leaf root = %s", single)
	}
	raw, _ := canonical.Marshal(a)
	if single == base58.Encode(sum(raw...)) {
		t.Fatalf("leaf hash must not be the bare entry hash")
	}

	pair, _ := MerkleRoot([]Entry{a, b})
	node := append(append([]byte{0x01}, leaf(a)...), leaf(b)...)
	if pair != base58.Encode(sum(node...)) {
		t.Fatalf("two leaf root = %s", pair)
	}
	unprefixed := append(append([]byte{}, leaf(a)...), leaf(b)...)
	if pair == base58.Encode(sum(unprefixed...)) {
		t.Fatalf("node hash must carry its prefix")
	}
}

func TestRegistryRevokeAndLoad(t *testing.T) {
	ctx := context.Background()
	s := mustSigner(t, 10)
	pub := s.Public()
	cas := storage.NewMemoryCAS()
	clock := t0
	reg := &Registry{Issuer: issuer, Key: &pub, CAS: cas, Now: func() time.Time { return clock }}

	if reg.Current() != nil {
		t.Fatalf("expected no list yet")
	}
	v1, err := reg.Revoke(ctx, s, issuer+"#key-1", mustEntry(t, "JP-13-113-01", ReasonAddressChange, "JP-13-113-02", t0))
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	clock = clock.Add(time.Hour)
	v2, err := reg.Revoke(ctx, s, issuer+"#key-1", mustEntry(t, "JP-27-100-05", ReasonUserRequest, "", clock))
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if v2.Version != 2 || !reg.IsRevoked("JP-13-113-01") || !reg.IsRevoked("JP-27-100-05") {
		t.Fatalf("unexpected registry state: %+v", reg.Current())
	}
	if np, ok := reg.NewPID("JP-13-113-01"); !ok || np != "JP-13-113-02" {
		t.Fatalf("NewPID=%q,%v", np, ok)
	}

	if err := reg.Apply(ctx, v1); !errs.IsKind(err, errs.RevocationListStale) {
		t.Fatalf("expected stale on regression, got %v", err)
	}
	if reg.Current().Version != 2 {
		t.Fatalf("rejected list must not replace current")
	}

	// A fresh replica catches up from CAS.
	replica := &Registry{Issuer: issuer, Key: &pub, CAS: cas}
	if err := replica.Load(ctx, reg.CurrentCID()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !replica.IsRevoked("JP-27-100-05") || replica.CurrentCID() != reg.CurrentCID() {
		t.Fatalf("replica did not converge")
	}

	forged, _ := newListAt(issuer, nil, reg.Current(), clock)
	forged, _ = signAt(forged, mustSigner(t, 11), issuer+"#key-1", clock)
	if err := reg.Apply(ctx, forged); !errs.IsKind(err, errs.CredentialSignatureInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestRegistryConcurrentRevoke(t *testing.T) {
	ctx := context.Background()
	s := mustSigner(t, 12)
	reg := &Registry{Issuer: issuer}
	pids := []string{"JP-01-001", "JP-01-002", "JP-01-003", "JP-01-004", "JP-01-005", "JP-01-006", "JP-01-007", "JP-01-008"}

	var wg sync.WaitGroup
	for _, p := range pids {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			e, err := NewEntry(p, ReasonInvalid, "")
			if err != nil {
				t.Errorf("NewEntry: %v", err)
				return
			}
			if _, err := reg.Revoke(ctx, s, issuer+"#key-1", e); err != nil {
				t.Errorf("Revoke: %v", err)
			}
		}(p)
	}
	wg.Wait()

	cur := reg.Current()
	if cur == nil || cur.Version != uint64(len(pids)) || len(cur.Entries) != len(pids) {
		t.Fatalf("unexpected final list: %+v", cur)
	}
}
