package zkp

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/storage"
)

const testPID = "JP-13-113-01"

var fixed = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

func tokyo() pid.Address {
	return pid.Address{
		PID:        testPID,
		Country:    "JP",
		Admin1:     "13",
		Admin2:     "113",
		Locality:   "Shibuya",
		Street:     "2-21-1 Shibuya",
		Building:   "Hikarie",
		Unit:       "11F",
		PostalCode: "150-8510",
		Recipient:  "Taro Yamada",
	}
}

func backends() map[string]Backend {
	return map[string]Backend{
		"digest":   DigestBackend{},
		"pedersen": &PedersenBackend{},
	}
}

func newEngine(b Backend) *Engine {
	e := NewEngine(b)
	e.Now = func() time.Time { return fixed }
	return e
}

func TestNewCircuitDefaults(t *testing.T) {
	c := NewCircuit("address-validation-v1", "Address validation")
	if c.ProofType != "groth16" || c.Version != "1.0.0" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	c = NewCircuit("x", "y", WithProofType("plonk"), WithDescription("d"), WithParams([]byte("params")))
	if c.ProofType != "plonk" || c.Description != "d" || !strings.HasPrefix(c.ParamsHash, "bafk") {
		t.Fatalf("options not applied: %+v", c)
	}
}

func TestPublicInputsCarryNoAddressFields(t *testing.T) {
	addr := tokyo()
	for name, b := range backends() {
		e := newEngine(b)
		conds := ConditionsFromShipping([]string{"JP"}, []string{"JP-13"}, []string{"JP-27"})
		proof, err := e.GenerateProof(testPID, conds, NewCircuit("address-validation-v1", "v1"), addr)
		if err != nil {
			t.Fatalf("%s: GenerateProof: %v", name, err)
		}
		raw, err := json.Marshal(proof.PublicInputs)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", name, err)
		}
		for _, leak := range []string{addr.Street, addr.Building, addr.PostalCode, addr.Recipient, addr.Locality, addr.Unit} {
			if bytes.Contains(raw, []byte(leak)) {
				t.Fatalf("%s: public inputs leak %q: %s", name, leak, raw)
			}
		}
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		want := map[string]any{"pid": testPID, "conditionsMet": true, "countryIn": true, "regionIn": true, "notInArea": true}
		if len(m) != len(want) {
			t.Fatalf("%s: public inputs=%v", name, m)
		}
		for k, v := range want {
			if m[k] != v {
				t.Fatalf("%s: public input %s=%v want %v", name, k, m[k], v)
			}
		}
		rawProof, _ := json.Marshal(proof)
		for _, leak := range []string{addr.Street, addr.PostalCode, addr.Recipient} {
			if bytes.Contains(rawProof, []byte(leak)) {
				t.Fatalf("%s: proof leaks %q", name, leak)
			}
		}
	}
}

func TestVerifyProofRoundTrip(t *testing.T) {
	c := NewCircuit("address-validation-v1", "v1")
	for name, b := range backends() {
		e := newEngine(b)
		proof, err := e.GenerateProof(testPID, ConditionsFromShipping([]string{"JP"}, nil, nil), c, tokyo())
		if err != nil {
			t.Fatalf("%s: GenerateProof: %v", name, err)
		}
		raw, _ := json.Marshal(proof)
		var decoded Proof
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s: Unmarshal: %v", name, err)
		}
		v := e.VerifyProof(decoded, c)
		if !v.Valid || v.CircuitID != c.ID || v.PublicInputs == nil || v.PublicInputs.PID != testPID {
			t.Fatalf("%s: verification=%+v", name, v)
		}
	}
}

func TestVerifyProofRejects(t *testing.T) {
	c := NewCircuit("address-validation-v1", "v1")
	for name, b := range backends() {
		e := newEngine(b)
		good, err := e.GenerateProof(testPID, ConditionsFromShipping([]string{"JP"}, []string{"13"}, nil), c, tokyo())
		if err != nil {
			t.Fatalf("%s: GenerateProof: %v", name, err)
		}

		if v := e.VerifyProof(good, NewCircuit("other", "v1")); v.Valid || v.Error != "circuit ID mismatch" {
			t.Fatalf("%s: expected circuit mismatch, got %+v", name, v)
		}
		if v := e.VerifyProof(good, NewCircuit(c.ID, "v1", WithProofType("plonk"))); v.Valid || v.Error != "proof type mismatch" {
			t.Fatalf("%s: expected proof type mismatch, got %+v", name, v)
		}
		if v := e.VerifyProof(good, NewCircuit(c.ID, "v1", WithVersion("2.0.0"))); v.Valid {
			t.Fatalf("%s: proof must be bound to circuit version", name)
		}

		otherPID := good
		otherPID.PublicInputs.PID = "JP-13-113-02"
		if v := e.VerifyProof(otherPID, c); v.Valid {
			t.Fatalf("%s: substituted PID must not verify", name)
		}

		flipped := good
		flipped.PublicInputs.Results = map[string]bool{"countryIn": true, "regionIn": false}
		flipped.PublicInputs.ConditionsMet = false
		if v := e.VerifyProof(flipped, c); v.Valid {
			t.Fatalf("%s: altered predicate result must not verify", name)
		}

		lying := good
		lying.PublicInputs.Results = map[string]bool{"countryIn": false, "regionIn": true}
		if v := e.VerifyProof(lying, c); v.Valid {
			t.Fatalf("%s: inconsistent conditionsMet must not verify", name)
		}

		garbage := good
		garbage.ProofData = "AAAA"
		if v := e.VerifyProof(garbage, c); v.Valid {
			t.Fatalf("%s: garbage proof data must not verify", name)
		}
	}
}

func TestVerifyProofRejectsForeignBackend(t *testing.T) {
	c := NewCircuit("address-validation-v1", "v1")
	proof, err := newEngine(DigestBackend{}).GenerateProof(testPID, Conditions{}, c, tokyo())
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if v := newEngine(&PedersenBackend{}).VerifyProof(proof, c); v.Valid {
		t.Fatalf("digest proof must not pass the pedersen verifier")
	}
}

func TestPedersenHidesEqualAddresses(t *testing.T) {
	e := newEngine(&PedersenBackend{})
	c := NewCircuit("address-validation-v1", "v1")
	a, _ := e.GenerateProof(testPID, Conditions{}, c, tokyo())
	b, _ := e.GenerateProof(testPID, Conditions{}, c, tokyo())
	if a.ProofData == b.ProofData {
		t.Fatalf("proofs over the same address must not be linkable")
	}
}

func TestGenerateProofRejectsInvalidInput(t *testing.T) {
	e := newEngine(DigestBackend{})
	c := NewCircuit("address-validation-v1", "v1")
	if _, err := e.GenerateProof("jp-13", Conditions{}, c, pid.Address{}); !errs.IsKind(err, errs.InvalidPIDFormat) {
		t.Fatalf("expected InvalidPIDFormat, got %v", err)
	}
	if _, err := e.GenerateProof("JP-27-100", Conditions{}, c, tokyo()); !errs.IsKind(err, errs.ProofConditionMismatch) {
		t.Fatalf("expected address/PID mismatch, got %v", err)
	}
	if _, err := e.GenerateProof(testPID, Conditions{}, Circuit{}, tokyo()); err == nil {
		t.Fatalf("expected empty circuit to fail")
	}

	malformed := []Conditions{
		{Predicates: []Predicate{CountryIn{}}},
		{Predicates: []Predicate{RegionIn{}}},
		{Predicates: []Predicate{Custom{Name: "noFn"}}},
		{Predicates: []Predicate{Custom{Name: "pid", Fn: func(string, pid.Address) (bool, error) { return true, nil }}}},
		{Predicates: []Predicate{CountryIn{Countries: []string{"JP"}}, CountryIn{Countries: []string{"US"}}}},
		{Predicates: []Predicate{nil}},
	}
	for i, conds := range malformed {
		if _, err := e.GenerateProof(testPID, conds, c, tokyo()); !errs.IsKind(err, errs.ProofConditionMismatch) {
			t.Fatalf("case %d: expected ProofConditionMismatch, got %v", i, err)
		}
	}
}

func TestCustomPredicate(t *testing.T) {
	e := newEngine(DigestBackend{})
	c := NewCircuit("address-validation-v1", "v1")
	hasPostal := Custom{Name: "hasPostalCode", Fn: func(_ string, a pid.Address) (bool, error) { return a.PostalCode != "", nil }}
	proof, err := e.GenerateProof(testPID, Conditions{Predicates: []Predicate{hasPostal}}, c, tokyo())
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if !proof.PublicInputs.Results["hasPostalCode"] || !proof.PublicInputs.ConditionsMet {
		t.Fatalf("unexpected inputs %+v", proof.PublicInputs)
	}

	boom := Custom{Name: "boom", Fn: func(string, pid.Address) (bool, error) { return false, errors.New("lookup failed") }}
	if _, err := e.GenerateProof(testPID, Conditions{Predicates: []Predicate{boom}}, c, tokyo()); !errs.IsKind(err, errs.ProofConditionMismatch) {
		t.Fatalf("expected wrapped predicate failure, got %v", err)
	}
}

func TestPanickingCustomPredicateIsRejected(t *testing.T) {
	e := newEngine(DigestBackend{})
	c := NewCircuit("address-validation-v1", "v1")
	var counts map[string]int
	tally := Custom{Name: "tally", Fn: func(p string, _ pid.Address) (bool, error) {
		counts[p]++
		return true, nil
	}}
	resp := e.ValidateShippingRequest(ShippingRequest{
		PID:         testPID,
		RequesterID: "did:web:shop.example",
		Conditions:  ShippingConditions{AllowedCountries: []string{"JP"}},
		Extra:       []Predicate{tally},
	}, c, tokyo())
	if resp.Valid || resp.ZKProof != nil {
		t.Fatalf("panicking predicate produced %+v", resp)
	}
	if !strings.Contains(resp.Error, "custom predicate tally panicked") {
		t.Fatalf("error = %q", resp.Error)
	}

	_, err := Evaluate(testPID, Conditions{Predicates: []Predicate{tally}}, tokyo())
	if !errs.IsKind(err, errs.ProofConditionMismatch) || errs.Rule(err) != "ZKP-PRED-021" {
		t.Fatalf("Evaluate: %v", err)
	}
}

func TestNotInAreaWholeSegments(t *testing.T) {
	addr := pid.Address{Country: "JP", Admin1: "10"}
	ok, err := evaluate(NotInArea{Areas: []string{"JP-1"}}, "JP-10-200", addr)
	if err != nil || !ok {
		t.Fatalf("JP-1 must not cover JP-10-200: ok=%v err=%v", ok, err)
	}
	ok, _ = evaluate(NotInArea{Areas: []string{"JP-10"}}, "JP-10-200", addr)
	if ok {
		t.Fatalf("JP-10 must cover JP-10-200")
	}
}

func TestValidateShippingRequest(t *testing.T) {
	c := NewCircuit("address-validation-v1", "v1")
	for name, b := range backends() {
		e := newEngine(b)
		req := ShippingRequest{
			PID:         testPID,
			Conditions:  ShippingConditions{AllowedCountries: []string{"JP"}},
			RequesterID: "did:web:shop.example",
			Timestamp:   fixed,
		}
		resp := e.ValidateShippingRequest(req, c, tokyo())
		if !resp.Valid || resp.ZKProof == nil || resp.PIDToken == "" || resp.Error != "" {
			t.Fatalf("%s: unexpected response %+v", name, resp)
		}
		if strings.Contains(resp.PIDToken, testPID) {
			t.Fatalf("%s: token leaks pid", name)
		}

		req.Conditions.AllowedCountries = []string{"US"}
		resp = e.ValidateShippingRequest(req, c, tokyo())
		if resp.Valid || resp.Error == "" || resp.ZKProof != nil || resp.PIDToken != "" {
			t.Fatalf("%s: country mismatch must fail without a proof: %+v", name, resp)
		}
		if !strings.Contains(resp.Error, "countryIn") {
			t.Fatalf("%s: error should name the failed predicate: %q", name, resp.Error)
		}

		req.Conditions = ShippingConditions{AllowedCountries: []string{"JP"}, ProhibitedAreas: []string{"JP-13-113"}}
		if resp := e.ValidateShippingRequest(req, c, tokyo()); resp.Valid {
			t.Fatalf("%s: prohibited area must fail", name)
		}

		req.PID = "not a pid"
		if resp := e.ValidateShippingRequest(req, c, tokyo()); resp.Valid || resp.Error == "" {
			t.Fatalf("%s: invalid pid must fail", name)
		}
	}
}

func TestPIDTokenUnlinkable(t *testing.T) {
	a, err := PIDToken(testPID, "shop-a", []byte("salt-1"))
	if err != nil {
		t.Fatalf("PIDToken: %v", err)
	}
	b, _ := PIDToken(testPID, "shop-b", []byte("salt-1"))
	again, _ := PIDToken(testPID, "shop-a", []byte("salt-1"))
	if a == b || a != again {
		t.Fatalf("token must be deterministic per (pid, requester, salt)")
	}
	if _, err := PIDToken("bad", "shop-a", nil); err == nil {
		t.Fatalf("expected invalid pid to fail")
	}
}

func TestWaybill(t *testing.T) {
	e := newEngine(DigestBackend{})
	c := NewCircuit("address-validation-v1", "v1")
	resp := e.ValidateShippingRequest(ShippingRequest{
		PID:         testPID,
		Conditions:  ShippingConditions{AllowedCountries: []string{"JP"}},
		RequesterID: "shop",
	}, c, tokyo())
	if !resp.Valid {
		t.Fatalf("ValidateShippingRequest: %s", resp.Error)
	}
	meta := PackageMeta{
		Weight:    1.5,
		Size:      "60",
		Recipient: &Recipient{Name: "T. Yamada", PIDToken: resp.PIDToken},
		Carrier:   &Carrier{ID: "yamato", Name: "Yamato Transport"},
	}
	w, err := newWaybillAt("WB-0001", testPID, *resp.ZKProof, "1234-5678-9012", meta, fixed)
	if err != nil {
		t.Fatalf("newWaybillAt: %v", err)
	}
	raw, _ := json.Marshal(w)
	for _, key := range []string{`"waybill_id":"WB-0001"`, `"addr_pid":"JP-13-113-01"`, `"parcel_weight":1.5`} {
		if !bytes.Contains(raw, []byte(key)) {
			t.Fatalf("waybill JSON missing %s: %s", key, raw)
		}
	}
	cas := storage.NewMemoryCAS()
	if _, err := PublishWaybill(context.Background(), cas, w); err != nil {
		t.Fatalf("PublishWaybill: %v", err)
	}

	if _, err := NewWaybill("WB-0002", "JP-27-100", *resp.ZKProof, "", meta); !errs.IsKind(err, errs.ProofConditionMismatch) {
		t.Fatalf("expected pid mismatch, got %v", err)
	}
	failed := *resp.ZKProof
	failed.PublicInputs.ConditionsMet = false
	if _, err := NewWaybill("WB-0003", testPID, failed, "", meta); err == nil {
		t.Fatalf("expected unmet conditions to be rejected")
	}
}

func TestProviderSignature(t *testing.T) {
	seed := bytes.Repeat([]byte{21}, ed25519.SeedSize)
	s, _ := keys.Ed25519SignerFromSeed(seed)
	did, err := keys.DIDKey(ed25519.PublicKey(s.Public().Bytes))
	if err != nil {
		t.Fatalf("DIDKey: %v", err)
	}
	prov, err := NewAddressProvider("vey", "Vey", did, did, "https://vey.example/zkp",
		[]Circuit{NewCircuit("address-validation-v1", "v1")}, []string{"JP"})
	if err != nil {
		t.Fatalf("NewAddressProvider: %v", err)
	}
	if _, ok := prov.Circuit("address-validation-v1"); !ok || !prov.Supports("JP") || prov.Supports("US") {
		t.Fatalf("unexpected provider lookups")
	}
	payload := map[string]any{"pid": testPID, "valid": true}
	sig, err := SignProviderPayload(payload, s)
	if err != nil {
		t.Fatalf("SignProviderPayload: %v", err)
	}
	if !VerifyProviderSignature(payload, sig, prov) {
		t.Fatalf("expected signature to verify")
	}
	payload["valid"] = false
	if VerifyProviderSignature(payload, sig, prov) {
		t.Fatalf("modified payload must not verify")
	}
	if VerifyProviderSignature(payload, "zz", prov) {
		t.Fatalf("non-hex signature must not verify")
	}
	if _, err := NewAddressProvider("x", "X", "did:web:x", "nonsense", "", nil, nil); err == nil {
		t.Fatalf("expected bad verification key to fail")
	}
}
