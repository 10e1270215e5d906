package cidutil

import "testing"

func TestSumStable(t *testing.T) {
	a, err := Sum([]byte("revocation list"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	b, err := Sum([]byte("revocation list"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if !a.Equals(b) {
		t.Fatalf("expected identical CIDs")
	}
	if a.Version() != 1 {
		t.Fatalf("expected CIDv1, got v%d", a.Version())
	}
	if String([]byte("revocation list")) != a.String() {
		t.Fatalf("String disagrees with Sum")
	}
}

func TestParseAndVerify(t *testing.T) {
	data := []byte(`{"pid":"JP-13-113-01"}`)
	id, err := Sum(data)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Verify(parsed, data); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := Verify(parsed, []byte("tampered")); err == nil {
		t.Fatalf("expected mismatch")
	}
	if _, err := Parse("not-a-cid"); err == nil {
		t.Fatalf("expected parse failure")
	}
}
