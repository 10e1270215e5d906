package pid

import (
	"testing"

	"vey.dev/pidcore/errs"
)

func TestValid(t *testing.T) {
	good := []string{
		"JP-13-113-01",
		"JP-13",
		"US-CA-SF-94105-0001",
		"DE-BY-M-80331-C01",
	}
	for _, s := range good {
		if !Valid(s) {
			t.Fatalf("expected %q to be valid", s)
		}
		if err := Validate(s); err != nil {
			t.Fatalf("Validate(%q): %v", s, err)
		}
	}

	bad := []string{
		"",
		"JP",
		"jp-13-113",
		"JP-13-abc",
		"JP_13_113",
		"JP--13",
		"JP-13-",
		"J-13",
		"JPN-13",
		" JP-13",
		"JP-13 ",
		"JP-13/113",
	}
	for _, s := range bad {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
		err := Validate(s)
		if !errs.IsKind(err, errs.InvalidPIDFormat) {
			t.Fatalf("Validate(%q): expected InvalidPIDFormat, got %v", s, err)
		}
	}
}

func TestParseAndEncodeRoundTrip(t *testing.T) {
	c, err := Parse("JP-13-113-01-C02")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Country != "JP" || c.Admin1 != "13" || c.Admin2 != "113" || c.Locality != "01" {
		t.Fatalf("unexpected components: %+v", c)
	}
	if c.Collision != "C02" {
		t.Fatalf("collision=%q", c.Collision)
	}
	out, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if out != "JP-13-113-01-C02" {
		t.Fatalf("Encode=%q", out)
	}
}

func TestParseTooDeep(t *testing.T) {
	_, err := Parse("JP-1-2-3-4-5-6-7-8")
	if !errs.IsKind(err, errs.InvalidPIDFormat) {
		t.Fatalf("expected InvalidPIDFormat, got %v", err)
	}
}

func TestEncodeStopsAtFirstGap(t *testing.T) {
	out, err := Encode(Components{Country: "jp", Admin1: "13", Locality: "skipped"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if out != "JP-13" {
		t.Fatalf("Encode=%q", out)
	}
	if _, err := Encode(Components{Country: "JP"}); err == nil {
		t.Fatalf("expected country-only PID to be rejected")
	}
}

func TestCollisionCounter(t *testing.T) {
	got, err := WithCollision("JP-13-113", 7)
	if err != nil {
		t.Fatalf("WithCollision: %v", err)
	}
	if got != "JP-13-113-C07" {
		t.Fatalf("WithCollision=%q", got)
	}
	got, err = WithCollision(got, 12)
	if err != nil {
		t.Fatalf("WithCollision: %v", err)
	}
	if got != "JP-13-113-C12" {
		t.Fatalf("replace collision=%q", got)
	}
	if _, err := WithCollision("JP-13", 100); err == nil {
		t.Fatalf("expected out-of-range counter to fail")
	}
	base, err := WithoutCollision(got)
	if err != nil || base != "JP-13-113" {
		t.Fatalf("WithoutCollision=%q err=%v", base, err)
	}
}

func TestPathAndDepth(t *testing.T) {
	d, err := Depth("JP-13-113-01-C03")
	if err != nil || d != 4 {
		t.Fatalf("Depth=%d err=%v", d, err)
	}
	p, err := Path("JP-13-113-01", 2)
	if err != nil || p != "JP-13" {
		t.Fatalf("Path=%q err=%v", p, err)
	}
	p, err = Path("JP-13-113-01-C03", 0)
	if err != nil || p != "JP-13-113-01" {
		t.Fatalf("Path(full)=%q err=%v", p, err)
	}
	if _, err := Path("bad", 1); err == nil {
		t.Fatalf("expected invalid PID to fail")
	}
}

func TestIsAncestorWholeSegments(t *testing.T) {
	if !IsAncestor("JP-13", "JP-13-113-01") {
		t.Fatalf("expected JP-13 to be an ancestor")
	}
	if IsAncestor("JP-1", "JP-10-X") {
		t.Fatalf("partial segment must not count as ancestor")
	}
	if IsAncestor("JP-13", "JP-13") {
		t.Fatalf("a PID is not its own ancestor")
	}
}

func TestCountry(t *testing.T) {
	c, err := Country("US-CA-SF")
	if err != nil || c != "US" {
		t.Fatalf("Country=%q err=%v", c, err)
	}
}

func TestInArea(t *testing.T) {
	cases := []struct {
		pid, area string
		want      bool
	}{
		{"JP-13-113-01", "JP", true},
		{"JP-13-113-01", "JP-13", true},
		{"JP-13-113-01", "JP-13-113-01", true},
		{"JP-10-113", "JP-1", false},
		{"JP-13-113-01", "US", false},
	}
	for _, tc := range cases {
		if got := InArea(tc.pid, tc.area); got != tc.want {
			t.Fatalf("InArea(%q, %q)=%v want %v", tc.pid, tc.area, got, tc.want)
		}
	}
	a := Address{Country: "JP", Admin1: "13"}
	if a.Region() != "JP-13" {
		t.Fatalf("Region=%q", a.Region())
	}
}
