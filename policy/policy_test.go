package policy

import (
	"strings"
	"testing"
	"time"

	"vey.dev/pidcore/errs"
)

const carrier = "did:web:carrier.example"

var now = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func TestParseMatcher(t *testing.T) {
	cases := []struct {
		pattern string
		pid     string
		want    bool
	}{
		{"JP-13-113-01", "JP-13-113-01", true},
		{"JP-13-113-01", "JP-13-113-010", false},
		{"JP-13-*", "JP-13-113-01", true},
		{"JP-13-*", "JP-13", false},
		{"JP-*", "JP", false},
		{"JP-1-*", "JP-10-X", false},
		{"JP-1-*", "JP-1-X", true},
		{"JP-*", "JP-27-100", true},
		{"JP-*", "US-CA-1", false},
		{"*", "US-CA-1", true},
	}
	for _, tc := range cases {
		m, err := ParseMatcher(tc.pattern)
		if err != nil {
			t.Fatalf("ParseMatcher(%q): %v", tc.pattern, err)
		}
		if got := m.Match(tc.pid); got != tc.want {
			t.Fatalf("%q.Match(%q)=%v want %v", tc.pattern, tc.pid, got, tc.want)
		}
	}

	for _, bad := range []string{"JP-1*", "JP-*-01", "jp-13-*", "J-*", ""} {
		if _, err := ParseMatcher(bad); err == nil {
			t.Fatalf("ParseMatcher(%q): expected error", bad)
		}
	}
}

func TestMatcherString(t *testing.T) {
	if PrefixWildcard("JP-13").String() != "JP-13-*" || PrefixWildcard("").String() != "*" {
		t.Fatalf("unexpected wildcard rendering")
	}
	if Exact("JP-13-1").String() != "JP-13-1" {
		t.Fatalf("unexpected exact rendering")
	}
}

func TestValidate(t *testing.T) {
	exp := now.Add(time.Hour)
	p := AccessPolicy{ID: "p1", Principal: carrier, Resource: "JP-13-*", Action: ActionResolve, ExpiresAt: &exp}

	if !Validate(p, carrier, ActionResolve, "JP-13-113-01", now) {
		t.Fatalf("expected allow")
	}
	if Validate(p, "did:web:other.example", ActionResolve, "JP-13-113-01", now) {
		t.Fatalf("other principal must be denied")
	}
	if Validate(p, carrier, ActionView, "JP-13-113-01", now) {
		t.Fatalf("other action must be denied")
	}
	if Validate(p, carrier, ActionResolve, "JP-14-113-01", now) {
		t.Fatalf("resource outside pattern must be denied")
	}
	if Validate(p, carrier, ActionResolve, "JP-13-113-01", exp) {
		t.Fatalf("expired policy must be denied")
	}
	if Validate(p, carrier, ActionResolve, "jp-13-113-01", now) {
		t.Fatalf("invalid pid must be denied")
	}

	broken := p
	broken.Resource = "JP-1*"
	if Validate(broken, carrier, ActionResolve, "JP-10-1", now) {
		t.Fatalf("unparseable resource must deny")
	}
}

func TestAllowsConditions(t *testing.T) {
	p := AccessPolicy{ID: "p", Principal: carrier, Resource: "JP-*", Action: ActionResolve,
		Conditions: map[string]string{"reason": "delivery"}}
	r := Request{Requester: carrier, Action: ActionResolve, PID: "JP-13-113-01"}
	if Allows(p, r, now) {
		t.Fatalf("missing attribute must deny")
	}
	r.Attributes = map[string]string{"reason": "marketing"}
	if Allows(p, r, now) {
		t.Fatalf("wrong attribute must deny")
	}
	r.Attributes["reason"] = "delivery"
	if !Allows(p, r, now) {
		t.Fatalf("matching attribute must allow")
	}
}

const validSet = `-----BEGIN VEY ACCESS POLICY-----
META
Version: 1
Issuer: did:web:vey.example

POLICIES
# Tokyo deliveries
Policy:
  ID: carrier-tokyo
  Principal: did:web:carrier.example
  Resource: JP-13-*
  Action: resolve
  Expires: 2027-01-01T00:00:00Z
  Condition: reason=delivery

Policy:
  ID: support-view
  Principal: did:web:support.example
  Resource: *
  Action: view
-----END VEY ACCESS POLICY-----
`

func TestParseSet(t *testing.T) {
	set, err := ParseSet([]byte(validSet))
	if err != nil {
		t.Fatalf("ParseSet: %v", err)
	}
	if set.Meta["Issuer"] != "did:web:vey.example" || len(set.Policies) != 2 {
		t.Fatalf("unexpected set: %+v", set)
	}
	p := set.Policies[0]
	if p.ExpiresAt == nil || p.Conditions["reason"] != "delivery" || p.Resource != "JP-13-*" {
		t.Fatalf("unexpected policy: %+v", p)
	}

	got, ok := set.Find(Request{Requester: carrier, Action: ActionResolve, PID: "JP-13-113-01",
		Attributes: map[string]string{"reason": "delivery"}}, now)
	if !ok || got.ID != "carrier-tokyo" {
		t.Fatalf("Find=%+v,%v", got, ok)
	}
	if _, ok := set.Find(Request{Requester: carrier, Action: ActionResolve, PID: "JP-27-1",
		Attributes: map[string]string{"reason": "delivery"}}, now); ok {
		t.Fatalf("expected no policy for Osaka")
	}
	var nilSet *Set
	if _, ok := nilSet.Find(Request{}, now); ok {
		t.Fatalf("nil set must find nothing")
	}
}

func TestParseSetRejects(t *testing.T) {
	cases := map[string]string{
		"bom":                 "\xEF\xBB\xBF" + validSet,
		"crlf":                strings.ReplaceAll(validSet, "\n", "\r\n"),
		"trailing whitespace": strings.Replace(validSet, "Version: 1", "Version: 1 ", 1),
		"no preamble":         strings.TrimPrefix(validSet, setPreamble+"\n"),
		"no postamble":        strings.Replace(validSet, setPostamble, "", 1),
		"bad resource":        strings.Replace(validSet, "Resource: JP-13-*", "Resource: JP-1*", 1),
		"unknown field":       strings.Replace(validSet, "Action: view", "Verb: view", 1),
		"duplicate id":        strings.Replace(validSet, "ID: support-view", "ID: carrier-tokyo", 1),
		"missing action":      strings.Replace(validSet, "  Action: view\n", "", 1),
		"bad expiry":          strings.Replace(validSet, "2027-01-01T00:00:00Z", "tomorrow", 1),
		"bad condition":       strings.Replace(validSet, "reason=delivery", "reason", 1),
	}
	for name, input := range cases {
		_, err := ParseSet([]byte(input))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errs.IsKind(err, errs.Parse) && !errs.IsKind(err, errs.InvalidPIDFormat) {
			t.Fatalf("%s: unexpected error kind %v", name, err)
		}
	}
}
