package policy

import (
	"bytes"
	"strings"
	"time"

	"vey.dev/pidcore/errs"
)

const (
	setPreamble  = "-----BEGIN VEY ACCESS POLICY-----"
	setPostamble = "-----END VEY ACCESS POLICY-----"
)

// Set is a static collection of policies, typically loaded from a file.
type Set struct {
	Meta     map[string]string
	Policies []AccessPolicy
}

func parseErr(rule, msg string) error {
	return errs.New(errs.Parse, rule, msg)
}

// ParseSet parses the text policy-set format:
//
//	-----BEGIN VEY ACCESS POLICY-----
//	META
//	Version: 1
//
//	POLICIES
//	Policy:
//	  ID: carrier-tokyo
//	  Principal: did:web:carrier.example
//	  Resource: JP-13-*
//	  Action: resolve
//	  Expires: 2027-01-01T00:00:00Z
//	  Condition: reason=delivery
//	-----END VEY ACCESS POLICY-----
//
// Input must be LF-only, without BOM or trailing whitespace.
func ParseSet(data []byte) (*Set, error) {
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, parseErr("POL-SET-001", "BOM not allowed")
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, parseErr("POL-SET-002", "CR line endings not allowed")
	}
	lines := strings.Split(string(data), "\n")
	for _, l := range lines {
		if strings.HasSuffix(l, " ") || strings.HasSuffix(l, "\t") {
			return nil, parseErr("POL-SET-003", "trailing whitespace forbidden")
		}
	}
	if len(lines) == 0 || lines[0] != setPreamble {
		return nil, parseErr("POL-SET-004", "missing policy preamble")
	}
	if !strings.HasSuffix(strings.TrimSpace(string(data)), setPostamble) {
		return nil, parseErr("POL-SET-005", "missing policy postamble")
	}

	set := &Set{Meta: map[string]string{}}
	var section string
	var cur *AccessPolicy
	flush := func() error {
		if cur == nil {
			return nil
		}
		if err := checkPolicy(*cur); err != nil {
			return err
		}
		for _, p := range set.Policies {
			if p.ID == cur.ID {
				return parseErr("POL-SET-010", "duplicate policy id "+cur.ID)
			}
		}
		set.Policies = append(set.Policies, *cur)
		cur = nil
		return nil
	}

	for _, raw := range lines[1:] {
		line := strings.TrimSpace(raw)
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == setPostamble:
			if err := flush(); err != nil {
				return nil, err
			}
			return set, nil
		case line == "META" || line == "POLICIES":
			if err := flush(); err != nil {
				return nil, err
			}
			section = line
			continue
		}

		switch section {
		case "META":
			k, v, ok := strings.Cut(line, ": ")
			if !ok {
				return nil, parseErr("POL-SET-006", "malformed META line: "+line)
			}
			set.Meta[k] = v
		case "POLICIES":
			if line == "Policy:" {
				if err := flush(); err != nil {
					return nil, err
				}
				cur = &AccessPolicy{}
				continue
			}
			if cur == nil {
				return nil, parseErr("POL-SET-007", "field outside Policy block: "+line)
			}
			if err := setField(cur, line); err != nil {
				return nil, err
			}
		default:
			return nil, parseErr("POL-SET-008", "content outside a section: "+line)
		}
	}
	return nil, parseErr("POL-SET-005", "missing policy postamble")
}

func setField(p *AccessPolicy, line string) error {
	k, v, ok := strings.Cut(line, ": ")
	if !ok || v == "" {
		return parseErr("POL-SET-009", "malformed policy line: "+line)
	}
	switch k {
	case "ID":
		p.ID = v
	case "Principal":
		p.Principal = v
	case "Resource":
		p.Resource = v
	case "Action":
		p.Action = v
	case "Expires":
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errs.Wrap(errs.Parse, "POL-SET-011", "invalid Expires", err)
		}
		p.ExpiresAt = &t
	case "Condition":
		ck, cv, ok := strings.Cut(v, "=")
		if !ok || ck == "" {
			return parseErr("POL-SET-012", "condition must be key=value: "+v)
		}
		if p.Conditions == nil {
			p.Conditions = map[string]string{}
		}
		p.Conditions[ck] = cv
	default:
		return parseErr("POL-SET-013", "unknown policy field "+k)
	}
	return nil
}

func checkPolicy(p AccessPolicy) error {
	if p.ID == "" || p.Principal == "" || p.Resource == "" || p.Action == "" {
		return parseErr("POL-SET-014", "policy needs ID, Principal, Resource and Action")
	}
	if _, err := ParseMatcher(p.Resource); err != nil {
		return err
	}
	return nil
}

// Find returns the first policy allowing r at now.
func (s *Set) Find(r Request, now time.Time) (AccessPolicy, bool) {
	if s == nil {
		return AccessPolicy{}, false
	}
	for _, p := range s.Policies {
		if Allows(p, r, now) {
			return p, true
		}
	}
	return AccessPolicy{}, false
}
