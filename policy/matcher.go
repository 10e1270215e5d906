package policy

import (
	"strings"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/pid"
)

// Matcher decides whether a policy resource covers a PID.
type Matcher interface {
	Match(p string) bool
	String() string
}

// Exact matches one PID.
type Exact string

func (e Exact) Match(p string) bool { return string(e) == p }
func (e Exact) String() string { return string(e) }

// PrefixWildcard matches every PID strictly beneath the prefix: "JP-13-*"
// covers "JP-13-113-01" but not the area PID "JP-13" itself. The prefix is a
// whole number of segments, so "JP-1" never covers "JP-10-X". An empty
// prefix matches every PID.
type PrefixWildcard string

func (w PrefixWildcard) Match(p string) bool {
	if w == "" {
		return pid.Valid(p)
	}
	return strings.HasPrefix(p, string(w)+pid.Separator)
}

func (w PrefixWildcard) String() string {
	if w == "" {
		return "*"
	}
	return string(w) + pid.Separator + "*"
}

// ParseMatcher parses a resource pattern: a PID, "*", or a segment prefix
// followed by "-*" ("JP-13-*", "JP-*"). A "*" inside a segment is rejected.
func ParseMatcher(pattern string) (Matcher, error) {
	if pattern == "*" {
		return PrefixWildcard(""), nil
	}
	if prefix, ok := strings.CutSuffix(pattern, pid.Separator+"*"); ok {
		if strings.Contains(prefix, "*") || !validPrefix(prefix) {
			return nil, errs.New(errs.Parse, "POL-PAT-002", "invalid wildcard prefix in "+pattern)
		}
		return PrefixWildcard(prefix), nil
	}
	if strings.Contains(pattern, "*") {
		return nil, errs.New(errs.Parse, "POL-PAT-001", "wildcard must follow a whole segment: "+pattern)
	}
	if err := pid.Validate(pattern); err != nil {
		return nil, err
	}
	return Exact(pattern), nil
}

// validPrefix accepts a bare country code or any valid PID.
func validPrefix(s string) bool {
	if len(s) == 2 && s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z' {
		return true
	}
	return pid.Valid(s)
}
