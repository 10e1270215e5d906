package compliance

import (
	"strings"

	"vey.dev/pidcore/errs"
)

// Mode selects how the resolver treats missing or ambiguous inputs.
//
// Strict mode denies when it cannot prove a PID is still valid, e.g. when no
// revocation list has been loaded. Permissive mode resolves on what it has.
type Mode int

const (
	Permissive Mode = iota
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}

// ParseMode accepts "strict" or "permissive" (case-insensitive). Empty
// means permissive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, errs.New(errs.Config, "CMP-MODE-001", "unknown compliance mode "+s)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
