// Package pid validates and decomposes Place IDs.
//
// A PID is a hierarchical, opaque address identifier: an ISO 3166-1 alpha-2
// country code followed by one or more upper-case alphanumeric segments, e.g.
// JP-13-113-01. An optional trailing collision counter (C01..C99) disambiguates
// two addresses that would otherwise encode to the same PID.
package pid

import (
	"fmt"
	"regexp"
	"strings"

	"vey.dev/pidcore/errs"
)

const (
	Separator = "-"

	MaxCollision = 99
)

var (
	pidPattern       = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]+)+$`)
	collisionPattern = regexp.MustCompile(`^C[0-9]{2}$`)
)

// Valid reports whether s is a well-formed PID.
func Valid(s string) bool {
	return pidPattern.MatchString(s)
}

// Validate returns an InvalidPIDFormat error when s is not a well-formed PID.
func Validate(s string) error {
	if s == "" {
		return errs.New(errs.InvalidPIDFormat, "PID-FMT-001", "pid: empty")
	}
	if !pidPattern.MatchString(s) {
		return errs.New(errs.InvalidPIDFormat, "PID-FMT-002", fmt.Sprintf("pid: %q does not match country-segment format", s))
	}
	return nil
}

// Components is the decoded hierarchy of a PID.
type Components struct {
	Country     string `json:"country"`
	Admin1      string `json:"admin1,omitempty"`
	Admin2      string `json:"admin2,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Sublocality string `json:"sublocality,omitempty"`
	Block       string `json:"block,omitempty"`
	Building    string `json:"building,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Collision   string `json:"collision,omitempty"`
}

func (c *Components) slots() []*string {
	return []*string{&c.Admin1, &c.Admin2, &c.Locality, &c.Sublocality, &c.Block, &c.Building, &c.Unit}
}

// Parse decodes a PID into its components.
func Parse(s string) (Components, error) {
	if err := Validate(s); err != nil {
		return Components{}, err
	}
	parts := strings.Split(s, Separator)
	end := len(parts)
	var c Components
	c.Country = parts[0]
	if last := parts[end-1]; end > 2 && collisionPattern.MatchString(last) {
		c.Collision = last
		end--
	}
	slots := c.slots()
	if end-1 > len(slots) {
		return Components{}, errs.New(errs.InvalidPIDFormat, "PID-FMT-003", fmt.Sprintf("pid: %q has more than %d hierarchy levels", s, len(slots)))
	}
	for i := 1; i < end; i++ {
		*slots[i-1] = parts[i]
	}
	return c, nil
}

// String encodes c back into PID form. Encoding stops at the first empty level.
func (c Components) String() string {
	parts := []string{strings.ToUpper(c.Country)}
	for _, v := range c.slots() {
		if *v == "" {
			break
		}
		parts = append(parts, strings.ToUpper(*v))
	}
	if c.Collision != "" {
		parts = append(parts, c.Collision)
	}
	return strings.Join(parts, Separator)
}

// Encode builds a PID from components and validates the result.
func Encode(c Components) (string, error) {
	if c.Country == "" {
		return "", errs.New(errs.InvalidPIDFormat, "PID-ENC-001", "pid: country code is required")
	}
	out := c.String()
	if err := Validate(out); err != nil {
		return "", err
	}
	return out, nil
}

// WithCollision replaces (or appends) the collision counter.
func WithCollision(s string, counter int) (string, error) {
	if counter < 1 || counter > MaxCollision {
		return "", errs.New(errs.InvalidPIDFormat, "PID-COL-001", fmt.Sprintf("pid: collision counter must be between 1 and %d", MaxCollision))
	}
	base, err := WithoutCollision(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%sC%02d", base, Separator, counter), nil
}

// WithoutCollision strips a trailing collision counter if present.
func WithoutCollision(s string) (string, error) {
	c, err := Parse(s)
	if err != nil {
		return "", err
	}
	if c.Collision == "" {
		return s, nil
	}
	return s[:strings.LastIndex(s, Separator)], nil
}

// Depth returns the number of hierarchy levels, country included, collision excluded.
func Depth(s string) (int, error) {
	base, err := WithoutCollision(s)
	if err != nil {
		return 0, err
	}
	return strings.Count(base, Separator) + 1, nil
}

// Path returns the PID truncated to depth levels. A depth <= 0 or beyond the
// PID's own depth returns the full PID without its collision counter.
func Path(s string, depth int) (string, error) {
	base, err := WithoutCollision(s)
	if err != nil {
		return "", err
	}
	parts := strings.Split(base, Separator)
	if depth <= 0 || depth >= len(parts) {
		return base, nil
	}
	return strings.Join(parts[:depth], Separator), nil
}

// Country returns the country segment of a valid PID.
func Country(s string) (string, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	return s[:2], nil
}

// IsAncestor reports whether parent is a strict hierarchical prefix of child,
// compared on whole segments.
func IsAncestor(parent, child string) bool {
	if !Valid(parent) || !Valid(child) || parent == child {
		return false
	}
	return strings.HasPrefix(child, parent+Separator)
}
