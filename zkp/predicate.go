package zkp

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/pid"
)

// Public input keys that predicates may not use.
const (
	InputPID           = "pid"
	InputConditionsMet = "conditionsMet"
)

// Predicate is a closed set of statements about an address: CountryIn,
// RegionIn, NotInArea and Custom. The result of each is exposed under Key in
// the proof's public inputs.
type Predicate interface {
	Key() string
	isPredicate()
}

// CountryIn holds when the address country is one of Countries.
type CountryIn struct{ Countries []string }

// RegionIn holds when the address region ("JP-13") or bare admin1 code ("13")
// is one of Regions.
type RegionIn struct{ Regions []string }

// NotInArea holds when the PID lies outside every area. Areas are PID
// prefixes matched on whole segments.
type NotInArea struct{ Areas []string }

// Custom is an application-defined predicate. Fn runs holder-side only.
type Custom struct {
	Name string
	Fn   func(p string, a pid.Address) (bool, error)
}

func (CountryIn) Key() string { return "countryIn" }
func (RegionIn) Key() string { return "regionIn" }
func (NotInArea) Key() string { return "notInArea" }
func (c Custom) Key() string { return c.Name }

func (CountryIn) isPredicate() {}
func (RegionIn) isPredicate() {}
func (NotInArea) isPredicate() {}
func (Custom) isPredicate() {}

// Conditions is an ordered set of predicates; all must hold.
type Conditions struct {
	Predicates []Predicate
}

// ConditionsFromShipping builds conditions from the shipping request fields.
// Empty lists add no predicate.
func ConditionsFromShipping(allowedCountries, allowedRegions, prohibitedAreas []string) Conditions {
	var c Conditions
	if len(allowedCountries) > 0 {
		c.Predicates = append(c.Predicates, CountryIn{Countries: allowedCountries})
	}
	if len(allowedRegions) > 0 {
		c.Predicates = append(c.Predicates, RegionIn{Regions: allowedRegions})
	}
	if len(prohibitedAreas) > 0 {
		c.Predicates = append(c.Predicates, NotInArea{Areas: prohibitedAreas})
	}
	return c
}

// ShippingConditions is the wire form of the built-in predicates.
type ShippingConditions struct {
	AllowedCountries []string `json:"allowedCountries,omitempty"`
	AllowedRegions   []string `json:"allowedRegions,omitempty"`
	ProhibitedAreas  []string `json:"prohibitedAreas,omitempty"`
}

func (s ShippingConditions) Conditions() Conditions {
	return ConditionsFromShipping(s.AllowedCountries, s.AllowedRegions, s.ProhibitedAreas)
}

func malformed(rule, msg string) error {
	return errs.New(errs.ProofConditionMismatch, rule, msg)
}

func (c Conditions) validate() error {
	seen := map[string]bool{}
	for _, pr := range c.Predicates {
		if pr == nil {
			return malformed("ZKP-PRED-001", "nil predicate")
		}
		k := pr.Key()
		if k == "" || k == InputPID || k == InputConditionsMet {
			return malformed("ZKP-PRED-002", fmt.Sprintf("invalid predicate key %q", k))
		}
		if seen[k] {
			return malformed("ZKP-PRED-003", fmt.Sprintf("duplicate predicate %q", k))
		}
		seen[k] = true
	}
	return nil
}

// evaluate runs one predicate. Every kind must appear in the switch.
func evaluate(pr Predicate, p string, a pid.Address) (bool, error) {
	switch v := pr.(type) {
	case CountryIn:
		if len(v.Countries) == 0 {
			return false, malformed("ZKP-PRED-010", "countryIn needs at least one country")
		}
		return slices.Contains(v.Countries, a.Country), nil
	case RegionIn:
		if len(v.Regions) == 0 {
			return false, malformed("ZKP-PRED-011", "regionIn needs at least one region")
		}
		if a.Admin1 == "" {
			return false, nil
		}
		return slices.Contains(v.Regions, a.Region()) || slices.Contains(v.Regions, a.Admin1), nil
	case NotInArea:
		for _, area := range v.Areas {
			if pid.InArea(p, area) {
				return false, nil
			}
		}
		return true, nil
	case Custom:
		if v.Fn == nil {
			return false, malformed("ZKP-PRED-012", "custom predicate "+v.Name+" has no function")
		}
		return runCustom(v, p, a)
	default:
		return false, malformed("ZKP-PRED-019", fmt.Sprintf("unknown predicate %T", pr))
	}
}

// runCustom turns a panic in v.Fn into a ZKP-PRED-021 error.
func runCustom(v Custom, p string, a pid.Address) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, malformed("ZKP-PRED-021", fmt.Sprintf("custom predicate %s panicked: %v", v.Name, r))
		}
	}()
	return v.Fn(p, a)
}

// PublicInputs are the only values a verifier sees: the PID, one boolean per
// predicate and their conjunction. They encode as a flat JSON object.
type PublicInputs struct {
	PID           string
	Results       map[string]bool
	ConditionsMet bool
}

// Failed lists the predicates that did not hold, sorted.
func (p PublicInputs) Failed() []string {
	var out []string
	for k, ok := range p.Results {
		if !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (p PublicInputs) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Results)+2)
	for k, v := range p.Results {
		m[k] = v
	}
	m[InputPID] = p.PID
	m[InputConditionsMet] = p.ConditionsMet
	return json.Marshal(m)
}

func (p *PublicInputs) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := PublicInputs{Results: map[string]bool{}}
	for k, raw := range m {
		switch k {
		case InputPID:
			if err := json.Unmarshal(raw, &out.PID); err != nil {
				return fmt.Errorf("publicInputs.pid: %w", err)
			}
		case InputConditionsMet:
			if err := json.Unmarshal(raw, &out.ConditionsMet); err != nil {
				return fmt.Errorf("publicInputs.conditionsMet: %w", err)
			}
		default:
			var v bool
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("publicInputs.%s: %w", k, err)
			}
			out.Results[k] = v
		}
	}
	*p = out
	return nil
}

// consistent reports whether ConditionsMet is the conjunction of Results.
func (p PublicInputs) consistent() bool {
	all := true
	for _, ok := range p.Results {
		all = all && ok
	}
	return all == p.ConditionsMet
}
