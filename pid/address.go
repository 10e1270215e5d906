package pid

import "strings"

// Address is the raw postal address a PID stands for. It is holder-side
// witness data for proofs and the payload of a successful resolution; it
// never appears in proof public inputs.
type Address struct {
	PID         string `json:"pid,omitempty"`
	Country     string `json:"country"`
	Admin1      string `json:"admin1,omitempty"`
	Admin2      string `json:"admin2,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Sublocality string `json:"sublocality,omitempty"`
	Street      string `json:"street,omitempty"`
	Building    string `json:"building,omitempty"`
	Unit        string `json:"unit,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
}

// Region returns the ISO 3166-2 style region code, e.g. "JP-13".
func (a Address) Region() string {
	if a.Country == "" || a.Admin1 == "" {
		return ""
	}
	return a.Country + "-" + a.Admin1
}

// InArea reports whether p equals area or lies beneath it on a segment
// boundary. area may be a bare country code.
func InArea(p, area string) bool {
	return p == area || strings.HasPrefix(p, area+Separator)
}
