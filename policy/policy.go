// Package policy decides which principals may act on which PIDs.
//
// A policy names one principal, one action and a resource pattern. Patterns
// are exact PIDs or whole-segment prefixes ending in "-*".
package policy

import (
	"time"

	"vey.dev/pidcore/pid"
)

const (
	ActionResolve = "resolve"
	ActionDecrypt = "decrypt"
	ActionView    = "view"
)

// AccessPolicy grants Principal the Action on PIDs matching Resource. Each
// condition must equal the request attribute of the same name.
type AccessPolicy struct {
	ID         string            `json:"id"`
	Principal  string            `json:"principal"`
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Conditions map[string]string `json:"conditions,omitempty"`
	ExpiresAt  *time.Time        `json:"expiresAt,omitempty"`
}

// Request is what a caller asks to do. Attributes feed policy conditions;
// "reason" is the usual one.
type Request struct {
	Requester  string
	Action     string
	PID        string
	Attributes map[string]string
}

// Validate reports whether p lets requester perform action on the PID at now.
// Policies with conditions never match here; use Allows with attributes.
func Validate(p AccessPolicy, requester, action, target string, now time.Time) bool {
	return Allows(p, Request{Requester: requester, Action: action, PID: target}, now)
}

// Allows is Validate with request attributes for conditional policies.
func Allows(p AccessPolicy, r Request, now time.Time) bool {
	if p.Principal == "" || p.Principal != r.Requester {
		return false
	}
	if p.Action == "" || p.Action != r.Action {
		return false
	}
	if !pid.Valid(r.PID) {
		return false
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	m, err := ParseMatcher(p.Resource)
	if err != nil || !m.Match(r.PID) {
		return false
	}
	for k, want := range p.Conditions {
		if got, ok := r.Attributes[k]; !ok || got != want {
			return false
		}
	}
	return true
}
