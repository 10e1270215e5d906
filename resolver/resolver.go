// Package resolver resolves a PID to its concrete address for authorized
// requesters.
//
// Every call writes exactly one audit entry. Denials caused by
// authentication, policy, revocation or strict-mode uncertainty all return the same "Access
// denied" response so callers cannot tell which check failed; the audit entry
// records the rule.
package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"vey.dev/pidcore/audit"
	"vey.dev/pidcore/compliance"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/policy"
	"vey.dev/pidcore/revocation"
)

const (
	ErrAccessDenied    = "Access denied"
	ErrAddressNotFound = "Address not found"
)

type Request struct {
	PID         string            `json:"pid"`
	RequesterID string            `json:"requesterId"`
	AccessToken string            `json:"accessToken,omitempty"`
	Reason      string            `json:"reason"`
	Timestamp   time.Time         `json:"timestamp"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	IPAddress   string            `json:"-"`
	// PeerID is the transport identity (SPIFFE ID) set by the server, never
	// by the client.
	PeerID string `json:"-"`
}

type Response struct {
	Success     bool         `json:"success"`
	Address     *pid.Address `json:"address,omitempty"`
	AccessLogID string       `json:"accessLogId"`
	Error       string       `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// RevocationSource answers revocation questions against the current list.
// *revocation.Registry implements it.
type RevocationSource interface {
	IsRevoked(pid string) bool
	Current() *revocation.List
}

type Resolver struct {
	Policies      *policy.Set
	Revocations   RevocationSource
	Audit         audit.Sink
	Directory     AddressDirectory
	Mode          compliance.Mode
	Authenticator Authenticator
	Now           func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Resolver) policyRequest(req Request) policy.Request {
	attrs := make(map[string]string, len(req.Attributes)+1)
	for k, v := range req.Attributes {
		attrs[k] = v
	}
	if req.Reason != "" {
		attrs["reason"] = req.Reason
	}
	return policy.Request{
		Requester:  req.RequesterID,
		Action:     policy.ActionResolve,
		PID:        req.PID,
		Attributes: attrs,
	}
}

// authenticate returns the rule that rejects the requester's identity, or "".
func (r *Resolver) authenticate(ctx context.Context, req Request) string {
	if r.Authenticator == nil {
		return ""
	}
	err := r.Authenticator.Authenticate(ctx, req)
	if err == nil {
		return ""
	}
	log.Warn().Err(err).Str("requester", req.RequesterID).Str("peer", req.PeerID).Msg("resolve: requester not authenticated")
	if rule := errs.Rule(err); rule != "" {
		return rule
	}
	return "RES-AUTH-000"
}

// denial returns the rule that forbids resolving req.PID under p, or "".
func (r *Resolver) denial(req Request, p policy.AccessPolicy, now time.Time) string {
	if !pid.Valid(req.PID) {
		return "RES-PID-001"
	}
	if !policy.Allows(p, r.policyRequest(req), now) {
		return "RES-POL-001"
	}
	if r.Revocations == nil || r.Revocations.Current() == nil {
		if r.Mode == compliance.Strict {
			return "RES-REV-002"
		}
		return ""
	}
	if r.Revocations.IsRevoked(req.PID) {
		return "RES-REV-001"
	}
	return ""
}

// Resolve checks req against a single policy and, when allowed, returns
// addr. The audit entry is written before the response is returned; a sink
// failure is returned as an error and no address is released.
func (r *Resolver) Resolve(ctx context.Context, req Request, p policy.AccessPolicy, addr pid.Address) (Response, error) {
	now := r.now()
	if rule := r.authenticate(ctx, req); rule != "" {
		return r.deny(ctx, req, "", rule, now)
	}
	if rule := r.denial(req, p, now); rule != "" {
		return r.deny(ctx, req, p.ID, rule, now)
	}
	if addr.PID != "" && addr.PID != req.PID {
		return r.deny(ctx, req, p.ID, "RES-ADDR-001", now)
	}
	return r.grant(ctx, req, p.ID, addr, now)
}

// ResolveWithSet finds an allowing policy in r.Policies and looks the
// address up in r.Directory.
func (r *Resolver) ResolveWithSet(ctx context.Context, req Request) (Response, error) {
	now := r.now()
	if rule := r.authenticate(ctx, req); rule != "" {
		return r.deny(ctx, req, "", rule, now)
	}
	p, ok := r.Policies.Find(r.policyRequest(req), now)
	if !ok {
		rule := "RES-POL-001"
		if !pid.Valid(req.PID) {
			rule = "RES-PID-001"
		}
		return r.deny(ctx, req, "", rule, now)
	}
	if rule := r.denial(req, p, now); rule != "" {
		return r.deny(ctx, req, p.ID, rule, now)
	}
	if r.Directory == nil {
		return r.fail(ctx, req, p.ID, errs.New(errs.Config, "RES-DIR-001", "resolver has no address directory"), now)
	}
	addr, err := r.Directory.Address(ctx, req.PID)
	if err != nil {
		return r.fail(ctx, req, p.ID, err, now)
	}
	return r.grant(ctx, req, p.ID, addr, now)
}

func (r *Resolver) record(ctx context.Context, req Request, result string, meta map[string]string, now time.Time) (audit.Entry, error) {
	if r.Audit == nil {
		return audit.Entry{}, errs.New(errs.Config, "RES-AUD-001", "resolver has no audit sink")
	}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	accessor := req.RequesterID
	if accessor == "" {
		accessor = "anonymous"
	}
	e := audit.NewEntry(req.PID, accessor, policy.ActionResolve, result, meta)
	e.Timestamp = now
	e.IPAddress = req.IPAddress
	stored, err := r.Audit.Append(ctx, e)
	if err != nil {
		return audit.Entry{}, errs.Wrap(errs.Storage, "RES-AUD-002", "write audit entry", err)
	}
	return stored, nil
}

func (r *Resolver) deny(ctx context.Context, req Request, policyID, rule string, now time.Time) (Response, error) {
	meta := map[string]string{"rule": rule}
	if policyID != "" {
		meta["policy"] = policyID
	}
	e, err := r.record(ctx, req, audit.ResultDenied, meta, now)
	if err != nil {
		return Response{}, err
	}
	return Response{AccessLogID: e.ID, Error: ErrAccessDenied, Timestamp: now}, nil
}

func (r *Resolver) fail(ctx context.Context, req Request, policyID string, cause error, now time.Time) (Response, error) {
	meta := map[string]string{"policy": policyID}
	msg := "Resolution failed"
	if errs.KindOf(cause) == errs.Storage && errs.Rule(cause) == "RES-DIR-404" {
		msg = ErrAddressNotFound
	}
	if rule := errs.Rule(cause); rule != "" {
		meta["rule"] = rule
	}
	e, err := r.record(ctx, req, audit.ResultError, meta, now)
	if err != nil {
		return Response{}, err
	}
	return Response{AccessLogID: e.ID, Error: msg, Timestamp: now}, nil
}

func (r *Resolver) grant(ctx context.Context, req Request, policyID string, addr pid.Address, now time.Time) (Response, error) {
	e, err := r.record(ctx, req, audit.ResultSuccess, map[string]string{"policy": policyID}, now)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Address: &addr, AccessLogID: e.ID, Timestamp: now}, nil
}
