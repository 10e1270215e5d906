package resolver

import (
	"context"
	"strings"
	"time"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
)

// Authenticator proves that a request comes from req.RequesterID. A
// Resolver without one trusts RequesterID as given, which is only safe when
// the caller has already authenticated it.
type Authenticator interface {
	Authenticate(ctx context.Context, req Request) error
}

func unauthenticated(rule, msg string) error {
	return errs.New(errs.AccessDenied, rule, msg)
}

// PeerBinding authenticates by transport identity. req.PeerID is the
// SPIFFE ID of the mTLS peer and must map to req.RequesterID.
type PeerBinding struct {
	// Requesters maps SPIFFE IDs to requester DIDs.
	Requesters map[string]string
}

func (b PeerBinding) Authenticate(_ context.Context, req Request) error {
	if req.PeerID == "" {
		return unauthenticated("RES-AUTH-001", "no authenticated peer")
	}
	did, ok := b.Requesters[req.PeerID]
	if !ok {
		return unauthenticated("RES-AUTH-002", "peer "+req.PeerID+" is not a known requester")
	}
	if did != req.RequesterID {
		return unauthenticated("RES-AUTH-003", "peer "+req.PeerID+" may not act as "+req.RequesterID)
	}
	return nil
}

const DefaultAccessTokenSkew = 5 * time.Minute

// SignedAccessToken authenticates by signature: req.AccessToken is a
// multibase signature by the requester's key over AccessTokenPayload(req),
// and req.Timestamp must be within MaxSkew of now. did:key requesters need no
// entry in Keys.
type SignedAccessToken struct {
	Keys    map[string]keys.PublicKey
	MaxSkew time.Duration
	Now     func() time.Time
}

func (s SignedAccessToken) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s SignedAccessToken) key(did string) (keys.PublicKey, error) {
	if k, ok := s.Keys[did]; ok {
		return k, nil
	}
	if strings.HasPrefix(did, "did:key:") {
		k, err := keys.ParsePublicKey(did)
		if err != nil {
			return keys.PublicKey{}, errs.Wrap(errs.AccessDenied, "RES-AUTH-016", "invalid did:key requester", err)
		}
		return k, nil
	}
	return keys.PublicKey{}, unauthenticated("RES-AUTH-011", "no key for requester "+did)
}

func (s SignedAccessToken) Authenticate(_ context.Context, req Request) error {
	if req.AccessToken == "" {
		return unauthenticated("RES-AUTH-010", "missing access token")
	}
	pub, err := s.key(req.RequesterID)
	if err != nil {
		return err
	}
	skew := s.MaxSkew
	if skew <= 0 {
		skew = DefaultAccessTokenSkew
	}
	if req.Timestamp.IsZero() {
		return unauthenticated("RES-AUTH-012", "access token needs a request timestamp")
	}
	if d := s.now().Sub(req.Timestamp); d > skew || d < -skew {
		return unauthenticated("RES-AUTH-013", "request timestamp outside the accepted window")
	}
	sig, err := keys.DecodeSignature(req.AccessToken)
	if err != nil {
		return unauthenticated("RES-AUTH-014", "malformed access token")
	}
	msg, err := AccessTokenPayload(req)
	if err != nil {
		return err
	}
	if err := pub.Verify(msg, sig); err != nil {
		return unauthenticated("RES-AUTH-015", "access token signature invalid")
	}
	return nil
}

// AccessTokenPayload is the canonical JSON a requester signs: the PID,
// requester, reason and timestamp of the request.
func AccessTokenPayload(req Request) ([]byte, error) {
	return canonical.Marshal(map[string]string{
		"pid":         req.PID,
		"requesterId": req.RequesterID,
		"reason":      req.Reason,
		"timestamp":   req.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// SignAccessToken returns the AccessToken for req signed by signer.
func SignAccessToken(req Request, signer keys.Signer) (string, error) {
	msg, err := AccessTokenPayload(req)
	if err != nil {
		return "", err
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "RES-AUTH-020", "sign access token", err)
	}
	return keys.EncodeSignature(sig)
}
