// Package spiffetls builds mTLS configurations from a SPIRE agent's
// X.509-SVIDs. Peers are authorized by trust domain membership.
package spiffetls

import (
	"context"
	"crypto/tls"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"vey.dev/pidcore/errs"
)

// Source owns the Workload API connection behind the TLS configs. SVIDs
// rotate in place; Close stops the rotation.
type Source struct {
	x509 *workloadapi.X509Source
	auth tlsconfig.Authorizer
}

// Authorizer accepts any peer in trustDomain.
func Authorizer(trustDomain string) (tlsconfig.Authorizer, error) {
	td, err := spiffeid.TrustDomainFromString(trustDomain)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "TLS-001", "invalid trust domain "+trustDomain, err)
	}
	return tlsconfig.AuthorizeMemberOf(td), nil
}

func Open(ctx context.Context, socketPath, trustDomain string) (*Source, error) {
	auth, err := Authorizer(trustDomain)
	if err != nil {
		return nil, err
	}
	src, err := workloadapi.NewX509Source(ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "TLS-002", "open X509 source at "+socketPath, err)
	}
	return &Source{x509: src, auth: auth}, nil
}

func (s *Source) ServerConfig() *tls.Config {
	return tlsconfig.MTLSServerConfig(s.x509, s.x509, s.auth)
}

func (s *Source) ClientConfig() *tls.Config {
	return tlsconfig.MTLSClientConfig(s.x509, s.x509, s.auth)
}

func (s *Source) Close() error { return s.x509.Close() }
