package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"vey.dev/pidcore/audit"
	"vey.dev/pidcore/config"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/handshake"
	"vey.dev/pidcore/httpapi"
	"vey.dev/pidcore/internal/natsconn"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/policy"
	"vey.dev/pidcore/resolver"
	"vey.dev/pidcore/revocation"
	"vey.dev/pidcore/storage"
	"vey.dev/pidcore/storage/bundle"
	"vey.dev/pidcore/storage/casconfig"
	"vey.dev/pidcore/storage/casregistry"
	"vey.dev/pidcore/storage/localfs"
	"vey.dev/pidcore/zkp"

	_ "vey.dev/pidcore/storage/ipfs"
)

// app is the wired daemon. Closers run in reverse order on shutdown.
// cas is exported over gRPC; addresses holds the address documents and is
// only read through the resolver.
type app struct {
	cas       storage.CAS
	addresses storage.CAS
	api       *httpapi.Server
	tokens    *handshake.Service
	nonces    handshake.NonceStore
	registry  *revocation.Registry
	closers   []func() error
}

func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}
}

func build(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openCAS(cfg.CAS); err != nil {
		return nil, err
	}
	if err := a.openAddressStore(cfg.Directory); err != nil {
		return nil, err
	}

	var nc *nats.Conn
	if cfg.NeedsNATS() {
		var err error
		nc, err = natsconn.Connect(natsconn.Config{
			URL:             cfg.NATS.URL,
			Name:            cfg.NATS.Name,
			CredentialsFile: cfg.NATS.CredentialsFile,
			ReconnectWait:   cfg.NATS.ReconnectWait,
			MaxReconnects:   cfg.NATS.MaxReconnects,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { nc.Close(); return nil })
	}

	sink, err := a.openAudit(cfg, nc)
	if err != nil {
		return nil, err
	}
	links, err := a.importBundle(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	if err := a.openRegistry(ctx, cfg); err != nil {
		return nil, err
	}
	policies, err := loadPolicies(cfg.Policies.File)
	if err != nil {
		return nil, err
	}
	dir, err := a.loadDirectory(ctx, cfg.Directory.File, links)
	if err != nil {
		return nil, err
	}
	mode, err := cfg.ComplianceMode()
	if err != nil {
		return nil, err
	}
	if err := a.openTokens(ctx, cfg, nc); err != nil {
		return nil, err
	}
	auth, err := loadAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	var backend zkp.Backend = &zkp.PedersenBackend{}
	if cfg.ZKP.Backend == "digest" {
		backend = zkp.DigestBackend{}
	}
	engine := zkp.NewEngine(backend)
	engine.Prover = cfg.Issuer.DID
	circuit := zkp.NewCircuit(cfg.ZKP.CircuitID, "Address validation")

	a.api = &httpapi.Server{
		Resolver: &resolver.Resolver{
			Policies:      policies,
			Revocations:   a.registry,
			Audit:         sink,
			Directory:     dir,
			Mode:          mode,
			Authenticator: auth,
		},
		Engine:         engine,
		Circuits:       map[string]zkp.Circuit{circuit.ID: circuit},
		DefaultCircuit: circuit.ID,
		Revocations:    a.registry,
		TrustProxy:     cfg.HTTP.TrustProxy,
	}
	if a.tokens != nil {
		a.api.Tokens = a.tokens
	}
	if ts, ok := sink.(audit.TrackingSink); ok {
		a.api.Tracking = ts
	}
	ok = true
	return a, nil
}

func (a *app) openCAS(cfg config.CASConfig) error {
	switch {
	case cfg.ConfigFile != "":
		cc, err := casconfig.LoadFile(cfg.ConfigFile)
		if err != nil {
			return errs.Wrap(errs.Config, "PIDD-CAS-001", "load CAS config", err)
		}
		cas, closeFn, err := cc.Open(casregistry.UsageDaemon)
		if err != nil {
			return errs.Wrap(errs.Storage, "PIDD-CAS-002", "open CAS", err)
		}
		a.cas = cas
		if closeFn != nil {
			a.onClose(closeFn)
		}
	case cfg.Dir != "":
		cas, err := localfs.New(cfg.Dir)
		if err != nil {
			return errs.Wrap(errs.Storage, "PIDD-CAS-003", "open CAS directory", err)
		}
		a.cas = cas
	default:
		log.Warn().Msg("no CAS configured, using an in-memory store")
		a.cas = storage.NewMemoryCAS()
	}
	return nil
}

func (a *app) openAddressStore(cfg config.DirectoryConfig) error {
	if cfg.Dir == "" {
		a.addresses = storage.NewMemoryCAS()
		return nil
	}
	cas, err := localfs.New(cfg.Dir)
	if err != nil {
		return errs.Wrap(errs.Storage, "PIDD-DIR-003", "open address store", err)
	}
	a.addresses = cas
	return nil
}

// loadAuthenticator binds requesters to mTLS peers when SPIFFE is on and to
// signed access tokens otherwise.
func loadAuthenticator(cfg config.Config) (resolver.Authenticator, error) {
	var reqs []config.Requester
	if cfg.Requesters.File != "" {
		var err error
		if reqs, err = config.LoadRequesters(cfg.Requesters.File); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("no requesters file configured, only did:key requesters can authenticate")
	}
	if cfg.SPIFFE.Enabled {
		b := resolver.PeerBinding{Requesters: make(map[string]string, len(reqs))}
		for _, r := range reqs {
			if r.SPIFFEID != "" {
				b.Requesters[r.SPIFFEID] = r.DID
			}
		}
		return b, nil
	}
	s := resolver.SignedAccessToken{Keys: make(map[string]keys.PublicKey, len(reqs)), MaxSkew: cfg.Requesters.MaxSkew}
	for _, r := range reqs {
		if r.PublicKey == "" {
			continue
		}
		pub, err := keys.ParsePublicKey(r.PublicKey)
		if err != nil {
			return nil, errs.Wrap(errs.Config, "PIDD-REQ-001", "public key of requester "+r.DID, err)
		}
		s.Keys[r.DID] = pub
	}
	log.Info().Int("requesters", len(s.Keys)).Msg("access tokens required for resolution")
	return s, nil
}

func (a *app) openAudit(cfg config.Config, nc *nats.Conn) (audit.Sink, error) {
	var primary audit.Sink
	switch cfg.Audit.Backend {
	case "sqlite":
		l, err := audit.OpenSQLite(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.onClose(l.Close)
		primary = l
	default:
		primary = audit.NewMemoryLog()
	}
	if !cfg.Audit.PublishNATS {
		return primary, nil
	}
	return &audit.Tee{
		Primary: primary,
		Mirrors: []audit.Sink{&audit.NATSPublisher{Conn: nc, Prefix: cfg.Audit.SubjectPrefix}},
	}, nil
}

func (a *app) openRegistry(ctx context.Context, cfg config.Config) error {
	a.registry = &revocation.Registry{Issuer: cfg.Issuer.DID, CAS: a.cas}
	if cfg.Revocation.IssuerKey != "" {
		pub, err := keys.ParsePublicKey(cfg.Revocation.IssuerKey)
		if err != nil {
			return err
		}
		a.registry.Key = &pub
	}
	if cfg.Revocation.ListCID == "" {
		return nil
	}
	id, err := cid.Decode(cfg.Revocation.ListCID)
	if err != nil {
		return errs.Wrap(errs.Config, "PIDD-REV-001", "invalid revocation list CID", err)
	}
	if err := a.registry.Load(ctx, id); err != nil {
		return err
	}
	log.Info().Str("cid", id.String()).Msg("revocation list loaded")
	return nil
}

// loadPolicies returns an empty set, which denies everything, when no file
// is configured.
func loadPolicies(path string) (*policy.Set, error) {
	if path == "" {
		log.Warn().Msg("no policy file configured, all resolutions will be denied")
		return &policy.Set{}, nil
	}
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errs.Wrap(errs.Config, "PIDD-POL-001", "read policy file", err)
	}
	return policy.ParseSet(b)
}

// importBundle copies a directory snapshot into the address store and
// returns its PID links. The snapshot's revocation list is copied to the
// served CAS and used unless one is configured.
func (a *app) importBundle(ctx context.Context, cfg *config.Config) (map[string]cid.Cid, error) {
	if cfg.Directory.Bundle == "" {
		return nil, nil
	}
	f, err := os.Open(filepath.Clean(cfg.Directory.Bundle))
	if err != nil {
		return nil, errs.Wrap(errs.Config, "PIDD-BND-001", "open directory bundle", err)
	}
	defer f.Close()
	ix, err := bundle.Import(ctx, f, a.addresses, bundle.ImportOptions{})
	if err != nil {
		return nil, err
	}
	if id, ok := ix.Revocations(); ok && cfg.Revocation.ListCID == "" {
		raw, err := a.addresses.Get(ctx, id)
		if err != nil {
			return nil, errs.Wrap(errs.Storage, "PIDD-BND-002", "read bundled revocation list", err)
		}
		published, err := a.cas.Put(ctx, raw)
		if err != nil {
			return nil, errs.Wrap(errs.Storage, "PIDD-BND-003", "publish bundled revocation list", err)
		}
		cfg.Revocation.ListCID = published.String()
	}
	links := ix.Addresses()
	log.Info().Int("blocks", len(ix.Blocks)).Int("addresses", len(links)).Msg("directory bundle imported")
	return links, nil
}

func (a *app) loadDirectory(ctx context.Context, path string, links map[string]cid.Cid) (*resolver.CASDirectory, error) {
	dir := &resolver.CASDirectory{CAS: a.addresses}
	for p, id := range links {
		dir.Link(p, id)
	}
	if path == "" {
		return dir, nil
	}
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errs.Wrap(errs.Config, "PIDD-DIR-001", "read directory file", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var addrs []pid.Address
	if err := dec.Decode(&addrs); err != nil {
		return nil, errs.Wrap(errs.Parse, "PIDD-DIR-002", "parse directory file", err)
	}
	for _, addr := range addrs {
		if _, err := dir.Put(ctx, addr); err != nil {
			return nil, err
		}
	}
	log.Info().Int("addresses", len(addrs)).Msg("address directory loaded")
	return dir, nil
}

func (a *app) openTokens(ctx context.Context, cfg config.Config, nc *nats.Conn) error {
	if cfg.Handshake.SecretFile == "" {
		log.Warn().Msg("no handshake secret configured, token routes disabled")
		return nil
	}
	secret, err := os.ReadFile(filepath.Clean(cfg.Handshake.SecretFile))
	if err != nil {
		return errs.Wrap(errs.Config, "PIDD-HS-001", "read handshake secret", err)
	}
	secret = bytes.TrimSpace(secret)

	switch cfg.Handshake.NonceStore {
	case "sqlite":
		s, err := handshake.OpenSQLiteNonceStore(cfg.Handshake.SQLitePath)
		if err != nil {
			return err
		}
		a.onClose(s.Close)
		a.nonces = s
	case "nats":
		js, err := natsconn.JetStream(nc)
		if err != nil {
			return err
		}
		s, err := handshake.OpenKVNonceStore(ctx, js, cfg.NATS.KVBucket, cfg.NATS.KVTTL)
		if err != nil {
			return err
		}
		a.nonces = s
	default:
		a.nonces = handshake.NewMemoryNonceStore()
	}

	a.tokens, err = handshake.NewService(secret, a.nonces, handshake.WithDefaultExpiry(cfg.Handshake.DefaultExpiry))
	return err
}
