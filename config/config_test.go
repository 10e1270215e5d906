package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vey.dev/pidcore/compliance"
	"vey.dev/pidcore/errs"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pidd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Hour, cfg.Handshake.DefaultExpiry)
	assert.False(t, cfg.NeedsNATS())
	mode, err := cfg.ComplianceMode()
	require.NoError(t, err)
	assert.Equal(t, compliance.Permissive, mode)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
  format: json
handshake:
  nonce_store: nats
  default_expiry: 30m
nats:
  url: nats://127.0.0.1:4222
audit:
  backend: sqlite
  sqlite_path: /var/lib/vey/audit.db
  publish_nats: true
revocation:
  mode: strict
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Minute, cfg.Handshake.DefaultExpiry)
	assert.Equal(t, ":8080", cfg.HTTP.Address, "unset keys keep defaults")
	assert.Equal(t, "vey-handshake-nonces", cfg.NATS.KVBucket)
	assert.True(t, cfg.NeedsNATS())
	mode, _ := cfg.ComplianceMode()
	assert.Equal(t, compliance.Strict, mode)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "http:\n  address: \":9000\"\n")
	t.Setenv("VEY_HTTP_ADDRESS", ":9100")
	t.Setenv("VEY_COMPLIANCE_MODE", "strict")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTP.Address)
	assert.Equal(t, "strict", cfg.Revocation.Mode)

	t.Setenv("VEY_SPIFFE_ENABLED", "maybe")
	_, err = Load(path)
	assert.True(t, errs.IsKind(err, errs.Config))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, "CFG-LOAD-001", errs.Rule(err))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"log format":        func(c *Config) { c.Log.Format = "xml" },
		"sqlite nonce path": func(c *Config) { c.Handshake.NonceStore = "sqlite" },
		"nats without url":  func(c *Config) { c.Handshake.NonceStore = "nats" },
		"kv ttl too short": func(c *Config) {
			c.Handshake.NonceStore = "nats"
			c.NATS.URL = "nats://x"
			c.NATS.KVTTL = time.Minute
		},
		"audit backend":  func(c *Config) { c.Audit.Backend = "s3" },
		"publish no url": func(c *Config) { c.Audit.PublishNATS = true },
		"zkp backend":    func(c *Config) { c.ZKP.Backend = "groth16" },
		"mode":           func(c *Config) { c.Revocation.Mode = "lenient" },
		"spiffe":         func(c *Config) { c.SPIFFE.Enabled = true },
		"directory in served cas": func(c *Config) {
			c.CAS.Dir = "/var/lib/vey/cas"
			c.Directory.Dir = "/var/lib/vey/cas/"
		},
		"negative skew": func(c *Config) { c.Requesters.MaxSkew = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.Config))
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "log: [unterminated"))
	require.Error(t, err)
	assert.Equal(t, "CFG-LOAD-002", errs.Rule(err))
}

func TestLoadReadsProxyAndDirectoryStore(t *testing.T) {
	cfg, err := Load(writeFile(t, `
http:
  trust_proxy: true
cas:
  dir: /var/lib/vey/cas
directory:
  dir: /var/lib/vey/addresses
requesters:
  file: /etc/vey/requesters.yaml
  max_skew: 2m
`))
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.TrustProxy)
	assert.Equal(t, "/var/lib/vey/addresses", cfg.Directory.Dir)
	assert.Equal(t, 2*time.Minute, cfg.Requesters.MaxSkew)
	assert.False(t, Default().HTTP.TrustProxy, "forwarded headers are ignored unless configured")
}

func TestLoadRequesters(t *testing.T) {
	path := writeFile(t, `
- did: did:web:carrier.example
  spiffe_id: spiffe://vey.example/carrier
  public_key: ed25519:AAAA
- did: did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK
`)
	reqs, err := LoadRequesters(path)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "spiffe://vey.example/carrier", reqs[0].SPIFFEID)
	assert.Empty(t, reqs[1].PublicKey)

	_, err = LoadRequesters(writeFile(t, "- spiffe_id: spiffe://vey.example/x\n"))
	assert.Equal(t, "CFG-REQ-003", errs.Rule(err))
	_, err = LoadRequesters(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, "CFG-REQ-001", errs.Rule(err))
}
