// Package config loads the vey-pidd daemon configuration from YAML.
//
// Load starts from Default, overlays the file, then applies VEY_*
// environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"vey.dev/pidcore/compliance"
	"vey.dev/pidcore/errs"
)

// DefaultPath is read when no path is given. It may be absent.
const DefaultPath = "/etc/vey/pidd.yaml"

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	SPIFFE     SPIFFEConfig     `yaml:"spiffe"`
	Issuer     IssuerConfig     `yaml:"issuer"`
	ZKP        ZKPConfig        `yaml:"zkp"`
	Handshake  HandshakeConfig  `yaml:"handshake"`
	Audit      AuditConfig      `yaml:"audit"`
	NATS       NATSConfig       `yaml:"nats"`
	Policies   PoliciesConfig   `yaml:"policies"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Revocation RevocationConfig `yaml:"revocation"`
	CAS        CASConfig        `yaml:"cas"`
	Requesters RequestersConfig `yaml:"requesters"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type HTTPConfig struct {
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Only set it behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// SPIFFEConfig switches both listeners to X.509-SVID mTLS.
type SPIFFEConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SocketPath  string `yaml:"socket_path"`
	TrustDomain string `yaml:"trust_domain"`
}

type IssuerConfig struct {
	DID     string `yaml:"did"`
	KeyFile string `yaml:"key_file"`
}

type ZKPConfig struct {
	Backend   string `yaml:"backend"` // pedersen or digest
	CircuitID string `yaml:"circuit_id"`
}

type HandshakeConfig struct {
	SecretFile    string        `yaml:"secret_file"`
	DefaultExpiry time.Duration `yaml:"default_expiry"`
	NonceStore    string        `yaml:"nonce_store"` // memory, sqlite or nats
	SQLitePath    string        `yaml:"sqlite_path"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

type AuditConfig struct {
	Backend       string `yaml:"backend"` // memory or sqlite
	SQLitePath    string `yaml:"sqlite_path"`
	PublishNATS   bool   `yaml:"publish_nats"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type NATSConfig struct {
	URL             string        `yaml:"url"`
	Name            string        `yaml:"name"`
	CredentialsFile string        `yaml:"credentials_file"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	KVBucket        string        `yaml:"kv_bucket"`
	KVTTL           time.Duration `yaml:"kv_ttl"`
}

type PoliciesConfig struct {
	File string `yaml:"file"`
}

// DirectoryConfig names a JSON array of addresses stored at startup and
// served to authorized resolvers. Bundle is an exported directory snapshot
// imported before File is read. Address documents live in their own store
// under Dir, in memory when Dir is empty, and never in the CAS that the
// gRPC service exposes.
type DirectoryConfig struct {
	File   string `yaml:"file"`
	Bundle string `yaml:"bundle"`
	Dir    string `yaml:"dir"`
}

type RevocationConfig struct {
	Mode string `yaml:"mode"` // permissive or strict
	// ListCID is loaded from the CAS at startup when set.
	ListCID   string `yaml:"list_cid"`
	IssuerKey string `yaml:"issuer_key"`
}

type CASConfig struct {
	// ConfigFile is a casconfig YAML file. Without it the daemon uses Dir.
	ConfigFile string `yaml:"config_file"`
	Dir        string `yaml:"dir"`
}

// RequestersConfig names the YAML file of requesters allowed to resolve.
// Without SPIFFE each request must carry an access token signed by the
// requester's key; with SPIFFE the peer's SPIFFE ID must map to the
// requester DID.
type RequestersConfig struct {
	File    string        `yaml:"file"`
	MaxSkew time.Duration `yaml:"max_skew"`
}

// Requester is one entry of the requesters file. PublicKey takes any form
// keys.ParsePublicKey accepts. SPIFFEID is only used with mTLS.
type Requester struct {
	DID       string `yaml:"did"`
	SPIFFEID  string `yaml:"spiffe_id"`
	PublicKey string `yaml:"public_key"`
}

// LoadRequesters reads a YAML list of requesters.
func LoadRequesters(path string) ([]Requester, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errs.Wrap(errs.Config, "CFG-REQ-001", "read "+path, err)
	}
	var out []Requester
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errs.Wrap(errs.Config, "CFG-REQ-002", "parse "+path, err)
	}
	for i, r := range out {
		if r.DID == "" {
			return nil, invalid("CFG-REQ-003", fmt.Sprintf("requester %d has no did", i))
		}
	}
	return out, nil
}

func Default() Config {
	return Config{
		Log:  LogConfig{Level: "info", Format: "console"},
		HTTP: HTTPConfig{Address: ":8080", ReadHeaderTimeout: 5 * time.Second, ShutdownTimeout: 10 * time.Second},
		GRPC: GRPCConfig{Address: ":7777"},
		SPIFFE: SPIFFEConfig{
			SocketPath: "unix:///tmp/spire-agent/public/api.sock",
		},
		ZKP: ZKPConfig{Backend: "pedersen", CircuitID: "address-validation-v1"},
		Handshake: HandshakeConfig{
			DefaultExpiry: time.Hour,
			NonceStore:    "memory",
			PurgeInterval: time.Minute,
		},
		Audit: AuditConfig{Backend: "memory", SubjectPrefix: "vey"},
		NATS: NATSConfig{
			Name:          "vey-pidd",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: 60,
			KVBucket:      "vey-handshake-nonces",
			KVTTL:         24 * time.Hour,
		},
		Revocation: RevocationConfig{Mode: "permissive"},
	}
}

// Load reads path over Default. An empty path reads DefaultPath, which may
// be missing.
func Load(path string) (Config, error) {
	cfg := Default()
	optional := path == ""
	if optional {
		path = DefaultPath
	}
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errs.Wrap(errs.Config, "CFG-LOAD-002", "parse "+path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return cfg, errs.Wrap(errs.Config, "CFG-LOAD-001", "read "+path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"VEY_LOG_LEVEL":           &cfg.Log.Level,
		"VEY_LOG_FORMAT":          &cfg.Log.Format,
		"VEY_HTTP_ADDRESS":        &cfg.HTTP.Address,
		"VEY_GRPC_ADDRESS":        &cfg.GRPC.Address,
		"VEY_NATS_URL":            &cfg.NATS.URL,
		"VEY_HANDSHAKE_SECRET":    &cfg.Handshake.SecretFile,
		"VEY_NONCE_STORE":         &cfg.Handshake.NonceStore,
		"VEY_COMPLIANCE_MODE":     &cfg.Revocation.Mode,
		"VEY_SPIFFE_SOCKET":       &cfg.SPIFFE.SocketPath,
		"VEY_SPIFFE_TRUST_DOMAIN": &cfg.SPIFFE.TrustDomain,
	}
	for k, dst := range str {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("VEY_SPIFFE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Wrap(errs.Config, "CFG-ENV-001", fmt.Sprintf("invalid VEY_SPIFFE_ENABLED %q", v), err)
		}
		cfg.SPIFFE.Enabled = b
	}
	return nil
}

func invalid(rule, msg string) error { return errs.New(errs.Config, rule, msg) }

func (c Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("CFG-VAL-001", "log.format must be console or json")
	}
	if c.HTTP.Address == "" {
		return invalid("CFG-VAL-002", "http.address is required")
	}
	if c.GRPC.Enabled && c.GRPC.Address == "" {
		return invalid("CFG-VAL-003", "grpc.address is required when grpc is enabled")
	}
	if c.SPIFFE.Enabled && (c.SPIFFE.SocketPath == "" || c.SPIFFE.TrustDomain == "") {
		return invalid("CFG-VAL-004", "spiffe needs socket_path and trust_domain")
	}
	switch c.ZKP.Backend {
	case "pedersen", "digest":
	default:
		return invalid("CFG-VAL-005", "zkp.backend must be pedersen or digest")
	}
	if c.ZKP.CircuitID == "" {
		return invalid("CFG-VAL-006", "zkp.circuit_id is required")
	}
	switch c.Handshake.NonceStore {
	case "memory":
	case "sqlite":
		if c.Handshake.SQLitePath == "" {
			return invalid("CFG-VAL-007", "handshake.sqlite_path is required for the sqlite nonce store")
		}
	case "nats":
		if c.NATS.URL == "" || c.NATS.KVBucket == "" {
			return invalid("CFG-VAL-008", "nats.url and nats.kv_bucket are required for the nats nonce store")
		}
		if c.NATS.KVTTL < c.Handshake.DefaultExpiry {
			return invalid("CFG-VAL-009", "nats.kv_ttl must cover handshake.default_expiry")
		}
	default:
		return invalid("CFG-VAL-010", "handshake.nonce_store must be memory, sqlite or nats")
	}
	switch c.Audit.Backend {
	case "memory":
	case "sqlite":
		if c.Audit.SQLitePath == "" {
			return invalid("CFG-VAL-011", "audit.sqlite_path is required for the sqlite audit log")
		}
	default:
		return invalid("CFG-VAL-012", "audit.backend must be memory or sqlite")
	}
	if c.Audit.PublishNATS && c.NATS.URL == "" {
		return invalid("CFG-VAL-013", "nats.url is required to publish audit events")
	}
	if c.Directory.Dir != "" && c.CAS.ConfigFile == "" &&
		filepath.Clean(c.Directory.Dir) == filepath.Clean(c.CAS.Dir) {
		return invalid("CFG-VAL-014", "directory.dir must not be the served cas.dir")
	}
	if c.Requesters.MaxSkew < 0 {
		return invalid("CFG-VAL-015", "requesters.max_skew must not be negative")
	}
	if _, err := c.ComplianceMode(); err != nil {
		return err
	}
	return nil
}

func (c Config) ComplianceMode() (compliance.Mode, error) {
	return compliance.ParseMode(c.Revocation.Mode)
}

// NeedsNATS reports whether any component connects to NATS.
func (c Config) NeedsNATS() bool {
	return c.Handshake.NonceStore == "nats" || c.Audit.PublishNATS
}
