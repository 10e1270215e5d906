// Package natsconn opens the NATS connection shared by the audit publisher
// and the JetStream nonce store.
package natsconn

import (
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"vey.dev/pidcore/errs"
)

type Config struct {
	URL             string
	Name            string
	CredentialsFile string
	ReconnectWait   time.Duration
	MaxReconnects   int
}

// Options builds the connection options. A credentials file that does not
// exist is skipped.
func Options(cfg Config) []nats.Option {
	name := cfg.Name
	if name == "" {
		name = "vey-pidd"
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err == nil {
			opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
		} else {
			log.Warn().Str("file", cfg.CredentialsFile).Msg("NATS credentials file missing, connecting without it")
		}
	}
	return opts
}

func Connect(cfg Config) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, errs.New(errs.Config, "NATS-001", "NATS URL is required")
	}
	nc, err := nats.Connect(cfg.URL, Options(cfg)...)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "NATS-002", "connect to NATS", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}

func JetStream(nc *nats.Conn) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "NATS-003", "open JetStream", err)
	}
	return js, nil
}
