package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vey.dev/pidcore/storage"
	"vey.dev/pidcore/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to a vey-pidd CAS endpoint)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: map[string]string{
			"target":        "gRPC target host:port",
			"timeout":       "per-RPC timeout (Go duration)",
			"max-msg-bytes": "max message size in bytes, send and receive",
		},
		Open: func(opts map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(opts["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpccas: missing option \"target\"")
			}
			var dopts DialOptions
			if v := opts["max-msg-bytes"]; v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, fmt.Errorf("grpccas: max-msg-bytes: %w", err)
				}
				dopts.MaxMsgBytes = n
			}
			client, err := Dial(target, dopts)
			if err != nil {
				return nil, nil, err
			}
			if v := opts["timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					_ = client.Close()
					return nil, nil, fmt.Errorf("grpccas: timeout: %w", err)
				}
				client.Timeout = d
			}
			return client, client.Close, nil
		},
	})
}
