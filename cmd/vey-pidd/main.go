// Command vey-pidd serves the PID HTTP API and, optionally, the CAS and
// handshake verifier gRPC services.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"vey.dev/pidcore/config"
	"vey.dev/pidcore/handshake"
	"vey.dev/pidcore/handshake/grpcverify"
	"vey.dev/pidcore/internal/logger"
	"vey.dev/pidcore/internal/spiffetls"
	"vey.dev/pidcore/storage/grpccas"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("vey-pidd", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default "+config.DefaultPath+" when present)")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("vey-pidd %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logger.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("vey-pidd stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var src *spiffetls.Source
	if cfg.SPIFFE.Enabled {
		src, err = spiffetls.Open(ctx, cfg.SPIFFE.SocketPath, cfg.SPIFFE.TrustDomain)
		if err != nil {
			return err
		}
		defer src.Close()
	}

	if a.nonces != nil {
		go handshake.PurgeEvery(ctx, a.nonces, cfg.Handshake.PurgeInterval)
	}

	errc := make(chan error, 2)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           a.api.Routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Address).Bool("mtls", src != nil).Msg("http listening")
		var err error
		if src != nil {
			httpSrv.TLSConfig = src.ServerConfig()
			err = httpSrv.ListenAndServeTLS("", "")
		} else {
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Address)
		if err != nil {
			return err
		}
		var opts []grpc.ServerOption
		if src != nil {
			opts = append(opts, grpc.Creds(credentials.NewTLS(src.ServerConfig())))
		}
		grpcSrv = grpc.NewServer(opts...)
		// Only the public store. Address documents stay in a.addresses.
		grpccas.RegisterCASServer(grpcSrv, &grpccas.Server{CAS: a.cas})
		if a.tokens != nil {
			grpcverify.RegisterVerifierServer(grpcSrv, &grpcverify.Server{Verifier: a.tokens})
		}
		go func() {
			log.Info().Str("addr", lis.Addr().String()).Msg("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("http shutdown")
	}
	return err
}
