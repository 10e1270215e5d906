package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"vey.dev/pidcore/handshake"
	"vey.dev/pidcore/handshake/grpcverify"
)

func cmdToken(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: vey-pid token <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: gen, verify")
		return 2
	}
	switch args[0] {
	case "gen":
		return cmdTokenGen(args[1:], out, errOut)
	case "verify":
		return cmdTokenVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown token subcommand: %s\n", args[0])
		return 2
	}
}

func readSecret(path string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(b), nil
}

func cmdTokenGen(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("token gen", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var secretPath, waybill, order, carrier, typ string
	var expires time.Duration
	var nfc bool
	fs.StringVar(&secretPath, "secret-file", "", "Shared handshake secret")
	fs.StringVar(&waybill, "waybill", "", "Waybill number")
	fs.StringVar(&order, "order", "", "Order ID")
	fs.StringVar(&carrier, "carrier", "", "Carrier code")
	fs.StringVar(&typ, "type", "", "PICKUP or DELIVERY")
	fs.DurationVar(&expires, "expires", handshake.DefaultExpiry, "Token lifetime")
	fs.BoolVar(&nfc, "nfc", false, "Print the NFC form (VEY: prefix)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if secretPath == "" || waybill == "" || order == "" || carrier == "" {
		fmt.Fprintln(errOut, "missing --secret-file, --waybill, --order or --carrier")
		return 2
	}
	t, err := handshake.ParseType(typ)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --type: %v\n", err)
		return 2
	}
	secret, err := readSecret(secretPath)
	if err != nil {
		fmt.Fprintf(errOut, "read secret: %v\n", err)
		return 1
	}
	svc, err := handshake.NewService(secret, handshake.NewMemoryNonceStore())
	if err != nil {
		return fail(errOut, "handshake", err)
	}
	tok, err := svc.Generate(waybill, order, carrier, t, expires, nil)
	if err != nil {
		return fail(errOut, "generate", err)
	}
	encode := handshake.QRPayload
	if nfc {
		encode = handshake.EncodeNFC
	}
	s, err := encode(tok)
	if err != nil {
		return fail(errOut, "encode", err)
	}
	_, _ = fmt.Fprintln(out, s)
	return 0
}

// cmdTokenVerify checks a token locally or against a running verifier. A
// local check without --nonce-db only detects replays within this process.
func cmdTokenVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("token verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var secretPath, nonceDB, remote string
	var timeout time.Duration
	fs.StringVar(&secretPath, "secret-file", "", "Shared handshake secret")
	fs.StringVar(&nonceDB, "nonce-db", "", "SQLite nonce store shared between runs")
	fs.StringVar(&remote, "remote", "", "Verifier gRPC target host:port")
	fs.DurationVar(&timeout, "timeout", 5*time.Second, "Remote call timeout")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || (secretPath == "") == (remote == "") {
		fmt.Fprintln(errOut, "usage: vey-pid token verify (--secret-file <path> [--nonce-db <path>] | --remote <host:port>) <token>")
		return 2
	}

	var verifier grpcverify.TokenVerifier
	if remote != "" {
		c, err := grpcverify.Dial(remote)
		if err != nil {
			fmt.Fprintf(errOut, "dial: %v\n", err)
			return 1
		}
		defer c.Close()
		c.Timeout = timeout
		verifier = c
	} else {
		secret, err := readSecret(secretPath)
		if err != nil {
			fmt.Fprintf(errOut, "read secret: %v\n", err)
			return 1
		}
		var store handshake.NonceStore = handshake.NewMemoryNonceStore()
		if nonceDB != "" {
			db, err := handshake.OpenSQLiteNonceStore(nonceDB)
			if err != nil {
				return fail(errOut, "nonce store", err)
			}
			defer db.Close()
			store = db
		}
		svc, err := handshake.NewService(secret, store)
		if err != nil {
			return fail(errOut, "handshake", err)
		}
		verifier = svc
	}

	res := verifier.Verify(context.Background(), fs.Arg(0))
	if err := writeJSON(out, res); err != nil {
		return 1
	}
	if !res.Valid {
		return 1
	}
	return 0
}
