package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"vey.dev/pidcore/resolver"
)

// cmdResolveRequest prints a resolution request carrying an access token
// signed by the requester's key. The requester defaults to the key's did:key.
func cmdResolveRequest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("resolve-request", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var sf signerFlags
	var p, requester, reason string
	sf.register(fs)
	fs.StringVar(&p, "pid", "", "PID to resolve")
	fs.StringVar(&requester, "requester", "", "Requester DID (default: the signer's did:key)")
	fs.StringVar(&reason, "reason", "", "Access reason")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if p == "" {
		fmt.Fprintln(errOut, "missing --pid")
		return 2
	}
	signer, did, err := sf.signer()
	if err != nil {
		return fail(errOut, "signer", err)
	}
	if requester == "" {
		requester = did
	}
	req := resolver.Request{PID: p, RequesterID: requester, Reason: reason, Timestamp: time.Now().UTC()}
	if req.AccessToken, err = resolver.SignAccessToken(req, signer); err != nil {
		return fail(errOut, "sign", err)
	}
	if err := writeJSON(out, req); err != nil {
		return 1
	}
	return 0
}
