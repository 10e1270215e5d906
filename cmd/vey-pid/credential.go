package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/credential"
	"vey.dev/pidcore/keys"
)

func cmdCredential(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: vey-pid credential <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: issue, verify")
		return 2
	}
	switch args[0] {
	case "issue":
		return cmdCredentialIssue(args[1:], out, errOut)
	case "verify":
		return cmdCredentialVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown credential subcommand: %s\n", args[0])
		return 2
	}
}

func cmdCredentialIssue(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("credential issue", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var holder, addressPID, country, region, issuerDID string
	var ttl time.Duration
	var sf signerFlags
	fs.StringVar(&holder, "holder", "", "Holder DID")
	fs.StringVar(&addressPID, "pid", "", "Address PID")
	fs.StringVar(&country, "country", "", "ISO 3166-1 alpha-2 country code")
	fs.StringVar(&region, "region", "", "Region code")
	fs.StringVar(&issuerDID, "issuer", "", "Issuer DID (default: did:key of the signer)")
	fs.DurationVar(&ttl, "ttl", 0, "Validity period; 0 issues without expiration")
	sf.register(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if holder == "" || addressPID == "" || country == "" {
		fmt.Fprintln(errOut, "missing --holder, --pid or --country")
		return 2
	}
	signer, did, err := sf.signer()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 2
	}
	if issuerDID == "" {
		issuerDID = did
	}

	is := &credential.Issuer{DID: issuerDID, Signer: signer}
	vc, _, err := is.Issue(context.Background(), holder, addressPID, country, region, ttl)
	if err != nil {
		return fail(errOut, "issue", err)
	}
	b, err := canonical.Marshal(vc)
	if err != nil {
		return fail(errOut, "encode", err)
	}
	_, _ = out.Write(b)
	return 0
}

func cmdCredentialVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("credential verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var issuerKey, at string
	fs.StringVar(&issuerKey, "issuer-key", "", "Issuer public key (default: the issuer DID when it is a did:key)")
	fs.StringVar(&at, "at", "", "Check expiry at this RFC 3339 time instead of now")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: vey-pid credential verify [--issuer-key <key>] <vc.json>")
		return 2
	}
	var vc credential.VerifiableCredential
	if err := readJSON(fs.Arg(0), &vc); err != nil {
		fmt.Fprintf(errOut, "read credential: %v\n", err)
		return 1
	}
	if issuerKey == "" {
		issuerKey = vc.Issuer
	}
	pub, err := keys.ParsePublicKey(issuerKey)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --issuer-key: %v\n", err)
		return 2
	}
	now := time.Now()
	if at != "" {
		if now, err = time.Parse(time.RFC3339, at); err != nil {
			fmt.Fprintf(errOut, "invalid --at: %v\n", err)
			return 2
		}
	}
	if err := credential.CheckValidity(vc, pub, now); err != nil {
		return fail(errOut, "invalid credential", err)
	}
	fmt.Fprintf(out, "valid: %s holds %s\n", vc.CredentialSubject.ID, vc.CredentialSubject.AddressPID)
	return 0
}
