package main

import (
	"flag"
	"fmt"
	"io"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/credential"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/revocation"
)

func cmdRevocation(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: vey-pid revocation <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: add, verify")
		return 2
	}
	switch args[0] {
	case "add":
		return cmdRevocationAdd(args[1:], out, errOut)
	case "verify":
		return cmdRevocationVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown revocation subcommand: %s\n", args[0])
		return 2
	}
}

// cmdRevocationAdd prints the signed successor of --prev (or a first list)
// with one more entry.
func cmdRevocationAdd(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("revocation add", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var issuer, p, reason, newPID, prevPath string
	var sf signerFlags
	fs.StringVar(&issuer, "issuer", "", "Issuer DID (default: did:key of the signer)")
	fs.StringVar(&p, "pid", "", "PID to revoke")
	fs.StringVar(&reason, "reason", revocation.ReasonAddressChange, "Revocation reason")
	fs.StringVar(&newPID, "new-pid", "", "Successor PID, if the holder moved")
	fs.StringVar(&prevPath, "prev", "", "Current list to extend")
	sf.register(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if p == "" {
		fmt.Fprintln(errOut, "missing --pid")
		return 2
	}
	signer, did, err := sf.signer()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 2
	}
	if issuer == "" {
		issuer = did
	}

	var prev *revocation.List
	if prevPath != "" {
		var l revocation.List
		if err := readJSON(prevPath, &l); err != nil {
			fmt.Fprintf(errOut, "read --prev: %v\n", err)
			return 1
		}
		prev = &l
	}
	entry, err := revocation.NewEntry(p, reason, newPID)
	if err != nil {
		return fail(errOut, "entry", err)
	}
	next, err := revocation.NewList(issuer, []revocation.Entry{entry}, prev)
	if err != nil {
		return fail(errOut, "list", err)
	}
	next, err = revocation.Sign(next, signer, credential.KeyID(issuer))
	if err != nil {
		return fail(errOut, "sign", err)
	}
	b, err := canonical.Marshal(next)
	if err != nil {
		return fail(errOut, "encode", err)
	}
	_, _ = out.Write(b)
	return 0
}

func cmdRevocationVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("revocation verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var issuerKey, prevPath string
	fs.StringVar(&issuerKey, "issuer-key", "", "Issuer public key (default: the issuer DID when it is a did:key)")
	fs.StringVar(&prevPath, "prev", "", "Previous list; the new list must be its successor")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: vey-pid revocation verify [--issuer-key <key>] [--prev <list.json>] <list.json>")
		return 2
	}
	var l revocation.List
	if err := readJSON(fs.Arg(0), &l); err != nil {
		fmt.Fprintf(errOut, "read list: %v\n", err)
		return 1
	}
	if issuerKey == "" {
		issuerKey = l.Issuer
	}
	pub, err := keys.ParsePublicKey(issuerKey)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --issuer-key: %v\n", err)
		return 2
	}
	if err := revocation.VerifyWith(l, pub); err != nil {
		return fail(errOut, "invalid list", err)
	}
	if prevPath != "" {
		var prev revocation.List
		if err := readJSON(prevPath, &prev); err != nil {
			fmt.Fprintf(errOut, "read --prev: %v\n", err)
			return 1
		}
		if err := revocation.ValidateSuccessor(prev, l); err != nil {
			return fail(errOut, "not a successor", err)
		}
	}
	id, err := revocation.CID(l)
	if err != nil {
		return fail(errOut, "cid", err)
	}
	fmt.Fprintf(out, "valid: version %d, %d entries, %s\n", l.Version, len(l.Entries), id)
	return 0
}
