// Command vey-pid is the operator CLI for keys, PIDs, credentials,
// revocation lists, handshake tokens, shipping proofs and signed resolution
// requests.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"vey.dev/pidcore/cidutil"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/model"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "pid":
		return cmdPID(args[1:], out, errOut)
	case "credential":
		return cmdCredential(args[1:], out, errOut)
	case "revocation":
		return cmdRevocation(args[1:], out, errOut)
	case "token":
		return cmdToken(args[1:], out, errOut)
	case "proof":
		return cmdProof(args[1:], out, errOut)
	case "resolve-request":
		return cmdResolveRequest(args[1:], out, errOut)
	case "doc-cid":
		return cmdDocCID(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "vey-pid: PID, credential and handshake token CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  vey-pid key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  vey-pid key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  vey-pid key did (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>)")
	fmt.Fprintln(w, "  vey-pid key list")
	fmt.Fprintln(w, "  vey-pid pid validate <pid>")
	fmt.Fprintln(w, "  vey-pid pid parse <pid>")
	fmt.Fprintln(w, "  vey-pid credential issue --holder <did> --pid <pid> --country <cc> --region <code> [--ttl <dur>] <signer>")
	fmt.Fprintln(w, "  vey-pid credential verify [--issuer-key <key>] <vc.json>")
	fmt.Fprintln(w, "  vey-pid revocation add --issuer <did> --pid <pid> [--reason <r>] [--new-pid <pid>] [--prev <list.json>] <signer>")
	fmt.Fprintln(w, "  vey-pid revocation verify --issuer-key <key> [--prev <list.json>] <list.json>")
	fmt.Fprintln(w, "  vey-pid token gen --secret-file <path> --waybill <n> --order <id> --carrier <code> --type PICKUP|DELIVERY [--expires <dur>] [--nfc]")
	fmt.Fprintln(w, "  vey-pid token verify (--secret-file <path> [--nonce-db <path>] | --remote <host:port>) <token>")
	fmt.Fprintln(w, "  vey-pid proof shipping --address <addr.json> --requester <did> [--country <cc> ...] [--region <r> ...] [--prohibited <pid> ...] [--backend pedersen|digest]")
	fmt.Fprintln(w, "  vey-pid proof verify --proof <proof.json> [--backend pedersen|digest]")
	fmt.Fprintln(w, "  vey-pid resolve-request --pid <pid> [--requester <did>] [--reason <r>] <signer>")
	fmt.Fprintln(w, "  vey-pid doc-cid <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - <signer> is --seed-hex, --signer <name> [--signer-role <role>] or --key-file")
	fmt.Fprintln(w, "  - keys are stored under ~/.vey/keys/<name> unless --key-dir is given (0600 seed files)")
	fmt.Fprintln(w, "  - credential issue and revocation add print canonical JSON to stdout")
	fmt.Fprintln(w, "  - token verify exits 1 when the token is rejected")
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// signerFlags are shared by every command that signs.
type signerFlags struct {
	seedHex string
	name    string
	role    string
	keyFile string
	keyDir  string
}

func (s *signerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.seedHex, "seed-hex", "", "Ed25519 seed as 64 hex chars")
	fs.StringVar(&s.name, "signer", "", "Stored key name")
	fs.StringVar(&s.role, "signer-role", "", "Derived role of the stored key")
	fs.StringVar(&s.keyFile, "key-file", "", "Seed file")
	fs.StringVar(&s.keyDir, "key-dir", "", "Key store directory (default ~/.vey/keys)")
}

func (s *signerFlags) seed() ([]byte, error) {
	ks, err := keys.OpenKeyStore(s.keyDir)
	if err != nil {
		return nil, err
	}
	return ks.Seed(s.seedHex, s.name, s.role, s.keyFile)
}

func (s *signerFlags) signer() (*keys.Ed25519Signer, string, error) {
	seed, err := s.seed()
	if err != nil {
		return nil, "", err
	}
	signer, err := keys.Ed25519SignerFromSeed(seed)
	if err != nil {
		return nil, "", err
	}
	did, err := keys.DIDFromSeed(seed)
	if err != nil {
		return nil, "", err
	}
	return signer, did, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints err as a coded error so scripts can match on the code.
func fail(errOut io.Writer, what string, err error) int {
	ce := model.FromError(err)
	fmt.Fprintf(errOut, "%s: %s\n", what, ce.Error())
	return 1
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func cmdDocCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("doc-cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: vey-pid doc-cid <file>")
		return 2
	}
	path := fs.Arg(0)
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
		return 1
	}
	_, _ = fmt.Fprintln(out, cidutil.String(b))
	return 0
}
