// Command cascli is an operator tool for the content-addressed store behind
// vey-pidd: raw blocks, address documents and revocation lists.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/cidutil"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/resolver"
	"vey.dev/pidcore/revocation"
	"vey.dev/pidcore/storage"
	"vey.dev/pidcore/storage/bundle"
	"vey.dev/pidcore/storage/casconfig"
	"vey.dev/pidcore/storage/casregistry"

	_ "vey.dev/pidcore/storage/grpccas"
	_ "vey.dev/pidcore/storage/ipfs"
	_ "vey.dev/pidcore/storage/localfs"
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
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "publish-address":
		return cmdPublishAddress(args[1:], out, errOut)
	case "publish-revocations":
		return cmdPublishRevocations(args[1:], out, errOut)
	case "check-revoked":
		return cmdCheckRevoked(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
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
	fmt.Fprintln(w, "cascli: CAS tool for vey-pidd operators")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cascli put [common flags] <file>")
	fmt.Fprintln(w, "  cascli get [common flags] --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  cascli publish-address [common flags] <address.json>")
	fmt.Fprintln(w, "  cascli publish-revocations [common flags] --issuer-key <key> <list.json>")
	fmt.Fprintln(w, "  cascli check-revoked [common flags] --list <cid> --pid <pid>")
	fmt.Fprintln(w, "  cascli export [common flags] --out <file.tar> [--address PID=CID ...] [--revocations <cid>] [cid ...]")
	fmt.Fprintln(w, "  cascli import [common flags] <file.tar>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --backend <name> --opt key=value ...   open one backend")
	fmt.Fprintln(w, "  --config <casconfig.yaml>             open the backends vey-pidd uses")
	fmt.Fprintln(w, "  --list-backends                       list linked backends and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - grpc backend talks to vey-pidd (or any CAS gRPC server): --backend grpc --opt target=host:port")
	fmt.Fprintln(w, "  - cascli stores raw blocks (CIDv1 raw + sha2-256)")
	fmt.Fprintln(w, "  - publish-revocations prints the CID to set as revocation.list_cid")
	fmt.Fprintln(w, "  - export writes a snapshot vey-pidd can load with directory.bundle")
}

type multiString []string

func (m *multiString) String() string { return strings.Join(*m, ",") }

func (m *multiString) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("empty value")
	}
	*m = append(*m, v)
	return nil
}

type commonFlags struct {
	backend      string
	config       string
	opts         multiString
	listBackends bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&c.config, "config", "", "casconfig YAML file (overrides --backend)")
	fs.Var(&c.opts, "opt", "Backend option key=value (repeatable)")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
}

func (c *commonFlags) openCAS() (storage.CAS, func() error, error) {
	if c.config != "" {
		cfg, err := casconfig.LoadFile(c.config)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(casregistry.UsageCLI)
	}
	opts := make(map[string]string, len(c.opts))
	for _, kv := range c.opts {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, nil, fmt.Errorf("invalid --opt %q, want key=value", kv)
		}
		opts[k] = v
	}
	return casregistry.Open(c.backend, casregistry.UsageCLI, opts)
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// withCAS parses common flags, opens the store and calls fn. extra registers
// command-specific flags.
func withCAS(name string, args []string, out, errOut io.Writer, extra func(*flag.FlagSet), fn func(*flag.FlagSet, storage.CAS) int) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(fs, cas)
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	return withCAS("put", args, out, errOut, nil, func(fs *flag.FlagSet, cas storage.CAS) int {
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: cascli put [common flags] <file>")
			return 2
		}
		p := fs.Arg(0)
		b, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
			return 1
		}
		id, err := cas.Put(context.Background(), b)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id.String())
		return 0
	})
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	var cidStr, outPath string
	flags := func(fs *flag.FlagSet) {
		fs.StringVar(&cidStr, "cid", "", "CID to fetch")
		fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")
	}
	return withCAS("get", args, out, errOut, flags, func(fs *flag.FlagSet, cas storage.CAS) int {
		if cidStr == "" || fs.NArg() != 0 {
			fmt.Fprintln(errOut, "usage: cascli get [common flags] --cid <cid> [--out <file>]")
			return 2
		}
		id, err := cidutil.Parse(cidStr)
		if err != nil {
			fmt.Fprintln(errOut, storage.ErrInvalidCID)
			return 1
		}
		b, err := cas.Get(context.Background(), id)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if outPath == "" {
			_, _ = out.Write(b)
			return 0
		}
		if err := os.WriteFile(outPath, b, 0o600); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
			return 1
		}
		return 0
	})
}

func cmdPublishAddress(args []string, out io.Writer, errOut io.Writer) int {
	return withCAS("publish-address", args, out, errOut, nil, func(fs *flag.FlagSet, cas storage.CAS) int {
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: cascli publish-address [common flags] <address.json>")
			return 2
		}
		var addr pid.Address
		if err := readJSON(fs.Arg(0), &addr); err != nil {
			fmt.Fprintf(errOut, "read address: %v\n", err)
			return 1
		}
		dir := &resolver.CASDirectory{CAS: cas}
		id, err := dir.Put(context.Background(), addr)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "%s\t%s\n", addr.PID, id)
		return 0
	})
}

func cmdPublishRevocations(args []string, out io.Writer, errOut io.Writer) int {
	var issuerKey string
	flags := func(fs *flag.FlagSet) {
		fs.StringVar(&issuerKey, "issuer-key", "", "Issuer public key (default: the list issuer when it is a did:key)")
	}
	return withCAS("publish-revocations", args, out, errOut, flags, func(fs *flag.FlagSet, cas storage.CAS) int {
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: cascli publish-revocations [common flags] [--issuer-key <key>] <list.json>")
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
			fmt.Fprintln(errOut, err)
			return 1
		}
		id, err := storage.PutDocument(context.Background(), cas, l)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id.String())
		return 0
	})
}

func cmdCheckRevoked(args []string, out io.Writer, errOut io.Writer) int {
	var listCID, p string
	flags := func(fs *flag.FlagSet) {
		fs.StringVar(&listCID, "list", "", "Revocation list CID")
		fs.StringVar(&p, "pid", "", "PID to check")
	}
	return withCAS("check-revoked", args, out, errOut, flags, func(fs *flag.FlagSet, cas storage.CAS) int {
		if listCID == "" || p == "" {
			fmt.Fprintln(errOut, "usage: cascli check-revoked [common flags] --list <cid> --pid <pid>")
			return 2
		}
		id, err := cidutil.Parse(listCID)
		if err != nil {
			fmt.Fprintln(errOut, storage.ErrInvalidCID)
			return 1
		}
		reg := &revocation.Registry{CAS: cas}
		if err := reg.Load(context.Background(), id); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if !reg.IsRevoked(p) {
			fmt.Fprintf(out, "%s: active\n", p)
			return 0
		}
		if next, ok := reg.NewPID(p); ok {
			fmt.Fprintf(out, "%s: revoked, moved to %s\n", p, next)
		} else {
			fmt.Fprintf(out, "%s: revoked\n", p)
		}
		return 0
	})
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	var outPath, revocations string
	var addresses multiString
	flags := func(fs *flag.FlagSet) {
		fs.StringVar(&outPath, "out", "", "Output bundle file")
		fs.Var(&addresses, "address", "PID=CID of an address document (repeatable)")
		fs.StringVar(&revocations, "revocations", "", "Revocation list CID")
	}
	return withCAS("export", args, out, errOut, flags, func(fs *flag.FlagSet, cas storage.CAS) int {
		if outPath == "" {
			fmt.Fprintln(errOut, "usage: cascli export [common flags] --out <file.tar> [--address PID=CID ...] [--revocations <cid>] [cid ...]")
			return 2
		}
		labels := map[string]cid.Cid{}
		for _, kv := range addresses {
			p, s, ok := strings.Cut(kv, "=")
			if !ok {
				fmt.Fprintf(errOut, "invalid --address %q, want PID=CID\n", kv)
				return 2
			}
			if err := pid.Validate(p); err != nil {
				fmt.Fprintln(errOut, err)
				return 2
			}
			id, err := cidutil.Parse(s)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return 2
			}
			labels[bundle.PIDLabel(p)] = id
		}
		if revocations != "" {
			id, err := cidutil.Parse(revocations)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return 2
			}
			labels[bundle.RevocationsLabel] = id
		}
		var ids []cid.Cid
		for _, s := range fs.Args() {
			id, err := cidutil.Parse(s)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return 2
			}
			ids = append(ids, id)
		}

		var buf bytes.Buffer
		if err := bundle.Export(context.Background(), &buf, cas, ids, labels); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if err := os.WriteFile(outPath, buf.Bytes(), 0o600); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
			return 1
		}
		return 0
	})
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	return withCAS("import", args, out, errOut, nil, func(fs *flag.FlagSet, cas storage.CAS) int {
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: cascli import [common flags] <file.tar>")
			return 2
		}
		f, err := os.Open(filepath.Clean(fs.Arg(0)))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		ix, err := bundle.Import(context.Background(), f, cas, bundle.ImportOptions{})
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "imported %d blocks\n", len(ix.Blocks))
		addrs := ix.Addresses()
		pids := make([]string, 0, len(addrs))
		for p := range addrs {
			pids = append(pids, p)
		}
		sort.Strings(pids)
		for _, p := range pids {
			fmt.Fprintf(out, "address\t%s\t%s\n", p, addrs[p])
		}
		if id, ok := ix.Revocations(); ok {
			fmt.Fprintf(out, "revocations\t%s\n", id)
		}
		return 0
	})
}
