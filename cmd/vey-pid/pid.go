package main

import (
	"flag"
	"fmt"
	"io"

	"vey.dev/pidcore/model"
	"vey.dev/pidcore/pid"
)

func cmdPID(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: vey-pid pid <subcommand> <pid>")
		fmt.Fprintln(errOut, "subcommands: validate, parse")
		return 2
	}
	sub := args[0]
	fs := flag.NewFlagSet("pid "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(errOut, "usage: vey-pid pid %s <pid>\n", sub)
		return 2
	}
	p := fs.Arg(0)

	switch sub {
	case "validate":
		resp := model.ValidatePID(p)
		if err := writeJSON(out, resp); err != nil {
			return 1
		}
		if !resp.Valid {
			return 1
		}
		return 0
	case "parse":
		c, err := pid.Parse(p)
		if err != nil {
			return fail(errOut, "parse", err)
		}
		if err := writeJSON(out, c); err != nil {
			return 1
		}
		return 0
	default:
		fmt.Fprintf(errOut, "unknown pid subcommand: %s\n", sub)
		return 2
	}
}
