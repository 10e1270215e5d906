package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/zkp"
)

const defaultCircuit = "address-validation-v1"

func cmdProof(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: vey-pid proof <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: shipping, verify")
		return 2
	}
	switch args[0] {
	case "shipping":
		return cmdProofShipping(args[1:], out, errOut)
	case "verify":
		return cmdProofVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown proof subcommand: %s\n", args[0])
		return 2
	}
}

func backendFor(name string) (zkp.Backend, bool) {
	switch name {
	case "", "pedersen":
		return &zkp.PedersenBackend{}, true
	case "digest":
		return zkp.DigestBackend{}, true
	}
	return nil, false
}

func cmdProofShipping(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("proof shipping", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var addrPath, requester, backendName, circuitID string
	var countries, regions, prohibited stringList
	fs.StringVar(&addrPath, "address", "", "Address JSON file (stays local)")
	fs.StringVar(&requester, "requester", "", "Requester DID")
	fs.Var(&countries, "country", "Allowed country (repeatable)")
	fs.Var(&regions, "region", "Allowed region (repeatable)")
	fs.Var(&prohibited, "prohibited", "Prohibited PID prefix (repeatable)")
	fs.StringVar(&backendName, "backend", "pedersen", "Proof backend: pedersen or digest")
	fs.StringVar(&circuitID, "circuit", defaultCircuit, "Circuit ID")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if addrPath == "" || requester == "" {
		fmt.Fprintln(errOut, "missing --address or --requester")
		return 2
	}
	backend, ok := backendFor(backendName)
	if !ok {
		fmt.Fprintf(errOut, "unknown --backend %q\n", backendName)
		return 2
	}
	var addr pid.Address
	if err := readJSON(addrPath, &addr); err != nil {
		fmt.Fprintf(errOut, "read address: %v\n", err)
		return 1
	}

	req := zkp.ShippingRequest{
		PID:         addr.PID,
		RequesterID: requester,
		Timestamp:   time.Now().UTC(),
		Conditions: zkp.ShippingConditions{
			AllowedCountries: countries,
			AllowedRegions:   regions,
			ProhibitedAreas:  prohibited,
		},
	}
	resp := zkp.NewEngine(backend).ValidateShippingRequest(req, zkp.NewCircuit(circuitID, "Address validation"), addr)
	if err := writeJSON(out, resp); err != nil {
		return 1
	}
	if !resp.Valid {
		return 1
	}
	return 0
}

func cmdProofVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("proof verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var proofPath, backendName, circuitID string
	fs.StringVar(&proofPath, "proof", "", "Proof JSON file (a zkProof object)")
	fs.StringVar(&backendName, "backend", "pedersen", "Proof backend: pedersen or digest")
	fs.StringVar(&circuitID, "circuit", defaultCircuit, "Circuit ID")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if proofPath == "" {
		fmt.Fprintln(errOut, "missing --proof")
		return 2
	}
	backend, ok := backendFor(backendName)
	if !ok {
		fmt.Fprintf(errOut, "unknown --backend %q\n", backendName)
		return 2
	}
	var proof zkp.Proof
	if err := readJSON(proofPath, &proof); err != nil {
		fmt.Fprintf(errOut, "read proof: %v\n", err)
		return 1
	}
	v := zkp.NewEngine(backend).VerifyProof(proof, zkp.NewCircuit(circuitID, "Address validation"))
	if err := writeJSON(out, v); err != nil {
		return 1
	}
	if !v.Valid {
		return 1
	}
	return 0
}
