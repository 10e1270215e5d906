package ipfs

import (
	"os"

	"vey.dev/pidcore/storage"
	"vey.dev/pidcore/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: map[string]string{
			"bin":       "path to the ipfs binary (default: ipfs on PATH)",
			"ipfs-path": "IPFS_PATH for the repository (default: inherited)",
		},
		Open: func(opts map[string]string) (storage.CAS, func() error, error) {
			o := Options{Bin: opts["bin"]}
			if p := opts["ipfs-path"]; p != "" {
				o.Env = append(os.Environ(), "IPFS_PATH="+p)
			}
			return New(o), nil, nil
		},
	})
}
