package localfs

import (
	"fmt"

	"vey.dev/pidcore/storage"
	"vey.dev/pidcore/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options:     map[string]string{"dir": "CAS root directory"},
		Open: func(opts map[string]string) (storage.CAS, func() error, error) {
			dir := opts["dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing option \"dir\"")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
