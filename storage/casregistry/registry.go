// Package casregistry lets binaries select a CAS backend by name at runtime.
//
// Backends register themselves in init(); a binary enables one by importing
// its package (usually as a blank import). The in-process "memory" backend is
// always available.
package casregistry

import (
	"fmt"
	"sort"
	"sync"

	"vey.dev/pidcore/storage"
)

// Backend opens a storage.CAS from string key/value options.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	// Options documents accepted keys and their meaning.
	Options map[string]string

	// Open constructs the CAS. It returns an optional close function.
	Open func(opts map[string]string) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func init() {
	MustRegister(Backend{
		Name:        "memory",
		Description: "In-process CAS (lost on restart)",
		Usage:       UsageCLI | UsageDaemon,
		Open: func(map[string]string) (storage.CAS, func() error, error) {
			return storage.NewMemoryCAS(), nil, nil
		},
	})
}

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage, opts map[string]string) (storage.CAS, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("casregistry: unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("casregistry: backend %q not supported in this binary", name)
	}
	if opts == nil {
		opts = map[string]string{}
	}
	return b.Open(opts)
}
