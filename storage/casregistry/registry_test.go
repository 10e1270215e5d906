package casregistry

import (
	"context"
	"testing"

	"vey.dev/pidcore/storage"
)

func TestMemoryBackendBuiltin(t *testing.T) {
	cas, closeFn, err := Open("memory", UsageDaemon, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("memory backend needs no close function")
	}
	if _, err := cas.Put(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	if err := Register(Backend{}); err == nil {
		t.Fatalf("expected missing name to fail")
	}
	if err := Register(Backend{Name: "nopen", Usage: UsageCLI}); err == nil {
		t.Fatalf("expected missing Open to fail")
	}
	open := func(map[string]string) (storage.CAS, func() error, error) { return storage.NewMemoryCAS(), nil, nil }
	if err := Register(Backend{Name: "memory", Usage: UsageCLI, Open: open}); err == nil {
		t.Fatalf("expected duplicate name to fail")
	}
}

func TestUsageFiltering(t *testing.T) {
	open := func(map[string]string) (storage.CAS, func() error, error) { return storage.NewMemoryCAS(), nil, nil }
	MustRegister(Backend{Name: "cli-only-test", Usage: UsageCLI, Open: open})

	if _, _, err := Open("cli-only-test", UsageDaemon, nil); err == nil {
		t.Fatalf("expected daemon usage to be refused")
	}
	found := false
	for _, n := range Names(UsageCLI) {
		if n == "cli-only-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cli-only-test in CLI names")
	}
	if _, _, err := Open("nope", UsageCLI, nil); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}
