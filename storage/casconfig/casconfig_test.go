package casconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vey.dev/pidcore/storage"
	"vey.dev/pidcore/storage/casregistry"
	_ "vey.dev/pidcore/storage/localfs"
)

func TestLoadFileAndOpenReplicating(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cas.yaml")
	content := `
write_policy: all
backends:
  - name: localfs
    options:
      dir: ` + filepath.Join(dir, "a") + `
  - name: memory
    id: cache
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.WritePolicy)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "cache", cfg.Backends[1].id())

	cas, closeFn, err := cfg.Open(casregistry.UsageDaemon)
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	defer closeFn()

	rep, ok := cas.(storage.ReplicatingCAS)
	require.True(t, ok, "expected ReplicatingCAS, got %T", cas)
	assert.Len(t, rep.Backends, 2)
}

func TestOpenFirstPolicyIsMulti(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "memory", ID: "a"}, {Name: "memory", ID: "b"}}}
	cas, _, err := cfg.Open(casregistry.UsageCLI)
	require.NoError(t, err)
	_, ok := cas.(storage.MultiCAS)
	assert.True(t, ok)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Backends: []BackendConfig{{Name: ""}}}.Validate())
	assert.Error(t, Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}}.Validate())
	assert.Error(t, Config{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}}.Validate())
	assert.NoError(t, Config{WritePolicy: "first", Backends: []BackendConfig{{Name: "memory"}}}.Validate())
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "does-not-exist"}}}
	_, _, err := cfg.Open(casregistry.UsageDaemon)
	assert.Error(t, err)
}
