package storage

import (
	"bytes"
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/cidutil"
)

// MemoryCAS is an in-process CAS. It is safe for concurrent use.
type MemoryCAS struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

var _ CAS = (*MemoryCAS)(nil)

func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{objs: make(map[string][]byte)}
}

func (m *MemoryCAS) Put(_ context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	key := id.KeyString()

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objs[key]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.objs[key] = bytes.Clone(data)
	return id, nil
}

func (m *MemoryCAS) Get(_ context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objs[id.KeyString()]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (m *MemoryCAS) Has(_ context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objs[id.KeyString()]
	return ok
}

// Len returns the number of stored objects.
func (m *MemoryCAS) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objs)
}
