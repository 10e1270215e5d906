package handshake

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"vey.dev/pidcore/errs"
)

// NonceStore remembers consumed token nonces until their tokens expire.
//
// Consume must be an atomic check-and-insert: of any number of concurrent
// calls with the same nonce, exactly one returns true. Purge may forget
// nonces whose expiresAt is before now and nothing else.
type NonceStore interface {
	Consume(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)
	Purge(ctx context.Context, now time.Time) (int, error)
}

const (
	DefaultMaxNonces       = 100000
	DefaultCleanupInterval = time.Minute
)

// MemoryNonceStore is a process-local NonceStore. When it is full of
// unexpired nonces it refuses new ones instead of evicting live entries.
type MemoryNonceStore struct {
	MaxEntries      int
	CleanupInterval time.Duration
	Now             func() time.Time

	mu          sync.Mutex
	seen        map[string]time.Time
	lastCleanup time.Time
}

var _ NonceStore = (*MemoryNonceStore)(nil)

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		MaxEntries:      DefaultMaxNonces,
		CleanupInterval: DefaultCleanupInterval,
		seen:            make(map[string]time.Time),
	}
}

func (m *MemoryNonceStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryNonceStore) Consume(_ context.Context, nonce string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]time.Time)
	}

	now := m.now()
	if m.CleanupInterval > 0 && now.Sub(m.lastCleanup) > m.CleanupInterval {
		m.purgeLocked(now)
		m.lastCleanup = now
	}
	if _, ok := m.seen[nonce]; ok {
		return false, nil
	}
	if m.MaxEntries > 0 && len(m.seen) >= m.MaxEntries {
		m.purgeLocked(now)
		if len(m.seen) >= m.MaxEntries {
			log.Warn().Int("size", len(m.seen)).Msg("nonce store full of live nonces")
			return false, errs.New(errs.Storage, "HS-NONCE-001", "nonce store full")
		}
	}
	m.seen[nonce] = expiresAt
	return true, nil
}

func (m *MemoryNonceStore) Purge(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(now), nil
}

func (m *MemoryNonceStore) purgeLocked(now time.Time) int {
	removed := 0
	for n, exp := range m.seen {
		if exp.Before(now) {
			delete(m.seen, n)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", len(m.seen)).Msg("nonce store cleanup")
	}
	return removed
}

func (m *MemoryNonceStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// PurgeEvery runs store.Purge on every tick until ctx is done.
func PurgeEvery(ctx context.Context, store NonceStore, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if _, err := store.Purge(ctx, now); err != nil {
				log.Warn().Err(err).Msg("nonce purge failed")
			}
		}
	}
}
