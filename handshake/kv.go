package handshake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"vey.dev/pidcore/errs"
)

// KeyValue is the part of a JetStream key-value bucket the nonce store
// needs. Create must fail with jetstream.ErrKeyExists when key is present.
type KeyValue interface {
	Create(ctx context.Context, key string, value []byte) (uint64, error)
}

type jsBucket struct{ kv jetstream.KeyValue }

func (b jsBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return b.kv.Create(ctx, key, value)
}

// KVNonceStore shares consumed nonces between replicas through a JetStream
// key-value bucket. The bucket's TTL does the purging, so tokens may not
// outlive it.
type KVNonceStore struct {
	KV  KeyValue
	TTL time.Duration
	Now func() time.Time
}

var _ NonceStore = (*KVNonceStore)(nil)

// OpenKVNonceStore creates or updates bucket with the given TTL.
func OpenKVNonceStore(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVNonceStore, error) {
	if ttl <= 0 {
		return nil, errs.New(errs.Config, "HS-KV-001", "nonce bucket needs a positive TTL")
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "consumed handshake token nonces",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "HS-KV-002", "open nonce bucket "+bucket, err)
	}
	return &KVNonceStore{KV: jsBucket{kv}, TTL: ttl}, nil
}

func (s *KVNonceStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// nonceKey hashes the nonce so any token string maps to a legal key.
func nonceKey(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return "nonce." + hex.EncodeToString(sum[:])
}

func (s *KVNonceStore) Consume(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	if s.TTL > 0 && expiresAt.After(s.now().Add(s.TTL)) {
		return false, errs.New(errs.Config, "HS-KV-003", "token outlives the nonce bucket TTL")
	}
	_, err := s.KV.Create(ctx, nonceKey(nonce), []byte(expiresAt.UTC().Format(time.RFC3339Nano)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, jetstream.ErrKeyExists):
		return false, nil
	default:
		return false, errs.Wrap(errs.Storage, "HS-KV-004", "record nonce", err)
	}
}

// Purge is a no-op; the bucket TTL removes entries.
func (s *KVNonceStore) Purge(context.Context, time.Time) (int, error) { return 0, nil }
