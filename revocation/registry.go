package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog/log"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/storage"
)

// Registry holds the current revocation list for one issuer.
//
// Lists only move forward: Apply rejects anything that is not a valid
// successor of the current list. Readers always see a complete list.
type Registry struct {
	Issuer string
	// Key, when set, must verify every applied list.
	Key *keys.PublicKey
	// CAS, when set, receives every applied list.
	CAS storage.CAS
	Now func() time.Time

	mu      sync.RWMutex
	current *List
	cid     cid.Cid
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Current returns a copy of the current list, or nil if none has been applied.
func (r *Registry) Current() *List {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil
	}
	c := *r.current
	c.Entries = append([]Entry(nil), r.current.Entries...)
	return &c
}

// CurrentCID is the CID of the current list when it was published to CAS.
func (r *Registry) CurrentCID() cid.Cid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cid
}

// IsRevoked checks p against the current list.
func (r *Registry) IsRevoked(p string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return IsRevoked(p, r.current)
}

// NewPID looks up the successor of p in the current list.
func (r *Registry) NewPID(p string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return NewPID(p, r.current)
}

// Apply installs next as the current list.
func (r *Registry) Apply(ctx context.Context, next List) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(ctx, next)
}

func (r *Registry) applyLocked(ctx context.Context, next List) error {
	if r.Issuer != "" && next.Issuer != r.Issuer {
		return errs.New(errs.RevocationListStale, "REV-SEQ-004", "list issuer "+next.Issuer+" is not "+r.Issuer)
	}
	if r.current != nil {
		if err := ValidateSuccessor(*r.current, next); err != nil {
			return err
		}
	} else if next.Version != 1 && next.Previous != "" {
		log.Debug().Uint64("version", next.Version).Msg("revocation: first applied list continues an unseen history")
	}
	if r.Key != nil {
		if err := VerifyWith(next, *r.Key); err != nil {
			return err
		}
	}
	var id cid.Cid
	if r.CAS != nil {
		var err error
		id, err = storage.PutDocument(ctx, r.CAS, next)
		if err != nil {
			return errs.Wrap(errs.Storage, "REV-PUB-001", "publish revocation list", err)
		}
	}
	c := next
	r.current = &c
	r.cid = id
	log.Info().Str("issuer", next.Issuer).Uint64("version", next.Version).Int("entries", len(next.Entries)).Msg("revocation list applied")
	return nil
}

// Revoke appends entries to the current list, signs the successor and
// applies it atomically with respect to other Revoke and Apply calls.
func (r *Registry) Revoke(ctx context.Context, signer keys.Signer, verificationMethod string, entries ...Entry) (List, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issuer := r.Issuer
	if issuer == "" && r.current != nil {
		issuer = r.current.Issuer
	}
	now := r.now()
	next, err := newListAt(issuer, entries, r.current, now)
	if err != nil {
		return List{}, err
	}
	next, err = signAt(next, signer, verificationMethod, now)
	if err != nil {
		return List{}, err
	}
	if err := r.applyLocked(ctx, next); err != nil {
		return List{}, err
	}
	return next, nil
}

// Load fetches a published list by CID and applies it.
func (r *Registry) Load(ctx context.Context, id cid.Cid) error {
	if r.CAS == nil {
		return errs.New(errs.Storage, "REV-LOAD-001", "registry has no CAS")
	}
	var l List
	if err := storage.GetDocument(ctx, r.CAS, id, &l); err != nil {
		return errs.Wrap(errs.Storage, "REV-LOAD-002", "load revocation list "+id.String(), err)
	}
	return r.Apply(ctx, l)
}
