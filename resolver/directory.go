package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/storage"
)

// AddressDirectory returns the concrete address behind a PID. A missing PID
// is reported as an errs.Storage error with rule RES-DIR-404.
type AddressDirectory interface {
	Address(ctx context.Context, p string) (pid.Address, error)
}

func notFound(p string) error {
	return errs.New(errs.Storage, "RES-DIR-404", "no address for "+p)
}

func checkAddress(a pid.Address) error {
	if err := pid.Validate(a.PID); err != nil {
		return err
	}
	c, err := pid.Country(a.PID)
	if err != nil {
		return err
	}
	if a.Country != c {
		return errs.New(errs.InvalidPIDFormat, "RES-DIR-002", "address country "+a.Country+" does not match "+a.PID)
	}
	return nil
}

type MemoryDirectory struct {
	mu        sync.RWMutex
	addresses map[string]pid.Address
}

func NewMemoryDirectory(addrs ...pid.Address) (*MemoryDirectory, error) {
	d := &MemoryDirectory{addresses: make(map[string]pid.Address, len(addrs))}
	for _, a := range addrs {
		if err := d.Put(a); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *MemoryDirectory) Put(a pid.Address) error {
	if err := checkAddress(a); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addresses == nil {
		d.addresses = make(map[string]pid.Address)
	}
	d.addresses[a.PID] = a
	return nil
}

func (d *MemoryDirectory) Address(_ context.Context, p string) (pid.Address, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.addresses[p]
	if !ok {
		return pid.Address{}, notFound(p)
	}
	return a, nil
}

// CASDirectory keeps address documents in a content-addressed store and a
// PID to CID index in memory. Reads re-hash the stored bytes, so a backend
// that returns different bytes for a CID is reported as a mismatch.
type CASDirectory struct {
	CAS storage.CAS

	mu    sync.RWMutex
	index map[string]cid.Cid
}

// Put stores a and points its PID at the new document.
func (d *CASDirectory) Put(ctx context.Context, a pid.Address) (cid.Cid, error) {
	if err := checkAddress(a); err != nil {
		return cid.Undef, err
	}
	id, err := storage.PutDocument(ctx, d.CAS, a)
	if err != nil {
		return cid.Undef, errs.Wrap(errs.Storage, "RES-DIR-010", "store address", err)
	}
	d.Link(a.PID, id)
	return id, nil
}

// Link points p at an address document already in the store.
func (d *CASDirectory) Link(p string, id cid.Cid) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index == nil {
		d.index = make(map[string]cid.Cid)
	}
	d.index[p] = id
}

func (d *CASDirectory) Address(ctx context.Context, p string) (pid.Address, error) {
	d.mu.RLock()
	id, ok := d.index[p]
	d.mu.RUnlock()
	if !ok {
		return pid.Address{}, notFound(p)
	}
	var a pid.Address
	if err := storage.GetDocument(ctx, d.CAS, id, &a); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return pid.Address{}, notFound(p)
		}
		return pid.Address{}, errs.Wrap(errs.Storage, "RES-DIR-011", "hydrate address "+id.String(), err)
	}
	if a.PID != p {
		return pid.Address{}, errs.New(errs.Storage, "RES-DIR-012", "address document "+id.String()+" belongs to "+a.PID)
	}
	return a, nil
}
