package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/cidutil"
)

// PutDocument stores the canonical JSON encoding of v and returns its CID.
func PutDocument(ctx context.Context, cas CAS, v any) (cid.Cid, error) {
	if cas == nil {
		return cid.Undef, ErrNoBackends
	}
	b, err := canonical.Marshal(v)
	if err != nil {
		return cid.Undef, err
	}
	return cas.Put(ctx, b)
}

// GetDocument loads id, checks the bytes still hash to it, and decodes into v.
func GetDocument(ctx context.Context, cas CAS, id cid.Cid, v any) error {
	if cas == nil {
		return ErrNoBackends
	}
	b, err := cas.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := cidutil.Verify(id, b); err != nil {
		return fmt.Errorf("%w: %v", ErrCIDMismatch, err)
	}
	return json.Unmarshal(b, v)
}
