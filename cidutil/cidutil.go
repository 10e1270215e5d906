// Package cidutil derives content identifiers for published documents.
//
// Every document the core publishes (credentials, revocation lists, waybills,
// audit entries) is addressed by a CIDv1 with the raw codec and a sha2-256
// multihash over its canonical bytes.
package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"vey.dev/pidcore/errs"
)

// Sum returns the CIDv1 (raw + sha2-256) derived from data.
func Sum(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, errs.Wrap(errs.Internal, "CID-SUM-001", "multihash sum", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// String is Sum rendered as text, or "" if hashing failed.
func String(data []byte) string {
	id, err := Sum(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Parse decodes a CID string and rejects undefined values.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, errs.Wrap(errs.Parse, "CID-PARSE-001", "invalid cid", err)
	}
	if !id.Defined() {
		return cid.Undef, errs.New(errs.Parse, "CID-PARSE-002", "undefined cid")
	}
	return id, nil
}

// Verify reports an error when data does not hash to id.
func Verify(id cid.Cid, data []byte) error {
	got, err := Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return errs.New(errs.Storage, "CID-VERIFY-001", "cid mismatch: got "+got.String()+" want "+id.String())
	}
	return nil
}
