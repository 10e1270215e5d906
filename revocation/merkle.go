package revocation

import (
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/errs"
)

// Leaf and interior node hashes are prefixed so that neither can be
// presented as the other.
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

func prefixedSum(prefix byte, parts ...[]byte) (multihash.Multihash, error) {
	buf := []byte{prefix}
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return multihash.Sum(buf, multihash.SHA2_256, -1)
}

// MerkleRoot returns the base58 sha2-256 multihash at the root of a binary
// tree over the canonical entries, in list order. Leaves hash 0x00||entry and
// nodes hash 0x01||left||right. An odd node is carried up unchanged. An empty
// list has an empty root.
func MerkleRoot(entries []Entry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	level := make([]multihash.Multihash, 0, len(entries))
	for _, e := range entries {
		b, err := canonical.Marshal(e)
		if err != nil {
			return "", err
		}
		h, err := prefixedSum(leafPrefix, b)
		if err != nil {
			return "", errs.Wrap(errs.Internal, "REV-MRK-002", "hash leaf", err)
		}
		level = append(level, h)
	}
	for len(level) > 1 {
		next := make([]multihash.Multihash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			h, err := prefixedSum(nodePrefix, level[i], level[i+1])
			if err != nil {
				return "", errs.Wrap(errs.Internal, "REV-MRK-003", "hash node", err)
			}
			next = append(next, h)
		}
		level = next
	}
	return base58.Encode(level[0]), nil
}
