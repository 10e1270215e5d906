// Package revocation maintains signed, versioned lists of revoked Place IDs.
//
// Lists are append-only: each list has version prev.version+1, carries every
// entry of its predecessor, and names the predecessor by CID. A PID that
// appears in the current list is REVOKED; that state is terminal.
package revocation

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/cidutil"
	"vey.dev/pidcore/credential"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
	"vey.dev/pidcore/pid"
)

// Well-known revocation reasons. Free text is also accepted.
const (
	ReasonAddressChange = "address_change"
	ReasonUserRequest   = "user_request"
	ReasonInvalid       = "invalid"
	ReasonExpired       = "expired"
)

type Entry struct {
	PID       string    `json:"pid"`
	Reason    string    `json:"reason"`
	NewPID    string    `json:"newPid,omitempty"`
	RevokedAt time.Time `json:"revokedAt"`
}

type List struct {
	ID         string            `json:"id"`
	Issuer     string            `json:"issuer"`
	Version    uint64            `json:"version"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Previous   string            `json:"previous,omitempty"`
	Entries    []Entry           `json:"entries"`
	MerkleRoot string            `json:"merkleRoot,omitempty"`
	Proof      *credential.Proof `json:"proof,omitempty"`
}

// key identifies an entry independently of time.Time's internal location.
func (e Entry) key() string {
	return e.PID + "\x00" + e.Reason + "\x00" + e.NewPID + "\x00" + e.RevokedAt.UTC().Format(time.RFC3339Nano)
}

// NewEntry revokes p now. newPID is the successor for address changes.
func NewEntry(p, reason, newPID string) (Entry, error) {
	return newEntryAt(p, reason, newPID, time.Now())
}

func newEntryAt(p, reason, newPID string, now time.Time) (Entry, error) {
	if err := pid.Validate(p); err != nil {
		return Entry{}, err
	}
	if reason == "" {
		return Entry{}, errs.New(errs.Parse, "REV-ENT-001", "revocation reason is required")
	}
	if newPID != "" {
		if err := pid.Validate(newPID); err != nil {
			return Entry{}, err
		}
		if newPID == p {
			return Entry{}, errs.New(errs.Parse, "REV-ENT-002", "newPid must differ from the revoked pid")
		}
	}
	return Entry{PID: p, Reason: reason, NewPID: newPID, RevokedAt: now.UTC().Truncate(time.Second)}, nil
}

// NewList builds the successor of prev (or the first list when prev is nil)
// containing every entry of prev followed by entries not already present.
func NewList(issuer string, entries []Entry, prev *List) (List, error) {
	return newListAt(issuer, entries, prev, time.Now())
}

func newListAt(issuer string, entries []Entry, prev *List, now time.Time) (List, error) {
	if issuer == "" {
		return List{}, errs.New(errs.Parse, "REV-LIST-001", "issuer is required")
	}
	l := List{
		ID:        "urn:uuid:" + uuid.NewString(),
		Issuer:    issuer,
		Version:   1,
		UpdatedAt: now.UTC().Truncate(time.Second),
	}
	seen := make(map[string]struct{})
	if prev != nil {
		if prev.Issuer != issuer {
			return List{}, errs.New(errs.RevocationListStale, "REV-SEQ-004", "issuer differs from previous list")
		}
		prevCID, err := CID(*prev)
		if err != nil {
			return List{}, err
		}
		l.Version = prev.Version + 1
		l.Previous = prevCID
		for _, e := range prev.Entries {
			l.Entries = append(l.Entries, e)
			seen[e.key()] = struct{}{}
		}
	}
	for _, e := range entries {
		if err := pid.Validate(e.PID); err != nil {
			return List{}, err
		}
		if _, dup := seen[e.key()]; dup {
			continue
		}
		seen[e.key()] = struct{}{}
		l.Entries = append(l.Entries, e)
	}
	if l.Entries == nil {
		l.Entries = []Entry{}
	}
	root, err := MerkleRoot(l.Entries)
	if err != nil {
		return List{}, err
	}
	l.MerkleRoot = root
	return l, nil
}

// IsRevoked reports whether p appears in list. A nil list revokes nothing.
func IsRevoked(p string, list *List) bool {
	if list == nil {
		return false
	}
	for _, e := range list.Entries {
		if e.PID == p {
			return true
		}
	}
	return false
}

// NewPID returns the successor recorded by the latest entry for p.
func NewPID(p string, list *List) (string, bool) {
	if list == nil {
		return "", false
	}
	var latest *Entry
	for i := range list.Entries {
		e := &list.Entries[i]
		if e.PID != p {
			continue
		}
		if latest == nil || !e.RevokedAt.Before(latest.RevokedAt) {
			latest = e
		}
	}
	if latest == nil || latest.NewPID == "" {
		return "", false
	}
	return latest.NewPID, true
}

// CID is the content identifier of the canonical list, proof included.
func CID(l List) (string, error) {
	b, err := canonical.Marshal(l)
	if err != nil {
		return "", err
	}
	id, err := cidutil.Sum(b)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Sign returns l with a fresh proof from signer. Ed25519 and Dilithium3
// signers are both accepted.
func Sign(l List, signer keys.Signer, verificationMethod string) (List, error) {
	return signAt(l, signer, verificationMethod, time.Now())
}

func signAt(l List, signer keys.Signer, verificationMethod string, now time.Time) (List, error) {
	l.Proof = nil
	proof, err := credential.SignDocument(l, signer, verificationMethod, now)
	if err != nil {
		return List{}, err
	}
	l.Proof = proof
	return l, nil
}

// Verify reports whether l is well formed and signed by pub.
func Verify(l List, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return VerifyWith(l, keys.Ed25519PublicKey(pub)) == nil
}

// VerifyWith checks the merkle root and the proof against pub.
func VerifyWith(l List, pub keys.PublicKey) error {
	if l.Issuer == "" || l.Version == 0 {
		return errs.New(errs.CredentialSignatureInvalid, "REV-STR-001", "list missing issuer or version")
	}
	root, err := MerkleRoot(l.Entries)
	if err != nil {
		return err
	}
	if l.MerkleRoot != root {
		return errs.New(errs.CredentialSignatureInvalid, "REV-MRK-001", "merkle root does not match entries")
	}
	return credential.VerifyDocument(l, l.Proof, pub)
}

// ValidateSuccessor enforces that next may replace prev as the current list.
//
// next must come from the same issuer, have version prev.version+1, name
// prev by CID when it names a predecessor at all, and contain every entry of
// prev.
func ValidateSuccessor(prev, next List) error {
	if next.Issuer != prev.Issuer {
		return errs.New(errs.RevocationListStale, "REV-SEQ-004", fmt.Sprintf("issuer mismatch old=%q new=%q", prev.Issuer, next.Issuer))
	}
	if next.Version <= prev.Version {
		return errs.New(errs.RevocationListStale, "REV-SEQ-001", fmt.Sprintf("version %d does not advance past %d", next.Version, prev.Version))
	}
	if next.Version != prev.Version+1 {
		return errs.New(errs.RevocationListStale, "REV-SEQ-002", fmt.Sprintf("version %d skips ahead of %d", next.Version, prev.Version))
	}
	if next.Previous != "" {
		prevCID, err := CID(prev)
		if err != nil {
			return err
		}
		if next.Previous != prevCID {
			return errs.New(errs.RevocationListStale, "REV-SEQ-005", fmt.Sprintf("previous=%q does not match old CID=%q", next.Previous, prevCID))
		}
	}
	have := make(map[string]struct{}, len(next.Entries))
	for _, e := range next.Entries {
		have[e.key()] = struct{}{}
	}
	for _, e := range prev.Entries {
		if _, ok := have[e.key()]; !ok {
			return errs.New(errs.RevocationListStale, "REV-SEQ-003", "entry for "+e.PID+" dropped from successor list")
		}
	}
	return nil
}
