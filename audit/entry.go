// Package audit records who accessed which PID, and shipment tracking events.
//
// Every resolution attempt produces exactly one Entry. Sinks that keep
// history chain entries by hash so that removal or edits are detectable.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"time"

	"github.com/google/uuid"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/errs"
)

const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultError   = "error"
)

type Entry struct {
	ID           string            `json:"id"`
	PID          string            `json:"pid"`
	Accessor     string            `json:"accessor"`
	Action       string            `json:"action"`
	Result       string            `json:"result"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IPAddress    string            `json:"ipAddress,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	PreviousHash string            `json:"previousHash,omitempty"`
	EntryHash    string            `json:"entryHash,omitempty"`
}

// NewEntry returns an unchained entry stamped now. metadata is copied.
func NewEntry(pid, accessor, action, result string, metadata map[string]string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		PID:       pid,
		Accessor:  accessor,
		Action:    action,
		Result:    result,
		Metadata:  maps.Clone(metadata),
		Timestamp: time.Now().UTC(),
	}
}

// detached returns e with its own copy of Metadata.
func (e Entry) detached() Entry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// Sink persists audit entries. Append returns the entry as stored, which may
// carry chain hashes the caller did not set.
type Sink interface {
	Append(ctx context.Context, e Entry) (Entry, error)
}

func checkEntry(e Entry) error {
	if e.ID == "" || e.Accessor == "" || e.Action == "" {
		return errs.New(errs.Parse, "AUD-ENT-001", "audit entry needs id, accessor and action")
	}
	switch e.Result {
	case ResultSuccess, ResultDenied, ResultError:
		return nil
	default:
		return errs.New(errs.Parse, "AUD-ENT-002", "unknown audit result "+e.Result)
	}
}

// seal links e to prevHash and computes its own hash.
func seal(e Entry, prevHash string) (Entry, error) {
	e.Timestamp = e.Timestamp.UTC()
	e.PreviousHash = prevHash
	e.EntryHash = ""
	h, err := hashEntry(e)
	if err != nil {
		return Entry{}, err
	}
	e.EntryHash = h
	return e, nil
}

func hashEntry(e Entry) (string, error) {
	b, err := canonical.Without(e, "entryHash")
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks that entries form an unbroken hash chain in order.
func VerifyChain(entries []Entry) error {
	prev := ""
	for _, e := range entries {
		if e.PreviousHash != prev {
			return errs.New(errs.Storage, "AUD-CHAIN-001", "chain broken before entry "+e.ID)
		}
		want, err := hashEntry(e)
		if err != nil {
			return err
		}
		if e.EntryHash != want {
			return errs.New(errs.Storage, "AUD-CHAIN-002", "entry "+e.ID+" was modified")
		}
		prev = e.EntryHash
	}
	return nil
}
