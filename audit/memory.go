package audit

import (
	"context"
	"sync"
)

// MemoryLog is an in-process, hash-chained audit log.
type MemoryLog struct {
	mu       sync.Mutex
	entries  []Entry
	tracking []TrackingEvent
}

var (
	_ Sink         = (*MemoryLog)(nil)
	_ TrackingSink = (*MemoryLog)(nil)
)

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (m *MemoryLog) Append(_ context.Context, e Entry) (Entry, error) {
	if err := checkEntry(e); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := ""
	if n := len(m.entries); n > 0 {
		prev = m.entries[n-1].EntryHash
	}
	sealed, err := seal(e, prev)
	if err != nil {
		return Entry{}, err
	}
	m.entries = append(m.entries, sealed.detached())
	return sealed, nil
}

// Entries returns a copy of the log, oldest first.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.detached()
	}
	return out
}

// ForPID returns the entries about one PID, oldest first.
func (m *MemoryLog) ForPID(pid string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.PID == pid {
			out = append(out, e.detached())
		}
	}
	return out
}

func (m *MemoryLog) VerifyChain() error {
	return VerifyChain(m.Entries())
}

func (m *MemoryLog) AppendTracking(_ context.Context, ev TrackingEvent) error {
	if err := checkTracking(ev); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking = append(m.tracking, ev)
	return nil
}

// Tracking returns the events for one tracking number, oldest first.
func (m *MemoryLog) Tracking(trackingNumber string) []TrackingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TrackingEvent
	for _, ev := range m.tracking {
		if ev.TrackingNumber == trackingNumber {
			out = append(out, ev)
		}
	}
	return out
}
