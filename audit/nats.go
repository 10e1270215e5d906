package audit

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"vey.dev/pidcore/errs"
)

// Publisher is the part of *nats.Conn the NATS sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards entries to "<prefix>.audit.<action>" and tracking
// events to "<prefix>.tracking.<type>". It does not chain entries; pair it
// with a chained sink through Tee.
type NATSPublisher struct {
	Conn Publisher
	// Prefix defaults to "vey".
	Prefix string
}

var (
	_ Sink         = (*NATSPublisher)(nil)
	_ TrackingSink = (*NATSPublisher)(nil)
)

func (p *NATSPublisher) subject(kind, leaf string) string {
	prefix := p.Prefix
	if prefix == "" {
		prefix = "vey"
	}
	return prefix + "." + kind + "." + subjectToken(leaf)
}

// subjectToken replaces characters NATS treats as separators or wildcards.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, s)
}

func (p *NATSPublisher) Append(_ context.Context, e Entry) (Entry, error) {
	if err := checkEntry(e); err != nil {
		return Entry{}, err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, errs.Wrap(errs.Internal, "AUD-NATS-001", "encode audit entry", err)
	}
	subj := p.subject("audit", e.Action)
	if err := p.Conn.Publish(subj, b); err != nil {
		return Entry{}, errs.Wrap(errs.Storage, "AUD-NATS-002", "publish "+subj, err)
	}
	return e, nil
}

func (p *NATSPublisher) AppendTracking(_ context.Context, ev TrackingEvent) error {
	if err := checkTracking(ev); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(errs.Internal, "AUD-NATS-003", "encode tracking event", err)
	}
	subj := p.subject("tracking", ev.Type)
	if err := p.Conn.Publish(subj, b); err != nil {
		return errs.Wrap(errs.Storage, "AUD-NATS-004", "publish "+subj, err)
	}
	return nil
}

// Tee writes to Primary and then copies the stored entry to every mirror.
// Only Primary failures are returned; mirror failures are logged.
type Tee struct {
	Primary Sink
	Mirrors []Sink
}

var (
	_ Sink         = (*Tee)(nil)
	_ TrackingSink = (*Tee)(nil)
)

func (t *Tee) Append(ctx context.Context, e Entry) (Entry, error) {
	stored, err := t.Primary.Append(ctx, e)
	if err != nil {
		return Entry{}, err
	}
	for _, m := range t.Mirrors {
		if _, err := m.Append(ctx, stored); err != nil {
			log.Warn().Err(err).Str("entry", stored.ID).Msg("audit mirror append failed")
		}
	}
	return stored, nil
}

// AppendTracking forwards to every sink that accepts tracking events. The
// primary's error, if any, is returned.
func (t *Tee) AppendTracking(ctx context.Context, ev TrackingEvent) error {
	if ts, ok := t.Primary.(TrackingSink); ok {
		if err := ts.AppendTracking(ctx, ev); err != nil {
			return err
		}
	}
	for _, m := range t.Mirrors {
		if ts, ok := m.(TrackingSink); ok {
			if err := ts.AppendTracking(ctx, ev); err != nil {
				log.Warn().Err(err).Str("event", ev.ID).Msg("tracking mirror append failed")
			}
		}
	}
	return nil
}
