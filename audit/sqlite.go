package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/internal/sqlitedb"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	pid TEXT NOT NULL,
	accessor TEXT NOT NULL,
	action TEXT NOT NULL,
	result TEXT NOT NULL CHECK(result IN ('success', 'denied', 'error')),
	metadata TEXT,
	ip_address TEXT,
	timestamp TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_pid ON audit_log(pid, seq);

CREATE TABLE IF NOT EXISTS tracking_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	tracking_number TEXT NOT NULL,
	type TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracking_number ON tracking_events(tracking_number, seq);
`

// SQLiteLog is a durable, hash-chained audit log.
type SQLiteLog struct {
	db *sql.DB
	mu sync.Mutex
}

var (
	_ Sink         = (*SQLiteLog)(nil)
	_ TrackingSink = (*SQLiteLog)(nil)
)

// OpenSQLite opens (or creates) the log at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteLog, error) {
	db, err := sqlitedb.Open(path, sqliteSchema)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "AUD-SQL-001", "open audit log", err)
	}
	return &SQLiteLog{db: db}, nil
}

func (s *SQLiteLog) Close() error { return s.db.Close() }

func (s *SQLiteLog) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := checkEntry(e); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, errs.Wrap(errs.Storage, "AUD-SQL-010", "begin", err)
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT entry_hash FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, errs.Wrap(errs.Storage, "AUD-SQL-011", "read chain head", err)
	}
	sealed, err := seal(e, prev)
	if err != nil {
		return Entry{}, err
	}
	var meta sql.NullString
	if len(sealed.Metadata) > 0 {
		b, err := json.Marshal(sealed.Metadata)
		if err != nil {
			return Entry{}, errs.Wrap(errs.Internal, "AUD-SQL-012", "encode metadata", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, pid, accessor, action, result, metadata, ip_address, timestamp, previous_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sealed.ID, sealed.PID, sealed.Accessor, sealed.Action, sealed.Result, meta, sealed.IPAddress,
		sealed.Timestamp.Format(time.RFC3339Nano), sealed.PreviousHash, sealed.EntryHash)
	if err != nil {
		return Entry{}, errs.Wrap(errs.Storage, "AUD-SQL-013", "insert audit entry", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, errs.Wrap(errs.Storage, "AUD-SQL-014", "commit", err)
	}
	return sealed, nil
}

// Entries returns the log oldest first. A non-empty pid filters by PID.
func (s *SQLiteLog) Entries(ctx context.Context, pid string) ([]Entry, error) {
	q := `SELECT id, pid, accessor, action, result, metadata, ip_address, timestamp, previous_hash, entry_hash FROM audit_log`
	var args []any
	if pid != "" {
		q += ` WHERE pid = ?`
		args = append(args, pid)
	}
	q += ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "AUD-SQL-020", "query audit log", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			meta, ip sql.NullString
			ts       string
		)
		if err := rows.Scan(&e.ID, &e.PID, &e.Accessor, &e.Action, &e.Result, &meta, &ip, &ts, &e.PreviousHash, &e.EntryHash); err != nil {
			return nil, errs.Wrap(errs.Storage, "AUD-SQL-021", "scan audit entry", err)
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, errs.Wrap(errs.Storage, "AUD-SQL-022", "decode metadata", err)
			}
		}
		e.IPAddress = ip.String
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, errs.Wrap(errs.Storage, "AUD-SQL-023", "decode timestamp", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Storage, "AUD-SQL-024", "iterate audit log", err)
	}
	return out, nil
}

// VerifyChain re-reads the whole log and checks its hash chain.
func (s *SQLiteLog) VerifyChain(ctx context.Context) error {
	entries, err := s.Entries(ctx, "")
	if err != nil {
		return err
	}
	return VerifyChain(entries)
}

func (s *SQLiteLog) AppendTracking(ctx context.Context, ev TrackingEvent) error {
	if err := checkTracking(ev); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(errs.Internal, "AUD-SQL-030", "encode tracking event", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracking_events (id, tracking_number, type, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, ev.TrackingNumber, ev.Type, ev.Timestamp.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return errs.Wrap(errs.Storage, "AUD-SQL-031", "insert tracking event", err)
	}
	return nil
}

// Tracking returns the events for one tracking number, oldest first.
func (s *SQLiteLog) Tracking(ctx context.Context, trackingNumber string) ([]TrackingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM tracking_events WHERE tracking_number = ? ORDER BY seq`, trackingNumber)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "AUD-SQL-032", "query tracking events", err)
	}
	defer rows.Close()
	var out []TrackingEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errs.Wrap(errs.Storage, "AUD-SQL-033", "scan tracking event", err)
		}
		var ev TrackingEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, errs.Wrap(errs.Storage, "AUD-SQL-034", "decode tracking event", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
