package handshake

import (
	"context"
	"database/sql"
	"time"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/internal/sqlitedb"
)

const nonceSchema = `
CREATE TABLE IF NOT EXISTS used_nonces (
	nonce TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL,
	used_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_used_nonces_expiry ON used_nonces(expires_at);
`

// SQLiteNonceStore keeps consumed nonces across restarts. Times are stored
// as Unix milliseconds.
type SQLiteNonceStore struct {
	db  *sql.DB
	Now func() time.Time
}

var _ NonceStore = (*SQLiteNonceStore)(nil)

func OpenSQLiteNonceStore(path string) (*SQLiteNonceStore, error) {
	db, err := sqlitedb.Open(path, nonceSchema)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "HS-SQL-001", "open nonce store", err)
	}
	return &SQLiteNonceStore{db: db}, nil
}

func (s *SQLiteNonceStore) Close() error { return s.db.Close() }

func (s *SQLiteNonceStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Consume relies on the primary key: INSERT OR IGNORE affects one row only
// for the first caller.
func (s *SQLiteNonceStore) Consume(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO used_nonces (nonce, expires_at, used_at)
		VALUES (?, ?, ?)
	`, nonce, expiresAt.UnixMilli(), s.now().UnixMilli())
	if err != nil {
		return false, errs.Wrap(errs.Storage, "HS-SQL-002", "record nonce", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Wrap(errs.Storage, "HS-SQL-003", "record nonce", err)
	}
	return n == 1, nil
}

func (s *SQLiteNonceStore) Purge(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM used_nonces WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, errs.Wrap(errs.Storage, "HS-SQL-004", "purge nonces", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
