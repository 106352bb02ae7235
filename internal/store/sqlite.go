package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/health-intel/internal/cache"
)

// SQLite is a response cache backing on modernc.org/sqlite.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS provider_cache (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_provider_cache_expires_at ON provider_cache(expires_at);
`

// Migrate creates the cache table.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load returns a live entry or cache.ErrMiss. An entry is live up to and
// including its expiry instant.
func (s *SQLite) Load(ctx context.Context, key string) ([]byte, time.Time, error) {
	var data []byte
	var expiresNano int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM provider_cache WHERE key = ? AND expires_at >= ?`,
		key, s.now().UnixNano(),
	).Scan(&data, &expiresNano)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, cache.ErrMiss
	}
	if err != nil {
		return nil, time.Time{}, eris.Wrap(err, "sqlite: load cached response")
	}
	return data, time.Unix(0, expiresNano), nil
}

// Save upserts an entry.
func (s *SQLite) Save(ctx context.Context, key string, data []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_cache (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, s.now().UnixNano(), expiresAt.UnixNano(),
	)
	return eris.Wrap(err, "sqlite: save cached response")
}

// DeleteExpired removes expired entries and returns how many were dropped.
func (s *SQLite) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_cache WHERE expires_at < ?`, s.now().UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired responses")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}
