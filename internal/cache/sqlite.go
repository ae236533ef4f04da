package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/mdobak/go-xerrors"
	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps entries in a SQLite file so processes on one host share them.
type SQLiteBackend struct {
	db    *sql.DB
	clock clock.Clock
}

func OpenSQLite(path string, clk clock.Clock) (*SQLiteBackend, error) {
	if clk == nil {
		clk = clock.WallClock
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Newf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Newf("opening cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, clock: clk}
	if err := b.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
	`)
	if err != nil {
		return xerrors.Newf("initializing cache schema: %w", err)
	}

	if _, err := b.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, b.clock.Now().UnixNano()); err != nil {
		return xerrors.Newf("purging expired entries: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, b.clock.Now().UnixNano()).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, xerrors.New(err)
	}
	return value, true, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, value, b.clock.Now().Add(ttl).UnixNano())
	if err != nil {
		return xerrors.New(err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return xerrors.New(err)
	}
	return nil
}
