// Package sqlite implements ports.KVStore and a usage log on SQLite, using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/ports"
	_ "modernc.org/sqlite"
)

// Store implements ports.KVStore on a single SQLite table.
// Compare-and-swap is an UPDATE guarded by the previous value, so the
// database serializes racing writers.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("failed to open database: %w", err))
	}
	// One connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between our own writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domain.Unavailable(fmt.Errorf("failed to apply %q: %w", pragma, err))
		}
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, domain.Unavailable(fmt.Errorf("failed to initialize database: %w", err))
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS usage (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			component_id TEXT NOT NULL,
			version_id   TEXT NOT NULL,
			success      INTEGER NOT NULL,
			latency_ms   INTEGER NOT NULL DEFAULT 0,
			recorded_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_version ON usage(component_id, version_id);
	`)
	return err
}

// InsertIfAbsent relies on the primary key to reject duplicates.
func (s *Store) InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO NOTHING`, key, nonNil(value))
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("sqlite insert %q: %w", key, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("sqlite insert %q: %w", key, err))
	}
	return n == 1, nil
}

// CompareAndSwap updates the row only while it still holds prev.
func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE kv SET v = ? WHERE k = ? AND v = ?`, nonNil(next), key, nonNil(prev))
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("sqlite cas %q: %w", key, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("sqlite cas %q: %w", key, err))
	}
	return n == 1, nil
}

// Get reads the value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrKeyNotFound
	}
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("sqlite get %q: %w", key, err))
	}
	return v, nil
}

// Scan runs an ordered range query over the primary key.
func (s *Store) Scan(ctx context.Context, prefix string, opts ports.ScanOptions) ([]ports.KV, error) {
	var (
		where = []string{"k >= ?"}
		args  = []any{prefix}
	)
	if end := ports.PrefixEnd(prefix); end != "" {
		where = append(where, "k < ?")
		args = append(args, end)
	}
	if opts.After != "" {
		where = append(where, "k > ?")
		args = append(args, opts.After)
	}
	if opts.Before != "" {
		where = append(where, "k < ?")
		args = append(args, opts.Before)
	}

	order := "ASC"
	if opts.Reverse {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT k, v FROM kv WHERE %s ORDER BY k %s`, strings.Join(where, " AND "), order)
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("sqlite scan %q: %w", prefix, err))
	}
	defer rows.Close()

	out := make([]ports.KV, 0)
	for rows.Next() {
		var kv ports.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, domain.Unavailable(fmt.Errorf("sqlite scan %q: %w", prefix, err))
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable(fmt.Errorf("sqlite scan %q: %w", prefix, err))
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nonNil keeps empty values distinct from SQL NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
