// Package badger implements ports.KVStore on an embedded BadgerDB.
//
// Badger transactions are serializable snapshot isolated, so insert-if-absent
// and compare-and-swap are a read followed by a write inside one update
// transaction. A transaction that loses a race fails with badger.ErrConflict
// and is retried, re-reading the current value.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/ports"
	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 128

// Config controls how the database is opened.
type Config struct {
	// Path is the data directory. Required unless InMemory is set.
	Path string

	InMemory   bool
	SyncWrites bool

	// Logger receives badger's internal logs. Nil silences them.
	Logger *slog.Logger

	// GCInterval enables periodic value log GC. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns settings for a durable on-disk store.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for an ephemeral store, used by tests.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store implements ports.KVStore.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open opens (or creates) a database with cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("open badger database: %w", err))
	}

	s := &Store{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory is a shortcut for Open(InMemoryConfig()).
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("badger value log GC error", "err", err)
			}
		}
	}
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= maxConflictRetries {
			return fmt.Errorf("transaction kept conflicting after %d attempts: %w", attempt, err)
		}
	}
}

// InsertIfAbsent writes value only when key is missing.
func (s *Store) InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	var inserted bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		inserted = false
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		inserted = true
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("badger insert %q: %w", key, err))
	}
	return inserted, nil
}

// CompareAndSwap replaces the value when it still equals prev.
func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	var swapped bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		swapped = false
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cur, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !bytes.Equal(cur, prev) {
			return nil
		}
		swapped = true
		return txn.Set([]byte(key), next)
	})
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("badger cas %q: %w", key, err))
	}
	return swapped, nil
}

// Get reads the value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ports.ErrKeyNotFound
	}
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("badger get %q: %w", key, err))
	}
	return val, nil
}

// Scan iterates keys under prefix within the bounds of opts.
func (s *Store) Scan(ctx context.Context, prefix string, opts ports.ScanOptions) ([]ports.KV, error) {
	out := make([]ports.KV, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Reverse = opts.Reverse
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Seek([]byte(seekKey(prefix, opts))); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			if opts.Reverse {
				if !strings.HasPrefix(key, prefix) {
					if key >= prefix {
						// Seek landed on the exclusive upper bound itself.
						continue
					}
					break
				}
				if opts.Before != "" && key >= opts.Before {
					continue
				}
				if opts.After != "" && key <= opts.After {
					break
				}
			} else {
				if !strings.HasPrefix(key, prefix) {
					break
				}
				if opts.After != "" && key <= opts.After {
					continue
				}
				if opts.Before != "" && key >= opts.Before {
					break
				}
			}

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, ports.KV{Key: key, Value: val})
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("badger scan %q: %w", prefix, err))
	}
	return out, nil
}

// seekKey picks the iterator start: the lower bound going forward, the
// upper bound going backwards (badger's reverse Seek lands on the largest
// key <= the seek key).
func seekKey(prefix string, opts ports.ScanOptions) string {
	if !opts.Reverse {
		if opts.After > prefix {
			return opts.After
		}
		return prefix
	}
	end := ports.PrefixEnd(prefix)
	if opts.Before != "" && (end == "" || opts.Before < end) {
		return opts.Before
	}
	if end == "" {
		return prefix + "\xff"
	}
	return end
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}
