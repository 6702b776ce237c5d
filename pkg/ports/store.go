package ports

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KVStore.Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// KV is one entry returned by a scan.
type KV struct {
	Key   string
	Value []byte
}

// ScanOptions bounds a prefix scan. After and Before are exclusive key bounds
// and apply in both directions. A zero Limit means no limit.
type ScanOptions struct {
	After   string
	Before  string
	Limit   int
	Reverse bool
}

// KVStore is the atomic key-value interface the version store is built on.
// Keys are compared bytewise; callers zero-pad numbers so that lexical and
// numeric order agree.
//
// Implementations must report infrastructure failures wrapped with
// domain.Unavailable, never as ErrKeyNotFound.
type KVStore interface {
	// InsertIfAbsent writes value only if key does not exist.
	// It reports whether the write happened.
	InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error)

	// CompareAndSwap replaces the value of key with next only if the current
	// value equals prev byte for byte. A missing key never matches.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)

	// Get returns the value stored at key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Scan returns entries whose key starts with prefix, in ascending key
	// order, or descending when opts.Reverse is set.
	Scan(ctx context.Context, prefix string, opts ScanOptions) ([]KV, error)

	// Close releases the underlying resources.
	Close() error
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or "" when no such key exists.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

// InRange reports whether key satisfies the exclusive bounds of opts.
func (o ScanOptions) InRange(key string) bool {
	if o.After != "" && key <= o.After {
		return false
	}
	if o.Before != "" && key >= o.Before {
		return false
	}
	return true
}
