package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/forge/pkg/ports"
)

// Store implements ports.KVStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// InsertIfAbsent stores a copy of value unless key is already present.
func (s *Store) InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = bytes.Clone(value)
	return true, nil
}

// CompareAndSwap replaces the value when it still equals prev.
func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[key]
	if !ok || !bytes.Equal(cur, prev) {
		return false, nil
	}
	s.data[key] = bytes.Clone(next)
	return true, nil
}

// Get returns a copy so callers can't mutate store state.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// Scan collects matching keys, sorts them and applies the bounds.
func (s *Store) Scan(ctx context.Context, prefix string, opts ports.ScanOptions) ([]ports.KV, error) {
	s.mu.RLock()
	keys := make([]string, 0)
	for k := range s.data {
		if strings.HasPrefix(k, prefix) && opts.InRange(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if opts.Reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	out := make([]ports.KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, ports.KV{Key: k, Value: bytes.Clone(s.data[k])})
	}
	s.mu.RUnlock()
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
