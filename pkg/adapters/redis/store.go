package redis

import (
	"context"
	"fmt"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "forge:"

// insertScript sets the value and indexes the key in one atomic step.
// KEYS[1] value key, KEYS[2] index zset; ARGV[1] value, ARGV[2] logical key.
var insertScript = backend.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 1 then
	redis.call("ZADD", KEYS[2], 0, ARGV[2])
	return 1
end
return 0
`)

// casScript swaps the value only when it still equals ARGV[1].
var casScript = backend.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// Store implements ports.KVStore on Redis.
// Keys are mirrored into a lexicographic sorted set so prefix scans are
// served by ZRANGEBYLEX instead of SCAN.
type Store struct {
	client backend.UniversalClient
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the namespace for every key, including the index.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to the Redis server at address.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) indexKey() string { return s.prefix + "index" }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.Unavailable(fmt.Errorf("redis ping: %w", err))
	}
	return nil
}

// InsertIfAbsent writes value with SETNX and indexes the key.
func (s *Store) InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := insertScript.Run(ctx, s.client, []string{s.key(key), s.indexKey()}, value, key).Int()
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("redis insert %q: %w", key, err))
	}
	return n == 1, nil
}

// CompareAndSwap replaces the value when it still equals prev.
func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	n, err := casScript.Run(ctx, s.client, []string{s.key(key)}, prev, next).Int()
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("redis cas %q: %w", key, err))
	}
	return n == 1, nil
}

// Get reads the value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == backend.Nil {
		return nil, ports.ErrKeyNotFound
	}
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("redis get %q: %w", key, err))
	}
	return val, nil
}

// Scan resolves matching keys from the index and fetches their values.
func (s *Store) Scan(ctx context.Context, prefix string, opts ports.ScanOptions) ([]ports.KV, error) {
	rng := &backend.ZRangeBy{
		Min:   lexMin(prefix, opts.After),
		Max:   lexMax(prefix, opts.Before),
		Count: int64(opts.Limit),
	}

	var keys []string
	var err error
	if opts.Reverse {
		keys, err = s.client.ZRevRangeByLex(ctx, s.indexKey(), rng).Result()
	} else {
		keys, err = s.client.ZRangeByLex(ctx, s.indexKey(), rng).Result()
	}
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("redis scan %q: %w", prefix, err))
	}
	if len(keys) == 0 {
		return []ports.KV{}, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("redis mget: %w", err))
	}

	out := make([]ports.KV, 0, len(keys))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Indexed but missing value; the index is only ever appended to
			// after a successful SETNX, so this means an external delete.
			continue
		}
		out = append(out, ports.KV{Key: keys[i], Value: []byte(str)})
	}
	return out, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func lexMin(prefix, after string) string {
	if after != "" && after >= prefix {
		return "(" + after
	}
	return "[" + prefix
}

func lexMax(prefix, before string) string {
	end := ports.PrefixEnd(prefix)
	if before != "" && (end == "" || before < end) {
		return "(" + before
	}
	if end == "" {
		return "+"
	}
	return "(" + end
}
