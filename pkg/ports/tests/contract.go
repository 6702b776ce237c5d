package tests

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/forge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVStoreContract verifies that a KVStore implementation honours the
// atomicity and ordering guarantees the version store relies on.
func RunKVStoreContract(t *testing.T, store ports.KVStore) {
	t.Helper()
	ctx := context.Background()
	ns := "contract-" + time.Now().Format("20060102150405.000000") + "/"

	t.Run("Get Missing", func(t *testing.T) {
		_, err := store.Get(ctx, ns+"missing")
		assert.ErrorIs(t, err, ports.ErrKeyNotFound)
	})

	t.Run("InsertIfAbsent", func(t *testing.T) {
		key := ns + "insert"
		ok, err := store.InsertIfAbsent(ctx, key, []byte("first"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.InsertIfAbsent(ctx, key, []byte("second"))
		require.NoError(t, err)
		assert.False(t, ok, "second insert must not overwrite")

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		key := ns + "cas"
		_, err := store.InsertIfAbsent(ctx, key, []byte("v1"))
		require.NoError(t, err)

		ok, err := store.CompareAndSwap(ctx, key, []byte("stale"), []byte("v2"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.CompareAndSwap(ctx, key, []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))

		ok, err = store.CompareAndSwap(ctx, ns+"cas-missing", []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		assert.False(t, ok, "a missing key never matches")
	})

	t.Run("Returned Values Are Copies", func(t *testing.T) {
		key := ns + "copy"
		_, err := store.InsertIfAbsent(ctx, key, []byte("abc"))
		require.NoError(t, err)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		got[0] = 'z'

		again, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})

	t.Run("Scan", func(t *testing.T) {
		prefix := ns + "scan/"
		for i := 1; i <= 5; i++ {
			_, err := store.InsertIfAbsent(ctx, fmt.Sprintf("%s%03d", prefix, i), []byte(fmt.Sprint(i)))
			require.NoError(t, err)
		}
		// Neighbours that share a textual prefix must not leak into the scan.
		_, err := store.InsertIfAbsent(ctx, ns+"scan", []byte("x"))
		require.NoError(t, err)
		_, err = store.InsertIfAbsent(ctx, ns+"scan0/001", []byte("x"))
		require.NoError(t, err)

		all, err := store.Scan(ctx, prefix, ports.ScanOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, values(all))

		rev, err := store.Scan(ctx, prefix, ports.ScanOptions{Reverse: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"5", "4"}, values(rev))

		before, err := store.Scan(ctx, prefix, ports.ScanOptions{Reverse: true, Before: prefix + "004", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "2"}, values(before))

		after, err := store.Scan(ctx, prefix, ports.ScanOptions{After: prefix + "002", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "4"}, values(after))

		window, err := store.Scan(ctx, prefix, ports.ScanOptions{After: prefix + "001", Before: prefix + "005"})
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3", "4"}, values(window))

		empty, err := store.Scan(ctx, ns+"nothing/", ports.ScanOptions{})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Concurrent InsertIfAbsent", func(t *testing.T) {
		key := ns + "race-insert"
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := store.InsertIfAbsent(ctx, key, []byte(fmt.Sprint(i)))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("Concurrent CompareAndSwap", func(t *testing.T) {
		key := ns + "race-cas"
		_, err := store.InsertIfAbsent(ctx, key, []byte("base"))
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := store.CompareAndSwap(ctx, key, []byte("base"), []byte(fmt.Sprint(i)))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

// UsageLog is the read and write side of a usage adapter.
type UsageLog interface {
	ports.UsageSource
	ports.UsageRecorder
}

// RunUsageLogContract verifies success-rate reporting with a minimum sample
// threshold of minSamples.
func RunUsageLogContract(t *testing.T, log UsageLog, minSamples int) {
	t.Helper()
	ctx := context.Background()
	comp := "component-" + time.Now().Format("150405.000000")

	t.Run("No Signal", func(t *testing.T) {
		_, ok, err := log.SuccessRate(ctx, comp, "unknown")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Below Threshold", func(t *testing.T) {
		for i := 0; i < minSamples-1; i++ {
			require.NoError(t, log.Record(ctx, ports.UsageRecord{ComponentID: comp, VersionID: "sparse", Success: true}))
		}
		_, ok, err := log.SuccessRate(ctx, comp, "sparse")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Rate", func(t *testing.T) {
		outcomes := []bool{true, true, true, false}
		for len(outcomes) < minSamples {
			outcomes = append(outcomes, true, true, true, false)
		}
		for _, success := range outcomes {
			require.NoError(t, log.Record(ctx, ports.UsageRecord{ComponentID: comp, VersionID: "busy", Success: success}))
		}
		rate, ok, err := log.SuccessRate(ctx, comp, "busy")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 0.75, rate, 1e-9)
	})
}

func values(kvs []ports.KV) []string {
	out := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, string(kv.Value))
	}
	return out
}
