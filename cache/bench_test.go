package cache

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/lazycache/store"
	"github.com/IvanBrykalov/lazycache/store/memstore"
)

func newBenchCache(b *testing.B) *Cache {
	ms := memstore.New(memstore.Options{Capacity: 100_000})
	b.Cleanup(func() { _ = ms.Close() })
	return New(ms, Options{})
}

// benchmarkGetOrAdd exercises GetOrAdd against a half-warm cache: hitPct of
// lookups target preloaded keys, the rest go to a keyspace that keeps
// missing as capacity churns.
// RunParallel spawns GOMAXPROCS goroutines.
func benchmarkGetOrAdd(b *testing.B, hitPct int) {
	c := newBenchCache(b)
	factory := func(*store.Entry) (string, error) { return "v", nil }

	for i := 0; i < 50_000; i++ {
		_, _ = GetOrAdd(c, "k:"+strconv.Itoa(i), factory, nil)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 15) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			var k string
			if r.Intn(100) < hitPct {
				k = "k:" + strconv.Itoa(i&keyMask)
			} else {
				k = "m:" + strconv.Itoa(r.Int())
			}
			_, _ = GetOrAdd(c, k, factory, nil)
			i++
		}
	})
}

func BenchmarkGetOrAdd_Hit90(b *testing.B) { benchmarkGetOrAdd(b, 90) }
func BenchmarkGetOrAdd_Hit50(b *testing.B) { benchmarkGetOrAdd(b, 50) }

// All workers hammer a single hot key; measures the hit path under
// contention on one shard and one key lock.
func BenchmarkGetOrAdd_HotKey(b *testing.B) {
	c := newBenchCache(b)
	factory := func(*store.Entry) (int, error) { return 1, nil }
	_, _ = GetOrAdd(c, "hot", factory, nil)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = GetOrAdd(c, "hot", factory, nil)
		}
	})
}

func BenchmarkGetOrAddAsync_Hit(b *testing.B) {
	c := newBenchCache(b)
	ctx := context.Background()
	factory := func(context.Context, *store.Entry) (int, error) { return 1, nil }
	for i := 0; i < 1024; i++ {
		_, _ = GetOrAddAsync(ctx, c, "k:"+strconv.Itoa(i), factory, nil)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = GetOrAddAsync(ctx, c, "k:"+strconv.Itoa(i&1023), factory, nil)
			i++
		}
	})
}

func BenchmarkGet(b *testing.B) {
	c := newBenchCache(b)
	for i := 0; i < 1024; i++ {
		_ = Add(c, "k:"+strconv.Itoa(i), i, nil)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = Get[int](c, "k:"+strconv.Itoa(i&1023))
			i++
		}
	})
}
