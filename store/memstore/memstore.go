// Package memstore is a sharded in-process store.Backend.
//
// Keys are spread across power-of-two shards by xxhash; each shard keeps a
// map plus an intrusive list ordered by a pluggable policy (LRU or 2Q) that
// picks victims when Capacity or MaxSize is exceeded. Expiration is lazy
// (checked on access) unless CleanupInterval starts a background sweep.
// Eviction notifications are delivered after the shard lock is released.
package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/lazycache/internal/util"
	"github.com/IvanBrykalov/lazycache/metrics"
	"github.com/IvanBrykalov/lazycache/policy/lru"
	"github.com/IvanBrykalov/lazycache/store"
)

// Store is a sharded store.Backend. All methods are safe for concurrent use.
type Store struct {
	shards []*shard
	opt    Options
	closed atomic.Bool

	// totals across shards, for the size gauges
	entries atomic.Int64
	size    atomic.Int64

	stop      context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ store.Backend = (*Store)(nil)

// New constructs a store with the provided Options.
func New(opt Options) *Store {
	opt.Metrics = metrics.OrNoop(opt.Metrics)
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}
	if opt.Clock == nil {
		opt.Clock = store.SystemClock{}
	}
	if opt.Capacity < 0 {
		opt.Capacity = 0
	}
	if opt.MaxSize < 0 {
		opt.MaxSize = 0
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	s := &Store{opt: opt, shards: make([]*shard, sh)}
	perShardCap := 0
	if opt.Capacity > 0 {
		perShardCap = (opt.Capacity + sh - 1) / sh
	}
	var perShardSize int64
	if opt.MaxSize > 0 {
		perShardSize = (opt.MaxSize + int64(sh) - 1) / int64(sh)
	}
	for i := range s.shards {
		s.shards[i] = newShard(perShardCap, perShardSize, opt.Policy, s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	if opt.CleanupInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(ctx, opt.CleanupInterval)
	}
	return s
}

// Get returns the raw value for key, treating expired entries as absent.
func (s *Store) Get(key string) (any, bool) {
	if s.closed.Load() {
		return nil, false
	}
	return s.shardFor(key).get(key, s.opt.Clock.Now())
}

// Set stores e under key, replacing any previous entry.
func (s *Store) Set(key string, e *store.Entry) {
	if s.closed.Load() {
		return
	}
	s.shardFor(key).set(key, e)
}

// GetOrCreate returns the live value under key or stores create's result.
// After Close the created value is returned without being stored.
func (s *Store) GetOrCreate(key string, create func(*store.Entry) any) (any, bool) {
	if s.closed.Load() {
		return create(store.NewEntry(key)), true
	}
	return s.shardFor(key).getOrCreate(key, create, s.opt.Clock.Now())
}

// Remove evicts key.
func (s *Store) Remove(key string) bool {
	if s.closed.Load() {
		return false
	}
	return s.shardFor(key).remove(key, store.Removed, nil)
}

// RemoveValue evicts key only while it still holds v. v must be of a
// comparable type.
func (s *Store) RemoveValue(key string, v any) bool {
	if s.closed.Load() {
		return false
	}
	return s.shardFor(key).remove(key, store.Removed, func(e *store.Entry) bool {
		return e.Value() == v
	})
}

// Keys returns a snapshot of resident keys across all shards.
func (s *Store) Keys() []string {
	var out []string
	for _, sh := range s.shards {
		out = append(out, sh.keys()...)
	}
	return out
}

// Len returns the total number of resident entries across all shards.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.length()
	}
	return total
}

// DeleteExpired evicts every expired entry and returns how many it removed.
func (s *Store) DeleteExpired() int {
	now := s.opt.Clock.Now()
	n := 0
	for _, sh := range s.shards {
		n += sh.deleteExpired(now)
	}
	return n
}

// Stats returns aggregated hit and miss counters.
func (s *Store) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		hits += sh.hits.Load()
		misses += sh.misses.Load()
	}
	return hits, misses
}

// Evictions returns the number of entries evicted for any reason.
func (s *Store) Evictions() uint64 {
	var n uint64
	for _, sh := range s.shards {
		n += sh.evicts.Load()
	}
	return n
}

// Close stops the background sweep and marks the store closed. Later
// operations are ignored. Resident entries are not evicted.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.stop()
		s.wg.Wait()
	})
	return nil
}

func (s *Store) sweepLoop(ctx context.Context, every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.DeleteExpired()
		}
	}
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[util.ShardIndex(util.HashKey(key), len(s.shards))]
}

func (s *Store) reportSize() {
	s.opt.Metrics.Size(int(s.entries.Load()), s.size.Load())
}
