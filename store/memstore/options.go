package memstore

import (
	"time"

	"github.com/IvanBrykalov/lazycache/metrics"
	"github.com/IvanBrykalov/lazycache/policy"
	"github.com/IvanBrykalov/lazycache/store"
)

// Options configures the store. Zero values are safe; defaults are applied
// in New():
//   - Capacity <= 0 => unbounded entry count
//   - Shards <= 0   => auto (rounded up to power of two)
//   - nil Policy    => LRU
//   - nil Metrics   => metrics.Noop
//   - nil Clock     => store.SystemClock
type Options struct {
	// Capacity is the entry count limit (0 = unbounded). It is split evenly
	// across shards, so the effective limit is rounded up to a multiple of
	// the shard count.
	Capacity int

	// MaxSize limits the sum of EntryOptions.Size over resident entries
	// (0 = disabled). Split across shards like Capacity.
	MaxSize int64

	// Shards defines the number of shards. If 0, an automatic value is chosen
	// (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// Policy picks capacity eviction victims (LRU/2Q); nil => LRU.
	Policy policy.Policy

	// CleanupInterval runs a background sweep that evicts expired entries
	// even if nobody reads them (0 = lazy expiration only).
	CleanupInterval time.Duration

	Metrics metrics.Metrics

	// Clock overrides the time source (tests).
	Clock store.Clock
}
