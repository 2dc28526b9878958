package cache

import (
	"time"

	"github.com/IvanBrykalov/lazycache/logger"
	"github.com/IvanBrykalov/lazycache/metrics"
	"github.com/IvanBrykalov/lazycache/store"
)

// DefaultCacheDuration is the absolute lifetime given to entries cached
// without explicit options.
const DefaultCacheDuration = 20 * time.Minute

// Options configures the cache. Zero values are safe; defaults are applied
// in New():
//   - DefaultTTL == 0 => DefaultCacheDuration; < 0 => no default expiry
//   - KeyLocks <= 0   => max(NumCPU*8, 32)
//   - nil Metrics     => metrics.Noop
//   - nil Logf        => discard
//   - nil Clock       => store.SystemClock
type Options struct {
	// DefaultTTL is the relative absolute-expiration applied when an
	// operation is called with nil *store.EntryOptions.
	DefaultTTL time.Duration

	// KeyLocks is the size of the key-lock table. Distinct keys that share
	// a lock serialize their publish step, so size it to the expected
	// number of concurrently missing keys.
	KeyLocks int

	Metrics metrics.Metrics

	// Logf receives factory failures and type-mismatch recoveries.
	Logf logger.Logf

	// Clock is used to resolve relative expirations (tests).
	Clock store.Clock
}

// entryOptions returns opts, or the default options when opts is nil.
func (c *Cache) entryOptions(opts *store.EntryOptions) *store.EntryOptions {
	if opts != nil || c.opt.DefaultTTL < 0 {
		return opts
	}
	return &store.EntryOptions{AbsoluteExpirationRelativeToNow: c.opt.DefaultTTL}
}
