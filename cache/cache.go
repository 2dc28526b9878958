package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/IvanBrykalov/lazycache/internal/deferred"
	"github.com/IvanBrykalov/lazycache/internal/keylock"
	"github.com/IvanBrykalov/lazycache/logger"
	"github.com/IvanBrykalov/lazycache/metrics"
	"github.com/IvanBrykalov/lazycache/store"
)

// Cache memoizes values in a store.Backend. All methods and the package
// level generic functions are safe for concurrent use.
type Cache struct {
	adapter *store.Adapter
	locks   *keylock.Table
	opt     Options
	logf    logger.Logf
}

// New returns a cache over backend. It panics if backend is nil.
func New(backend store.Backend, opt Options) *Cache {
	if backend == nil {
		panic("cache: nil Backend")
	}
	if opt.DefaultTTL == 0 {
		opt.DefaultTTL = DefaultCacheDuration
	}
	opt.Metrics = metrics.OrNoop(opt.Metrics)
	return &Cache{
		adapter: store.NewAdapter(backend, store.AdapterOptions{
			Materialize: materialize,
			Clock:       opt.Clock,
		}),
		locks: keylock.New(opt.KeyLocks),
		opt:   opt,
		logf:  logger.OrDiscard(opt.Logf),
	}
}

// Backend returns the underlying store.
func (c *Cache) Backend() store.Backend { return c.adapter.Backend() }

// Len returns the number of resident entries.
func (c *Cache) Len() int { return c.adapter.Len() }

// Keys returns a snapshot of resident keys.
func (c *Cache) Keys() []string { return c.adapter.Keys() }

// Remove evicts key. Post-eviction callbacks fire with reason store.Removed.
func (c *Cache) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	c.adapter.Remove(key)
	return nil
}

// RemoveMatching evicts every resident key accepted by match and returns the
// number of evicted entries.
func (c *Cache) RemoveMatching(match func(key string) bool) (int, error) {
	if match == nil {
		return 0, nilArgument("match")
	}
	return c.adapter.RemoveMatching(match), nil
}

// Add caches v under key, replacing whatever the key held. nil opts applies
// the default expiration. A nil v (nil pointer, map, slice, func, chan or
// interface) is rejected with ErrNilArgument.
func Add[T any](c *Cache, key string, v T, opts *store.EntryOptions) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if isNil(v) {
		return nilArgument("value")
	}
	c.adapter.Set(key, directSlot(v), c.entryOptions(opts))
	return nil
}

// Get returns the value cached under key, or the zero T when the key is
// absent or holds a value of another type. A pending placeholder is forced
// first; its error is returned and the key evicted.
func Get[T any](c *Cache, key string) (T, error) {
	v, _, err := TryGet[T](c, key)
	return v, err
}

// TryGet is Get that also reports whether a T was found.
func TryGet[T any](c *Cache, key string) (T, bool, error) {
	return lookup[T](context.Background(), c, key)
}

// GetAsync is Get for callers that must not wait past ctx. Giving up on ctx
// does not cancel a computation other callers share.
func GetAsync[T any](ctx context.Context, c *Cache, key string) (T, error) {
	v, _, err := lookup[T](ctx, c, key)
	return v, err
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	if err := validateKey(key); err != nil {
		return zero, false, err
	}
	raw, found := c.adapter.TryGetValue(key)
	if !found {
		return zero, false, nil
	}
	s := asSlot(raw)
	v, ok, err := unwrap[T](ctx, s)
	if !ok {
		// Another type: a miss for this caller. GetOrAdd heals the key.
		return zero, false, nil
	}
	if err != nil {
		c.dropFailed(key, s, err)
		return zero, false, err
	}
	return v, true, nil
}

// dropFailed evicts s if its placeholder failed. An error that only means
// the caller stopped waiting leaves the shared computation in place.
func (c *Cache) dropFailed(key string, s *slot, err error) {
	if !s.failed() {
		return
	}
	if c.adapter.RemoveValue(key, s) {
		c.logf("cache: evicted %q after failed factory: %v", key, err)
	}
}

// heal evicts a value cached under key for another type.
func (c *Cache) heal(key string, raw any, want reflect.Type) {
	if s := asSlot(raw); s != nil {
		c.adapter.RemoveValue(key, s)
		c.logf("cache: %q held %v, want %v; evicting", key, s.typ, want)
	} else {
		c.adapter.Remove(key)
		c.logf("cache: %q held foreign %T, want %v; evicting", key, raw, want)
	}
	c.opt.Metrics.Heal()
}

// placeholder builds the slot published by GetOrAdd*: a deferred run of
// compute that commits the entry's expiration once the value exists.
func placeholder[T any](c *Cache, mode deferred.Mode, e *store.Entry, compute func(context.Context) (T, error)) *slot {
	return lazySlot(deferred.New(mode, func(ctx context.Context) (T, error) {
		start := time.Now()
		outcome := metrics.Failed
		defer func() { c.opt.Metrics.Compute(outcome, time.Since(start)) }()

		v, err := compute(ctx)
		switch {
		case err == nil:
			c.adapter.Commit(e)
			outcome = metrics.Computed
		case isCanceled(err):
			outcome = metrics.Canceled
		}
		return v, err
	}))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
