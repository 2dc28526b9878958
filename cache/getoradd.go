package cache

import (
	"context"
	"errors"
	"reflect"

	"github.com/IvanBrykalov/lazycache/internal/deferred"
	"github.com/IvanBrykalov/lazycache/store"
)

// maxAttempts bounds type-mismatch recovery: the first attempt may find a
// value cached for another type, the second runs after evicting it.
const maxAttempts = 2

// GetOrAdd returns the T cached under key, computing it with factory on a
// miss. Concurrent callers for the same key share one factory run and see
// the same value or the same error.
//
// factory receives the entry being created and may adjust its expiration
// and callbacks. nil opts applies the default expiration. A factory error
// (or panic, as *deferred.PanicError) is returned unchanged and never
// cached. A value cached for a type other than T is replaced.
//
// An Async placeholder published by GetOrAddAsync is awaited.
func GetOrAdd[T any](c *Cache, key string, factory func(e *store.Entry) (T, error), opts *store.EntryOptions) (T, error) {
	var zero T
	if err := validateKey(key); err != nil {
		return zero, err
	}
	if factory == nil {
		return zero, nilArgument("factory")
	}
	opts = c.entryOptions(opts)
	ctx := context.Background()

	build := func(e *store.Entry) *slot {
		return placeholder(c, deferred.Blocking, e, func(context.Context) (T, error) {
			return factory(e)
		})
	}
	for range maxAttempts {
		c.locks.Lock(key)
		raw := c.publish(key, opts, build)
		c.locks.Unlock(key)

		s := asSlot(raw)
		v, ok, err := unwrap[T](ctx, s)
		if !ok {
			c.heal(key, raw, reflect.TypeFor[T]())
			continue
		}
		if err != nil {
			c.dropFailed(key, s, err)
			return zero, err
		}
		return v, nil
	}
	return uncached(ctx, c, key, func(context.Context) (T, error) {
		return factory(store.NewEntry(key))
	})
}

// GetOrAddAsync is GetOrAdd for context-aware factories. The factory runs on
// its own goroutine with a context that keeps ctx's values but not its
// cancellation; a caller whose ctx ends stops waiting and gets ctx.Err()
// while the computation continues for everyone else. A factory returning a
// context error settles the key as canceled: it is evicted and the error
// returned.
//
// A Blocking placeholder published by GetOrAdd is awaited. If this caller
// happens to be the first to force it, the blocking factory runs on a
// separate goroutine when ctx can be canceled, so ctx still bounds the wait.
func GetOrAddAsync[T any](ctx context.Context, c *Cache, key string, factory func(ctx context.Context, e *store.Entry) (T, error), opts *store.EntryOptions) (T, error) {
	var zero T
	if err := validateKey(key); err != nil {
		return zero, err
	}
	if factory == nil {
		return zero, nilArgument("factory")
	}
	opts = c.entryOptions(opts)

	build := func(e *store.Entry) *slot {
		return placeholder(c, deferred.Async, e, func(ctx context.Context) (T, error) {
			return factory(ctx, e)
		})
	}
	for range maxAttempts {
		if err := c.locks.LockContext(ctx, key); err != nil {
			return zero, err
		}
		raw := c.publish(key, opts, build)
		c.locks.Unlock(key)

		s := asSlot(raw)
		v, ok, err := unwrap[T](ctx, s)
		if !ok {
			c.heal(key, raw, reflect.TypeFor[T]())
			continue
		}
		if err != nil {
			c.dropFailed(key, s, err)
			return zero, err
		}
		return v, nil
	}
	return uncached(ctx, c, key, func(ctx context.Context) (T, error) {
		return factory(ctx, store.NewEntry(key))
	})
}

// publish returns the value under key, storing a new placeholder from build
// if the key is absent. The store's own create-if-absent settles races the
// key lock does not cover.
func (c *Cache) publish(key string, opts *store.EntryOptions, build func(*store.Entry) *slot) any {
	raw, _ := c.adapter.GetOrCreate(key, opts, func(e *store.Entry) any {
		return build(e)
	})
	return raw
}

// uncached runs compute without storing the result. It is the last resort
// when a key keeps holding another type after being evicted.
func uncached[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	c.logf("cache: %q still holds another type, computing %v uncached", key, reflect.TypeFor[T]())
	return deferred.New(deferred.Blocking, compute).Force(ctx)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
