// Package keylock implements a fixed-size table of binary locks that
// approximates per-key mutual exclusion.
//
// A key maps to bucket HashKey(key) mod N. Distinct keys that share a bucket
// serialize incidentally; there is no fairness or starvation bound. Callers
// are expected to hold a bucket only for short critical sections (publishing
// a placeholder), never across user code.
package keylock

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/lazycache/internal/util"
)

// Table is a fixed array of binary locks indexed by key hash.
// The zero value is not usable; construct with New.
type Table struct {
	buckets []*semaphore.Weighted
}

// New returns a table with n buckets. n <= 0 selects
// util.DefaultKeyLockCount().
func New(n int) *Table {
	if n <= 0 {
		n = util.DefaultKeyLockCount()
	}
	t := &Table{buckets: make([]*semaphore.Weighted, n)}
	for i := range t.buckets {
		t.buckets[i] = semaphore.NewWeighted(1)
	}
	return t
}

// Len returns the number of buckets.
func (t *Table) Len() int { return len(t.buckets) }

// Index returns the bucket index used for key.
func (t *Table) Index(key string) int { return util.BucketIndex(key, len(t.buckets)) }

// Lock acquires the bucket for key, yielding the processor between
// attempts instead of parking the goroutine.
func (t *Table) Lock(key string) {
	for !t.TryLock(key) {
		runtime.Gosched()
	}
}

// LockContext acquires the bucket for key, parking until it is free or ctx
// is done. On error the bucket is not held.
func (t *Table) LockContext(ctx context.Context, key string) error {
	return t.buckets[t.Index(key)].Acquire(ctx, 1)
}

// TryLock acquires the bucket for key if it is free.
func (t *Table) TryLock(key string) bool {
	return t.buckets[t.Index(key)].TryAcquire(1)
}

// Unlock releases the bucket for key. Unlocking a bucket that is not held
// panics (semaphore release beyond its size).
func (t *Table) Unlock(key string) {
	t.buckets[t.Index(key)].Release(1)
}
