package store

import (
	"context"
	"sync"
	"time"
)

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	// Materialize converts a raw stored value into the value handed to
	// post-eviction callbacks. Nil passes raw values through.
	Materialize func(raw any) any
	// Clock is the time source for commits. Nil => SystemClock.
	Clock Clock
}

// Adapter exposes a Backend through the operations the memoizing cache
// needs and translates EntryOptions into the backend's native primitives.
type Adapter struct {
	backend     Backend
	clock       Clock
	materialize func(any) any
}

// NewAdapter wraps b.
func NewAdapter(b Backend, opt AdapterOptions) *Adapter {
	if b == nil {
		panic("store: nil Backend")
	}
	if opt.Clock == nil {
		opt.Clock = SystemClock{}
	}
	return &Adapter{backend: b, clock: opt.Clock, materialize: opt.Materialize}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend { return a.backend }

// Set stores v under key with opts (nil = no expiry).
func (a *Adapter) Set(key string, v any, opts *EntryOptions) {
	e := a.newEntry(key, opts)
	e.SetValue(v)
	a.Commit(e)
	a.backend.Set(key, e)
}

// Get returns the raw value under key, or nil.
func (a *Adapter) Get(key string) any {
	v, _ := a.backend.Get(key)
	return v
}

// TryGetValue returns the raw value under key and whether it was present.
func (a *Adapter) TryGetValue(key string) (any, bool) {
	return a.backend.Get(key)
}

// GetOrCreate returns the live value under key or atomically creates it
// from create. opts seed the new entry before create runs; create may
// refine them, and the entry is committed once create returns.
func (a *Adapter) GetOrCreate(key string, opts *EntryOptions, create func(e *Entry) any) (any, bool) {
	return a.backend.GetOrCreate(key, func(e *Entry) any {
		a.prepare(e, opts)
		v := create(e)
		a.Commit(e)
		return v
	})
}

// Remove evicts key.
func (a *Adapter) Remove(key string) bool { return a.backend.Remove(key) }

// RemoveValue evicts key only while it still holds v.
func (a *Adapter) RemoveValue(key string, v any) bool { return a.backend.RemoveValue(key, v) }

// RemoveMatching evicts every resident key for which match returns true and
// returns how many entries it removed.
func (a *Adapter) RemoveMatching(match func(key string) bool) int {
	n := 0
	for _, k := range a.backend.Keys() {
		if match(k) && a.backend.Remove(k) {
			n++
		}
	}
	return n
}

// Keys returns a snapshot of resident keys.
func (a *Adapter) Keys() []string { return a.backend.Keys() }

// Len returns the number of resident entries.
func (a *Adapter) Len() int { return a.backend.Len() }

// Commit resolves e's relative expiry at the current time and, for
// Immediate mode, schedules (or reschedules) the eviction timer. It is safe
// to call more than once, e.g. after a value factory changed the options.
// Committing an evicted entry does nothing.
func (a *Adapter) Commit(e *Entry) {
	if e.IsEvicted() {
		return
	}
	now := a.clock.Now()
	e.Commit(now)

	e.mu.Lock()
	immediate := e.opts.EvictionMode == Immediate
	next, ok := e.expiresAtLocked()
	t := e.timer
	e.mu.Unlock()

	if !immediate || !ok {
		return
	}
	if t != nil {
		t.reschedule(next.Sub(now))
		return
	}
	a.armTimer(e, next.Sub(now))
}

func (a *Adapter) newEntry(key string, opts *EntryOptions) *Entry {
	e := NewEntry(key)
	a.prepare(e, opts)
	return e
}

func (a *Adapter) prepare(e *Entry, opts *EntryOptions) {
	if opts != nil {
		e.SetOptions(*opts)
	}
	e.mu.Lock()
	e.materialize = a.materialize
	e.mu.Unlock()
}

// armTimer attaches a cancellation signal to e as an expiration trigger and
// fires it once e is past its expiry. The signal and timer are released
// when the entry is evicted.
func (a *Adapter) armTimer(e *Entry, delay time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &evictionTimer{entry: e, clock: a.clock, cancel: cancel}

	e.mu.Lock()
	if e.timer != nil || e.evicted {
		e.mu.Unlock()
		cancel()
		return
	}
	e.timer = t
	e.mu.Unlock()

	e.AddExpirationTrigger(ctx)
	e.OnEvicted(t.stop)
	t.start(delay)
}

// evictionTimer drives Immediate eviction for one entry. When it fires
// early (a sliding access postponed expiry) it re-arms itself.
type evictionTimer struct {
	mu     sync.Mutex
	t      *time.Timer
	done   bool
	entry  *Entry
	clock  Clock
	cancel context.CancelFunc
}

func (x *evictionTimer) start(delay time.Duration) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.done {
		return
	}
	x.t = time.AfterFunc(max(delay, 0), x.fire)
}

func (x *evictionTimer) reschedule(delay time.Duration) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.done || x.t == nil {
		return
	}
	x.t.Reset(max(delay, 0))
}

func (x *evictionTimer) fire() {
	x.mu.Lock()
	if x.done {
		x.mu.Unlock()
		return
	}
	now := x.clock.Now()
	if next, ok := x.entry.ExpiresAt(); ok && next.After(now) {
		x.t.Reset(next.Sub(now))
		x.mu.Unlock()
		return
	}
	x.done = true
	x.mu.Unlock()
	x.cancel()
}

func (x *evictionTimer) stop() {
	x.mu.Lock()
	x.done = true
	if x.t != nil {
		x.t.Stop()
	}
	x.mu.Unlock()
	x.cancel()
}
