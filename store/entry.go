package store

import (
	"context"
	"sync"
	"time"
)

// Entry is a stored value together with its expiration state.
//
// Value factories receive the Entry being created and may configure it
// (expiration, callbacks, triggers) while they run. Because the entry is
// already resident at that point, every field is guarded by mu and the
// backend reads expiration state through methods only.
type Entry struct {
	key string

	mu         sync.Mutex
	value      any
	opts       EntryOptions
	deadline   time.Time // resolved absolute expiry (zero = none)
	lastAccess time.Time
	triggered  bool
	evicted    bool

	evict       func(EvictReason) // bound by the backend holding the entry
	materialize func(any) any     // supplied by the adapter
	stops       []func() bool     // context.AfterFunc stop functions
	cleanups    []func()
	timer       *evictionTimer
}

// NewEntry returns an empty entry for key.
func NewEntry(key string) *Entry {
	return &Entry{key: key}
}

// Key returns the entry key.
func (e *Entry) Key() string { return e.key }

// Value returns the raw stored value.
func (e *Entry) Value() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// SetValue sets the raw stored value. Backends call it before publishing.
func (e *Entry) SetValue(v any) {
	e.mu.Lock()
	e.value = v
	e.mu.Unlock()
}

// Options returns a copy of the entry options.
func (e *Entry) Options() EntryOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	o := e.opts
	o.PostEvictionCallbacks = append([]CallbackRegistration(nil), e.opts.PostEvictionCallbacks...)
	return o
}

// SetOptions merges o into the entry: non-zero fields override, callbacks
// are appended.
func (e *Entry) SetOptions(o EntryOptions) *Entry {
	e.mu.Lock()
	e.opts.merge(o)
	e.mu.Unlock()
	return e
}

// SetAbsoluteExpiration sets a fixed expiry instant.
func (e *Entry) SetAbsoluteExpiration(at time.Time) *Entry {
	e.mu.Lock()
	e.opts.AbsoluteExpiration = at
	e.mu.Unlock()
	return e
}

// SetAbsoluteExpirationRelativeToNow sets an expiry relative to commit time.
func (e *Entry) SetAbsoluteExpirationRelativeToNow(d time.Duration) *Entry {
	e.mu.Lock()
	e.opts.AbsoluteExpirationRelativeToNow = d
	e.mu.Unlock()
	return e
}

// SetSlidingExpiration sets the idle timeout.
func (e *Entry) SetSlidingExpiration(d time.Duration) *Entry {
	e.mu.Lock()
	e.opts.SlidingExpiration = d
	e.mu.Unlock()
	return e
}

// SetEvictionMode selects lazy or timer-driven eviction.
func (e *Entry) SetEvictionMode(m EvictionMode) *Entry {
	e.mu.Lock()
	e.opts.EvictionMode = m
	e.mu.Unlock()
	return e
}

// SetSize sets the entry weight.
func (e *Entry) SetSize(n int64) *Entry {
	e.mu.Lock()
	e.opts.Size = n
	e.mu.Unlock()
	return e
}

// RegisterPostEvictionCallback appends a callback.
func (e *Entry) RegisterPostEvictionCallback(cb EvictionCallback, state any) *Entry {
	e.mu.Lock()
	e.opts.RegisterPostEvictionCallback(cb, state)
	e.mu.Unlock()
	return e
}

// AddExpirationTrigger expires the entry when ctx is done. The backend
// holding the entry evicts it with reason TokenExpired.
func (e *Entry) AddExpirationTrigger(ctx context.Context) *Entry {
	stop := context.AfterFunc(ctx, e.fireTrigger)
	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		stop()
		return e
	}
	e.stops = append(e.stops, stop)
	e.mu.Unlock()
	return e
}

func (e *Entry) fireTrigger() {
	e.mu.Lock()
	e.triggered = true
	evict := e.evict
	e.mu.Unlock()
	if evict != nil {
		evict(TokenExpired)
	}
}

// Size returns the entry weight.
func (e *Entry) Size() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.Size
}

// Bind registers the backend's eviction path for this entry. A trigger that
// fires before Bind is still honoured: Expired reports it on next access.
func (e *Entry) Bind(evict func(EvictReason)) {
	e.mu.Lock()
	e.evict = evict
	e.mu.Unlock()
}

// Commit resolves the relative expiry against now and fixes the absolute
// deadline. The relative field is consumed, so committing again never
// extends an already resolved deadline.
func (e *Entry) Commit(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deadline = e.opts.ResolveDeadline(now)
	e.opts.AbsoluteExpiration = e.deadline
	e.opts.AbsoluteExpirationRelativeToNow = 0
	if e.lastAccess.IsZero() {
		e.lastAccess = now
	}
}

// Touch records an access for sliding expiration.
func (e *Entry) Touch(now time.Time) {
	e.mu.Lock()
	e.lastAccess = now
	e.mu.Unlock()
}

// Expired reports whether the entry is dead at now, and why.
func (e *Entry) Expired(now time.Time) (bool, EvictReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.triggered {
		return true, TokenExpired
	}
	if next, ok := e.expiresAtLocked(); ok && !now.Before(next) {
		return true, Expired
	}
	return false, 0
}

// ExpiresAt returns the earliest instant the entry expires given its last
// access. ok is false for entries without time-based expiry.
func (e *Entry) ExpiresAt() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expiresAtLocked()
}

func (e *Entry) expiresAtLocked() (time.Time, bool) {
	next := e.deadline
	if s := e.opts.SlidingExpiration; s > 0 && !e.lastAccess.IsZero() {
		idle := e.lastAccess.Add(s)
		if next.IsZero() || idle.Before(next) {
			next = idle
		}
	}
	return next, !next.IsZero()
}

// OnEvicted registers internal cleanup run before callbacks on eviction.
// If the entry is already evicted, fn runs immediately.
func (e *Entry) OnEvicted(fn func()) {
	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		fn()
		return
	}
	e.cleanups = append(e.cleanups, fn)
	e.mu.Unlock()
}

// Evicted finalizes the entry: releases triggers and timers, then invokes
// post-eviction callbacks with the materialized value. Only the first call
// has any effect. Backends call it after releasing their own locks.
// Callbacks that panic are not recovered.
func (e *Entry) Evicted(reason EvictReason) {
	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		return
	}
	e.evicted = true
	e.evict = nil
	stops, cleanups := e.stops, e.cleanups
	e.stops, e.cleanups = nil, nil
	callbacks := e.opts.PostEvictionCallbacks
	value, materialize := e.value, e.materialize
	e.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	for _, fn := range cleanups {
		fn()
	}
	if len(callbacks) == 0 {
		return
	}
	if materialize != nil {
		value = materialize(value)
	}
	for _, reg := range callbacks {
		reg.Callback(e.key, value, reason, reg.State)
	}
}

// IsEvicted reports whether Evicted has run.
func (e *Entry) IsEvicted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evicted
}
