package store

import (
	"fmt"
	"time"
)

// EvictionMode selects when expired entries leave the store.
type EvictionMode uint8

const (
	// Lazy: expired entries are removed on the next access or sweep, so
	// post-eviction callbacks may fire late or not at all. No timers.
	Lazy EvictionMode = iota
	// Immediate: a timer evicts the entry as soon as it expires and
	// callbacks fire at that moment. Costs one timer per entry.
	Immediate
)

func (m EvictionMode) String() string {
	if m == Immediate {
		return "immediate"
	}
	return "lazy"
}

// EvictReason explains why an entry left the store.
type EvictReason uint8

const (
	// Removed: explicit removal.
	Removed EvictReason = iota + 1
	// Replaced: overwritten by Set.
	Replaced
	// Expired: absolute or sliding expiration passed.
	Expired
	// TokenExpired: an expiration trigger fired (Immediate mode uses one).
	TokenExpired
	// Capacity: trimmed to satisfy capacity or size limits.
	Capacity
)

// String returns a stable label value, suitable for metrics.
func (r EvictReason) String() string {
	switch r {
	case Removed:
		return "removed"
	case Replaced:
		return "replaced"
	case Expired:
		return "expired"
	case TokenExpired:
		return "token_expired"
	case Capacity:
		return "capacity"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// EvictionCallback observes an entry after it left the store.
// value is the materialized value, never an internal placeholder.
type EvictionCallback func(key string, value any, reason EvictReason, state any)

// CallbackRegistration pairs a callback with caller state.
type CallbackRegistration struct {
	Callback EvictionCallback
	State    any
}

// EntryOptions configures expiration and notifications for one entry.
// The zero value never expires and evicts lazily.
type EntryOptions struct {
	// AbsoluteExpiration is a fixed expiry instant (zero = none).
	AbsoluteExpiration time.Time
	// AbsoluteExpirationRelativeToNow is resolved against "now" when the
	// entry is committed. If AbsoluteExpiration is also set, the earlier wins.
	AbsoluteExpirationRelativeToNow time.Duration
	// SlidingExpiration expires the entry after this much idle time.
	SlidingExpiration time.Duration
	// EvictionMode selects lazy or timer-driven eviction.
	EvictionMode EvictionMode
	// PostEvictionCallbacks run in order after the entry is evicted.
	PostEvictionCallbacks []CallbackRegistration
	// Size is the entry's weight against a backend size limit (0 = none).
	Size int64
}

// RegisterPostEvictionCallback appends cb and returns o for chaining.
func (o *EntryOptions) RegisterPostEvictionCallback(cb EvictionCallback, state any) *EntryOptions {
	o.PostEvictionCallbacks = append(o.PostEvictionCallbacks, CallbackRegistration{Callback: cb, State: state})
	return o
}

// SetAbsoluteExpiration sets a fixed expiry instant and eviction mode.
func (o *EntryOptions) SetAbsoluteExpiration(at time.Time, mode EvictionMode) *EntryOptions {
	o.AbsoluteExpiration = at
	o.EvictionMode = mode
	return o
}

// SetAbsoluteExpirationIn sets a relative expiry and eviction mode.
func (o *EntryOptions) SetAbsoluteExpirationIn(d time.Duration, mode EvictionMode) *EntryOptions {
	o.AbsoluteExpirationRelativeToNow = d
	o.EvictionMode = mode
	return o
}

// ImmediateAbsoluteExpiration returns options that evict d from commit
// time with a timer, so callbacks fire on schedule.
func ImmediateAbsoluteExpiration(d time.Duration) *EntryOptions {
	return (&EntryOptions{}).SetAbsoluteExpirationIn(d, Immediate)
}

// ImmediateAbsoluteExpirationAt is ImmediateAbsoluteExpiration for a fixed instant.
func ImmediateAbsoluteExpirationAt(at time.Time) *EntryOptions {
	return (&EntryOptions{}).SetAbsoluteExpiration(at, Immediate)
}

// ResolveDeadline returns the absolute expiry instant implied by o at now:
// the earlier of AbsoluteExpiration and now+AbsoluteExpirationRelativeToNow.
// The zero time means no absolute expiry.
func (o EntryOptions) ResolveDeadline(now time.Time) time.Time {
	at := o.AbsoluteExpiration
	if o.AbsoluteExpirationRelativeToNow > 0 {
		rel := now.Add(o.AbsoluteExpirationRelativeToNow)
		if at.IsZero() || rel.Before(at) {
			at = rel
		}
	}
	return at
}

// merge copies the non-zero fields of src over o and appends src callbacks.
// Immediate mode is sticky: merging Lazy never downgrades it.
func (o *EntryOptions) merge(src EntryOptions) {
	if !src.AbsoluteExpiration.IsZero() {
		o.AbsoluteExpiration = src.AbsoluteExpiration
	}
	if src.AbsoluteExpirationRelativeToNow > 0 {
		o.AbsoluteExpirationRelativeToNow = src.AbsoluteExpirationRelativeToNow
	}
	if src.SlidingExpiration > 0 {
		o.SlidingExpiration = src.SlidingExpiration
	}
	if src.EvictionMode == Immediate {
		o.EvictionMode = Immediate
	}
	if src.Size > 0 {
		o.Size = src.Size
	}
	o.PostEvictionCallbacks = append(o.PostEvictionCallbacks, src.PostEvictionCallbacks...)
}
