// Package store defines the contract between the memoizing cache and the
// keyed, TTL-capable store underneath it.
//
// A Backend is the store itself (memstore is the in-process one). The
// Adapter sits on top of any Backend and bridges the cache's expiration
// policy onto it: relative expiry is resolved to an absolute instant when an
// entry is committed, Immediate eviction is implemented with a timer-fired
// expiration trigger, and post-eviction callbacks receive values passed
// through the materialize hook the cache registers when it builds the
// Adapter.
package store

import "time"

// Backend is a keyed store of Entries. Implementations must be safe for
// concurrent use and must:
//   - Bind every stored Entry to their eviction path (Entry.Bind) so that
//     expiration triggers evict through it;
//   - treat entries whose Entry.Expired reports true as absent, evicting them;
//   - Touch entries on successful lookups (sliding expiration);
//   - call Entry.Evicted outside their own locks after removing an entry.
type Backend interface {
	// Get returns the raw value stored under key.
	Get(key string) (any, bool)
	// Set stores e under key, evicting any previous entry with Replaced.
	// e's value must be set before the call.
	Set(key string, e *Entry)
	// GetOrCreate returns the live value under key, or atomically creates
	// one: create is called with a fresh Entry and its result becomes the
	// entry value. created reports which happened.
	GetOrCreate(key string, create func(e *Entry) any) (v any, created bool)
	// Remove evicts key with Removed. It reports whether an entry existed.
	Remove(key string) bool
	// RemoveValue evicts key only while its raw value == v (v must be
	// comparable).
	RemoveValue(key string, v any) bool
	// Keys returns a snapshot of resident keys (possibly including expired
	// entries not yet swept).
	Keys() []string
	// Len returns the number of resident entries.
	Len() int
}

// Clock provides the current time; useful for deterministic tests.
type Clock interface{ Now() time.Time }

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
