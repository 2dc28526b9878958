// Package cache provides a memoizing, single-flight cache in front of any
// keyed, TTL-capable store.Backend.
//
// Design
//
//   - Single flight: GetOrAdd publishes a placeholder (a deferred computation)
//     under the key and forces it afterwards. Every caller that finds the
//     placeholder waits for the same run and receives the same value or the
//     same error. Failed or canceled runs are evicted, never cached.
//
//   - Key locks: publishing is guarded by a fixed table of bucket locks
//     selected by hashing the key. The lock covers only the publish step, so a
//     slow factory never blocks other keys sharing its bucket. The store's own
//     create-if-absent is the final arbiter.
//
//   - Typed slots: values are stored in an envelope tagged with the type they
//     were cached for. Get on another type is a miss; GetOrAdd on another type
//     evicts the key and computes again.
//
//   - Expiration: options are resolved when the value exists, so a factory may
//     set a relative expiration on the entry it receives. Lazy eviction waits
//     for the next access; Immediate eviction fires on a timer.
//
//   - Callbacks: post-eviction callbacks receive the computed value (or the
//     zero value if it never completed), never the internal placeholder.
//
// Basic usage
//
//	ms := memstore.New(memstore.Options{Capacity: 10_000})
//	c := cache.New(ms, cache.Options{})
//
//	user, err := cache.GetOrAdd(c, "user:42", func(e *store.Entry) (*User, error) {
//	    e.SetSlidingExpiration(5 * time.Minute)
//	    return db.LoadUser(42)
//	}, nil)
//
// Async factories
//
//	page, err := cache.GetOrAddAsync(ctx, c, "page:/", func(ctx context.Context, _ *store.Entry) ([]byte, error) {
//	    return fetch(ctx, "/")
//	}, store.ImmediateAbsoluteExpiration(time.Minute))
//
// Blocking and async placeholders interoperate: GetOrAdd waits for a value
// being computed by GetOrAddAsync and vice versa.
//
// A factory must not call GetOrAdd or GetOrAddAsync for its own key: it would
// wait on its own placeholder forever.
package cache
