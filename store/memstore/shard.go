package memstore

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/lazycache/internal/util"
	"github.com/IvanBrykalov/lazycache/policy"
	"github.com/IvanBrykalov/lazycache/store"
)

// shard is an independent partition of the store with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU).
type shard struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	m       map[string]*node
	head    *node
	tail    *node
	len     int
	size    int64
	cap     int   // 0 = unbounded
	maxSize int64 // 0 = disabled

	pol policy.ShardPolicy
	st  *Store

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// eviction is an entry removed under the lock whose notification is
// delivered after the lock is released.
type eviction struct {
	entry  *store.Entry
	reason store.EvictReason
}

func newShard(capacity int, maxSize int64, pol policy.Policy, st *Store) *shard {
	s := &shard{
		m:       make(map[string]*node),
		cap:     capacity,
		maxSize: maxSize,
		st:      st,
	}
	s.pol = pol.New(shardHooks{s: s})
	return s
}

// get returns the live value for key, evicting it first if it expired.
func (s *shard) get(key string, now time.Time) (any, bool) {
	var evs []eviction
	s.mu.Lock()
	v, ok := s.lookupLocked(key, now, &evs)
	s.mu.Unlock()
	s.notify(evs)
	return v, ok
}

// set inserts or replaces the entry under key.
func (s *shard) set(key string, e *store.Entry) {
	var evs []eviction
	s.mu.Lock()
	e.Bind(s.evictFunc(key, e))
	if n, ok := s.m[key]; ok {
		old := n.entry
		s.resize(n, e.Size())
		n.entry = e
		s.pol.OnUpdate(n)
		evs = append(evs, eviction{old, store.Replaced})
	} else {
		s.linkLocked(key, e, &evs)
	}
	s.enforceLimitsLocked(&evs)
	s.mu.Unlock()
	s.notify(evs)
}

// getOrCreate returns the live value under key or stores create's result.
// create runs under the shard lock, which makes creation atomic per key.
func (s *shard) getOrCreate(key string, create func(*store.Entry) any, now time.Time) (any, bool) {
	var evs []eviction
	s.mu.Lock()
	if v, ok := s.lookupLocked(key, now, &evs); ok {
		s.mu.Unlock()
		s.notify(evs)
		return v, false
	}

	e := store.NewEntry(key)
	v := create(e)
	e.SetValue(v)
	e.Bind(s.evictFunc(key, e))
	s.linkLocked(key, e, &evs)
	s.enforceLimitsLocked(&evs)
	s.mu.Unlock()
	s.notify(evs)
	return v, true
}

// remove evicts key. With match != nil the entry is evicted only if match
// accepts it.
func (s *shard) remove(key string, reason store.EvictReason, match func(*store.Entry) bool) bool {
	var evs []eviction
	s.mu.Lock()
	n, ok := s.m[key]
	if ok && (match == nil || match(n.entry)) {
		s.evictLocked(n, reason, &evs)
	} else {
		ok = false
	}
	s.mu.Unlock()
	s.notify(evs)
	return ok
}

// deleteExpired evicts every expired entry in the shard.
func (s *shard) deleteExpired(now time.Time) int {
	var evs []eviction
	s.mu.Lock()
	for _, n := range s.m {
		if dead, reason := n.entry.Expired(now); dead {
			s.evictLocked(n, reason, &evs)
		}
	}
	s.mu.Unlock()
	s.notify(evs)
	return len(evs)
}

func (s *shard) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}

func (s *shard) length() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// evictFunc is the native eviction path bound to e: it evicts key only
// while key still holds e, so a trigger from an old generation never
// removes a newer entry.
func (s *shard) evictFunc(key string, e *store.Entry) func(store.EvictReason) {
	return func(reason store.EvictReason) {
		s.remove(key, reason, func(cur *store.Entry) bool { return cur == e })
	}
}

// notify delivers evictions collected under the lock.
func (s *shard) notify(evs []eviction) {
	for _, ev := range evs {
		s.st.opt.Metrics.Evict(ev.reason.String())
		ev.entry.Evicted(ev.reason)
	}
}

// -------------------- internals (mu held) --------------------

func (s *shard) lookupLocked(key string, now time.Time, evs *[]eviction) (any, bool) {
	n, ok := s.m[key]
	if !ok {
		s.misses.Add(1)
		s.st.opt.Metrics.Miss()
		return nil, false
	}
	if dead, reason := n.entry.Expired(now); dead {
		s.evictLocked(n, reason, evs)
		s.misses.Add(1)
		s.st.opt.Metrics.Miss()
		return nil, false
	}
	n.entry.Touch(now)
	s.pol.OnGet(n)
	s.hits.Add(1)
	s.st.opt.Metrics.Hit()
	return n.entry.Value(), true
}

func (s *shard) linkLocked(key string, e *store.Entry, evs *[]eviction) {
	n := &node{key: key, entry: e, size: e.Size()}
	s.m[key] = n
	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictLocked(ev.(*node), store.Capacity, evs)
	}
}

func (s *shard) resize(n *node, size int64) {
	delta := size - n.size
	n.size = size
	s.size += delta
	s.st.size.Add(delta)
}

// insertFront inserts n at MRU in O(1).
func (s *shard) insertFront(n *node) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.size += n.size
	s.st.entries.Add(1)
	s.st.size.Add(n.size)
}

// moveToFront promotes n to MRU in O(1).
func (s *shard) moveToFront(n *node) {
	if n == s.head {
		return
	}
	s.unlink(n)
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *shard) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// removeNode removes n from the list and updates counters in O(1).
func (s *shard) removeNode(n *node) {
	s.unlink(n)
	s.len--
	s.size -= n.size
	if s.size < 0 {
		s.size = 0
	}
	s.st.entries.Add(-1)
	s.st.size.Add(-n.size)
}

// evictLocked unlinks n and queues its notification.
func (s *shard) evictLocked(n *node, reason store.EvictReason, evs *[]eviction) {
	if s.m[n.key] != n {
		return
	}
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	*evs = append(*evs, eviction{n.entry, reason})
}

// enforceLimitsLocked evicts from the LRU end until count and size limits hold.
func (s *shard) enforceLimitsLocked(evs *[]eviction) {
	for s.cap > 0 && s.len > s.cap && s.tail != nil {
		s.evictLocked(s.tail, store.Capacity, evs)
	}
	for s.maxSize > 0 && s.size > s.maxSize && s.tail != nil {
		s.evictLocked(s.tail, store.Capacity, evs)
	}
	s.st.reportSize()
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks struct{ s *shard }

func (h shardHooks) MoveToFront(x policy.Node) { h.s.moveToFront(x.(*node)) }
func (h shardHooks) PushFront(x policy.Node)   { h.s.insertFront(x.(*node)) }
func (h shardHooks) Remove(x policy.Node)      { h.s.removeNode(x.(*node)) }
func (h shardHooks) Back() policy.Node {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
func (h shardHooks) Len() int { return h.s.len }
