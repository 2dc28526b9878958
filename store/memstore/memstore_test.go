package memstore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/lazycache/policy/twoq"
	"github.com/IvanBrykalov/lazycache/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type evictLog struct {
	mu      sync.Mutex
	reasons map[string][]store.EvictReason
}

func (l *evictLog) callback(key string, _ any, r store.EvictReason, _ any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reasons == nil {
		l.reasons = make(map[string][]store.EvictReason)
	}
	l.reasons[key] = append(l.reasons[key], r)
}

func (l *evictLog) get(key string) []store.EvictReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]store.EvictReason(nil), l.reasons[key]...)
}

func entry(key string, v any, log *evictLog) *store.Entry {
	e := store.NewEntry(key)
	e.SetValue(v)
	if log != nil {
		e.RegisterPostEvictionCallback(log.callback, nil)
	}
	return e
}

func TestSetGetRemove(t *testing.T) {
	s := New(Options{Shards: 4})
	defer s.Close()
	var log evictLog

	s.Set("a", entry("a", 1, &log))
	v, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	s.Set("a", entry("a", 2, &log))
	require.Equal(t, []store.EvictReason{store.Replaced}, log.get("a"))
	v, _ = s.Get("a")
	require.Equal(t, 2, v)

	require.True(t, s.Remove("a"))
	require.False(t, s.Remove("a"))
	require.Equal(t, []store.EvictReason{store.Replaced, store.Removed}, log.get("a"))
	require.Equal(t, 0, s.Len())
	require.Equal(t, uint64(1), s.Evictions(), "replacement is not counted as an eviction")
}

func TestGetOrCreateOnce(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	var calls int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := s.GetOrCreate("k", func(*store.Entry) any {
				mu.Lock()
				calls++
				mu.Unlock()
				return "v"
			})
			require.Equal(t, "v", v)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, calls)
}

func TestRemoveValueGeneration(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	type box struct{ n int }
	first, second := &box{1}, &box{2}
	s.Set("k", entry("k", first, nil))
	s.Set("k", entry("k", second, nil))

	require.False(t, s.RemoveValue("k", first), "stale generation must not evict")
	require.True(t, s.RemoveValue("k", second))
	_, ok := s.Get("k")
	require.False(t, ok)
}

func TestLazyExpiration(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Clock: clk})
	defer s.Close()
	var log evictLog

	e := entry("k", "v", &log)
	e.SetAbsoluteExpirationRelativeToNow(time.Second)
	e.Commit(clk.Now())
	s.Set("k", e)

	clk.Advance(999 * time.Millisecond)
	_, ok := s.Get("k")
	require.True(t, ok)
	require.Empty(t, log.get("k"))

	clk.Advance(time.Millisecond)
	_, ok = s.Get("k")
	require.False(t, ok)
	require.Equal(t, []store.EvictReason{store.Expired}, log.get("k"))
}

func TestSlidingTouch(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Clock: clk})
	defer s.Close()

	e := entry("k", "v", nil)
	e.SetSlidingExpiration(time.Second)
	e.Commit(clk.Now())
	s.Set("k", e)

	for i := 0; i < 5; i++ {
		clk.Advance(900 * time.Millisecond)
		_, ok := s.Get("k")
		require.True(t, ok, "access %d", i)
	}
	clk.Advance(time.Second)
	_, ok := s.Get("k")
	require.False(t, ok)
}

func TestExpirationTriggerEvicts(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	var log evictLog

	ctx, cancel := context.WithCancel(context.Background())
	e := entry("k", "v", &log)
	e.AddExpirationTrigger(ctx)
	s.Set("k", e)

	cancel()
	require.Eventually(t, func() bool { return len(log.get("k")) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, store.TokenExpired, log.get("k")[0])
	require.Equal(t, 0, s.Len())
}

func TestStaleTriggerKeepsNewEntry(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	old := entry("k", "old", nil)
	old.AddExpirationTrigger(ctx)
	s.Set("k", old)
	s.Set("k", entry("k", "new", nil))

	cancel()
	time.Sleep(10 * time.Millisecond)
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, "new", v)
}

func TestCapacityLRU(t *testing.T) {
	s := New(Options{Capacity: 2, Shards: 1})
	defer s.Close()
	var log evictLog

	s.Set("a", entry("a", 1, &log))
	s.Set("b", entry("b", 2, &log))
	_, _ = s.Get("a") // a becomes MRU
	s.Set("c", entry("c", 3, &log))

	_, ok := s.Get("b")
	require.False(t, ok)
	require.Equal(t, []store.EvictReason{store.Capacity}, log.get("b"))
	require.Equal(t, 2, s.Len())
}

func TestMaxSize(t *testing.T) {
	s := New(Options{MaxSize: 10, Shards: 1})
	defer s.Close()

	for i := 0; i < 4; i++ {
		e := entry(strconv.Itoa(i), i, nil)
		e.SetSize(4)
		s.Set(strconv.Itoa(i), e)
	}
	require.Equal(t, 2, s.Len())
	_, ok := s.Get("0")
	require.False(t, ok)
}

func TestTwoQPolicy(t *testing.T) {
	s := New(Options{Shards: 1, Policy: twoq.New(1, 4)})
	defer s.Close()

	s.Set("hot", entry("hot", 1, nil))
	_, _ = s.Get("hot") // promoted out of probation
	s.Set("one", entry("one", 1, nil))
	s.Set("two", entry("two", 2, nil)) // probation overflow drops "one"

	_, ok := s.Get("one")
	require.False(t, ok)
	_, ok = s.Get("hot")
	require.True(t, ok)
	_, ok = s.Get("two")
	require.True(t, ok)
}

func TestDeleteExpiredAndSweep(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Clock: clk, CleanupInterval: 5 * time.Millisecond})
	defer s.Close()
	var log evictLog

	for i := 0; i < 10; i++ {
		k := strconv.Itoa(i)
		e := entry(k, i, &log)
		e.SetAbsoluteExpirationRelativeToNow(time.Minute)
		e.Commit(clk.Now())
		s.Set(k, e)
	}
	clk.Advance(time.Hour)
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, []store.EvictReason{store.Expired}, log.get("3"))
	require.Equal(t, 0, s.DeleteExpired())
}

func TestCloseIgnoresOperations(t *testing.T) {
	s := New(Options{CleanupInterval: time.Millisecond})
	s.Set("k", entry("k", 1, nil))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok := s.Get("k")
	require.False(t, ok)
	v, created := s.GetOrCreate("x", func(*store.Entry) any { return 7 })
	require.True(t, created)
	require.Equal(t, 7, v)
	require.Equal(t, 1, s.Len())
}

func TestStats(t *testing.T) {
	s := New(Options{})
	defer s.Close()
	s.Set("k", entry("k", 1, nil))
	_, _ = s.Get("k")
	_, _ = s.Get("missing")
	hits, misses := s.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}
