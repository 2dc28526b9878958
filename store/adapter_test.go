package store_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/lazycache/store"
	"github.com/IvanBrykalov/lazycache/store/memstore"
)

type recorder struct {
	mu   sync.Mutex
	keys []string
	vals []any
	why  []store.EvictReason
	at   []time.Time
}

func (r *recorder) callback(key string, v any, reason store.EvictReason, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.vals = append(r.vals, v)
	r.why = append(r.why, reason)
	r.at = append(r.at, time.Now())
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func newAdapter(t *testing.T, materialize func(any) any) *store.Adapter {
	t.Helper()
	ms := memstore.New(memstore.Options{})
	t.Cleanup(func() { _ = ms.Close() })
	return store.NewAdapter(ms, store.AdapterOptions{Materialize: materialize})
}

func TestAdapterSetGet(t *testing.T) {
	a := newAdapter(t, nil)
	a.Set("k", 42, nil)

	require.Equal(t, 42, a.Get("k"))
	v, ok := a.TryGetValue("k")
	require.True(t, ok)
	require.Equal(t, 42, v)
	require.Nil(t, a.Get("missing"))
	require.Equal(t, 1, a.Len())
	require.Equal(t, []string{"k"}, a.Keys())
}

func TestAdapterGetOrCreateResolvesRelative(t *testing.T) {
	a := newAdapter(t, nil)
	opts := &store.EntryOptions{AbsoluteExpiration: time.Now().Add(time.Hour)}

	var created *store.Entry
	before := time.Now()
	v, ok := a.GetOrCreate("k", opts, func(e *store.Entry) any {
		e.SetAbsoluteExpirationRelativeToNow(time.Minute)
		created = e
		return "v"
	})
	require.True(t, ok)
	require.Equal(t, "v", v)

	at, has := created.ExpiresAt()
	require.True(t, has)
	require.WithinDuration(t, before.Add(time.Minute), at, time.Second, "earlier deadline wins")
	require.Zero(t, created.Options().AbsoluteExpirationRelativeToNow)

	v, ok = a.GetOrCreate("k", nil, func(*store.Entry) any { return "other" })
	require.False(t, ok)
	require.Equal(t, "v", v)
}

func TestAdapterImmediateEviction(t *testing.T) {
	a := newAdapter(t, nil)
	var rec recorder

	opts := store.ImmediateAbsoluteExpiration(50 * time.Millisecond)
	opts.RegisterPostEvictionCallback(rec.callback, nil)
	start := time.Now()
	a.Set("k", "v", opts)

	// Nobody reads the key: the timer alone must evict it.
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, store.TokenExpired, rec.why[0])
	require.GreaterOrEqual(t, rec.at[0].Sub(start), 50*time.Millisecond)
	require.Equal(t, 0, a.Len())
}

func TestAdapterLazyHasNoTimer(t *testing.T) {
	a := newAdapter(t, nil)
	var rec recorder

	opts := &store.EntryOptions{AbsoluteExpirationRelativeToNow: 20 * time.Millisecond}
	opts.RegisterPostEvictionCallback(rec.callback, nil)
	a.Set("k", "v", opts)

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 0, rec.count(), "lazy expiry fires only on access")
	require.Nil(t, a.Get("k"))
	require.Equal(t, 1, rec.count())
	require.Equal(t, store.Expired, rec.why[0])
}

func TestAdapterImmediateRemoveStopsTimer(t *testing.T) {
	a := newAdapter(t, nil)
	var rec recorder

	opts := store.ImmediateAbsoluteExpiration(30 * time.Millisecond)
	opts.RegisterPostEvictionCallback(rec.callback, nil)
	a.Set("k", "v", opts)
	require.True(t, a.Remove("k"))

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 1, rec.count())
	require.Equal(t, store.Removed, rec.why[0])
}

func TestAdapterCommitAfterEvictionIsNoop(t *testing.T) {
	a := newAdapter(t, nil)

	var e *store.Entry
	a.GetOrCreate("k", nil, func(ent *store.Entry) any {
		e = ent
		return "v"
	})
	require.True(t, a.Remove("k"))
	require.True(t, e.IsEvicted())

	e.SetAbsoluteExpirationRelativeToNow(time.Minute)
	a.Commit(e)
	_, ok := e.ExpiresAt()
	require.False(t, ok, "evicted entry must not be committed")
}

func TestAdapterMaterialize(t *testing.T) {
	a := newAdapter(t, func(raw any) any { return strings.ToUpper(raw.(string)) })
	var rec recorder

	opts := &store.EntryOptions{}
	opts.RegisterPostEvictionCallback(rec.callback, nil)
	a.Set("k", "value", opts)
	a.Remove("k")
	require.Equal(t, []any{"VALUE"}, rec.vals)
}

func TestAdapterRemoveMatching(t *testing.T) {
	a := newAdapter(t, nil)
	for _, k := range []string{"user:1", "user:2", "order:1"} {
		a.Set(k, k, nil)
	}
	n := a.RemoveMatching(func(k string) bool { return strings.HasPrefix(k, "user:") })
	require.Equal(t, 2, n)
	require.Equal(t, []string{"order:1"}, a.Keys())
}

func TestNewAdapterNilBackend(t *testing.T) {
	require.Panics(t, func() { store.NewAdapter(nil, store.AdapterOptions{}) })
}
