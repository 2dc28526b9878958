// Package twoq implements the 2Q eviction policy for memstore shards.
//
// Memoized keys are often read once by a burst of concurrent callers and
// never again; 2Q keeps such one-shot keys in a probation queue (A1in) so
// they cannot push out keys that are read repeatedly.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/lazycache/policy"
)

// twoQ keeps first-time entries in A1in and everything else in Am, where Am
// ordering is the shard list itself. A1out remembers keys recently dropped
// from A1in so a quick re-admission skips probation.
//
// All methods are called under the shard lock.
type twoQ struct {
	h policy.Hooks

	capIn    int
	capGhost int

	// A1in: MRU at Front.
	probation *list.List
	inIdx     map[policy.Node]*list.Element

	// A1out: keys only, MRU at Front.
	ghosts   *list.List
	ghostIdx map[string]*list.Element
}

type twoQPolicy struct {
	capIn    int
	capGhost int
}

// New constructs a 2Q policy factory with per-shard queue sizes.
// Common choices: capIn ≈ 25% of shard capacity; capGhost ≈ 50–100%.
func New(capIn, capGhost int) policy.Policy {
	return twoQPolicy{capIn: max(capIn, 1), capGhost: max(capGhost, 1)}
}

func (p twoQPolicy) New(h policy.Hooks) policy.ShardPolicy {
	return &twoQ{
		h:         h,
		capIn:     p.capIn,
		capGhost:  p.capGhost,
		probation: list.New(),
		inIdx:     make(map[policy.Node]*list.Element),
		ghosts:    list.New(),
		ghostIdx:  make(map[string]*list.Element),
	}
}

// OnAdd admits a remembered ghost straight into Am; any other key enters
// A1in. When A1in overflows its LRU node is proposed for eviction.
func (q *twoQ) OnAdd(n policy.Node) (evict policy.Node) {
	q.h.PushFront(n)

	k := n.Key()
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghosts.Remove(ge)
		delete(q.ghostIdx, k)
		return nil
	}

	q.inIdx[n] = q.probation.PushFront(n)
	if q.probation.Len() > q.capIn {
		if tail := q.probation.Back(); tail != nil {
			return tail.Value.(policy.Node)
		}
	}
	return nil
}

// OnGet promotes an A1in node to Am and moves it to MRU.
func (q *twoQ) OnGet(n policy.Node) {
	if el, ok := q.inIdx[n]; ok {
		q.probation.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnUpdate follows OnGet.
func (q *twoQ) OnUpdate(n policy.Node) { q.OnGet(n) }

// OnRemove remembers keys leaving A1in as ghosts; Am removals are forgotten.
func (q *twoQ) OnRemove(n policy.Node) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.probation.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old := q.ghostIdx[k]; old != nil {
		q.ghosts.Remove(old)
	}
	q.ghostIdx[k] = q.ghosts.PushFront(k)

	for q.ghosts.Len() > q.capGhost {
		tail := q.ghosts.Back()
		delete(q.ghostIdx, tail.Value.(string))
		q.ghosts.Remove(tail)
	}
}
