// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/lazycache/policy"

// lru keeps recency order only; the shard decides when to trim from Back.
type lru struct {
	h policy.Hooks
}

type lruPolicy struct{}

// New returns a Policy that constructs per-shard LRU instances.
func New() policy.Policy { return lruPolicy{} }

// New implements policy.Policy.
func (lruPolicy) New(h policy.Hooks) policy.ShardPolicy { return &lru{h: h} }

// OnAdd places the new entry at MRU and never proposes an eviction itself.
func (p *lru) OnAdd(n policy.Node) (evict policy.Node) {
	p.h.PushFront(n)
	return nil
}

// OnGet promotes the entry to MRU.
func (p *lru) OnGet(n policy.Node) { p.h.MoveToFront(n) }

// OnUpdate promotes the entry to MRU; a replaced entry counts as recent use.
func (p *lru) OnUpdate(n policy.Node) { p.h.MoveToFront(n) }

// OnRemove is a no-op.
func (p *lru) OnRemove(policy.Node) {}
