// Package policy defines the contract between memstore shards and their
// capacity eviction policies.
package policy

// Node is the minimal view of a resident store entry that a policy needs.
// Nodes are compared by identity, so a policy may use them as map keys.
type Node interface {
	Key() string
}

// Hooks expose O(1) list operations that a policy can use to manipulate
// the shard's intrusive MRU/LRU list. Implementations are provided by the shard.
//
// Concurrency: all hook calls happen under the shard lock.
// Hooks manage only the list; the shard owns the key->node map.
type Hooks interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node)
	// PushFront inserts the node at MRU (used on admission).
	PushFront(Node)
	// Remove detaches the node from the list.
	Remove(Node)
	// Back returns the current LRU node (or nil if empty).
	Back() Node
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is a per-shard eviction policy instance bound to shard hooks.
// All methods are invoked under the shard lock.
//
//   - OnAdd may return an eviction candidate; the shard evicts it with
//     reason Capacity and then calls OnRemove for it.
//   - OnGet/OnUpdate typically promote the node.
//   - OnRemove updates policy-internal state; the shard performs deletion.
type ShardPolicy interface {
	OnAdd(Node) (evict Node)
	OnGet(Node)
	OnUpdate(Node)
	OnRemove(Node)
}

// Policy creates shard-local policy instances bound to a shard's hooks.
type Policy interface {
	New(Hooks) ShardPolicy
}
