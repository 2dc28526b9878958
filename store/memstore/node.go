package memstore

import "github.com/IvanBrykalov/lazycache/store"

// node is an intrusive doubly linked list element owned by a shard.
type node struct {
	key   string
	entry *store.Entry

	// head is MRU, tail is LRU.
	prev *node
	next *node

	// size is the entry weight accounted when the node was linked, so that
	// a factory changing Entry.Size later cannot skew shard totals.
	size int64
}

// Key implements policy.Node.
func (n *node) Key() string { return n.key }
