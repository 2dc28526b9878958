// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// HashKey hashes a cache key with 64-bit xxHash.
// Both the key-lock table and memstore shard selection use it, so a key
// always lands on the same bucket index for a given table size.
func HashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// BucketIndex maps key onto one of n buckets (n > 0).
// Power-of-two n takes the mask path in ShardIndex; other sizes use modulo.
func BucketIndex(key string, n int) int {
	return ShardIndex(HashKey(key), n)
}
