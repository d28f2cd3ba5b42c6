// Package urlkey computes the deterministic 64-bit fingerprint used as the
// cache key throughout the render cache (hot and cold tiers alike).
//
// The fingerprint need not be cryptographic; it must only be stable within a
// single process so that the same URL always lands in the same hot-map slot
// and cold-cache shard. xxhash is used because it is fast enough to be
// called on every cache lookup without showing up in profiles, and because it
// is already the hashing library of choice across the rest of the example
// corpus this engine was grown from.
package urlkey

import "github.com/cespare/xxhash/v2"

// Hash returns the 64-bit fingerprint of url. It is deterministic across
// calls within the same process but is not guaranteed to be stable across Go
// versions or process restarts (xxhash carries no such guarantee), and it is
// not collision-resistant: two distinct URLs may hash to the same
// fingerprint. The cache tiers accept this risk (see package coldcache and
// hotcache for how each tier mitigates or accepts it).
func Hash(url string) uint64 {
	return xxhash.Sum64String(url)
}
