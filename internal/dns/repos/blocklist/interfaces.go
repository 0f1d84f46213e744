package blocklist

import "github.com/haukened/rr-relay/internal/dns/domain"

// BloomFilter is the minimal interface the repository needs from Bloom filters.
// Exact names are added as-is; suffix anchors are added reversed.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a filter sized for capacity keys at the target
// false-positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches block decisions by canonical name.
type DecisionCache interface {
	Get(name string) (domain.BlockDecision, bool)
	Put(name string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the persistent rule index.
//   - GetFirstMatch: exact rule for name, else the most specific suffix rule
//   - RebuildAll: replace every rule and the snapshot metadata atomically
type Store interface {
	GetFirstMatch(name string) (domain.BlockRule, bool, error)
	RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	Purge() error
	Stats() StoreStats
	Close() error
}

// Repository answers "is this name blacklisted" for the relay.
// Decide canonicalizes name itself and never fails: internal errors allow.
// UpdateAll replaces the rule set, rebuilds the Bloom filter and clears the
// decision cache.
type Repository interface {
	Decide(name string) domain.BlockDecision
	UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	Stats() RepoStats
	Close() error
}
