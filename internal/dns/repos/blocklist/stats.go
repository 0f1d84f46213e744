package blocklist

// CacheStats reports lightweight cache metrics.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// StoreStats reports store counts and snapshot metadata.
type StoreStats struct {
	Version     uint64 // snapshot version (0 if unknown)
	UpdatedUnix int64  // last updated unix time (0 if unknown)
	ExactKeys   uint64 // number of exact keys
	SuffixKeys  uint64 // number of suffix keys
}

// RepoStats combines repository counters with cache and store stats.
type RepoStats struct {
	Rules   int // rules accepted by the last UpdateAll
	Dropped int // duplicates and rules over the entry limit skipped by the last UpdateAll
	Cache   CacheStats
	Store   StoreStats
}
