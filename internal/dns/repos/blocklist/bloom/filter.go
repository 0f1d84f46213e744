// Package bloom provides the blocklist's Bloom prefilter on top of
// bits-and-blooms. A negative answer lets the repository skip the store.
package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-relay/internal/dns/repos/blocklist"
)

// filter wraps bits-and-blooms BloomFilter. Add is serialized; MightContain
// takes the read lock so lookups may run alongside a late Add.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

// factory implements blocklist.BloomFactory with the sizing formulas in
// sizer.go.
type factory struct {
	sizer sizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() blocklist.BloomFactory { return factory{} }

func (f factory) New(capacity uint64, fpRate float64) blocklist.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

var _ blocklist.BloomFilter = (*filter)(nil)
