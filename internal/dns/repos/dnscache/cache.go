// Package dnscache is the relay's record store: a trie keyed by reversed
// domain names whose nodes own chains of records, threaded through one
// cache-wide LRU list.
//
// Nodes and records live in two arenas and refer to each other by index, so
// eviction never leaves a dangling reference. A Cache is not safe for
// concurrent use; the relay loop is its only owner.
package dnscache

import (
	"errors"
	"fmt"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

var (
	ErrInvalidCapacity = errors.New("cache capacity must be at least 1")
	ErrInvalidDomain   = errors.New("domain contains characters outside [0-9a-z.-]")
	ErrInvalidTTL      = errors.New("ttl must be positive")
)

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int
	Capacity  int
	Nodes     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
}

// Cache is the trie plus LRU record store.
type Cache struct {
	nodes       []node
	freeNodes   []int32
	entries     []entry
	freeEntries []int32

	lruHead int32
	lruTail int32

	size     int
	capacity int
	clock    clock.Clock

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// New creates an empty cache holding at most capacity records.
func New(capacity int, clk clock.Clock) (*Cache, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	c := &Cache{capacity: capacity, clock: clk}
	c.reset()
	return c, nil
}

func (c *Cache) reset() {
	prealloc := c.capacity
	if prealloc > 4096 {
		prealloc = 4096
	}
	c.nodes = append(make([]node, 0, prealloc), newNode(nilIdx, -1))
	c.freeNodes = nil
	c.entries = make([]entry, 0, prealloc)
	c.freeEntries = nil
	c.lruHead, c.lruTail = nilIdx, nilIdx
	c.size = 0
}

// Update inserts a record for name, or refreshes the expiry and recency of an
// existing record with the same type and value. A new record arriving at a
// full cache first evicts the least recently used record, whatever domain it
// belongs to.
func (c *Cache) Update(name string, rrtype domain.RRType, value domain.RecordValue, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	rec, err := domain.NewRecord(name, rrtype, value, ttl, c.clock.Now())
	if err != nil {
		return err
	}
	if !validKey(rec.Domain) {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, rec.Domain)
	}

	if n, ok := c.findNode(rec.Domain); ok {
		for e := c.nodes[n].head; e != nilIdx; e = c.entries[e].chainNext {
			if c.entries[e].rec.Same(rec) {
				c.entries[e].rec.ExpiresAt = rec.ExpiresAt
				c.chainUnlink(e)
				c.chainAppend(e)
				c.touch(e)
				return nil
			}
		}
	}

	if c.size >= c.capacity {
		c.Eliminate()
	}
	// walk again: the eviction may have pruned part of the path
	c.link(rec, c.insertPath(rec.Domain))
	return nil
}

// Query resolves (name, rrtype) from the cache.
//
// A name is an alias when the first record of its chain is a CNAME.
// For a CNAME query the alias chain starting at name is returned. For any
// other type, aliases are followed (at most domain.MaxCNAMEDepth of them) and
// the result is the chain followed by every record of rrtype at the final
// name. A dead end, an over-long chain or a final name without records of
// rrtype are all misses. Served records become most recently used; their
// expiry is left alone.
func (c *Cache) Query(name string, rrtype domain.RRType) ([]domain.Record, bool) {
	now := c.clock.Now()
	cur := utils.CanonicalDNSName(name)

	var (
		out    []domain.Record
		served []int32
	)
	for {
		n, ok := c.liveNode(cur, now)
		if !ok {
			break
		}
		alias := c.nodes[n].head
		if c.entries[alias].rec.Type != domain.RRTypeCNAME {
			if rrtype == domain.RRTypeCNAME {
				break
			}
			matched := 0
			for e := c.nodes[n].head; e != nilIdx; e = c.entries[e].chainNext {
				if c.entries[e].rec.Type == rrtype {
					out = append(out, c.entries[e].rec)
					served = append(served, e)
					matched++
				}
			}
			if matched == 0 {
				return c.miss()
			}
			return c.hit(out, served)
		}
		if len(out) == domain.MaxCNAMEDepth {
			return c.miss()
		}
		out = append(out, c.entries[alias].rec)
		served = append(served, alias)
		cur = c.entries[alias].rec.Value.Target
	}

	if rrtype == domain.RRTypeCNAME && len(out) > 0 {
		return c.hit(out, served)
	}
	return c.miss()
}

func (c *Cache) hit(out []domain.Record, served []int32) ([]domain.Record, bool) {
	for _, e := range served {
		c.touch(e)
	}
	c.hits++
	return out, true
}

func (c *Cache) miss() ([]domain.Record, bool) {
	c.misses++
	return nil, false
}

// liveNode finds the node for name after dropping its expired records.
// It reports false when no unexpired record remains there.
func (c *Cache) liveNode(name string, now time.Time) (int32, bool) {
	n, ok := c.findNode(name)
	if !ok || c.nodes[n].head == nilIdx {
		return nilIdx, false
	}
	var stale []int32
	for e := c.nodes[n].head; e != nilIdx; e = c.entries[e].chainNext {
		if c.entries[e].rec.ExpiredAt(now) {
			stale = append(stale, e)
		}
	}
	if len(stale) == 0 {
		return n, true
	}
	for _, e := range stale {
		c.unlink(e)
		c.expired++
	}
	// the node itself may have been pruned
	n, ok = c.findNode(name)
	if !ok || c.nodes[n].head == nilIdx {
		return nilIdx, false
	}
	return n, true
}

// Eliminate evicts the least recently used record. It reports false when the
// cache is empty.
func (c *Cache) Eliminate() bool {
	if c.lruHead == nilIdx {
		return false
	}
	c.unlink(c.lruHead)
	c.evictions++
	return true
}

// Destroy drops every record and node. The cache stays usable and empty.
func (c *Cache) Destroy() {
	c.reset()
}

// Len returns the number of cached records.
func (c *Cache) Len() int { return c.size }

// Capacity returns the configured record limit.
func (c *Cache) Capacity() int { return c.capacity }

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:      c.size,
		Capacity:  c.capacity,
		Nodes:     c.liveNodes(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}
