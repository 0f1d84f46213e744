package dnscache

import "github.com/haukened/rr-relay/internal/dns/domain"

// entry is one arena-owned record. It sits in two lists at once: the record
// chain of its trie node and the cache-wide LRU list.
type entry struct {
	rec       domain.Record
	node      int32
	chainPrev int32
	chainNext int32
	lruPrev   int32
	lruNext   int32
}

func (c *Cache) allocEntry(rec domain.Record, n int32) int32 {
	e := entry{rec: rec, node: n, chainPrev: nilIdx, chainNext: nilIdx, lruPrev: nilIdx, lruNext: nilIdx}
	if k := len(c.freeEntries); k > 0 {
		idx := c.freeEntries[k-1]
		c.freeEntries = c.freeEntries[:k-1]
		c.entries[idx] = e
		return idx
	}
	c.entries = append(c.entries, e)
	return int32(len(c.entries) - 1)
}

func (c *Cache) chainAppend(e int32) {
	n := &c.nodes[c.entries[e].node]
	c.entries[e].chainPrev = n.tail
	c.entries[e].chainNext = nilIdx
	if n.tail != nilIdx {
		c.entries[n.tail].chainNext = e
	} else {
		n.head = e
	}
	n.tail = e
}

func (c *Cache) chainUnlink(e int32) {
	en := &c.entries[e]
	n := &c.nodes[en.node]
	if en.chainPrev != nilIdx {
		c.entries[en.chainPrev].chainNext = en.chainNext
	} else {
		n.head = en.chainNext
	}
	if en.chainNext != nilIdx {
		c.entries[en.chainNext].chainPrev = en.chainPrev
	} else {
		n.tail = en.chainPrev
	}
	en.chainPrev, en.chainNext = nilIdx, nilIdx
}

func (c *Cache) lruAppend(e int32) {
	c.entries[e].lruPrev = c.lruTail
	c.entries[e].lruNext = nilIdx
	if c.lruTail != nilIdx {
		c.entries[c.lruTail].lruNext = e
	} else {
		c.lruHead = e
	}
	c.lruTail = e
}

func (c *Cache) lruUnlink(e int32) {
	en := &c.entries[e]
	if en.lruPrev != nilIdx {
		c.entries[en.lruPrev].lruNext = en.lruNext
	} else {
		c.lruHead = en.lruNext
	}
	if en.lruNext != nilIdx {
		c.entries[en.lruNext].lruPrev = en.lruPrev
	} else {
		c.lruTail = en.lruPrev
	}
	en.lruPrev, en.lruNext = nilIdx, nilIdx
}

// touch marks e as most recently used without changing its expiry.
func (c *Cache) touch(e int32) {
	if c.lruTail == e {
		return
	}
	c.lruUnlink(e)
	c.lruAppend(e)
}

// link inserts a new record at node n, at the tail of both lists.
func (c *Cache) link(rec domain.Record, n int32) {
	wasEmpty := c.nodes[n].head == nilIdx
	e := c.allocEntry(rec, n)
	c.chainAppend(e)
	c.lruAppend(e)
	if wasEmpty {
		c.markEnd(n)
	}
	c.size++
}

// unlink removes e from both lists, frees it and prunes its node if that was
// the node's last record.
func (c *Cache) unlink(e int32) {
	n := c.entries[e].node
	c.chainUnlink(e)
	c.lruUnlink(e)
	c.entries[e] = entry{node: nilIdx, chainPrev: nilIdx, chainNext: nilIdx, lruPrev: nilIdx, lruNext: nilIdx}
	c.freeEntries = append(c.freeEntries, e)
	c.size--
	if c.nodes[n].head == nilIdx {
		c.unmarkEnd(n)
	}
}
