package dnscache

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

var start = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, capacity int) (*Cache, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(start)
	c, err := New(capacity, clk)
	require.NoError(t, err)
	return c, clk
}

func v4(s string) domain.RecordValue { return domain.AddressValue(netip.MustParseAddr(s)) }

func alias(s string) domain.RecordValue { return domain.CNAMEValue(s) }

// checkInvariants verifies that the LRU list and the trie hold exactly the
// same records and that every node's sum matches its subtree.
func checkInvariants(t *testing.T, c *Cache) {
	t.Helper()

	inLRU := map[int32]bool{}
	prev := nilIdx
	for e := c.lruHead; e != nilIdx; e = c.entries[e].lruNext {
		require.False(t, inLRU[e], "LRU cycle at %d", e)
		require.Equal(t, prev, c.entries[e].lruPrev)
		inLRU[e] = true
		prev = e
	}
	require.Equal(t, prev, c.lruTail)
	require.Len(t, inLRU, c.size)

	inTrie := map[int32]bool{}
	var walk func(n int32) int32
	walk = func(n int32) int32 {
		var sum int32
		nd := c.nodes[n]
		require.Equal(t, nd.head != nilIdx, nd.isEnd, "isEnd mismatch at node %d", n)
		if nd.isEnd {
			sum++
		}
		for e := nd.head; e != nilIdx; e = c.entries[e].chainNext {
			require.Equal(t, n, c.entries[e].node)
			inTrie[e] = true
		}
		for _, ch := range nd.children {
			if ch != nilIdx {
				require.Equal(t, n, c.nodes[ch].parent)
				sum += walk(ch)
			}
		}
		require.Equal(t, sum, nd.sum, "sum mismatch at node %d", n)
		if n != 0 {
			require.Positive(t, nd.sum, "node %d should have been pruned", n)
		}
		return sum
	}
	walk(0)
	require.Equal(t, inLRU, inTrie)
}

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New(0, nil)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = New(-1, nil)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	c, err := New(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Capacity())
}

func TestCache_OldestEviction(t *testing.T) {
	c, _ := newTestCache(t, 2)

	require.NoError(t, c.Update("a.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	require.NoError(t, c.Update("b.example", domain.RRTypeA, v4("10.0.0.2"), time.Minute))
	require.NoError(t, c.Update("c.example", domain.RRTypeA, v4("10.0.0.3"), time.Minute))
	checkInvariants(t, c)

	_, ok := c.Query("a.example", domain.RRTypeA)
	assert.False(t, ok, "oldest record must be evicted")

	got, ok := c.Query("b.example", domain.RRTypeA)
	require.True(t, ok)
	assert.Equal(t, v4("10.0.0.2"), got[0].Value)

	_, ok = c.Query("c.example", domain.RRTypeA)
	assert.True(t, ok)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
	checkInvariants(t, c)
}

func TestCache_QueryTouchesRecency(t *testing.T) {
	c, _ := newTestCache(t, 2)

	require.NoError(t, c.Update("a.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	require.NoError(t, c.Update("b.example", domain.RRTypeA, v4("10.0.0.2"), time.Minute))
	_, ok := c.Query("a.example", domain.RRTypeA)
	require.True(t, ok)

	require.NoError(t, c.Update("c.example", domain.RRTypeA, v4("10.0.0.3"), time.Minute))

	_, ok = c.Query("a.example", domain.RRTypeA)
	assert.True(t, ok, "recently queried record survives")
	_, ok = c.Query("b.example", domain.RRTypeA)
	assert.False(t, ok)
	checkInvariants(t, c)
}

func TestCache_QueryKeepsOriginalTTL(t *testing.T) {
	c, clk := newTestCache(t, 4)
	require.NoError(t, c.Update("a.example", domain.RRTypeA, v4("10.0.0.1"), 30*time.Second))

	clk.Advance(20 * time.Second)
	got, ok := c.Query("a.example", domain.RRTypeA)
	require.True(t, ok)
	assert.Equal(t, start.Add(30*time.Second), got[0].ExpiresAt)

	clk.Advance(10 * time.Second)
	_, ok = c.Query("a.example", domain.RRTypeA)
	assert.False(t, ok, "a hit must not extend the lifetime")
}

func TestCache_UpdateRefreshesInPlace(t *testing.T) {
	c, clk := newTestCache(t, 2)

	require.NoError(t, c.Update("a.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	require.NoError(t, c.Update("b.example", domain.RRTypeA, v4("10.0.0.2"), time.Minute))

	clk.Advance(30 * time.Second)
	require.NoError(t, c.Update("A.Example.", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	assert.Equal(t, 2, c.Len(), "refresh must not duplicate")
	assert.Zero(t, c.Stats().Evictions)

	got, ok := c.Query("a.example", domain.RRTypeA)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, start.Add(90*time.Second), got[0].ExpiresAt)

	// a was refreshed, so b is now the oldest
	require.NoError(t, c.Update("c.example", domain.RRTypeA, v4("10.0.0.3"), time.Minute))
	_, ok = c.Query("b.example", domain.RRTypeA)
	assert.False(t, ok)
	checkInvariants(t, c)
}

func TestCache_MultipleRecordsPerDomain(t *testing.T) {
	c, _ := newTestCache(t, 10)

	require.NoError(t, c.Update("multi.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	require.NoError(t, c.Update("multi.example", domain.RRTypeA, v4("10.0.0.2"), time.Minute))
	require.NoError(t, c.Update("multi.example", domain.RRTypeAAAA, domain.AddressValue(netip.MustParseAddr("fd00::1")), time.Minute))

	got, ok := c.Query("multi.example", domain.RRTypeA)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, v4("10.0.0.1"), got[0].Value)
	assert.Equal(t, v4("10.0.0.2"), got[1].Value)

	got, ok = c.Query("multi.example", domain.RRTypeAAAA)
	require.True(t, ok)
	assert.Len(t, got, 1)

	_, ok = c.Query("multi.example", domain.RRTypeCNAME)
	assert.False(t, ok)
	checkInvariants(t, c)
}

func TestCache_CNAMEChain(t *testing.T) {
	c, _ := newTestCache(t, 10)

	require.NoError(t, c.Update("x.example", domain.RRTypeCNAME, alias("y.example"), time.Minute))
	require.NoError(t, c.Update("y.example", domain.RRTypeA, v4("1.2.3.4"), time.Minute))

	got, ok := c.Query("x.example", domain.RRTypeA)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, domain.RRTypeCNAME, got[0].Type)
	assert.Equal(t, "x.example", got[0].Domain)
	assert.Equal(t, "y.example", got[0].Value.Target)
	assert.Equal(t, domain.RRTypeA, got[1].Type)
	assert.Equal(t, v4("1.2.3.4"), got[1].Value)

	t.Run("cname query returns the chain only", func(t *testing.T) {
		got, ok := c.Query("x.example", domain.RRTypeCNAME)
		require.True(t, ok)
		require.Len(t, got, 1)
		assert.Equal(t, "y.example", got[0].Value.Target)
	})

	t.Run("terminal without requested type is a miss", func(t *testing.T) {
		_, ok := c.Query("x.example", domain.RRTypeAAAA)
		assert.False(t, ok)
	})

	t.Run("dead end is a miss", func(t *testing.T) {
		require.NoError(t, c.Update("dangling.example", domain.RRTypeCNAME, alias("nowhere.example"), time.Minute))
		_, ok := c.Query("dangling.example", domain.RRTypeA)
		assert.False(t, ok)
	})
	checkInvariants(t, c)
}

func TestCache_AliasDecidedByFirstRecord(t *testing.T) {
	c, _ := newTestCache(t, 10)
	require.NoError(t, c.Update("y.example", domain.RRTypeA, v4("10.0.0.2"), time.Minute))

	// address first, alias second: the name answers with its own address
	require.NoError(t, c.Update("x.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	require.NoError(t, c.Update("x.example", domain.RRTypeCNAME, alias("y.example"), time.Minute))

	got, ok := c.Query("x.example", domain.RRTypeA)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, v4("10.0.0.1"), got[0].Value)

	_, ok = c.Query("x.example", domain.RRTypeCNAME)
	assert.False(t, ok)

	// alias first: the chain is followed
	require.NoError(t, c.Update("z.example", domain.RRTypeCNAME, alias("y.example"), time.Minute))
	require.NoError(t, c.Update("z.example", domain.RRTypeA, v4("10.0.0.3"), time.Minute))

	got, ok = c.Query("z.example", domain.RRTypeA)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, domain.RRTypeCNAME, got[0].Type)
	assert.Equal(t, v4("10.0.0.2"), got[1].Value)
	checkInvariants(t, c)
}

func TestCache_CNAMEDepth(t *testing.T) {
	build := func(t *testing.T, links int) *Cache {
		c, _ := newTestCache(t, 20)
		for i := 0; i < links; i++ {
			require.NoError(t, c.Update(fmt.Sprintf("h%d.example", i), domain.RRTypeCNAME, alias(fmt.Sprintf("h%d.example", i+1)), time.Minute))
		}
		require.NoError(t, c.Update(fmt.Sprintf("h%d.example", links), domain.RRTypeA, v4("10.9.9.9"), time.Minute))
		return c
	}

	c := build(t, domain.MaxCNAMEDepth)
	got, ok := c.Query("h0.example", domain.RRTypeA)
	require.True(t, ok)
	assert.Len(t, got, domain.MaxCNAMEDepth+1)

	c = build(t, domain.MaxCNAMEDepth+1)
	got, ok = c.Query("h0.example", domain.RRTypeA)
	assert.False(t, ok, "over-long chain is a miss, not a partial answer")
	assert.Nil(t, got)

	_, ok = c.Query("h0.example", domain.RRTypeCNAME)
	assert.False(t, ok)
}

func TestCache_CNAMELoop(t *testing.T) {
	c, _ := newTestCache(t, 4)
	require.NoError(t, c.Update("a.example", domain.RRTypeCNAME, alias("b.example"), time.Minute))
	require.NoError(t, c.Update("b.example", domain.RRTypeCNAME, alias("a.example"), time.Minute))

	_, ok := c.Query("a.example", domain.RRTypeA)
	assert.False(t, ok)
	checkInvariants(t, c)
}

func TestCache_ExpiredRecordsAreDroppedOnQuery(t *testing.T) {
	c, clk := newTestCache(t, 4)
	require.NoError(t, c.Update("short.example", domain.RRTypeA, v4("10.0.0.1"), 5*time.Second))
	require.NoError(t, c.Update("short.example", domain.RRTypeA, v4("10.0.0.2"), time.Minute))
	require.NoError(t, c.Update("gone.example", domain.RRTypeA, v4("10.0.0.3"), 5*time.Second))

	clk.Advance(5 * time.Second)

	got, ok := c.Query("short.example", domain.RRTypeA)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, v4("10.0.0.2"), got[0].Value)

	_, ok = c.Query("gone.example", domain.RRTypeA)
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, uint64(2), st.Expired)
	assert.Equal(t, 1, st.Size)
	checkInvariants(t, c)
}

func TestCache_TriePruning(t *testing.T) {
	c, _ := newTestCache(t, 3)
	baseline := c.Stats().Nodes

	require.NoError(t, c.Update("www.example.com", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	require.NoError(t, c.Update("api.example.com", domain.RRTypeA, v4("10.0.0.2"), time.Minute))
	require.NoError(t, c.Update("example.com", domain.RRTypeA, v4("10.0.0.3"), time.Minute))
	checkInvariants(t, c)
	// shared suffix "moc.elpmaxe" plus ".www" and ".ipa"
	assert.Equal(t, baseline+len("example.com")+4+4, c.Stats().Nodes)

	assert.True(t, c.Eliminate())
	checkInvariants(t, c)
	assert.Equal(t, baseline+len("example.com")+4, c.Stats().Nodes)

	assert.True(t, c.Eliminate())
	assert.True(t, c.Eliminate())
	assert.False(t, c.Eliminate())
	checkInvariants(t, c)
	assert.Equal(t, baseline, c.Stats().Nodes, "only the root remains")
	assert.Zero(t, c.Len())
}

func TestCache_NodesAreRecycled(t *testing.T) {
	c, _ := newTestCache(t, 1)
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Update(fmt.Sprintf("host-%d.example", i), domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	}
	checkInvariants(t, c)
	assert.Equal(t, 1, c.Len())
	assert.LessOrEqual(t, len(c.nodes), 2*len("host-00.example")+1, "freed nodes must be reused")
	assert.LessOrEqual(t, len(c.entries), 2)
}

func TestCache_UpdateErrors(t *testing.T) {
	c, _ := newTestCache(t, 4)

	err := c.Update("_dmarc.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute)
	assert.ErrorIs(t, err, ErrInvalidDomain)

	err = c.Update("a.example", domain.RRTypeA, v4("10.0.0.1"), 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	err = c.Update("a.example", domain.RRTypeMX, alias("mx.example"), time.Minute)
	assert.Error(t, err)

	err = c.Update("a.example", domain.RRTypeA, domain.AddressValue(netip.MustParseAddr("::1")), time.Minute)
	assert.Error(t, err)

	assert.Zero(t, c.Len())
	checkInvariants(t, c)

	_, ok := c.Query("_dmarc.example", domain.RRTypeA)
	assert.False(t, ok)
}

func TestCache_Destroy(t *testing.T) {
	c, _ := newTestCache(t, 8)
	for i := 0; i < 8; i++ {
		require.NoError(t, c.Update(fmt.Sprintf("n%d.example", i), domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	}
	c.Destroy()
	assert.Zero(t, c.Len())
	assert.Equal(t, 1, c.Stats().Nodes)
	checkInvariants(t, c)

	require.NoError(t, c.Update("again.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute))
	_, ok := c.Query("again.example", domain.RRTypeA)
	assert.True(t, ok)
}

func TestCache_HitMissCounters(t *testing.T) {
	c, _ := newTestCache(t, 4)
	require.NoError(t, c.Update("a.example", domain.RRTypeA, v4("10.0.0.1"), time.Minute))

	c.Query("a.example", domain.RRTypeA)
	c.Query("a.example", domain.RRTypeAAAA)
	c.Query("missing.example", domain.RRTypeA)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(2), st.Misses)
}
