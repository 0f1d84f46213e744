package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-relay/internal/dns/common/log"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.CacheHit()
	c.CacheHit()
	c.CacheMiss()
	c.QueryForwarded()
	c.ReplyRelayed()
	c.PacketDropped(DropMalformed)
	c.PacketDropped(DropMalformed)
	c.PacketDropped(DropStale)
	c.SlotsTimedOut(3)
	c.SlotsTimedOut(0)
	c.Blocked(BlockBlacklist)
	c.InflightSlots(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.forwarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relayed))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dropped.WithLabelValues(DropMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues(DropStale)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.slotTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blocked.WithLabelValues(BlockBlacklist)))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.inflight))
}

func TestCollector_ObserveCacheAddsEvictionDeltas(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.ObserveCache(10, 0)
	c.ObserveCache(12, 4)
	c.ObserveCache(12, 4)
	c.ObserveCache(9, 6)

	assert.Equal(t, 9.0, testutil.ToFloat64(c.cacheRecords))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.cacheEvictions))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestServer_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.QueryForwarded()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), reg, log.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + endpoint)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "rr_relay_queries_forwarded_total 1"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RunBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ln.Addr().String(), prometheus.NewRegistry(), log.NewNoopLogger())
	assert.Error(t, srv.Run(context.Background()))
}

func TestNoopCollector(t *testing.T) {
	var m RelayMetrics = NoopCollector{}
	assert.NotPanics(t, func() {
		m.CacheHit()
		m.PacketDropped(DropTableFull)
		m.ObserveCache(1, 1)
	})
}
