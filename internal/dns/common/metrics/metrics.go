// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rr_relay"

// Drop reasons used with PacketDropped.
const (
	DropMalformed  = "malformed"
	DropNoQuestion = "no_question"
	DropTableFull  = "table_full"
	DropUnmatched  = "unmatched"
	DropStale      = "stale"
	DropSendFailed = "send_failed"
	DropBuild      = "build_failed"
)

// Block reasons used with Blocked.
const (
	BlockBlacklist = "blacklist"
	BlockSentinel  = "sentinel"
)

// RelayMetrics is what the relay reports. Implementations must be safe for
// concurrent use.
type RelayMetrics interface {
	CacheHit()
	CacheMiss()
	QueryForwarded()
	ReplyRelayed()
	PacketDropped(reason string)
	SlotsTimedOut(n int)
	Blocked(reason string)
	// ObserveCache reports the current record count and the cache's running
	// eviction total.
	ObserveCache(records int, evictions uint64)
	InflightSlots(n int)
}

// Collector implements RelayMetrics with Prometheus collectors.
type Collector struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	forwarded      prometheus.Counter
	relayed        prometheus.Counter
	dropped        *prometheus.CounterVec
	slotTimeouts   prometheus.Counter
	blocked        *prometheus.CounterVec
	cacheRecords   prometheus.Gauge
	inflight       prometheus.Gauge

	mu            sync.Mutex
	lastEvictions uint64
}

// NewCollector builds the relay collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "queries answered from the record cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "queries the record cache could not answer",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "records evicted to make room for new ones",
		}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_forwarded_total",
			Help:      "queries sent to the upstream resolver",
		}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_relayed_total",
			Help:      "upstream replies delivered to clients",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "packets dropped, by reason",
		}, []string{"reason"}),
		slotTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_timeouts_total",
			Help:      "forwarded queries whose reply never arrived",
		}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_total",
			Help:      "queries answered with NXDOMAIN by policy, by reason",
		}, []string{"reason"}),
		cacheRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_records",
			Help:      "records currently cached",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_slots",
			Help:      "queries waiting for an upstream reply",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.cacheHits, c.cacheMisses, c.cacheEvictions, c.forwarded, c.relayed,
		c.dropped, c.slotTimeouts, c.blocked, c.cacheRecords, c.inflight,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) CacheHit()       { c.cacheHits.Inc() }
func (c *Collector) CacheMiss()      { c.cacheMisses.Inc() }
func (c *Collector) QueryForwarded() { c.forwarded.Inc() }
func (c *Collector) ReplyRelayed()   { c.relayed.Inc() }

func (c *Collector) PacketDropped(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}

func (c *Collector) SlotsTimedOut(n int) {
	if n > 0 {
		c.slotTimeouts.Add(float64(n))
	}
}

func (c *Collector) Blocked(reason string) {
	c.blocked.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveCache(records int, evictions uint64) {
	c.cacheRecords.Set(float64(records))
	c.mu.Lock()
	defer c.mu.Unlock()
	if evictions > c.lastEvictions {
		c.cacheEvictions.Add(float64(evictions - c.lastEvictions))
		c.lastEvictions = evictions
	}
}

func (c *Collector) InflightSlots(n int) {
	c.inflight.Set(float64(n))
}

var _ RelayMetrics = (*Collector)(nil)

// NoopCollector discards everything.
type NoopCollector struct{}

func (NoopCollector) CacheHit()                {}
func (NoopCollector) CacheMiss()               {}
func (NoopCollector) QueryForwarded()          {}
func (NoopCollector) ReplyRelayed()            {}
func (NoopCollector) PacketDropped(string)     {}
func (NoopCollector) SlotsTimedOut(int)        {}
func (NoopCollector) Blocked(string)           {}
func (NoopCollector) ObserveCache(int, uint64) {}
func (NoopCollector) InflightSlots(int)        {}

var _ RelayMetrics = NoopCollector{}
