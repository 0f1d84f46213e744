// Package relay is the query coordinator. It answers clients from the record
// cache when it can, forwards everything else to the upstream resolver under
// a slot-derived transaction ID, and relays the replies back while learning
// their records.
//
// A Relay owns its cache and slot table. Serve is its only goroutine; the
// Handle methods must not be called concurrently.
package relay

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/common/metrics"
	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/gateways/transport"
	"github.com/haukened/rr-relay/internal/dns/gateways/wire"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist"
)

var (
	ErrClientClosed   = errors.New("client transport closed")
	ErrUpstreamClosed = errors.New("upstream endpoint closed")
)

// DefaultSweepInterval is how often Serve reclaims timed-out slots while idle.
const DefaultSweepInterval = time.Second

type Relay struct {
	codec         wire.DNSCodec
	cache         RecordCache
	table         SlotTable
	blocklist     Blocklist
	client        ClientConn
	upstream      UpstreamConn
	clock         clock.Clock
	logger        log.Logger
	metrics       metrics.RelayMetrics
	sweepInterval time.Duration
}

type RelayOptions struct {
	Codec         wire.DNSCodec
	Cache         RecordCache
	Table         SlotTable
	Blocklist     Blocklist
	Client        ClientConn
	Upstream      UpstreamConn
	Clock         clock.Clock
	Logger        log.Logger
	Metrics       metrics.RelayMetrics
	SweepInterval time.Duration
}

// NewRelay wires a relay. Codec, Cache, Table, Client and Upstream are
// required; the rest default to a real clock, a no-op logger, no metrics and
// an empty blacklist.
func NewRelay(opts RelayOptions) *Relay {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopCollector{}
	}
	if opts.Blocklist == nil {
		opts.Blocklist = blocklist.NopRepository{}
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &Relay{
		codec:         opts.Codec,
		cache:         opts.Cache,
		table:         opts.Table,
		blocklist:     opts.Blocklist,
		client:        opts.Client,
		upstream:      opts.Upstream,
		clock:         opts.Clock,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		sweepInterval: opts.SweepInterval,
	}
}

// Serve runs the relay loop until ctx is done or a packet source closes.
// Cancellation is a clean stop and returns nil.
func (r *Relay) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	clientCh := r.client.Packets()
	upstreamCh := r.upstream.Replies()

	r.logger.Info(map[string]any{
		"sweep_interval": r.sweepInterval.String(),
	}, "Relay loop started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(nil, "Relay loop stopped")
			return nil
		case pkt, ok := <-clientCh:
			if !ok {
				return r.sourceClosed(ctx, ErrClientClosed)
			}
			r.HandleClient(pkt)
		case pkt, ok := <-upstreamCh:
			if !ok {
				return r.sourceClosed(ctx, ErrUpstreamClosed)
			}
			r.HandleUpstream(pkt)
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// sourceClosed treats a channel closed by shutdown as a clean stop.
func (r *Relay) sourceClosed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.logger.Info(nil, "Relay loop stopped")
		return nil
	}
	r.logger.Error(map[string]any{"error": err.Error()}, "Relay packet source closed")
	return err
}

// HandleClient answers or forwards one client query.
func (r *Relay) HandleClient(pkt transport.Packet) {
	r.Sweep()
	defer r.observe()

	msg, err := r.codec.Parse(pkt.Data)
	if err != nil {
		r.drop(metrics.DropMalformed, map[string]any{
			"client": pkt.Addr.String(),
			"size":   len(pkt.Data),
			"error":  err.Error(),
		})
		return
	}
	q, ok := msg.Question()
	if !ok {
		r.drop(metrics.DropNoQuestion, map[string]any{"client": pkt.Addr.String()})
		return
	}
	id := msg.Header.ID

	r.logger.Debug(map[string]any{
		"client":   pkt.Addr.String(),
		"query_id": id,
		"name":     q.Name,
		"type":     q.Type.String(),
	}, "Received DNS query")

	if d := r.blocklist.Decide(q.Name); d.IsBlocked() {
		r.logger.Debug(map[string]any{
			"name":   q.Name,
			"rule":   d.MatchedRule,
			"kind":   d.Kind.String(),
			"source": d.Source,
		}, "Query blacklisted")
		r.metrics.Blocked(metrics.BlockBlacklist)
		r.replyNXDomain(pkt, id, q)
		return
	}

	if q.Class == domain.RRClassIN {
		if r.answerFromCache(pkt, id, q) {
			return
		}
	}

	r.forward(pkt, id, q)
}

// answerFromCache reports whether the query was fully handled from the cache.
func (r *Relay) answerFromCache(pkt transport.Packet, id uint16, q domain.Question) bool {
	records, hit := r.cache.Query(q.Name, q.Type)
	if !hit {
		r.metrics.CacheMiss()
		return false
	}
	r.metrics.CacheHit()

	for _, rec := range records {
		if rec.IsBlocked() {
			r.logger.Debug(map[string]any{
				"name":  q.Name,
				"owner": rec.Domain,
				"value": rec.Value.String(),
			}, "Cached sentinel address, answering NXDOMAIN")
			r.metrics.Blocked(metrics.BlockSentinel)
			r.replyNXDomain(pkt, id, q)
			return true
		}
	}

	resp, err := r.codec.BuildAnswer(id, q.Name, q.Type, records, r.clock.Now())
	if err != nil {
		r.logger.Debug(map[string]any{
			"name":  q.Name,
			"type":  q.Type.String(),
			"error": err.Error(),
		}, "Could not build cached answer, forwarding")
		return false
	}
	r.send(pkt.Addr, resp, map[string]any{
		"query_id": id,
		"answers":  len(records),
		"source":   "cache",
	})
	return true
}

func (r *Relay) forward(pkt transport.Packet, id uint16, q domain.Question) {
	slot, err := r.table.Allocate(id, pkt.Addr, q, r.clock.Now())
	if err != nil {
		r.logger.Warn(map[string]any{
			"client": pkt.Addr.String(),
			"name":   q.Name,
			"error":  err.Error(),
		}, "No free upstream slot, dropping query")
		r.metrics.PacketDropped(metrics.DropTableFull)
		return
	}

	// pkt.Data is owned by this packet, so the ID is rewritten in place
	if err := wire.SetTransactionID(pkt.Data, slot.WireID()); err != nil {
		r.table.Release(slot.Index)
		r.drop(metrics.DropMalformed, map[string]any{"error": err.Error()})
		return
	}
	if err := r.upstream.Send(pkt.Data); err != nil {
		r.table.Release(slot.Index)
		r.logger.Warn(map[string]any{
			"name":  q.Name,
			"error": err.Error(),
		}, "Failed to forward query upstream")
		r.metrics.PacketDropped(metrics.DropSendFailed)
		return
	}

	r.metrics.QueryForwarded()
	r.logger.Debug(map[string]any{
		"client_id":  id,
		"wire_id":    slot.WireID(),
		"generation": slot.Generation,
		"name":       q.Name,
	}, "Forwarded query upstream")
}

// HandleUpstream relays one upstream reply to the client that asked.
func (r *Relay) HandleUpstream(pkt transport.Packet) {
	r.Sweep()
	defer r.observe()

	msg, err := r.codec.Parse(pkt.Data)
	if err != nil {
		r.drop(metrics.DropMalformed, map[string]any{
			"upstream": pkt.Addr.String(),
			"size":     len(pkt.Data),
			"error":    err.Error(),
		})
		return
	}

	slot, err := r.table.Lookup(msg.Header.ID)
	if err != nil {
		r.drop(metrics.DropUnmatched, map[string]any{
			"wire_id": msg.Header.ID,
			"error":   err.Error(),
		})
		return
	}

	// error replies such as FORMERR may carry no question at all
	q, ok := msg.Question()
	if ok && !q.SameAs(slot.Question) {
		// a late reply for a slot that has since been reused
		r.drop(metrics.DropStale, map[string]any{
			"wire_id":    msg.Header.ID,
			"generation": slot.Generation,
			"expected":   slot.Question.Name,
			"got":        q.Name,
		})
		return
	}

	r.learn(msg, slot.Question)

	r.table.Release(slot.Index)
	if err := wire.SetTransactionID(pkt.Data, slot.ClientID); err != nil {
		r.drop(metrics.DropMalformed, map[string]any{"error": err.Error()})
		return
	}
	if r.send(slot.Client, pkt.Data, map[string]any{
		"query_id": slot.ClientID,
		"rcode":    msg.Header.RCode().String(),
		"answers":  len(msg.Answers),
		"source":   "upstream",
	}) {
		r.metrics.ReplyRelayed()
	}
}

// learn caches the A, AAAA and CNAME answers of a successful reply. Only
// records owned by the question name, or by a name its CNAME chain in the
// same answer section reaches, are kept.
func (r *Relay) learn(msg domain.Message, q domain.Question) {
	if msg.Header.RCode() != domain.RCodeNoError {
		return
	}
	owners := chainOwners(msg.Answers, q.Name)
	for _, rr := range msg.Answers {
		if rr.Class != domain.RRClassIN || rr.TTL == 0 {
			continue
		}
		if !owners[utils.CanonicalDNSName(rr.Name)] {
			r.logger.Debug(map[string]any{
				"name":     rr.Name,
				"type":     rr.Type.String(),
				"question": q.Name,
			}, "Skipped answer record outside the question chain")
			continue
		}
		value, ok := rr.CacheValue()
		if !ok {
			continue
		}
		ttl := time.Duration(rr.TTL) * time.Second
		if err := r.cache.Update(rr.Name, rr.Type, value, ttl); err != nil {
			r.logger.Debug(map[string]any{
				"name":  rr.Name,
				"type":  rr.Type.String(),
				"error": err.Error(),
			}, "Skipped uncacheable answer record")
		}
	}
}

// chainOwners returns qname plus every alias target reachable from it through
// the CNAME records of answers, at most domain.MaxCNAMEDepth hops away.
func chainOwners(answers []domain.ResourceRecord, qname string) map[string]bool {
	cur := utils.CanonicalDNSName(qname)
	owners := map[string]bool{cur: true}
	for hop := 0; hop < domain.MaxCNAMEDepth; hop++ {
		next := ""
		for _, rr := range answers {
			alias, ok := rr.Data.(domain.CNAMEData)
			if ok && rr.Type == domain.RRTypeCNAME && utils.CanonicalDNSName(rr.Name) == cur {
				next = utils.CanonicalDNSName(alias.Target)
				break
			}
		}
		if next == "" || owners[next] {
			break
		}
		owners[next] = true
		cur = next
	}
	return owners
}

// Sweep frees slots whose upstream reply never came.
func (r *Relay) Sweep() {
	expired := r.table.Sweep(r.clock.Now())
	if len(expired) == 0 {
		return
	}
	for _, s := range expired {
		r.logger.Debug(map[string]any{
			"wire_id":    s.WireID(),
			"client":     s.Client.String(),
			"name":       s.Question.Name,
			"generation": s.Generation,
		}, "Upstream query timed out")
	}
	r.metrics.SlotsTimedOut(len(expired))
	r.metrics.InflightSlots(r.table.InUse())
}

func (r *Relay) replyNXDomain(pkt transport.Packet, id uint16, q domain.Question) {
	resp, err := r.codec.BuildNXDomain(id, q.Name, q.Type)
	if err != nil {
		r.drop(metrics.DropBuild, map[string]any{
			"name":  q.Name,
			"error": err.Error(),
		})
		return
	}
	r.send(pkt.Addr, resp, map[string]any{
		"query_id": id,
		"rcode":    domain.RCodeNXDomain.String(),
	})
}

func (r *Relay) send(to netip.AddrPort, data []byte, fields map[string]any) bool {
	if err := r.client.WriteTo(data, to); err != nil {
		r.logger.Warn(map[string]any{
			"client": to.String(),
			"error":  err.Error(),
		}, "Failed to send DNS response")
		r.metrics.PacketDropped(metrics.DropSendFailed)
		return false
	}
	fields["client"] = to.String()
	fields["size"] = len(data)
	r.logger.Debug(fields, "Sent DNS response")
	return true
}

func (r *Relay) drop(reason string, fields map[string]any) {
	fields["reason"] = reason
	r.logger.Debug(fields, "Dropped packet")
	r.metrics.PacketDropped(reason)
}

func (r *Relay) observe() {
	s := r.cache.Stats()
	r.metrics.ObserveCache(s.Size, s.Evictions)
	r.metrics.InflightSlots(r.table.InUse())
}
