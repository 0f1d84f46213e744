package relay

import (
	"net/netip"
	"testing"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/gateways/transport"
	"github.com/haukened/rr-relay/internal/dns/gateways/wire"
	"github.com/haukened/rr-relay/internal/dns/repos/dnscache"
	"github.com/haukened/rr-relay/internal/dns/repos/inflight"
)

// discardConn satisfies ClientConn and UpstreamConn without keeping packets.
type discardConn struct{}

func (discardConn) Packets() <-chan transport.Packet { return nil }

func (discardConn) Replies() <-chan transport.Packet { return nil }

func (discardConn) WriteTo([]byte, netip.AddrPort) error { return nil }

func (discardConn) Send([]byte) error { return nil }

func benchRelay(b *testing.B) (*Relay, *wire.UDPCodec, *dnscache.Cache) {
	b.Helper()
	clk := clock.NewMockClock(time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	cache, err := dnscache.New(1024, clk)
	if err != nil {
		b.Fatal(err)
	}
	table, err := inflight.New(domain.QueryTimeout)
	if err != nil {
		b.Fatal(err)
	}
	codec := wire.NewUDPCodec(log.NewNoopLogger())
	r := NewRelay(RelayOptions{
		Codec:    codec,
		Cache:    cache,
		Table:    table,
		Client:   discardConn{},
		Upstream: discardConn{},
		Clock:    clk,
		Logger:   log.NewNoopLogger(),
	})
	return r, codec, cache
}

func BenchmarkRelay_HandleClient_CacheHit(b *testing.B) {
	r, codec, cache := benchRelay(b)
	if err := cache.Update("www.example.test", domain.RRTypeA, domain.AddressValue(netip.MustParseAddr("192.0.2.1")), time.Hour); err != nil {
		b.Fatal(err)
	}
	query, err := codec.BuildQuery(0x1234, "www.example.test", domain.RRTypeA)
	if err != nil {
		b.Fatal(err)
	}
	pkt := transport.Packet{Data: query, Addr: clientAddr}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r.HandleClient(pkt)
	}
}

// BenchmarkRelay_ForwardAndRelay measures one miss: the query takes the
// lowest slot and the NXDOMAIN reply, which is never cached, frees it again.
func BenchmarkRelay_ForwardAndRelay(b *testing.B) {
	r, codec, _ := benchRelay(b)
	query, err := codec.BuildQuery(0x1234, "missing.example.test", domain.RRTypeA)
	if err != nil {
		b.Fatal(err)
	}
	reply, err := codec.BuildNXDomain(1, "missing.example.test", domain.RRTypeA)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// forwarding rewrites the ID in place
		q := append([]byte(nil), query...)
		r.HandleClient(transport.Packet{Data: q, Addr: clientAddr})
		r.HandleUpstream(transport.Packet{Data: reply, Addr: upstreamAddr})
	}
}
