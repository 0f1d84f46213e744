package relay

import (
	"net/netip"
	"time"

	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/gateways/transport"
	"github.com/haukened/rr-relay/internal/dns/repos/dnscache"
	"github.com/haukened/rr-relay/internal/dns/repos/inflight"
)

// RecordCache is the record store the relay answers from and learns into.
type RecordCache interface {
	Query(name string, rrtype domain.RRType) ([]domain.Record, bool)
	Update(name string, rrtype domain.RRType, value domain.RecordValue, ttl time.Duration) error
	Stats() dnscache.Stats
}

// SlotTable tracks queries waiting on the upstream.
type SlotTable interface {
	Allocate(clientID uint16, client netip.AddrPort, q domain.Question, now time.Time) (inflight.Slot, error)
	Lookup(wireID uint16) (inflight.Slot, error)
	Release(index int)
	Sweep(now time.Time) []inflight.Slot
	InUse() int
}

// Blocklist decides whether a name is blacklisted.
type Blocklist interface {
	Decide(name string) domain.BlockDecision
}

// ClientConn is the client-facing socket.
type ClientConn interface {
	Packets() <-chan transport.Packet
	WriteTo(data []byte, addr netip.AddrPort) error
}

// UpstreamConn is the socket to the recursive resolver.
type UpstreamConn interface {
	Replies() <-chan transport.Packet
	Send(data []byte) error
}
