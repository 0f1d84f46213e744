// Package transport moves raw DNS packets between sockets and the relay.
// Readers copy each datagram into its own Packet and hand it over a channel,
// so the relay loop can own every other piece of state.
package transport

import (
	"context"
	"net/netip"
)

// Packet is one received datagram and the address it came from.
type Packet struct {
	Data []byte
	Addr netip.AddrPort
}

// ServerTransport is the client-facing side of the relay.
type ServerTransport interface {
	// Start binds the socket and begins delivering packets on Packets.
	Start(ctx context.Context) error

	// Stop closes the socket. Packets is closed once the reader exits.
	Stop() error

	// Address returns the bound address, or the configured one before Start.
	Address() string

	Packets() <-chan Packet
	WriteTo(data []byte, addr netip.AddrPort) error
}

// queueDepth is the buffered channel size between a socket reader and the relay.
const queueDepth = 256
