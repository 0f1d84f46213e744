// Package upstream is the relay's link to its recursive resolver: one
// connected UDP socket that forwarded queries go out on and replies come
// back on.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/gateways/transport"
)

// Error message constants for consistent error handling
const (
	errNoServerProvided = "no upstream DNS server provided"
	errFailedToConnect  = "failed to connect to %s: %w"
	errWriteFailed      = "write failed: %w"
	errShortWrite       = "short write: %d of %d bytes"
)

var (
	ErrNotConnected = errors.New("upstream endpoint not connected")
	ErrConnected    = errors.New("upstream endpoint already connected")
	ErrClosed       = errors.New("upstream endpoint closed")
)

const (
	defaultDialTimeout = 5 * time.Second
	queueDepth         = 256
)

// DialFunc defines a function type for establishing a network connection.
// It takes a context for cancellation, the network type (e.g., "tcp", "udp"),
// and the address to connect to, returning a net.Conn and an error if any occurs.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures an Endpoint.
type Options struct {
	// required parameters
	Server string
	// optional parameters
	DialTimeout time.Duration
	Logger      log.Logger
	// options to inject for testing purposes
	Dial DialFunc
}

// Endpoint sends raw queries to one upstream server and delivers its replies
// on a channel.
type Endpoint struct {
	server      string
	dialTimeout time.Duration
	dial        DialFunc
	logger      log.Logger

	mu      sync.Mutex
	conn    net.Conn
	closed  bool
	done    chan struct{}
	replies chan transport.Packet
}

// New validates opts and returns an unconnected endpoint.
func New(opts Options) (*Endpoint, error) {
	if opts.Server == "" {
		return nil, errors.New(errNoServerProvided)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Endpoint{
		server:      opts.Server,
		dialTimeout: opts.DialTimeout,
		dial:        opts.Dial,
		logger:      opts.Logger,
		done:        make(chan struct{}),
		replies:     make(chan transport.Packet, queueDepth),
	}, nil
}

// Connect dials the upstream server and starts the reply reader. The
// connection is closed when ctx is done.
func (e *Endpoint) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.conn != nil {
		return ErrConnected
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.dialTimeout)
	defer cancel()
	conn, err := e.dial(dialCtx, "udp", e.server)
	if err != nil {
		return fmt.Errorf(errFailedToConnect, e.server, err)
	}
	e.conn = conn

	e.logger.Info(map[string]any{
		"server": e.server,
	}, "Upstream endpoint connected")

	go e.readLoop(ctx, conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = e.Close()
		case <-e.done:
		}
	}()
	return nil
}

// Send writes one query datagram to the upstream server.
func (e *Endpoint) Send(data []byte) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	n, err := conn.Write(data)
	if err != nil {
		return fmt.Errorf(errWriteFailed, err)
	}
	if n != len(data) {
		return fmt.Errorf(errShortWrite, n, len(data))
	}
	return nil
}

// Replies delivers datagrams received from the upstream server. It is closed
// when the reader exits.
func (e *Endpoint) Replies() <-chan transport.Packet {
	return e.replies
}

// Server returns the configured upstream address.
func (e *Endpoint) Server() string {
	return e.server
}

// Close closes the connection. It is safe to call more than once.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)
	if e.conn == nil {
		close(e.replies)
		return nil
	}
	err := e.conn.Close()
	e.logger.Info(map[string]any{
		"server": e.server,
	}, "Upstream endpoint closed")
	return err
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) readLoop(ctx context.Context, conn net.Conn) {
	defer close(e.replies)
	from := remoteAddrPort(conn)
	buffer := make([]byte, domain.MaxUDPMessageSize)

	for {
		n, err := conn.Read(buffer)
		if err != nil {
			if e.isClosed() || errors.Is(err, net.ErrClosed) {
				e.logger.Debug(nil, "Upstream read loop exiting")
				return
			}
			// a refused port surfaces here as ECONNREFUSED on connected sockets
			e.logger.Warn(map[string]any{
				"server": e.server,
				"error":  err.Error(),
			}, "Failed to read upstream reply")
			continue
		}

		if n == len(buffer) {
			// anything past the buffer was discarded by the kernel
			e.logger.Warn(map[string]any{
				"server": e.server,
				"size":   n,
				"limit":  len(buffer),
			}, "Upstream reply filled the receive buffer and may be truncated")
		}

		pkt := transport.Packet{Data: make([]byte, n), Addr: from}
		copy(pkt.Data, buffer[:n])

		select {
		case e.replies <- pkt:
		case <-ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

func remoteAddrPort(conn net.Conn) netip.AddrPort {
	if ua, ok := conn.RemoteAddr().(*net.UDPAddr); ok {
		return ua.AddrPort()
	}
	return netip.AddrPort{}
}
