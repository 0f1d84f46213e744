package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

var (
	ErrAlreadyRunning = errors.New("transport already running")
	ErrNotRunning     = errors.New("transport not running")
	ErrStopped        = errors.New("transport was stopped and cannot restart")
)

// UDPTransport implements ServerTransport for standard DNS over UDP (RFC 1035).
type UDPTransport struct {
	addr    string
	conn    *net.UDPConn
	logger  log.Logger
	packets chan Packet

	// Synchronization for graceful shutdown
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// NewUDPTransport creates a new UDP transport instance.
func NewUDPTransport(addr string, logger log.Logger) *UDPTransport {
	return &UDPTransport{
		addr:    addr,
		logger:  logger,
		packets: make(chan Packet, queueDepth),
		stopCh:  make(chan struct{}),
	}
}

// Start binds the UDP socket and starts the read loop. The transport stops
// itself when ctx is done.
func (t *UDPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}
	select {
	case <-t.stopCh:
		return ErrStopped
	default:
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   conn.LocalAddr().String(),
	}, "DNS transport started")

	go t.listenLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Stop()
		case <-t.stopCh:
		}
	}()

	return nil
}

// Stop gracefully shuts down the UDP transport.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "Error closing UDP connection")
		}
	}

	t.running = false

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Address returns the bound address once started.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// Packets delivers received datagrams. It is closed when the read loop exits.
func (t *UDPTransport) Packets() <-chan Packet {
	return t.packets
}

// WriteTo sends data to a client.
func (t *UDPTransport) WriteTo(data []byte, addr netip.AddrPort) error {
	t.mu.RLock()
	conn, running := t.conn, t.running
	t.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if _, err := conn.WriteToUDPAddrPort(data, addr); err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}
	return nil
}

func (t *UDPTransport) listenLoop(ctx context.Context) {
	defer close(t.packets)
	buffer := make([]byte, domain.MaxUDPMessageSize)

	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()

			if !running || errors.Is(err, net.ErrClosed) {
				t.logger.Debug(nil, "UDP transport read loop exiting")
				return
			}

			t.logger.Warn(map[string]any{
				"error": err.Error(),
			}, "Failed to read UDP packet")
			continue
		}

		pkt := Packet{Data: make([]byte, n), Addr: from}
		copy(pkt.Data, buffer[:n])

		select {
		case t.packets <- pkt:
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		}
	}
}
