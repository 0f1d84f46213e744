package upstream

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

// MockConn implements net.Conn for testing. Writes go through testify mock;
// reads block until data is queued or the conn is closed.
type MockConn struct {
	mock.Mock
	reads     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writeData []byte
}

func newMockConn() *MockConn {
	return &MockConn{reads: make(chan []byte, 4), done: make(chan struct{})}
}

func (m *MockConn) Read(b []byte) (int, error) {
	select {
	case data := <-m.reads:
		return copy(b, data), nil
	case <-m.done:
		return 0, net.ErrClosed
	}
}

func (m *MockConn) Write(b []byte) (n int, err error) {
	args := m.Called(b)
	m.writeData = make([]byte, len(b))
	copy(m.writeData, b)
	return args.Int(0), args.Error(1)
}

func (m *MockConn) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MockConn) LocalAddr() net.Addr                { return nil }
func (m *MockConn) RemoteAddr() net.Addr               { return &net.UDPAddr{IP: net.IPv4(192, 0, 2, 53), Port: 53} }
func (m *MockConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

func dialMock(conn net.Conn) DialFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		return conn, nil
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name:    "missing server",
			opts:    Options{},
			wantErr: errNoServerProvided,
		},
		{
			name: "defaults applied",
			opts: Options{Server: "1.1.1.1:53"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.opts)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, defaultDialTimeout, e.dialTimeout)
			assert.NotNil(t, e.dial)
			assert.NotNil(t, e.logger)
			assert.Equal(t, "1.1.1.1:53", e.Server())
		})
	}
}

func TestEndpoint_SendBeforeConnect(t *testing.T) {
	e, err := New(Options{Server: "192.0.2.53:53"})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Send([]byte{1}), ErrNotConnected)
}

func TestEndpoint_ConnectDialError(t *testing.T) {
	e, err := New(Options{
		Server: "192.0.2.53:53",
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			assert.Equal(t, "udp", network)
			assert.Equal(t, "192.0.2.53:53", address)
			return nil, errors.New("boom")
		},
	})
	require.NoError(t, err)

	err = e.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to 192.0.2.53:53")
}

func TestEndpoint_SendAndReceive(t *testing.T) {
	conn := newMockConn()
	conn.On("Write", []byte("query")).Return(5, nil).Once()

	e, err := New(Options{Server: "192.0.2.53:53", Dial: dialMock(conn)})
	require.NoError(t, err)
	require.NoError(t, e.Connect(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	assert.ErrorIs(t, e.Connect(context.Background()), ErrConnected)

	require.NoError(t, e.Send([]byte("query")))
	assert.Equal(t, []byte("query"), conn.writeData)

	conn.reads <- []byte("reply")
	select {
	case pkt := <-e.Replies():
		assert.Equal(t, []byte("reply"), pkt.Data)
		assert.Equal(t, uint16(53), pkt.Addr.Port())
	case <-time.After(2 * time.Second):
		t.Fatal("no reply delivered")
	}
	conn.AssertExpectations(t)
}

// warnLogger keeps the messages of Warn calls.
type warnLogger struct {
	log.Logger
	mu   sync.Mutex
	msgs []string
}

func (l *warnLogger) Warn(_ map[string]any, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *warnLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func TestEndpoint_FullBufferReplyIsFlagged(t *testing.T) {
	conn := newMockConn()
	logger := &warnLogger{Logger: log.NewNoopLogger()}

	e, err := New(Options{Server: "192.0.2.53:53", Dial: dialMock(conn), Logger: logger})
	require.NoError(t, err)
	require.NoError(t, e.Connect(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	receive := func(data []byte, want int) {
		t.Helper()
		conn.reads <- data
		select {
		case pkt := <-e.Replies():
			assert.Len(t, pkt.Data, want)
		case <-time.After(2 * time.Second):
			t.Fatal("no reply delivered")
		}
	}

	receive(make([]byte, domain.MaxUDPMessageSize-1), domain.MaxUDPMessageSize-1)
	assert.Empty(t, logger.warnings())

	// oversized replies are cut to the buffer and still delivered
	receive(make([]byte, domain.MaxUDPMessageSize+100), domain.MaxUDPMessageSize)
	assert.Equal(t, []string{"Upstream reply filled the receive buffer and may be truncated"}, logger.warnings())
}

func TestEndpoint_SendErrors(t *testing.T) {
	conn := newMockConn()
	conn.On("Write", []byte("one")).Return(0, errors.New("network down")).Once()
	conn.On("Write", []byte("three")).Return(2, nil).Once()

	e, err := New(Options{Server: "192.0.2.53:53", Dial: dialMock(conn)})
	require.NoError(t, err)
	require.NoError(t, e.Connect(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	err = e.Send([]byte("one"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write failed")

	err = e.Send([]byte("three"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short write: 2 of 5 bytes")
}

func TestEndpoint_CloseOnContextCancel(t *testing.T) {
	conn := newMockConn()
	e, err := New(Options{Server: "192.0.2.53:53", Dial: dialMock(conn)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Connect(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, open := <-e.Replies():
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, e.Close())
}

func TestEndpoint_CloseWithoutConnect(t *testing.T) {
	e, err := New(Options{Server: "192.0.2.53:53"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, open := <-e.Replies()
	assert.False(t, open)
	assert.ErrorIs(t, e.Connect(context.Background()), ErrClosed)
}

func TestEndpoint_RealUDP(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	go func() {
		buf := make([]byte, 512)
		n, from, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_, _ = server.WriteToUDP(append([]byte("echo:"), buf[:n]...), from)
	}()

	e, err := New(Options{Server: server.LocalAddr().String()})
	require.NoError(t, err)
	require.NoError(t, e.Connect(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.Send([]byte("ping")))
	select {
	case pkt := <-e.Replies():
		assert.Equal(t, "echo:ping", string(pkt.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from udp server")
	}
}
