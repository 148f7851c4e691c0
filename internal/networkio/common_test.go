package networkio

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/ovpngui/ovpngui/internal/vpntest"
)

type mockedConn struct {
	mu      sync.Mutex
	conn    *vpntest.Conn
	dataIn  [][]byte
	dataOut [][]byte
	closed  chan any
}

func (mc *mockedConn) NetworkWrites() [][]byte {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return append([][]byte{}, mc.dataIn...)
}

func newDialer(underlying *mockedConn) *vpntest.Dialer {
	dialer := &vpntest.Dialer{
		MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			return underlying.conn, nil
		},
	}
	return dialer
}

// newMockedConn returns a conn that returns dataOut chunk by chunk and then
// blocks until closed, returning io.EOF.
func newMockedConn(network string, dataOut [][]byte) *mockedConn {
	conn := &mockedConn{
		dataIn:  make([][]byte, 0),
		dataOut: dataOut,
		closed:  make(chan any),
	}
	var closeOnce sync.Once
	conn.conn = &vpntest.Conn{
		MockLocalAddr: func() net.Addr {
			return &vpntest.Addr{
				MockString:  func() string { return "127.0.0.1" },
				MockNetwork: func() string { return network },
			}
		},
		MockRead: func(b []byte) (int, error) {
			conn.mu.Lock()
			if len(conn.dataOut) > 0 {
				ln := copy(b, conn.dataOut[0])
				conn.dataOut = conn.dataOut[1:]
				conn.mu.Unlock()
				return ln, nil
			}
			conn.mu.Unlock()
			<-conn.closed
			return 0, io.EOF
		},
		MockWrite: func(b []byte) (int, error) {
			conn.mu.Lock()
			conn.dataIn = append(conn.dataIn, append([]byte{}, b...))
			conn.mu.Unlock()
			return len(b), nil
		},
		MockClose: func() error {
			closeOnce.Do(func() { close(conn.closed) })
			return nil
		},
	}
	return conn
}
