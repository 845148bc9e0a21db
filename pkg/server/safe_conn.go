package server

import (
	"net"
	"sync"

	"github.com/clementraoulastek/tcp-server/pkg/protocol"
)

// SafeConn wraps a net.Conn with write synchronization so that frames
// relayed to the same peer from concurrent workers never interleave.
type SafeConn struct {
	conn net.Conn
	addr string
	mu   sync.Mutex
}

// NewSafeConn wraps conn. The remote address is captured once and used as
// the registry key for the connection's whole lifetime.
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{
		conn: conn,
		addr: conn.RemoteAddr().String(),
	}
}

// Addr returns the remote address the connection is registered under.
func (c *SafeConn) Addr() string {
	return c.addr
}

// EncodeFrame writes one frame to the peer, serializing concurrent writers.
func (c *SafeConn) EncodeFrame(frame *protocol.Frame, fromServer bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.EncodeFrame(c.conn, frame, fromServer)
}

// Close closes the underlying connection. Safe to call more than once.
func (c *SafeConn) Close() error {
	return c.conn.Close()
}
