// Package client is a small client for the relay protocol: it dials the hub,
// pumps inbound frames into a channel, and serializes outbound writes. Load
// generators and bots build on it; it carries no UI.
package client

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/clementraoulastek/tcp-server/pkg/protocol"
)

// DialTimeout bounds the initial TCP connect.
const DialTimeout = 10 * time.Second

// Connection is one client connection to a relay. Frames read from the
// server arrive on Incoming; writes are safe for concurrent use.
type Connection struct {
	addr string

	mu        sync.Mutex
	conn      net.Conn
	connected bool

	incoming chan *protocol.Frame
	errs     chan error

	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConnection creates a client for the relay at addr (host:port).
func NewConnection(addr string) *Connection {
	return &Connection{
		addr:     addr,
		incoming: make(chan *protocol.Frame, 100),
		errs:     make(chan error, 10),
		shutdown: make(chan struct{}),
	}
}

// Connect dials the relay and starts the read pump.
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, err := net.DialTimeout("tcp", c.addr, DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	c.conn = conn
	c.connected = true

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// Send writes one frame to the relay.
func (c *Connection) Send(command protocol.Command, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	frame := &protocol.Frame{Command: command, Payload: payload}
	if err := protocol.EncodeFrame(c.conn, frame, false); err != nil {
		return fmt.Errorf("failed to send %s: %w", command, err)
	}
	return nil
}

// Incoming returns the channel of frames read from the relay. It is closed
// when the connection ends.
func (c *Connection) Incoming() <-chan *protocol.Frame {
	return c.incoming
}

// Errors returns the channel of read errors. A clean server-side close
// surfaces here too, as protocol.ErrEmptyFrame.
func (c *Connection) Errors() <-chan error {
	return c.errs
}

// IsConnected reports whether the connection is still up.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close tears the connection down and waits for the read pump to exit.
// Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.shutdown)

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connected = false
		c.mu.Unlock()

		c.wg.Wait()
	})
}

// readLoop pumps frames from the socket into the incoming channel until the
// connection ends.
func (c *Connection) readLoop() {
	defer c.wg.Done()
	defer close(c.incoming)

	reader := bufio.NewReader(c.conn)
	for {
		frame, err := protocol.DecodeFrame(reader)
		if err != nil {
			select {
			case <-c.shutdown:
				// The error is our own Close; nobody needs to hear it.
			default:
				select {
				case c.errs <- err:
				default:
				}
			}

			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			return
		}

		select {
		case c.incoming <- frame:
		case <-c.shutdown:
			return
		}
	}
}
