package server

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/clementraoulastek/tcp-server/pkg/protocol"
)

// initTestLoggers silences the package loggers for tests.
func initTestLoggers(t *testing.T) {
	errorLog = log.New(io.Discard, "", 0)
	debugLog = log.New(io.Discard, "", 0)
}

// sentMessage records one SendMessage call.
type sentMessage struct {
	Sender     string
	Receiver   string
	Text       string
	ResponseID int64
}

// sentReaction records one UpdateReactionCount call.
type sentReaction struct {
	MessageID     int64
	ReactionCount int64
}

// mockStore is an in-memory MessageStore. Ids are handed out sequentially
// starting from nextID.
type mockStore struct {
	mu           sync.Mutex
	nextID       int64
	failSend     bool
	failReaction bool
	messages     []sentMessage
	reactions    []sentReaction
}

func newMockStore() *mockStore {
	return &mockStore{nextID: 1}
}

func (m *mockStore) SendMessage(sender, receiver, text string, responseID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSend {
		return 0, errors.New("store unavailable")
	}
	m.messages = append(m.messages, sentMessage{sender, receiver, text, responseID})
	id := m.nextID
	m.nextID++
	return id, nil
}

func (m *mockStore) UpdateReactionCount(messageID, reactionCount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failReaction {
		return errors.New("store unavailable")
	}
	m.reactions = append(m.reactions, sentReaction{messageID, reactionCount})
	return nil
}

func (m *mockStore) UpdateReadStatus(sender, receiver string, isRead bool) error {
	return nil
}

func (m *mockStore) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.messages...)
}

func (m *mockStore) sentReactions() []sentReaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentReaction(nil), m.reactions...)
}

// mockAddr implements net.Addr with a fixed address string.
type mockAddr struct {
	addr string
}

func (m mockAddr) Network() string { return "tcp" }
func (m mockAddr) String() string  { return m.addr }

// mockConn implements net.Conn, capturing everything written to it. Each
// mockConn needs its own address because the registry keys on it.
type mockConn struct {
	mu       sync.Mutex
	writeBuf bytes.Buffer
	addr     string
	closed   bool
}

func newMockConn(addr string) *mockConn {
	return &mockConn{addr: addr}
}

func (m *mockConn) Read(b []byte) (int, error) {
	return 0, io.EOF
}

func (m *mockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	return m.writeBuf.Write(b)
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) LocalAddr() net.Addr                { return mockAddr{"127.0.0.1:12800"} }
func (m *mockConn) RemoteAddr() net.Addr               { return mockAddr{m.addr} }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// writtenFrames decodes every frame written to this connection so far.
func (m *mockConn) writtenFrames(t *testing.T) []*protocol.Frame {
	t.Helper()

	m.mu.Lock()
	data := append([]byte(nil), m.writeBuf.Bytes()...)
	m.mu.Unlock()

	reader := bytes.NewReader(data)
	var frames []*protocol.Frame
	for {
		frame, err := protocol.DecodeFrame(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrEmptyFrame) {
				return frames
			}
			t.Fatalf("Failed to decode a written frame: %v", err)
		}
		frames = append(frames, frame)
	}
}

// testServer builds a relay wired to a fresh mock store, with no listener.
func testServer(t *testing.T) (*Server, *mockStore) {
	t.Helper()
	initTestLoggers(t)

	store := newMockStore()
	srv := NewServer(DefaultConfig(), store)
	return srv, store
}

// registerTestConn registers a captured connection under addr.
func registerTestConn(srv *Server, addr string) (*SafeConn, *mockConn) {
	conn := newMockConn(addr)
	sc := NewSafeConn(conn)
	srv.registry.Register(addr, sc)
	return sc, conn
}
