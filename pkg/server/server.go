package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clementraoulastek/tcp-server/pkg/protocol"
)

// ServerConfig holds the relay's runtime configuration.
type ServerConfig struct {
	Host        string
	TCPPort     int
	AcceptDelay time.Duration
	MetricsAddr string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Host:        "127.0.0.1",
		TCPPort:     12800,
		AcceptDelay: 100 * time.Millisecond,
	}
}

// Server is the relay hub. It accepts TCP connections, keeps track of which
// username each connection last spoke as, mirrors messages into the
// persistence store, and fans frames out to their destinations.
type Server struct {
	config     ServerConfig
	store      MessageStore
	registry   *Registry
	metrics    *Metrics
	listener   net.Listener
	metricsSrv *http.Server
	startTime  time.Time
	shutdown   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewServer creates a relay server backed by the given store.
func NewServer(config ServerConfig, store MessageStore) *Server {
	return &Server{
		config:    config,
		store:     store,
		registry:  NewRegistry(),
		startTime: time.Now(),
		shutdown:  make(chan struct{}),
	}
}

// SetMetrics attaches Prometheus metrics to the server and its registry.
func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
	s.registry.SetMetrics(metrics)
}

// Registry exposes the connection registry, mainly for diagnostics.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start begins listening for client connections. It returns once the
// listener is bound; accepting happens on background goroutines.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.TCPPort))

	listener, err := listenTCP(addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	logListenBacklog(listener.Addr().String())

	if s.config.MetricsAddr != "" {
		s.startMetricsServer()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorListenOverflows()
	}()

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the address the relay listener is bound to.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server: the listener and every client
// connection are closed, and all workers are waited for. Safe to call more
// than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.metricsSrv != nil {
			s.metricsSrv.Close()
		}

		// Closing the connections unblocks every worker read.
		s.registry.CloseAll()

		s.wg.Wait()
	})
	return nil
}

// listenTCP binds with SO_REUSEADDR set so a restarted relay can rebind its
// address immediately.
func listenTCP(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var optErr error
			if err := c.Control(func(fd uintptr) {
				optErr = setSocketOptions(fd)
			}); err != nil {
				return err
			}
			return optErr
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}

// startMetricsServer serves /metrics and /healthz on the configured
// observability address. This is a diagnostics socket, not a relay listener.
func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.HealthHandler)

	s.metricsSrv = &http.Server{Addr: s.config.MetricsAddr, Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorLog.Printf("Metrics server error: %v", err)
		}
	}()
}

// acceptLoop accepts incoming connections until the listener closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	listener := s.listener
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				errorLog.Printf("Accept error: %v", err)
				continue
			}
		}

		// Coarse accept throttle; the kernel backlog queues the burst.
		if s.config.AcceptDelay > 0 {
			time.Sleep(s.config.AcceptDelay)
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection owns one client connection from accept to teardown.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	// Disable Nagle's algorithm; relayed frames are tiny and latency wins.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sc := NewSafeConn(conn)
	addr := sc.Addr()

	s.registry.Register(addr, sc)

	// A connection that raced the shutdown would dodge CloseAll.
	select {
	case <-s.shutdown:
		s.dropConnection(sc)
		return
	default:
	}

	log.Printf("New connection from %s (%d active)", addr, s.registry.Count())

	// Everyone, the new client included, learns the updated count.
	s.broadcastConnCount()

	reader := bufio.NewReader(conn)
	for {
		frame, err := protocol.DecodeFrame(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrEmptyFrame) || isTransportError(err) {
				debugLog.Printf("Connection %s closed: %v", addr, err)
				s.dropConnection(sc)
				return
			}
			if errors.Is(err, protocol.ErrUnknownCommand) {
				errorLog.Printf("Connection %s sent an unknown command byte, dropping the connection", addr)
				if s.metrics != nil {
					s.metrics.RecordFrameDropped("unknown_command")
				}
				s.dropConnection(sc)
				return
			}
			errorLog.Printf("Connection %s read error: %v", addr, err)
			continue
		}

		// A bare command with no payload is how clients say goodbye.
		if frame.Payload == "" {
			debugLog.Printf("Connection %s sent an empty payload, closing", addr)
			s.dropConnection(sc)
			return
		}

		s.routeFrame(sc, frame)
	}
}

// dropConnection tears down one connection and tells the remaining clients
// the new count. Safe to call twice for the same connection: only the call
// that actually removes the registry entry broadcasts.
func (s *Server) dropConnection(sc *SafeConn) {
	sc.Close()

	if !s.registry.Unregister(sc.Addr()) {
		return
	}
	log.Printf("Connection %s closed (%d active)", sc.Addr(), s.registry.Count())

	if s.registry.Count() >= 1 {
		s.broadcastConnCount()
	}
}

// broadcastConnCount tells every live client how many connections the relay
// has, as a server notice.
func (s *Server) broadcastConnCount() {
	frame := &protocol.Frame{
		Command: protocol.CmdConnNb,
		Payload: strconv.Itoa(s.registry.Count()),
	}
	s.broadcast(frame, true)
}
