package server

import "sync"

// home is the reserved receiver name that addresses every live connection.
// It is never recorded as a username.
const home = "home"

// Registry tracks every live connection and the username each remote address
// most recently identified as. One mutex guards both maps so a connection
// and the username pointing at it are always added and removed together.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*SafeConn // remote address -> connection
	users   map[string]string    // username -> remote address
	metrics *Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*SafeConn),
		users: make(map[string]string),
	}
}

// SetMetrics attaches Prometheus metrics to the registry.
func (r *Registry) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// Register adds a connection under its remote address.
func (r *Registry) Register(addr string, conn *SafeConn) {
	r.mu.Lock()
	r.conns[addr] = conn
	count := len(r.conns)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordConnection()
		r.metrics.RecordActiveConnections(count)
	}
}

// Identify records addr as the live connection for username. The reserved
// broadcast name is skipped. Last writer wins: a username claimed from two
// addresses resolves to the most recent one.
func (r *Registry) Identify(addr, username string) {
	if username == home {
		return
	}
	r.mu.Lock()
	r.users[username] = addr
	r.mu.Unlock()
}

// Unregister removes the connection registered under addr together with the
// username pointing at it, reporting whether an entry was actually removed.
// At most one username references an address in steady state, so the scan
// stops at the first match.
func (r *Registry) Unregister(addr string) bool {
	r.mu.Lock()
	if _, ok := r.conns[addr]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, addr)

	for username, userAddr := range r.users {
		if userAddr == addr {
			delete(r.users, username)
			break
		}
	}
	count := len(r.conns)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordDisconnection()
		r.metrics.RecordActiveConnections(count)
	}
	return true
}

// Get returns the connection registered under addr.
func (r *Registry) Get(addr string) (*SafeConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[addr]
	return conn, ok
}

// Resolve returns the address username last identified from.
func (r *Registry) Resolve(username string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.users[username]
	return addr, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// BroadcastTargets returns a snapshot of every live connection, so callers
// can write to the peers without holding the registry lock.
func (r *Registry) BroadcastTargets() []*SafeConn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]*SafeConn, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	return targets
}

// CloseAll closes every connection and empties both maps.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.conns {
		conn.Close()
	}
	r.conns = make(map[string]*SafeConn)
	r.users = make(map[string]string)
}
