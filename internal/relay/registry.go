package relay

import (
	"encoding/json"
	"sync"
)

// Logger defines the logging interface used by the relay components.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the live device registry: a bidirectional mapping between
// device identity (udid) and connection, plus the last-known state payload
// per device.
//
// Invariant: the set of udids with a connection entry and the set of udids
// with a state entry are always identical. Both are written together under
// one lock on registration and removed together on disconnect.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn            // udid -> connection
	udids  map[Conn]string            // connection -> udid (reverse map)
	states map[string]json.RawMessage // udid -> last app/state body
	logger Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		udids:  make(map[Conn]string),
		states: make(map[string]json.RawMessage),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register inserts or overwrites the device entry for udid.
//
// If the udid was already registered under a different connection, the
// superseded connection is returned so the caller can close it. The
// superseded connection is unlinked from the reverse map, so its own
// disconnect cleanup becomes a no-op.
func (r *Registry) Register(udid string, conn Conn, state json.RawMessage) (superseded Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[udid]; ok && prev != conn {
		delete(r.udids, prev)
		superseded = prev
	}

	r.conns[udid] = conn
	r.udids[conn] = udid
	r.states[udid] = state

	return superseded
}

// Lookup returns the connection for a udid, if registered.
func (r *Registry) Lookup(udid string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[udid]
	return conn, ok
}

// UDIDOf returns the udid bound to a connection, if any.
func (r *Registry) UDIDOf(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	udid, ok := r.udids[conn]
	return udid, ok
}

// Remove deletes the device entry bound to the given connection: forward
// map, reverse map, and state snapshot together. It returns the removed
// udid, or false if the connection has no device entry (no-op).
func (r *Registry) Remove(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	udid, ok := r.udids[conn]
	if !ok {
		return "", false
	}

	delete(r.udids, conn)
	delete(r.conns, udid)
	delete(r.states, udid)

	return udid, true
}

// Snapshot returns a copy of the full registry state, keyed by udid.
// Used to answer control/devices requests.
func (r *Registry) Snapshot() map[string]json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]json.RawMessage, len(r.states))
	for udid, state := range r.states {
		snapshot[udid] = state
	}
	return snapshot
}

// Connections returns the current device connections, for broadcast fan-out
// (status poll, control/refresh). The slice is a snapshot; sends happen
// outside the registry lock.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
