package relay

import "sync"

// ControllerSet is the set of connections currently recognised as
// controllers. Membership begins on a connection's first accepted control/*
// request and ends only when the transport closes the connection.
//
// All methods are thread-safe. Iteration order of All is not significant;
// broadcasts are unordered fan-out.
type ControllerSet struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}
}

// NewControllerSet creates an empty controller set.
func NewControllerSet() *ControllerSet {
	return &ControllerSet{
		conns: make(map[Conn]struct{}),
	}
}

// Add registers a connection as a controller. Idempotent.
func (s *ControllerSet) Add(conn Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

// Remove deletes a connection from the set. Idempotent; no-op if absent.
func (s *ControllerSet) Remove(conn Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Contains reports whether a connection is currently a controller.
func (s *ControllerSet) Contains(conn Conn) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conns[conn]
	return ok
}

// All returns a snapshot of the current controller connections for
// broadcast fan-out. Sends happen outside the set's lock.
func (s *ControllerSet) All() []Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of current controllers.
func (s *ControllerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
