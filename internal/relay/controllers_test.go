package relay

import "testing"

func TestControllerSet_AddIdempotent(t *testing.T) {
	s := NewControllerSet()
	conn := newFakeConn("ctrl")

	s.Add(conn)
	s.Add(conn)

	if s.Len() != 1 {
		t.Errorf("Len() = %d after double add, want 1", s.Len())
	}
	if !s.Contains(conn) {
		t.Error("Contains() = false for added connection")
	}
}

func TestControllerSet_RemoveIdempotent(t *testing.T) {
	s := NewControllerSet()
	conn := newFakeConn("ctrl")
	s.Add(conn)

	s.Remove(conn)
	s.Remove(conn) // no-op

	if s.Len() != 0 {
		t.Errorf("Len() = %d after removal, want 0", s.Len())
	}
	if s.Contains(conn) {
		t.Error("Contains() = true after removal")
	}
}

func TestControllerSet_RemoveAbsent(t *testing.T) {
	s := NewControllerSet()
	s.Add(newFakeConn("a"))

	s.Remove(newFakeConn("b"))

	if s.Len() != 1 {
		t.Error("removing an absent connection must not touch other members")
	}
}

func TestControllerSet_All(t *testing.T) {
	s := NewControllerSet()
	a := newFakeConn("a")
	b := newFakeConn("b")
	s.Add(a)
	s.Add(b)

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d, want 2", len(all))
	}

	seen := map[Conn]bool{}
	for _, c := range all {
		seen[c] = true
	}
	if !seen[a] || !seen[b] {
		t.Error("All() missing a member")
	}
}
