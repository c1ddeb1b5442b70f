package comms

import (
	"testing"
)

type recorder struct {
	msgs [][]byte
}

func (r *recorder) send(data []byte) { r.msgs = append(r.msgs, data) }

func TestTable_SendRoutesByAgent(t *testing.T) {
	tbl := NewTable()
	rec := &recorder{}

	tbl.Attach("c1", rec.send)
	if err := tbl.Bind("agent-a", "c1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := tbl.Send("agent-a", []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(rec.msgs) != 1 || string(rec.msgs[0]) != "hello" {
		t.Errorf("msgs = %v, want [hello]", rec.msgs)
	}

	if err := tbl.Send("agent-b", []byte("nope")); err == nil {
		t.Error("Send to unbound agent succeeded")
	}
}

func TestTable_BindRequiresAttachedConnection(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Bind("agent-a", "ghost"); err == nil {
		t.Fatal("Bind accepted an unattached connection")
	}
}

func TestTable_DetachReturnsBoundAgents(t *testing.T) {
	tbl := NewTable()
	rec := &recorder{}

	tbl.Attach("c1", rec.send)
	if err := tbl.Bind("agent-a", "c1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	orphaned := tbl.Detach("c1")
	if len(orphaned) != 1 || orphaned[0] != "agent-a" {
		t.Fatalf("Detach = %v, want [agent-a]", orphaned)
	}
	if err := tbl.Send("agent-a", []byte("gone")); err == nil {
		t.Error("Send succeeded after detach")
	}
	if tbl.Detach("c1") != nil {
		t.Error("second Detach returned agents")
	}
}

func TestTable_RebindMovesAgent(t *testing.T) {
	tbl := NewTable()
	oldConn, newConn := &recorder{}, &recorder{}

	tbl.Attach("c1", oldConn.send)
	tbl.Attach("c2", newConn.send)
	if err := tbl.Bind("agent-a", "c1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := tbl.Bind("agent-a", "c2"); err != nil {
		t.Fatalf("rebind: %v", err)
	}

	if err := tbl.Send("agent-a", []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(oldConn.msgs) != 0 {
		t.Errorf("old connection received %v, want nothing", oldConn.msgs)
	}
	if len(newConn.msgs) != 1 {
		t.Errorf("new connection received %d messages, want 1", len(newConn.msgs))
	}

	// Detaching the old connection must not orphan the moved agent.
	if orphaned := tbl.Detach("c1"); len(orphaned) != 0 {
		t.Errorf("Detach old conn = %v, want no orphans", orphaned)
	}
}

func TestTable_BroadcastAndRelay(t *testing.T) {
	tbl := NewTable()
	c1, c2, c3 := &recorder{}, &recorder{}, &recorder{}

	tbl.Attach("c1", c1.send)
	tbl.Attach("c2", c2.send)
	tbl.Attach("c3", c3.send)

	tbl.Broadcast([]byte("all"))
	for i, rec := range []*recorder{c1, c2, c3} {
		if len(rec.msgs) != 1 {
			t.Errorf("conn %d received %d broadcasts, want 1", i+1, len(rec.msgs))
		}
	}

	tbl.Relay("c2", []byte("others"))
	if len(c2.msgs) != 1 {
		t.Errorf("sender received its own relay")
	}
	if len(c1.msgs) != 2 || len(c3.msgs) != 2 {
		t.Errorf("relay reached %d/%d, want both other connections", len(c1.msgs), len(c3.msgs))
	}

	if tbl.Len() != 3 {
		t.Errorf("Len = %d, want 3", tbl.Len())
	}
}
