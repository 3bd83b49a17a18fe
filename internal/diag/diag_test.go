package diag

import "testing"

func TestRingKeepsBound(t *testing.T) {
	ring := NewRing(3)
	for i := 0; i < 5; i++ {
		ring.Emit("test", string(rune('a'+i)))
	}
	if ring.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", ring.Len())
	}
	events := ring.Events()
	if events[0].Message != "c" || events[2].Message != "e" {
		t.Fatalf("unexpected ordering: %v", events)
	}
}

func TestRingPartialFill(t *testing.T) {
	ring := NewRing(10)
	ring.Emit("test", "first")
	ring.Emit("test", "second")
	events := ring.Events()
	if len(events) != 2 || events[0].Message != "first" {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestDiscardIsSafe(t *testing.T) {
	Discard.Emit("test", "ignored")
}
