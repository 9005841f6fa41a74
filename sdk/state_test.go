package sdk

import "testing"

func TestStateMachineHappyPath(t *testing.T) {
	type move struct{ from, to State }
	var seen []move
	m := newStateMachine(func(from, to State) { seen = append(seen, move{from, to}) })

	path := []State{StateConnecting, StateListening, StateSpeaking, StateListening, StateSpeaking, StateIdle}
	for _, next := range path {
		if !m.transition(next) {
			t.Fatalf("transition to %v refused from %v", next, m.State())
		}
	}
	if len(seen) != len(path) {
		t.Fatalf("onChange fired %d times, want %d", len(seen), len(path))
	}
	prev := StateIdle
	for i, next := range path {
		if seen[i].from != prev || seen[i].to != next {
			t.Fatalf("move %d = %v to %v, want %v to %v", i, seen[i].from, seen[i].to, prev, next)
		}
		prev = next
	}
}

func TestStateMachineRejectsIllegalMoves(t *testing.T) {
	m := newStateMachine(nil)

	if m.transition(StateSpeaking) {
		t.Fatal("idle must not jump straight to speaking")
	}
	if m.transition(StateListening) {
		t.Fatal("idle must not jump straight to listening")
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle", m.State())
	}

	m.transition(StateConnecting)
	if m.transition(StateSpeaking) {
		t.Fatal("connecting must not jump to speaking")
	}
}

func TestStateMachineIdleDropsStaleEvents(t *testing.T) {
	m := newStateMachine(nil)
	m.transition(StateConnecting)
	m.transition(StateListening)
	m.transition(StateIdle)

	// late audio callbacks after close must not restart the session
	if m.transition(StateSpeaking) || m.transition(StateListening) {
		t.Fatal("idle session resurrected by stale event")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateListening:  "listening",
		StateSpeaking:   "speaking",
		State(99):       "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
