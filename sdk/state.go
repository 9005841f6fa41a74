package sdk

import "sync"

// State is the client session lifecycle.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StateConnecting means the transport is being established.
	StateConnecting
	// StateListening means the session is live and the tutor is quiet.
	StateListening
	// StateSpeaking means tutor audio is currently playing.
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// legalTransitions encodes the lifecycle: idle starts a connection, a
// live session flips between listening and speaking, and anything can
// drop back to idle.
var legalTransitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateListening, StateIdle},
	StateListening:  {StateSpeaking, StateIdle},
	StateSpeaking:   {StateListening, StateIdle},
}

type stateMachine struct {
	mu       sync.Mutex
	current  State
	onChange func(from, to State)
}

func newStateMachine(onChange func(from, to State)) *stateMachine {
	return &stateMachine{current: StateIdle, onChange: onChange}
}

func (m *stateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// transition moves to next if the lifecycle allows it and reports
// whether it did. Illegal moves are dropped silently; stale audio events
// arriving after a close must not resurrect a session.
func (m *stateMachine) transition(next State) bool {
	m.mu.Lock()
	allowed := false
	for _, s := range legalTransitions[m.current] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return false
	}
	prev := m.current
	m.current = next
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(prev, next)
	}
	return true
}
