package client

import "sync"

// State is the connection state tracked by the coordinator.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// connState guards the state so that only one connect is ever in flight.
type connState struct {
	mu       sync.Mutex
	state    State
	onChange func(from, to State)
}

// beginConnect moves Disconnected to Connecting. It returns false, leaving
// the state alone, when a connect is already in flight or established.
func (cs *connState) beginConnect() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state != StateDisconnected {
		return false
	}
	cs.transition(StateConnecting)
	return true
}

func (cs *connState) set(to State) State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	from := cs.state
	cs.transition(to)
	return from
}

// setIf moves to the target state only while the current state is one of
// from. It reports whether it did.
func (cs *connState) setIf(to State, from ...State) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, f := range from {
		if cs.state == f {
			cs.transition(to)
			return true
		}
	}
	return false
}

func (cs *connState) get() State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

// transition must be called with mu held.
func (cs *connState) transition(to State) {
	from := cs.state
	cs.state = to
	if from != to && cs.onChange != nil {
		cs.onChange(from, to)
	}
}
