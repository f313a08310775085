package session

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle position of a session.
//
// Sessions move strictly forward: Created → Connecting → Active → Closing →
// Closed. Closed is terminal; operations on a closed session are no-ops or
// return an error, never a panic.
type State int32

const (
	// StateCreated is the initial state before any I/O.
	StateCreated State = iota

	// StateConnecting covers bind/connect in progress.
	StateConnecting

	// StateActive means the endpoint is bound and the stream flows.
	StateActive

	// StateClosing means teardown has started.
	StateClosing

	// StateClosed is terminal: background I/O has fully stopped.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// stateMachine is the shared atomic lifecycle tracker.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) get() State {
	return State(m.v.Load())
}

func (m *stateMachine) set(s State) {
	m.v.Store(int32(s))
}

// advance moves from a specific state to the next; it fails if another
// goroutine got there first.
func (m *stateMachine) advance(from, to State) bool {
	return m.v.CompareAndSwap(int32(from), int32(to))
}
