package capture

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of the capture session.
type State int

const (
	// StateIdle - not listening.
	StateIdle State = iota
	// StateStarting - a recognition stream was requested, engine not yet capturing.
	StateStarting
	// StateListening - the engine is capturing audio.
	StateListening
	// StateRestartPending - the engine ended on its own; a restart or final close is scheduled.
	StateRestartPending
	// StateError - the engine failed. Transient: the session settles in Idle.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateListening:
		return "LISTENING"
	case StateRestartPending:
		return "RESTART_PENDING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText renders the state for JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrInvalidTransition is returned for a transition the state machine forbids.
var ErrInvalidTransition = errors.New("invalid capture state transition")

// Lifecycle guards the capture state machine.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → STARTING → LISTENING → RESTART_PENDING → STARTING ...
//	          │           │              │
//	          │           │              └── final close / stop ──→ IDLE
//	          │           └── stop / hard timeout ──→ IDLE
//	          └── error ──→ ERROR ──→ IDLE
//
// Rules:
//   - Every non-idle state may return to IDLE through an explicit stop.
//   - ERROR is reachable from STARTING and LISTENING only and always settles in IDLE.
//   - A stream may end before reporting it started (STARTING → RESTART_PENDING).
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

var transitions = map[State][]State{
	StateIdle:           {StateStarting},
	StateStarting:       {StateListening, StateRestartPending, StateError, StateIdle},
	StateListening:      {StateRestartPending, StateError, StateIdle},
	StateRestartPending: {StateStarting, StateIdle},
	StateError:          {StateIdle},
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// CanTransition reports whether moving to next is allowed.
func (l *Lifecycle) CanTransition(next State) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return allowed(l.state, next)
}

// Transition moves to next or returns ErrInvalidTransition.
func (l *Lifecycle) Transition(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !allowed(l.state, next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, l.state, next)
	}
	l.state = next
	return nil
}

// Reset forces IDLE from any state. Idempotent.
func (l *Lifecycle) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateIdle
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
