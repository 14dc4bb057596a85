package dialogue

import "fmt"

// State is the turn the assistant is on.
type State int

const (
	// StateIdle - no dialogue in progress.
	StateIdle State = iota
	// StateAskingTopic - waiting for what the reminder is about.
	StateAskingTopic
	// StateAskingDate - waiting for the day.
	StateAskingDate
	// StateAskingTime - waiting for the time of day.
	StateAskingTime
	// StateAskingNotes - waiting for optional notes.
	StateAskingNotes
	// StateCompleted - the draft was handed to the sink; returns to Idle after a delay.
	StateCompleted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAskingTopic:
		return "ASKING_TOPIC"
	case StateAskingDate:
		return "ASKING_DATE"
	case StateAskingTime:
		return "ASKING_TIME"
	case StateAskingNotes:
		return "ASKING_NOTES"
	case StateCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText renders the state for JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Asking reports whether the state is waiting for an answer.
func (s State) Asking() bool {
	return s >= StateAskingTopic && s <= StateAskingNotes
}

// next is strictly linear; Completed and Idle have no successor.
func (s State) next() State {
	switch s {
	case StateAskingTopic:
		return StateAskingDate
	case StateAskingDate:
		return StateAskingTime
	case StateAskingTime:
		return StateAskingNotes
	case StateAskingNotes:
		return StateCompleted
	default:
		return s
	}
}
