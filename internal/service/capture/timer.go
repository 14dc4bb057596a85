package capture

import (
	"time"

	"voice-reminder-assistant/internal/clock"
)

// TimerKind names the timer occupying the session's timer slot.
type TimerKind int

const (
	TimerNone TimerKind = iota
	TimerHardTimeout
	TimerRestartDelay
	TimerFinalClose
)

// String returns the string representation of the timer kind.
func (k TimerKind) String() string {
	switch k {
	case TimerHardTimeout:
		return "hard_timeout"
	case TimerRestartDelay:
		return "restart_delay"
	case TimerFinalClose:
		return "final_close"
	default:
		return "none"
	}
}

// MarshalText renders the timer kind for JSON snapshots.
func (k TimerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// timerSlot holds at most one pending timer. Arming replaces the previous
// timer; every arm or cancel bumps the generation so a callback that lost a
// race with Stop sees a stale generation and does nothing.
// Not thread-safe: guarded by the session mutex.
type timerSlot struct {
	clock clock.Clock
	gen   uint64
	kind  TimerKind
	timer clock.Timer
}

// arm cancels any pending timer and schedules fire(gen) after d.
func (t *timerSlot) arm(kind TimerKind, d time.Duration, fire func(kind TimerKind, gen uint64)) {
	t.cancel()
	gen := t.gen
	t.kind = kind
	t.timer = t.clock.AfterFunc(d, func() { fire(kind, gen) })
}

// cancel drops the pending timer, if any.
func (t *timerSlot) cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.kind = TimerNone
}

// claim reports whether gen is still the live timer and, if so, empties the slot.
func (t *timerSlot) claim(gen uint64) bool {
	if gen != t.gen || t.kind == TimerNone {
		return false
	}
	t.timer = nil
	t.kind = TimerNone
	return true
}

func (t *timerSlot) pending() TimerKind {
	return t.kind
}
