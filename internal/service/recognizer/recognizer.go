// Package recognizer defines the speech recognition capability consumed by the
// capture session. A recognizer is message-passing: Start opens a stream, the
// stream reports typed events over a channel, and Stop asks it to halt.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventType identifies a recognition event.
type EventType int

const (
	// EventStarted - the engine began capturing audio.
	EventStarted EventType = iota
	// EventResult - an interim or final transcript.
	EventResult
	// EventError - the engine failed; Code carries its error code.
	EventError
	// EventEnded - the engine stopped for any reason, including a natural pause.
	EventEnded
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "STARTED"
	case EventResult:
		return "RESULT"
	case EventError:
		return "ERROR"
	case EventEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// Engine error codes. Providers translate their native failures into these.
const (
	CodeNoSpeech     = "no-speech"
	CodeAudioCapture = "audio-capture"
	CodeNotAllowed   = "not-allowed"
	CodeNetwork      = "network"
	CodeAborted      = "aborted"
)

// Event is a single message from a recognition stream.
type Event struct {
	Type       EventType
	Final      bool
	Transcript string
	Code       string
	Err        error
}

// Started returns an EventStarted.
func Started() Event { return Event{Type: EventStarted} }

// Ended returns an EventEnded.
func Ended() Event { return Event{Type: EventEnded} }

// Result returns a transcript event.
func Result(final bool, transcript string) Event {
	return Event{Type: EventResult, Final: final, Transcript: transcript}
}

// Failure returns an EventError with an engine code.
func Failure(code string, err error) Event {
	return Event{Type: EventError, Code: code, Err: err}
}

// Config configures a recognition stream.
type Config struct {
	Language   string
	Continuous bool
	Interim    bool
}

// Stream is one open recognition spell.
type Stream interface {
	// Events delivers events until the stream is finished, then closes.
	Events() <-chan Event
	// Stop asks the engine to halt. Safe to call more than once.
	Stop()
}

// Recognizer opens recognition streams.
type Recognizer interface {
	// Supported reports whether the platform offers recognition at all.
	Supported() bool
	Start(ctx context.Context, cfg Config) (Stream, error)
}

// Errors returned by Start.
var (
	ErrUnsupported  = errors.New("speech recognition is not supported on this platform")
	ErrAudioCapture = errors.New("audio capture unavailable")
	ErrNotAllowed   = errors.New("microphone access not allowed")
)

// Pipe is a Stream backed by a buffered channel, shared by the providers.
// The producer calls Emit and finally Close; Stop may be called by anyone.
type Pipe struct {
	events chan Event
	done   chan struct{}
	onStop func()

	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewPipe creates a pipe; onStop runs once on the first Stop.
func NewPipe(buffer int, onStop func()) *Pipe {
	return &Pipe{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

// Events implements Stream.
func (p *Pipe) Events() <-chan Event {
	return p.events
}

// Done is closed once Stop has been called.
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// Stopped reports whether Stop has been called.
func (p *Pipe) Stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Emit delivers ev unless the pipe was stopped. Returns false when dropped.
func (p *Pipe) Emit(ev Event) bool {
	if p.Stopped() {
		return false
	}
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

// Stop implements Stream.
func (p *Pipe) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		if p.onStop != nil {
			p.onStop()
		}
	})
}

// Close finishes the event channel. Only the producer may call it, after its last Emit.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() {
		close(p.events)
	})
}
