// Package mock provides a scripted recognizer for running the assistant without
// a microphone or cloud credentials. Each stream plays one simulated utterance:
// progressive interim transcripts, exactly one final transcript, then a natural end.
package mock

import (
	"context"
	"sync"
	"time"

	"voice-reminder-assistant/internal/service/recognizer"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
// An empty Final simulates a silent spell that ends without speech.
type SimulatedUtterance struct {
	Partials []string
	Final    string
}

// DefaultUtterances answers every question of one reminder dialogue.
var DefaultUtterances = []SimulatedUtterance{
	{Partials: []string{"car", "car main"}, Final: "car maintenance"},
	{Partials: []string{"tomo"}, Final: "tomorrow"},
	{Partials: []string{"nine", "nine in the"}, Final: "9 in the morning"},
	{Partials: nil, Final: "no"},
}

// Config controls simulated timing.
type Config struct {
	Utterances   []SimulatedUtterance
	StartDelay   time.Duration
	PartialDelay time.Duration
	EndDelay     time.Duration
	Unsupported  bool
}

// DefaultConfig returns delays that feel like a real engine.
func DefaultConfig() Config {
	return Config{
		Utterances:   DefaultUtterances,
		StartDelay:   300 * time.Millisecond,
		PartialDelay: 150 * time.Millisecond,
		EndDelay:     400 * time.Millisecond,
	}
}

// Recognizer implements recognizer.Recognizer with scripted streams.
type Recognizer struct {
	cfg Config

	mu   sync.Mutex
	next int
}

// New creates a mock recognizer.
func New(cfg Config) *Recognizer {
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	return &Recognizer{cfg: cfg}
}

// Name returns the provider identifier.
func (r *Recognizer) Name() string {
	return "mock"
}

// Supported implements recognizer.Recognizer.
func (r *Recognizer) Supported() bool {
	return !r.cfg.Unsupported
}

// Start plays the next scripted utterance, cycling through the script.
func (r *Recognizer) Start(ctx context.Context, _ recognizer.Config) (recognizer.Stream, error) {
	if r.cfg.Unsupported {
		return nil, recognizer.ErrUnsupported
	}

	r.mu.Lock()
	utt := r.cfg.Utterances[r.next%len(r.cfg.Utterances)]
	r.next++
	r.mu.Unlock()

	pipe := recognizer.NewPipe(16, nil)
	go r.play(ctx, pipe, utt)
	return pipe, nil
}

func (r *Recognizer) play(ctx context.Context, pipe *recognizer.Pipe, utt SimulatedUtterance) {
	defer pipe.Close()

	if !pipe.Emit(recognizer.Started()) {
		return
	}
	if !r.wait(ctx, pipe, r.cfg.StartDelay) {
		return
	}
	for _, partial := range utt.Partials {
		if !pipe.Emit(recognizer.Result(false, partial)) {
			return
		}
		if !r.wait(ctx, pipe, r.cfg.PartialDelay) {
			return
		}
	}
	if utt.Final != "" {
		if !pipe.Emit(recognizer.Result(true, utt.Final)) {
			return
		}
	}
	if !r.wait(ctx, pipe, r.cfg.EndDelay) {
		return
	}
	pipe.Emit(recognizer.Ended())
}

func (r *Recognizer) wait(ctx context.Context, pipe *recognizer.Pipe, d time.Duration) bool {
	if d <= 0 {
		return !pipe.Stopped()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-pipe.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
