// Package speech sequences spoken prompts through a synthesis capability.
// Callers await Speak before reopening the microphone so the assistant never
// transcribes its own voice.
package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/observability/metrics"
)

// Synthesizer speaks text aloud and returns once playback ended, failed, or
// ctx was cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text, language string) error
}

// Channel is a last-writer-wins speech output: a new Speak cancels the one in
// flight and no prompt is ever queued.
type Channel struct {
	synth    Synthesizer
	language string
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewChannel creates a speech channel for one language.
func NewChannel(synth Synthesizer, language string, m *metrics.Metrics) *Channel {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Channel{
		synth:    synth,
		language: language,
		metrics:  m,
		logger:   logging.WithComponent("speech"),
	}
}

// Language returns the synthesis language.
func (c *Channel) Language() string {
	return c.language
}

// Speak synthesizes text and blocks until it is finished. Synthesis errors are
// logged and swallowed. Returns false when the utterance was cancelled, either
// through ctx, Cancel, or a newer Speak.
func (c *Channel) Speak(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}

	speakCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	start := time.Now()
	err := c.synth.Speak(speakCtx, text, c.language)
	cancelled := speakCtx.Err() != nil

	c.mu.Lock()
	if c.gen == gen {
		c.cancel = nil
	}
	c.mu.Unlock()
	cancel()

	failed := err != nil && !cancelled
	c.metrics.RecordSynthesis(time.Since(start).Seconds(), failed, cancelled)
	switch {
	case failed:
		c.logger.Warn().Err(err).Int("chars", len(text)).Msg("Speech synthesis failed")
	case cancelled:
		c.logger.Debug().Int("chars", len(text)).Msg("Speech cancelled")
	}
	return !cancelled
}

// Cancel stops in-flight speech, if any.
func (c *Channel) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Speaking reports whether an utterance is in flight.
func (c *Channel) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}
