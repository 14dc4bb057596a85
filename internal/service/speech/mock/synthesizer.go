// Package mock provides a silent synthesizer that takes as long as reading the
// text aloud would.
package mock

import (
	"context"
	"math"
	"sync"
	"time"
)

// Synthesizer implements speech.Synthesizer without producing audio.
type Synthesizer struct {
	// Scale multiplies the estimated duration; 0 means 1.
	Scale float64
	// Err is returned after "speaking" when set.
	Err error

	mu     sync.Mutex
	spoken []string
}

// Speak waits for the estimated playback duration or until ctx is cancelled.
func (s *Synthesizer) Speak(ctx context.Context, text, _ string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()

	scale := s.Scale
	if scale == 0 {
		scale = 1
	}
	timer := time.NewTimer(time.Duration(float64(EstimateDuration(text)) * scale))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return s.Err
	}
}

// Spoken returns every text passed to Speak, in order.
func (s *Synthesizer) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// EstimateDuration approximates speaking time at twelve characters per second,
// never less than two seconds.
func EstimateDuration(text string) time.Duration {
	if len(text) == 0 {
		return 2 * time.Second
	}
	seconds := float64(len([]rune(text))) / 12.0
	seconds = math.Max(seconds, 2)
	return time.Duration(seconds * float64(time.Second))
}
