package mock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		text     string
		expected time.Duration
	}{
		{"", 2 * time.Second},
		{"short", 2 * time.Second},
		{"this sentence has thirty-six chars..", 3 * time.Second},
	}

	for _, tt := range tests {
		if got := EstimateDuration(tt.text); got != tt.expected {
			t.Errorf("EstimateDuration(%q) = %v, expected %v", tt.text, got, tt.expected)
		}
	}
}

func TestSynthesizer_Speak(t *testing.T) {
	s := &Synthesizer{Scale: 0.001}

	if err := s.Speak(context.Background(), "hello", "en-US"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got := s.Spoken(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("expected recorded text, got %v", got)
	}
}

func TestSynthesizer_Error(t *testing.T) {
	want := errors.New("no voice")
	s := &Synthesizer{Scale: 0.001, Err: want}

	if err := s.Speak(context.Background(), "hello", "en-US"); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestSynthesizer_Cancel(t *testing.T) {
	s := &Synthesizer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Speak(ctx, "hello", "en-US"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
