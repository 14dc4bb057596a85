// Package permission probes microphone access.
package permission

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"voice-reminder-assistant/internal/audio"
)

// Status is the recorded outcome of a microphone probe.
type Status int

const (
	StatusUnknown Status = iota
	StatusGranted
	StatusDenied
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// MarshalText renders the status for JSON snapshots.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Capability requests microphone access.
type Capability interface {
	RequestMicrophoneAccess(ctx context.Context) Status
}

// Static always answers with the same status.
type Static Status

// RequestMicrophoneAccess implements Capability.
func (s Static) RequestMicrophoneAccess(context.Context) Status {
	return Status(s)
}

// AudioProbe acquires the microphone through an audio source and releases it
// immediately. Any failure to open the device counts as denied.
type AudioProbe struct {
	source audio.Source
	cfg    audio.Config
}

// NewAudioProbe returns a probe over source.
func NewAudioProbe(source audio.Source, cfg audio.Config) *AudioProbe {
	return &AudioProbe{source: source, cfg: cfg}
}

// RequestMicrophoneAccess implements Capability.
func (p *AudioProbe) RequestMicrophoneAccess(ctx context.Context) Status {
	logger := log.With().Str("component", "permission").Logger()

	session, err := p.source.Start(ctx, p.cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Microphone probe failed, treating as denied")
		return StatusDenied
	}
	if err := session.Stop(); err != nil {
		logger.Debug().Err(err).Msg("Microphone probe release reported an error")
	}

	logger.Info().Msg("Microphone access granted")
	return StatusGranted
}
