// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
	Service    string    // stamped on every line
	Principal  string    // identity the assistant acts as; optional
	Output     io.Writer // defaults to stdout
}

// ServiceName tags every log line of the assistant process.
const ServiceName = "voice-reminder-assistant"

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
		Service:    ServiceName,
	}
}

// Init sets up the global zerolog logger. An unknown level falls back to info.
func Init(cfg Config) {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
	}

	if cfg.Service == "" {
		cfg.Service = ServiceName
	}
	ctx := zerolog.New(output).With().
		Timestamp().
		Str("service", cfg.Service)
	if cfg.Principal != "" {
		ctx = ctx.Str("principal", cfg.Principal)
	}
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// Logger returns a new logger with common fields for the service.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithDialogue returns a logger with dialogue context.
func WithDialogue(dialogueID, state string) zerolog.Logger {
	return log.With().
		Str("component", "dialogue").
		Str("dialogueId", dialogueID).
		Str("state", state).
		Logger()
}

// WithCapture returns a logger with capture session context.
func WithCapture(language, provider string) zerolog.Logger {
	return log.With().
		Str("component", "capture").
		Str("language", language).
		Str("recognizer", provider).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
