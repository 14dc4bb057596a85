// Package deepgram provides a Deepgram live-streaming recognizer over websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-reminder-assistant/internal/audio"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/observability/metrics"
	"voice-reminder-assistant/internal/service/recognizer"
)

const providerName = "deepgram"

// chunkSize is 100ms of 16-bit mono PCM at 16kHz.
const chunkSize = 3200

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
	// UtteranceEndMs is the pause after speech that ends a spell.
	UtteranceEndMs int
	Audio          audio.Config
}

// Recognizer implements recognizer.Recognizer for Deepgram.
type Recognizer struct {
	cfg     Config
	source  audio.Source
	dialer  *websocket.Dialer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Deepgram recognizer reading microphone audio from source.
func New(cfg Config, source audio.Source) *Recognizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.UtteranceEndMs <= 0 {
		cfg.UtteranceEndMs = 1500
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	return &Recognizer{
		cfg:     cfg,
		source:  source,
		dialer:  websocket.DefaultDialer,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("recognizer.deepgram"),
	}
}

// Name returns the provider identifier.
func (r *Recognizer) Name() string {
	return providerName
}

// Supported reports whether an API key and a microphone source are configured.
func (r *Recognizer) Supported() bool {
	return strings.TrimSpace(r.cfg.APIKey) != "" && r.source != nil
}

// Start opens the microphone and the listen websocket.
func (r *Recognizer) Start(ctx context.Context, cfg recognizer.Config) (recognizer.Stream, error) {
	if !r.Supported() {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", recognizer.ErrUnsupported)
	}

	wsURL, err := buildListenURL(r.cfg, cfg)
	if err != nil {
		return nil, err
	}

	mic, err := r.source.Start(ctx, r.cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", recognizer.ErrAudioCapture, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, _, err := r.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		_ = mic.Stop()
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	s := &stream{conn: conn, mic: mic, interim: cfg.Interim, logger: r.logger, metrics: r.metrics}
	s.pipe = recognizer.NewPipe(32, s.halt)
	s.pipe.Emit(recognizer.Started())

	go s.writeLoop()
	go s.readLoop()

	return s.pipe, nil
}

type stream struct {
	pipe    *recognizer.Pipe
	conn    *websocket.Conn
	mic     audio.Session
	interim bool
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// closing is set once the mic was stopped on purpose.
	closing atomic.Bool

	errMu    sync.Mutex
	audioErr error
}

// halt runs on the first Stop.
func (s *stream) halt() {
	s.stopMic()
	_ = s.conn.Close()
}

func (s *stream) stopMic() {
	s.closing.Store(true)
	_ = s.mic.Stop()
}

func (s *stream) micFailure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.audioErr
}

// writeLoop is the only writer on the connection.
func (s *stream) writeLoop() {
	buf := make([]byte, chunkSize)
	for {
		n, err := s.mic.Read(buf)
		if n > 0 {
			if writeErr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closing.Load() {
				s.errMu.Lock()
				s.audioErr = err
				s.errMu.Unlock()
				_ = s.conn.Close()
				return
			}
			break
		}
		if s.closing.Load() {
			break
		}
	}

	// Ask Deepgram to flush pending results and close the socket.
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

// readLoop translates provider messages into events. The pipe always ends with Ended.
func (s *stream) readLoop() {
	defer s.halt()
	defer s.pipe.Close()
	defer s.pipe.Emit(recognizer.Ended())

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.pipe.Stopped() {
				return
			}
			if micErr := s.micFailure(); micErr != nil {
				s.metrics.RecordProviderError(providerName, "audio_read")
				s.pipe.Emit(recognizer.Failure(recognizer.CodeAudioCapture, micErr))
				return
			}
			if isNormalClose(err) {
				return
			}
			s.metrics.RecordProviderError(providerName, recognizer.CodeNetwork)
			s.logger.Warn().Err(err).Msg("Deepgram stream failed")
			s.pipe.Emit(recognizer.Failure(recognizer.CodeNetwork, err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(response.Type, "Error"):
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.metrics.RecordProviderError(providerName, "provider")
			s.pipe.Emit(recognizer.Failure("service-error", errors.New(message)))
			return
		case strings.EqualFold(response.Type, "UtteranceEnd"):
			// Natural pause: stop sending and let Deepgram flush.
			s.stopMic()
			continue
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}
		final := response.IsFinal || response.SpeechFinal
		if !final && !s.interim {
			continue
		}
		if !s.pipe.Emit(recognizer.Result(final, transcript)) {
			return
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(providerCfg Config, streamCfg recognizer.Config) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	sampleRate := providerCfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := providerCfg.Audio.Channels
	if channels <= 0 {
		channels = 1
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", fmt.Sprintf("%d", channels))
	// utterance_end_ms requires interim results upstream.
	query.Set("interim_results", "true")
	query.Set("smart_format", fmt.Sprintf("%t", providerCfg.SmartFormat))
	query.Set("vad_events", "true")
	if providerCfg.UtteranceEndMs > 0 {
		query.Set("utterance_end_ms", fmt.Sprintf("%d", providerCfg.UtteranceEndMs))
	}
	if streamCfg.Language != "" {
		query.Set("language", streamCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
