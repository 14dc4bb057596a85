// Package google provides a Google Cloud Speech-to-Text recognizer.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"voice-reminder-assistant/internal/audio"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/observability/metrics"
	"voice-reminder-assistant/internal/service/recognizer"
)

const providerName = "google"

// chunkSize is 100ms of 16-bit mono PCM at 16kHz.
const chunkSize = 3200

// Config holds Google STT configuration.
type Config struct {
	SampleRateHz   int
	AudioEncoding  string // LINEAR16, MULAW, FLAC, etc.
	InterimResults bool
	// SpeechStartTimeout ends a spell in which nobody starts talking.
	SpeechStartTimeout time.Duration
	// SpeechEndTimeout is the pause after speech that ends a spell.
	SpeechEndTimeout time.Duration
	Audio            audio.Config
}

// DefaultConfig returns default configuration for Google STT.
func DefaultConfig() Config {
	return Config{
		SampleRateHz:       16000,
		AudioEncoding:      "LINEAR16",
		InterimResults:     true,
		SpeechStartTimeout: 8 * time.Second,
		SpeechEndTimeout:   1500 * time.Millisecond,
	}
}

// openFunc opens one bidirectional recognition call.
type openFunc func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)

// Recognizer implements recognizer.Recognizer on top of StreamingRecognize.
type Recognizer struct {
	cfg     Config
	open    openFunc
	source  audio.Source
	metrics *metrics.Metrics
	logger  zerolog.Logger
	closer  io.Closer
}

// New creates a Google recognizer reading microphone audio from source.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, source audio.Source) (*Recognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	r := newRecognizer(cfg, source, func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return client.StreamingRecognize(ctx)
	})
	r.closer = client
	return r, nil
}

func newRecognizer(cfg Config, source audio.Source, open openFunc) *Recognizer {
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = DefaultConfig().SampleRateHz
	}
	cfg.Audio.SampleRate = cfg.SampleRateHz
	return &Recognizer{
		cfg:     cfg,
		open:    open,
		source:  source,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("recognizer.google"),
	}
}

// Name returns the provider identifier.
func (r *Recognizer) Name() string {
	return providerName
}

// Supported implements recognizer.Recognizer.
func (r *Recognizer) Supported() bool {
	return r.open != nil && r.source != nil
}

// Close releases the underlying client.
func (r *Recognizer) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Start opens the microphone and a recognition call, then sends the streaming
// config as the first message.
func (r *Recognizer) Start(ctx context.Context, cfg recognizer.Config) (recognizer.Stream, error) {
	if !r.Supported() {
		return nil, recognizer.ErrUnsupported
	}

	streamCtx, cancel := context.WithCancel(ctx)
	mic, err := r.source.Start(streamCtx, r.cfg.Audio)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", recognizer.ErrAudioCapture, err)
	}

	call, err := r.open(streamCtx)
	if err != nil {
		_ = mic.Stop()
		cancel()
		return nil, fmt.Errorf("failed to open recognition stream: %w", err)
	}

	if err := call.Send(r.configRequest(cfg)); err != nil {
		_ = mic.Stop()
		cancel()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &stream{call: call, mic: mic, cancel: cancel, logger: r.logger, metrics: r.metrics}
	s.pipe = recognizer.NewPipe(32, s.halt)
	s.pipe.Emit(recognizer.Started())

	go s.sendLoop()
	go s.recvLoop()

	r.logger.Debug().Str("language", cfg.Language).Msg("Google recognition stream started")
	return s.pipe, nil
}

func (r *Recognizer) configRequest(cfg recognizer.Config) *speechpb.StreamingRecognizeRequest {
	streaming := &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:        parseAudioEncoding(r.cfg.AudioEncoding),
			SampleRateHertz: int32(r.cfg.SampleRateHz),
			LanguageCode:    cfg.Language,
		},
		InterimResults:            cfg.Interim && r.cfg.InterimResults,
		SingleUtterance:           !cfg.Continuous,
		EnableVoiceActivityEvents: true,
	}
	if r.cfg.SpeechStartTimeout > 0 || r.cfg.SpeechEndTimeout > 0 {
		streaming.VoiceActivityTimeout = &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{}
		if r.cfg.SpeechStartTimeout > 0 {
			streaming.VoiceActivityTimeout.SpeechStartTimeout = durationpb.New(r.cfg.SpeechStartTimeout)
		}
		if r.cfg.SpeechEndTimeout > 0 {
			streaming.VoiceActivityTimeout.SpeechEndTimeout = durationpb.New(r.cfg.SpeechEndTimeout)
		}
	}
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streaming,
		},
	}
}

type stream struct {
	pipe    *recognizer.Pipe
	call    speechpb.Speech_StreamingRecognizeClient
	mic     audio.Session
	cancel  context.CancelFunc
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// closing is set once the mic was stopped on purpose.
	closing atomic.Bool

	mu       sync.Mutex
	audioErr error
}

// halt runs on the first Stop.
func (s *stream) halt() {
	s.stopMic()
	s.cancel()
}

func (s *stream) stopMic() {
	s.closing.Store(true)
	_ = s.mic.Stop()
}

func (s *stream) micFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioErr
}

// sendLoop forwards microphone audio until the mic closes or the stream stops.
// A broken mic cancels the call so recvLoop can report it.
func (s *stream) sendLoop() {
	defer func() { _ = s.call.CloseSend() }()

	buf := make([]byte, chunkSize)
	for {
		n, err := s.mic.Read(buf)
		if n > 0 {
			sendErr := s.call.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: append([]byte(nil), buf[:n]...),
				},
			})
			if sendErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closing.Load() {
				s.mu.Lock()
				s.audioErr = err
				s.mu.Unlock()
				s.cancel()
			}
			return
		}
		if s.closing.Load() {
			return
		}
	}
}

// recvLoop translates responses into events. The pipe always ends with Ended.
func (s *stream) recvLoop() {
	defer s.halt()
	defer s.pipe.Close()
	defer s.pipe.Emit(recognizer.Ended())

	for {
		resp, err := s.call.Recv()
		if err != nil {
			if s.pipe.Stopped() {
				return
			}
			if micErr := s.micFailure(); micErr != nil {
				s.metrics.RecordProviderError(providerName, "audio_read")
				s.pipe.Emit(recognizer.Failure(recognizer.CodeAudioCapture, micErr))
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			code := classify(err)
			if code == "" {
				return
			}
			s.metrics.RecordProviderError(providerName, code)
			s.logger.Warn().Err(err).Str("code", code).Msg("Google recognition failed")
			s.pipe.Emit(recognizer.Failure(code, err))
			return
		}

		switch resp.SpeechEventType {
		case speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE,
			speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_TIMEOUT:
			// Natural pause: stop sending and drain the remaining results.
			s.stopMic()
		}

		for _, res := range resp.Results {
			if len(res.Alternatives) == 0 {
				continue
			}
			text := strings.TrimSpace(res.Alternatives[0].Transcript)
			if text == "" {
				continue
			}
			if !s.pipe.Emit(recognizer.Result(res.IsFinal, text)) {
				return
			}
		}
	}
}

// classify maps a gRPC failure to an engine code. An empty code means the
// failure is a natural end of the call, such as the maximum stream duration.
func classify(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return recognizer.CodeNetwork
	}
	switch st.Code() {
	case codes.OK, codes.OutOfRange:
		return ""
	case codes.Canceled:
		return recognizer.CodeAborted
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Unauthenticated, codes.PermissionDenied:
		return recognizer.CodeNetwork
	default:
		return "service-error"
	}
}

// parseAudioEncoding converts string encoding name to speechpb enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
