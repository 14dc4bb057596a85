package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	grpcapi "voice-reminder-assistant/internal/api/grpc"
	"voice-reminder-assistant/internal/audio"
	"voice-reminder-assistant/internal/config"
	"voice-reminder-assistant/internal/events"
	httpapi "voice-reminder-assistant/internal/http"
	"voice-reminder-assistant/internal/observability"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/observability/metrics"
	"voice-reminder-assistant/internal/service/capture"
	"voice-reminder-assistant/internal/service/dialogue"
	"voice-reminder-assistant/internal/service/permission"
	"voice-reminder-assistant/internal/service/recognizer"
	"voice-reminder-assistant/internal/service/recognizer/deepgram"
	"voice-reminder-assistant/internal/service/recognizer/google"
	mockrecognizer "voice-reminder-assistant/internal/service/recognizer/mock"
	"voice-reminder-assistant/internal/service/reminder"
	"voice-reminder-assistant/internal/service/speech"
	mockspeech "voice-reminder-assistant/internal/service/speech/mock"
	"voice-reminder-assistant/internal/service/temporal"
)

// ErrUnknownProvider is returned for an unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown provider")

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Metrics   *metrics.Metrics
	Publisher *events.Publisher
	Reminders *reminder.Service
	Capture   *capture.Session
	Speech    *speech.Channel
	Assistant *dialogue.Orchestrator
	Health    *grpcapi.Health
	Router    http.Handler

	recognizerCloser  io.Closer
	unsubscribeHealth func()
	grpcServer        *grpc.Server
	httpServer        *http.Server
	obsServer         *observability.Server
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		Service:    logging.ServiceName,
		Principal:  cfg.Service.Principal,
	})

	a := &Application{
		Cfg:     cfg,
		Logger:  logging.WithComponent("application"),
		Metrics: metrics.DefaultMetrics,
	}

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	loc, err := time.LoadLocation(cfg.Service.Timezone)
	if err != nil {
		appLogger.Warn().Err(err).Str("timezone", cfg.Service.Timezone).Msg("Unknown timezone, using UTC")
		loc = time.UTC
	}

	// Create Kafka publisher with separate topics for reminders and dialogue turns
	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicReminders:  cfg.Kafka.TopicReminders,
		TopicUtterances: cfg.Kafka.TopicUtterances,
		Principal:       cfg.Kafka.Principal,
	})
	a.Reminders = reminder.New(a.Publisher, cfg.Kafka.Principal, loc)

	source := audio.NewFFMPEGCapture(cfg.Audio.FFMPEGCommand)
	audioCfg := audio.Config{
		SampleRate:  cfg.Recognizer.SampleRateHz,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}

	rec, closer, err := newRecognizer(ctx, cfg.Recognizer, source, audioCfg)
	if err != nil {
		_ = a.Publisher.Close()
		return nil, err
	}
	a.recognizerCloser = closer

	var perm permission.Capability = permission.NewAudioProbe(source, audioCfg)
	if cfg.Recognizer.Provider == "mock" {
		// The scripted recognizer never touches the microphone.
		perm = permission.Static(permission.StatusGranted)
	}

	a.Capture = capture.NewSession(capture.Config{
		Language:     cfg.Capture.Language,
		Interim:      cfg.Recognizer.InterimResults,
		HardTimeout:  cfg.Capture.HardTimeout,
		RestartDelay: cfg.Capture.RestartDelay,
		FinalClose:   cfg.Capture.FinalClose,
	}, capture.Dependencies{
		Recognizer: rec,
		Permission: perm,
		Metrics:    a.Metrics,
	})

	synth, err := newSynthesizer(cfg.Synthesis)
	if err != nil {
		a.closeCore()
		return nil, err
	}
	a.Speech = speech.NewChannel(synth, cfg.Capture.Language, a.Metrics)

	a.Assistant = dialogue.NewOrchestrator(dialogue.Config{
		Language:        cfg.Capture.Language,
		MinAnswerLength: cfg.Dialogue.MinAnswerLength,
		CompletionDelay: cfg.Dialogue.CompletionDelay,
		Location:        loc,
	}, dialogue.Dependencies{
		Capture:  a.Capture,
		Speaker:  a.Speech,
		Sink:     a.Reminders,
		Recorder: a.Reminders,
		Metrics:  a.Metrics,
	})

	a.grpcServer = grpcapi.NewServer(a.Metrics)
	a.Health = grpcapi.Register(a.grpcServer)
	a.unsubscribeHealth = a.Capture.Subscribe(a.Health)

	a.Router = httpapi.NewRouter(httpapi.Dependencies{
		Assistant: a.Assistant,
		Capture:   a.Capture,
		Speaker:   a.Speech,
		Reminders: a.Reminders,
		Parser:    temporal.NewParser(temporal.ForLanguage(cfg.Capture.Language)),
	})
	a.httpServer = &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.obsServer = observability.NewServer(":"+cfg.Service.MetricsPort, a.Capture.Ready)

	appLogger.Info().
		Str("recognizer", cfg.Recognizer.Provider).
		Str("synthesizer", cfg.Synthesis.Provider).
		Str("language", cfg.Capture.Language).
		Bool("kafkaEnabled", a.Publisher.Enabled()).
		Msg("Voice reminder assistant application created")
	return a, nil
}

func newRecognizer(ctx context.Context, cfg config.RecognizerConfig, source audio.Source, audioCfg audio.Config) (recognizer.Recognizer, io.Closer, error) {
	switch cfg.Provider {
	case "mock":
		return mockrecognizer.New(mockrecognizer.DefaultConfig()), nil, nil
	case "google":
		gcfg := google.DefaultConfig()
		gcfg.SampleRateHz = cfg.SampleRateHz
		gcfg.AudioEncoding = cfg.AudioEncoding
		gcfg.InterimResults = cfg.InterimResults
		gcfg.Audio = audioCfg
		r, err := google.New(ctx, gcfg, source)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case "deepgram":
		return deepgram.New(deepgram.Config{
			APIKey:      cfg.DeepgramAPIKey,
			APIBaseURL:  cfg.DeepgramBase,
			Model:       cfg.DeepgramModel,
			SmartFormat: true,
			Audio:       audioCfg,
		}, source), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: recognizer %q", ErrUnknownProvider, cfg.Provider)
	}
}

func newSynthesizer(cfg config.SynthesisConfig) (speech.Synthesizer, error) {
	switch cfg.Provider {
	case "mock":
		return &mockspeech.Synthesizer{}, nil
	case "command":
		return speech.NewCommandSynthesizer(cfg.Command, cfg.Args), nil
	default:
		return nil, fmt.Errorf("%w: synthesizer %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Start initializes the capture session and starts serving traffic.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()

	if err := a.Capture.Init(ctx); err != nil {
		// Unsupported recognition is reported through readiness, not fatal.
		startLogger.Warn().Err(err).Msg("Speech capture unavailable")
	}
	a.Health.CaptureStateChanged(a.Capture.Snapshot())

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		startLogger.Info().Str("port", a.Cfg.Service.GRPCPort).Msg("gRPC server started")
		if err := a.grpcServer.Serve(lis); err != nil {
			startLogger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	go func() {
		startLogger.Info().Str("addr", a.httpServer.Addr).Msg("HTTP control API started")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startLogger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	a.obsServer.Start()

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Bool("ready", a.Capture.Ready()).
		Msg("Voice reminder assistant starting")
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Voice reminder assistant shutting down")

	a.Health.Shutdown()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if err := a.obsServer.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Observability server shutdown")
	}
	a.grpcServer.GracefulStop()

	a.Assistant.Close()
	a.unsubscribeHealth()
	a.closeCore()
}

func (a *Application) closeCore() {
	if a.Capture != nil {
		a.Capture.Close()
	}
	if a.recognizerCloser != nil {
		if err := a.recognizerCloser.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Recognizer close")
		}
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Kafka publisher close")
	}
}
