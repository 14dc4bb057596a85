// Package config loads service configuration from environment variables.
// Unparseable values fall back to their defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Service       ServiceConfig
	Capture       CaptureConfig
	Recognizer    RecognizerConfig
	Audio         AudioConfig
	Synthesis     SynthesisConfig
	Dialogue      DialogueConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	GRPCPort    string
	HTTPPort    string
	MetricsPort string
	Timezone    string
}

type CaptureConfig struct {
	Language     string
	HardTimeout  time.Duration
	RestartDelay time.Duration
	FinalClose   time.Duration
}

type RecognizerConfig struct {
	Provider       string // mock, google, deepgram
	SampleRateHz   int
	AudioEncoding  string
	InterimResults bool
	DeepgramAPIKey string
	DeepgramBase   string
	DeepgramModel  string
}

type AudioConfig struct {
	FFMPEGCommand string
	InputFormat   string
	InputDevice   string
	Channels      int
}

type SynthesisConfig struct {
	Provider string // mock, command
	Command  string
	Args     []string
}

type DialogueConfig struct {
	CompletionDelay time.Duration
	MinAnswerLength int
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicReminders  string
	TopicUtterances string
	Principal       string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-reminder")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
			Timezone:    envOrDefault("REMINDER_TIMEZONE", "UTC"),
		},
		Capture: CaptureConfig{
			Language:     envOrDefault("CAPTURE_LANGUAGE", "en-US"),
			HardTimeout:  envOrDefaultDuration("CAPTURE_HARD_TIMEOUT", 30*time.Second),
			RestartDelay: envOrDefaultDuration("CAPTURE_RESTART_DELAY", 5*time.Second),
			FinalClose:   envOrDefaultDuration("CAPTURE_FINAL_CLOSE", 15*time.Second),
		},
		Recognizer: RecognizerConfig{
			Provider:       envOrDefault("RECOGNIZER_PROVIDER", "mock"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
			DeepgramBase:   envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			DeepgramModel:  envOrDefault("DEEPGRAM_MODEL", "nova-2"),
		},
		Audio: AudioConfig{
			FFMPEGCommand: envOrDefault("AUDIO_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:   envOrDefault("AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:   envOrDefault("AUDIO_INPUT_DEVICE", "default"),
			Channels:      envOrDefaultInt("AUDIO_CHANNELS", 1),
		},
		Synthesis: SynthesisConfig{
			Provider: envOrDefault("SYNTH_PROVIDER", "mock"),
			Command:  envOrDefault("SYNTH_COMMAND", "espeak-ng"),
			Args:     envOrDefaultList("SYNTH_ARGS", []string{"-v", "{lang}"}),
		},
		Dialogue: DialogueConfig{
			CompletionDelay: envOrDefaultDuration("DIALOGUE_COMPLETION_DELAY", 5*time.Second),
			MinAnswerLength: envOrDefaultInt("DIALOGUE_MIN_ANSWER_LENGTH", 2),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicReminders:  envOrDefault("KAFKA_TOPIC_REMINDERS", "assistant.reminder.created"),
			TopicUtterances: envOrDefault("KAFKA_TOPIC_UTTERANCES", "assistant.dialogue.turn"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
