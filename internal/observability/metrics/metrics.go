// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_reminder"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Capture session metrics
	CaptureStarts        prometheus.Counter
	CaptureRestarts      prometheus.Counter
	CaptureSilenceCloses prometheus.Counter
	CaptureHardTimeouts  prometheus.Counter
	CaptureErrors        *prometheus.CounterVec
	CaptureActive        prometheus.Gauge
	ListeningDuration    prometheus.Histogram

	// Recognition metrics
	TranscriptsInterim prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	ProviderErrors     *prometheus.CounterVec

	// Speech output metrics
	SynthesisDuration prometheus.Histogram
	SynthesisFailures prometheus.Counter
	SynthesisCancels  prometheus.Counter

	// Dialogue metrics
	DialoguesStarted  prometheus.Counter
	DialoguesFinished *prometheus.CounterVec
	DialoguesActive   prometheus.Gauge
	AnswersAccepted   *prometheus.CounterVec
	AnswersRejected   *prometheus.CounterVec

	// Temporal parser metrics
	TemporalParses *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	RPCStreamsActive prometheus.Gauge
	RPCDuration      *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture session metrics
		CaptureStarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_starts_total",
			Help:      "Total number of recognition streams opened, including restarts",
		}),
		CaptureRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_restarts_total",
			Help:      "Total number of automatic restarts after a silence end",
		}),
		CaptureSilenceCloses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_silence_closes_total",
			Help:      "Total number of listening sessions closed after prolonged silence",
		}),
		CaptureHardTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_hard_timeouts_total",
			Help:      "Total number of listening spells cut off by the hard timeout",
		}),
		CaptureErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Total number of capture errors by normalized kind",
		}, []string{"kind"}),
		CaptureActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_active",
			Help:      "1 while the microphone marker is set",
		}),
		ListeningDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listening_duration_seconds",
			Help:      "Duration of listening sessions from start to stop",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120},
		}),

		// Recognition metrics
		TranscriptsInterim: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Total number of interim transcripts received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts received",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Total number of recognition provider errors",
		}, []string{"provider", "error_type"}),

		// Speech output metrics
		SynthesisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Time spent speaking one prompt",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		SynthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_failures_total",
			Help:      "Total number of swallowed synthesis failures",
		}),
		SynthesisCancels: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_cancels_total",
			Help:      "Total number of prompts cut off by a newer prompt or a cancel",
		}),

		// Dialogue metrics
		DialoguesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogues_started_total",
			Help:      "Total number of reminder dialogues started",
		}),
		DialoguesFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogues_finished_total",
			Help:      "Total number of reminder dialogues finished by outcome",
		}, []string{"outcome"}),
		DialoguesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dialogues_active",
			Help:      "1 while a dialogue is in progress",
		}),
		AnswersAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_accepted_total",
			Help:      "Total number of answers accepted per dialogue state",
		}, []string{"state"}),
		AnswersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_rejected_total",
			Help:      "Total number of utterances rejected per dialogue state and reason",
		}, []string{"state", "reason"}),

		// Temporal parser metrics
		TemporalParses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temporal_parses_total",
			Help:      "Total number of date and time resolutions by matched rule",
		}, []string{"kind", "rule"}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// gRPC metrics
		RPCStreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of currently open gRPC streams",
		}),
		RPCDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_duration_seconds",
			Help:      "Duration of gRPC calls in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60, 300},
		}, []string{"method", "code"}),
	}
}

// RecordCaptureStart records a recognition stream being opened.
func (m *Metrics) RecordCaptureStart(restart bool) {
	m.CaptureStarts.Inc()
	if restart {
		m.CaptureRestarts.Inc()
	}
}

// RecordSilenceClose records a listening session given up after silence.
func (m *Metrics) RecordSilenceClose() {
	m.CaptureSilenceCloses.Inc()
}

// RecordHardTimeout records a listening spell cut off by the hard timeout.
func (m *Metrics) RecordHardTimeout() {
	m.CaptureHardTimeouts.Inc()
}

// RecordCaptureError records a normalized capture error.
func (m *Metrics) RecordCaptureError(kind string) {
	m.CaptureErrors.WithLabelValues(kind).Inc()
}

// SetCaptureActive sets the microphone marker gauge.
func (m *Metrics) SetCaptureActive(active bool) {
	if active {
		m.CaptureActive.Set(1)
	} else {
		m.CaptureActive.Set(0)
	}
}

// RecordListeningEnded records how long a listening session lasted.
func (m *Metrics) RecordListeningEnded(durationSeconds float64) {
	m.ListeningDuration.Observe(durationSeconds)
}

// RecordTranscript records an interim or final transcript.
func (m *Metrics) RecordTranscript(final bool) {
	if final {
		m.TranscriptsFinal.Inc()
	} else {
		m.TranscriptsInterim.Inc()
	}
}

// RecordProviderError records a recognition provider error.
func (m *Metrics) RecordProviderError(provider, errorType string) {
	m.ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordSynthesis records one spoken prompt.
func (m *Metrics) RecordSynthesis(durationSeconds float64, failed, cancelled bool) {
	m.SynthesisDuration.Observe(durationSeconds)
	if failed {
		m.SynthesisFailures.Inc()
	}
	if cancelled {
		m.SynthesisCancels.Inc()
	}
}

// RecordDialogueStarted records a dialogue starting.
func (m *Metrics) RecordDialogueStarted() {
	m.DialoguesStarted.Inc()
	m.DialoguesActive.Set(1)
}

// RecordDialogueFinished records a dialogue ending with outcome.
func (m *Metrics) RecordDialogueFinished(outcome string) {
	m.DialoguesFinished.WithLabelValues(outcome).Inc()
	m.DialoguesActive.Set(0)
}

// RecordAnswer records an accepted or rejected utterance.
func (m *Metrics) RecordAnswer(state string, accepted bool, reason string) {
	if accepted {
		m.AnswersAccepted.WithLabelValues(state).Inc()
		return
	}
	m.AnswersRejected.WithLabelValues(state, reason).Inc()
}

// RecordTemporalParse records which rule resolved a date or time.
func (m *Metrics) RecordTemporalParse(kind, rule string) {
	m.TemporalParses.WithLabelValues(kind, rule).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRPC records a finished gRPC call.
func (m *Metrics) RecordRPC(method, code string, durationSeconds float64) {
	m.RPCDuration.WithLabelValues(method, code).Observe(durationSeconds)
}
