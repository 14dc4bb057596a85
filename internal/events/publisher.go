// Package events publishes reminder and dialogue audit events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-reminder-assistant/internal/models"
	"voice-reminder-assistant/internal/observability/metrics"
)

// Publisher publishes reminders and turn events to separate Kafka topics.
type Publisher struct {
	writerReminders  *kafka.Writer
	writerUtterances *kafka.Writer
	principal        string
	topicReminders   string
	topicUtterances  string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicReminders  string
	TopicUtterances string
	Principal       string
	Enabled         bool
}

// New creates a Kafka event publisher. A nil or disabled config yields a
// log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicReminders:  cfg.TopicReminders,
			topicUtterances: cfg.TopicUtterances,
			enabled:         false,
			metrics:         m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerReminders := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicReminders,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
	}

	// Audit events tolerate weaker acks
	writerUtterances := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicUtterances,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicReminders", cfg.TopicReminders).
		Str("topicUtterances", cfg.TopicUtterances).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerReminders:  writerReminders,
		writerUtterances: writerUtterances,
		principal:        cfg.Principal,
		topicReminders:   cfg.TopicReminders,
		topicUtterances:  cfg.TopicUtterances,
		enabled:          true,
		metrics:          m,
	}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishReminder publishes a created reminder keyed by its id.
func (p *Publisher) PublishReminder(ctx context.Context, reminder models.Reminder) error {
	return p.publish(ctx, p.writerReminders, p.topicReminders, models.EventReminderCreated, reminder.ID, reminder)
}

// PublishTurn publishes a dialogue turn keyed by dialogue id, keeping a
// dialogue's turns ordered within one partition.
func (p *Publisher) PublishTurn(ctx context.Context, turn models.TurnEvent) error {
	return p.publish(ctx, p.writerUtterances, p.topicUtterances, models.EventTurnRecorded, turn.DialogueID, turn)
}

// publish writes one event to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerReminders != nil {
		if e := p.writerReminders.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing reminders writer")
			err = e
		}
	}
	if p.writerUtterances != nil {
		if e := p.writerUtterances.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing utterances writer")
			err = e
		}
	}
	return err
}
