package events

import (
	"context"
	"testing"
	"time"

	"voice-reminder-assistant/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerReminders != nil {
				t.Error("expected nil reminders writer when disabled")
			}
			if p.writerUtterances != nil {
				t.Error("expected nil utterances writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:         false,
		Brokers:         []string{"localhost:9092"},
		TopicReminders:  "test.reminders",
		TopicUtterances: "test.utterances",
		Principal:       "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicReminders != "test.reminders" {
		t.Errorf("expected topic reminders 'test.reminders', got %s", p.topicReminders)
	}
	if p.topicUtterances != "test.utterances" {
		t.Errorf("expected topic utterances 'test.utterances', got %s", p.topicUtterances)
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:         true,
		Brokers:         []string{"localhost:9092"},
		TopicReminders:  "test.reminders",
		TopicUtterances: "test.utterances",
	})

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerReminders == nil || p.writerUtterances == nil {
		t.Fatal("expected both writers")
	}
	if p.writerReminders.Topic != "test.reminders" {
		t.Errorf("expected reminders topic, got %s", p.writerReminders.Topic)
	}
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing unused writers, got %v", err)
	}
}

func TestPublisher_PublishReminder_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicReminders: "test.reminders", Principal: "test-svc"})

	reminder := models.Reminder{
		EventType: models.EventReminderCreated,
		ID:        "rem-123",
		Summary:   "car maintenance",
		DueAt:     time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}

	if err := p.PublishReminder(context.Background(), reminder); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishTurn_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicUtterances: "test.utterances"})

	turn := models.TurnEvent{
		EventType:  models.EventTurnRecorded,
		DialogueID: "dlg-1",
		State:      "ASKING_TOPIC",
		Utterance:  "car maintenance",
		Accepted:   true,
	}

	if err := p.PublishTurn(context.Background(), turn); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Publish_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Create an unmarshalable value (channel)
	err := p.publish(context.Background(), nil, "test.topic", "test", "key", make(chan int))
	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}

	empty := &Publisher{}
	if err := empty.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
