// Package models defines the reminder records and audit events exchanged
// between the dialogue, the reminder sink, and Kafka.
package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// Event types carried in the eventType field and Kafka header.
const (
	EventReminderCreated = "reminder.created"
	EventTurnRecorded    = "dialogue.turn"
)

// ReminderRequest is a finished dialogue draft handed to the sink.
type ReminderRequest struct {
	DialogueID   string      `json:"dialogueId"`
	Language     string      `json:"language"`
	Topic        string      `json:"topic"`
	RawDate      string      `json:"rawDate"`
	ResolvedDate *civil.Date `json:"resolvedDate,omitempty"`
	RawTime      string      `json:"rawTime"`
	ResolvedTime *civil.Time `json:"resolvedTime,omitempty"`
	Notes        string      `json:"notes"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Reminder is a stored reminder.
type Reminder struct {
	EventType    string          `json:"eventType"`
	ID           string          `json:"id"`
	Principal    string          `json:"principal"`
	Summary      string          `json:"summary"`
	DueAt        time.Time       `json:"dueAt"`
	VoiceCreated bool            `json:"voiceCreated"`
	Active       bool            `json:"active"`
	Details      ReminderRequest `json:"details"`
}

// TurnEvent records one answer given to the assistant.
type TurnEvent struct {
	EventType  string `json:"eventType"`
	DialogueID string `json:"dialogueId"`
	Principal  string `json:"principal"`
	Timestamp  int64  `json:"timestamp"`
	State      string `json:"state"`
	Utterance  string `json:"utterance"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
}
