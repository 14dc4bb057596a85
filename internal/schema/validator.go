// Package schema validates events before they leave the process.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"voice-reminder-assistant/internal/models"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a known event type.
func (v *Validator) Validate(event any) error {
	var err error
	switch e := event.(type) {
	case models.ReminderRequest:
		err = validateRequest(e)
	case models.Reminder:
		err = validateReminder(e)
	case models.TurnEvent:
		err = validateTurn(e)
	default:
		err = fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}

	if err != nil {
		log.Debug().Err(err).Msg("Schema validation failed")
		return err
	}
	return nil
}

func validateRequest(r models.ReminderRequest) error {
	if strings.TrimSpace(r.Topic) == "" {
		return missing("topic")
	}
	if r.ResolvedDate == nil && strings.TrimSpace(r.RawDate) == "" {
		return missing("date")
	}
	if r.ResolvedDate != nil && !r.ResolvedDate.IsValid() {
		return fmt.Errorf("%w: resolvedDate %s is not a calendar date", ErrInvalidEvent, r.ResolvedDate)
	}
	if r.ResolvedTime == nil && strings.TrimSpace(r.RawTime) == "" {
		return missing("time")
	}
	if r.ResolvedTime != nil && !r.ResolvedTime.IsValid() {
		return fmt.Errorf("%w: resolvedTime %s is not a clock time", ErrInvalidEvent, r.ResolvedTime)
	}
	if r.CreatedAt.IsZero() {
		return missing("createdAt")
	}
	return nil
}

func validateReminder(r models.Reminder) error {
	if r.EventType != models.EventReminderCreated {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, r.EventType)
	}
	if r.ID == "" {
		return missing("id")
	}
	if r.DueAt.IsZero() {
		return missing("dueAt")
	}
	return validateRequest(r.Details)
}

func validateTurn(t models.TurnEvent) error {
	if t.EventType != models.EventTurnRecorded {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, t.EventType)
	}
	if t.DialogueID == "" {
		return missing("dialogueId")
	}
	if t.State == "" {
		return missing("state")
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrInvalidEvent, field)
}
