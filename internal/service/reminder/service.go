// Package reminder is the persistence sink for finished dialogues. Reminders
// are validated, given an id and a due instant, and published to Kafka.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-reminder-assistant/internal/models"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/schema"
	"voice-reminder-assistant/internal/service/temporal"
)

// ErrPersistence wraps every failure to store a reminder.
var ErrPersistence = errors.New("reminder persistence failed")

// DefaultHour is used when the spoken time could not be resolved.
const DefaultHour = 9

// recentLimit bounds the in-memory list served by Recent.
const recentLimit = 50

// Publisher delivers events downstream.
type Publisher interface {
	PublishReminder(ctx context.Context, reminder models.Reminder) error
	PublishTurn(ctx context.Context, turn models.TurnEvent) error
}

// Service stores reminders through a Publisher.
type Service struct {
	publisher Publisher
	validator *schema.Validator
	principal string
	location  *time.Location
	logger    zerolog.Logger

	mu     sync.Mutex
	recent []models.Reminder
}

// New creates a reminder service. Due instants are computed in loc (UTC when nil).
func New(publisher Publisher, principal string, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		publisher: publisher,
		validator: schema.New(),
		principal: principal,
		location:  loc,
		logger:    logging.WithComponent("reminder"),
	}
}

// CreateReminder validates and publishes a reminder. Any failure wraps ErrPersistence.
func (s *Service) CreateReminder(ctx context.Context, req models.ReminderRequest) (models.Reminder, error) {
	if err := s.validator.Validate(req); err != nil {
		return models.Reminder{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	reminder := models.Reminder{
		EventType:    models.EventReminderCreated,
		ID:           uuid.NewString(),
		Principal:    s.principal,
		Summary:      Summary(req),
		DueAt:        DueAt(req, s.location),
		VoiceCreated: true,
		Active:       true,
		Details:      req,
	}
	if err := s.validator.Validate(reminder); err != nil {
		return models.Reminder{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := s.publisher.PublishReminder(ctx, reminder); err != nil {
		return models.Reminder{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.mu.Lock()
	s.recent = append(s.recent, reminder)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[len(s.recent)-recentLimit:]
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("reminderId", reminder.ID).
		Str("dialogueId", req.DialogueID).
		Time("dueAt", reminder.DueAt).
		Msg("Reminder created")
	return reminder, nil
}

// RecordTurn publishes an answered turn for auditing.
func (s *Service) RecordTurn(ctx context.Context, turn models.TurnEvent) error {
	turn.Principal = s.principal
	if err := s.validator.Validate(turn); err != nil {
		return err
	}
	return s.publisher.PublishTurn(ctx, turn)
}

// Recent returns up to n stored reminders, newest first. n <= 0 returns all.
func (s *Service) Recent(n int) []models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]models.Reminder, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// DueAt combines the resolved date and time in loc. An unresolved date falls
// back to the creation day and an unresolved time to DefaultHour.
func DueAt(req models.ReminderRequest, loc *time.Location) time.Time {
	date := civil.DateOf(req.CreatedAt.In(loc))
	if req.ResolvedDate != nil {
		date = *req.ResolvedDate
	}
	clock := civil.Time{Hour: DefaultHour}
	if req.ResolvedTime != nil {
		clock = *req.ResolvedTime
	}
	return civil.DateTime{Date: date, Time: clock}.In(loc)
}

type summaryLabels struct {
	date, time, notes string
	layout            string
}

var (
	englishLabels = summaryLabels{date: "Date", time: "Time", notes: "Notes", layout: "2006-01-02"}
	turkishLabels = summaryLabels{date: "Tarih", time: "Saat", notes: "Notlar", layout: "02.01.2006"}
)

// Summary renders the reminder as topic, date, time and optional notes lines.
func Summary(req models.ReminderRequest) string {
	labels := englishLabels
	if temporal.ForLanguage(req.Language) == temporal.Turkish {
		labels = turkishLabels
	}

	date := req.RawDate
	if req.ResolvedDate != nil {
		date = req.ResolvedDate.In(time.UTC).Format(labels.layout)
	}
	clock := req.RawTime
	if req.ResolvedTime != nil {
		clock = temporal.FormatClock(*req.ResolvedTime)
	}

	var b strings.Builder
	b.WriteString(req.Topic)
	fmt.Fprintf(&b, "\n%s: %s", labels.date, date)
	fmt.Fprintf(&b, "\n%s: %s", labels.time, clock)
	if req.Notes != "" {
		fmt.Fprintf(&b, "\n%s: %s", labels.notes, req.Notes)
	}
	return b.String()
}
