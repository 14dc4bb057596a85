package dialogue

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"voice-reminder-assistant/internal/models"
	"voice-reminder-assistant/internal/service/temporal"
)

// ErrFieldAlreadySet is returned when a draft field is written twice.
var ErrFieldAlreadySet = errors.New("draft field already set")

// Draft accumulates one reminder, one field per turn. Fields are write-once.
type Draft struct {
	topic    string
	date     temporal.DateResult
	clock    temporal.TimeResult
	notes    string
	topicSet bool
	dateSet  bool
	timeSet  bool
	notesSet bool
}

// SetTopic stores the reminder topic.
func (d *Draft) SetTopic(topic string) error {
	if d.topicSet {
		return ErrFieldAlreadySet
	}
	d.topic, d.topicSet = topic, true
	return nil
}

// SetDate stores the parsed date.
func (d *Draft) SetDate(r temporal.DateResult) error {
	if d.dateSet {
		return ErrFieldAlreadySet
	}
	d.date, d.dateSet = r, true
	return nil
}

// SetTime stores the parsed time.
func (d *Draft) SetTime(r temporal.TimeResult) error {
	if d.timeSet {
		return ErrFieldAlreadySet
	}
	d.clock, d.timeSet = r, true
	return nil
}

// SetNotes stores the notes; empty means the user declined.
func (d *Draft) SetNotes(notes string) error {
	if d.notesSet {
		return ErrFieldAlreadySet
	}
	d.notes, d.notesSet = notes, true
	return nil
}

// Complete reports whether every field was answered.
func (d *Draft) Complete() bool {
	return d.topicSet && d.dateSet && d.timeSet && d.notesSet
}

// DraftView is the JSON view of a draft.
type DraftView struct {
	Topic        string      `json:"topic,omitempty"`
	RawDate      string      `json:"rawDate,omitempty"`
	ResolvedDate *civil.Date `json:"resolvedDate,omitempty"`
	RawTime      string      `json:"rawTime,omitempty"`
	ResolvedTime *civil.Time `json:"resolvedTime,omitempty"`
	Notes        *string     `json:"notes,omitempty"`
}

// View returns the fields collected so far.
func (d *Draft) View() DraftView {
	var v DraftView
	if d.topicSet {
		v.Topic = d.topic
	}
	if d.dateSet {
		v.RawDate = d.date.Raw
		if d.date.Resolved {
			date := d.date.Date
			v.ResolvedDate = &date
		}
	}
	if d.timeSet {
		v.RawTime = d.clock.Raw
		if d.clock.Resolved {
			t := d.clock.Time
			v.ResolvedTime = &t
		}
	}
	if d.notesSet {
		notes := d.notes
		v.Notes = &notes
	}
	return v
}

func (d *Draft) request(dialogueID, language string, createdAt time.Time) models.ReminderRequest {
	v := d.View()
	return models.ReminderRequest{
		DialogueID:   dialogueID,
		Language:     language,
		Topic:        v.Topic,
		RawDate:      v.RawDate,
		ResolvedDate: v.ResolvedDate,
		RawTime:      v.RawTime,
		ResolvedTime: v.ResolvedTime,
		Notes:        d.notes,
		CreatedAt:    createdAt,
	}
}
