package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event represents a calendar event owned by its creator.
type Event struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	CreatedBy         uuid.UUID `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern *string   `json:"recurrence_pattern,omitempty"`
}

// NewEvent creates a validated event for the given creator. The owner role
// grant is the repository's responsibility and happens in the same
// transaction as the insert.
func NewEvent(
	createdBy uuid.UUID,
	title, description, location string,
	startTime, endTime time.Time,
	isRecurring bool,
	recurrencePattern *string,
) (Event, error) {
	event := Event{
		ID:                uuid.New(),
		Title:             strings.TrimSpace(title),
		Description:       description,
		Location:          location,
		StartTime:         startTime,
		EndTime:           endTime,
		CreatedBy:         createdBy,
		CreatedAt:         time.Now(),
		IsRecurring:       isRecurring,
		RecurrencePattern: recurrencePattern,
	}

	if err := event.Validate(); err != nil {
		return Event{}, err
	}

	return event, nil
}

// Validate checks the event's own invariants. Overlap against the creator's
// other events is a storage-level concern and is not checked here.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ValidationError("title is required")
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return ValidationError("start_time and end_time are required")
	}
	if !e.StartTime.Before(e.EndTime) {
		return ValidationError("end_time must be after start_time")
	}
	if e.RecurrencePattern != nil && strings.TrimSpace(*e.RecurrencePattern) != "" {
		if err := ValidateRecurrencePattern(*e.RecurrencePattern); err != nil {
			return err
		}
	}
	return nil
}

// EventPatch carries a partial update. Nil fields keep their current values.
type EventPatch struct {
	Title             *string    `json:"title,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Location          *string    `json:"location,omitempty"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	IsRecurring       *bool      `json:"is_recurring,omitempty"`
	RecurrencePattern *string    `json:"recurrence_pattern,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.StartTime == nil && p.EndTime == nil && p.IsRecurring == nil &&
		p.RecurrencePattern == nil
}

// TouchesSchedule reports whether the patch moves either time bound. Range
// ordering and overlap re-validation are skipped when it does not.
func (p EventPatch) TouchesSchedule() bool {
	return p.StartTime != nil || p.EndTime != nil
}

// Apply returns a copy of the event with the patch's fields overlaid.
func (e Event) Apply(p EventPatch) Event {
	updated := e
	if p.Title != nil {
		updated.Title = *p.Title
	}
	if p.Description != nil {
		updated.Description = *p.Description
	}
	if p.Location != nil {
		updated.Location = *p.Location
	}
	if p.StartTime != nil {
		updated.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		updated.EndTime = *p.EndTime
	}
	if p.IsRecurring != nil {
		updated.IsRecurring = *p.IsRecurring
	}
	if p.RecurrencePattern != nil {
		pattern := *p.RecurrencePattern
		updated.RecurrencePattern = &pattern
	}
	return updated
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) intersect. Ranges touching exactly at an endpoint do not
// conflict.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
