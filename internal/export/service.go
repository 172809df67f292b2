package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/calql/internal/domain"
)

const changelogSheet = "Changelog"

// EventSource is the slice of the event store the exports read from.
type EventSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Event, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Event, error)
}

// HistorySource provides the edit ledger for the changelog export.
type HistorySource interface {
	ListForEvent(ctx context.Context, eventID uuid.UUID) ([]domain.EventHistory, error)
}

// UserSource resolves editor identities.
type UserSource interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
}

// Window bounds the recurrence expansion for an ICS export. When nil the
// export emits compact RRULE properties instead of expanded occurrences.
type Window struct {
	From time.Time
	To   time.Time
}

// Service renders calendar and changelog exports. It reads through the
// same repositories as the API and holds no state of its own.
type Service struct {
	events  EventSource
	history HistorySource
	users   UserSource
	now     func() time.Time
}

func NewService(events EventSource, history HistorySource, users UserSource) *Service {
	return &Service{
		events:  events,
		history: history,
		users:   users,
		now:     time.Now,
	}
}

// CalendarICS writes the caller's own events as an iCalendar stream. With a
// window, recurring events are expanded into individual occurrences that
// fall inside it; without one, the recurrence rule is carried verbatim.
func (s *Service) CalendarICS(ctx context.Context, callerID uuid.UUID, window *Window, w io.Writer) error {
	events, err := s.events.ListByCreator(ctx, callerID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return domain.NotFoundError("calendar")
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calql//EN")

	for _, event := range events {
		components, err := s.toComponents(event, window)
		if err != nil {
			return err
		}
		cal.Children = append(cal.Children, components...)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func (s *Service) toComponents(event domain.Event, window *Window) ([]*ical.Component, error) {
	rule, err := event.RecurrenceRule()
	if err != nil {
		return nil, err
	}

	if rule == nil || window == nil {
		ve := s.toVEvent(event, event.ID.String(), event.StartTime, event.EndTime)
		if rule != nil {
			p := ical.NewProp(ical.PropRecurrenceRule)
			p.Value = rule.OrigOptions.RRuleString()
			ve.Props.Add(p)
		}
		return []*ical.Component{ve}, nil
	}

	// Expanded occurrences keep the base event's duration.
	duration := event.EndTime.Sub(event.StartTime)
	starts := rule.Between(window.From, window.To, true)
	components := make([]*ical.Component, 0, len(starts))
	for i, start := range starts {
		uid := fmt.Sprintf("%s-%d", event.ID, i)
		components = append(components, s.toVEvent(event, uid, start, start.Add(duration)))
	}
	return components, nil
}

func (s *Service) toVEvent(event domain.Event, uid string, start, end time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, s.now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end)

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	return ve
}

// ChangelogXLSX builds a spreadsheet of the event's edit history, most
// recent first, with editor usernames resolved in one batch.
func (s *Service) ChangelogXLSX(ctx context.Context, eventID uuid.UUID) (*excelize.File, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	records, err := s.history.ListForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	editorIDs := make([]uuid.UUID, 0, len(records))
	seen := make(map[uuid.UUID]bool)
	for _, record := range records {
		if record.EditedBy != nil && !seen[*record.EditedBy] {
			seen[*record.EditedBy] = true
			editorIDs = append(editorIDs, *record.EditedBy)
		}
	}
	names := make(map[uuid.UUID]string)
	if len(editorIDs) > 0 {
		users, err := s.users.GetByIDs(ctx, editorIDs)
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			names[user.ID] = user.Username
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", changelogSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headers := []string{"Edited At", "Edited By", "Title", "Description", "Location", "Start Time", "End Time"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(changelogSheet, cell, header); err != nil {
			return nil, err
		}
	}

	for row, record := range records {
		editor := ""
		if record.EditedBy != nil {
			if name, ok := names[*record.EditedBy]; ok {
				editor = name
			} else {
				editor = record.EditedBy.String()
			}
		}
		values := []any{
			record.EditedAt.UTC().Format(time.RFC3339),
			editor,
			record.Title,
			record.Description,
			record.Location,
			record.StartTime.UTC().Format(time.RFC3339),
			record.EndTime.UTC().Format(time.RFC3339),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(changelogSheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}
