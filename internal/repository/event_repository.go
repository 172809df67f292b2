package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/calql/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, title, description, location, start_time, end_time, created_by, created_at, is_recurring, recurrence_pattern`

// eventRepository implements EventRepository on Postgres.
type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new event repository.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

// Create inserts the event and the creator's owner grant in one
// transaction. The creator-overlap invariant is enforced by the
// events_no_creator_overlap exclusion constraint, so a racing insert cannot
// slip past the check.
func (r *eventRepository) Create(ctx context.Context, event domain.Event) (domain.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertEvent(ctx, tx, event)
	if err != nil {
		return domain.Event{}, err
	}

	if err := insertOwnerGrant(ctx, tx, event.CreatedBy, created.ID); err != nil {
		return domain.Event{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Event{}, fmt.Errorf("failed to commit event create: %w", err)
	}

	return created, nil
}

// CreateBatch inserts all events, each with its owner grant, in a single
// transaction. Any failure aborts the whole batch; inserts run in input
// order so the surfaced error belongs to the first failing item.
func (r *eventRepository) CreateBatch(ctx context.Context, events []domain.Event) ([]domain.Event, error) {
	if len(events) == 0 {
		return []domain.Event{}, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]domain.Event, 0, len(events))
	for _, event := range events {
		inserted, err := insertEvent(ctx, tx, event)
		if err != nil {
			return nil, err
		}
		if err := insertOwnerGrant(ctx, tx, event.CreatedBy, inserted.ID); err != nil {
			return nil, err
		}
		created = append(created, inserted)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit event batch: %w", err)
	}

	return created, nil
}

// GetByID retrieves an event by ID.
func (r *eventRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, translateError(err, "event")
	}
	return event, nil
}

// List retrieves events ordered by start time with a total count for
// pagination.
func (r *eventRepository) List(ctx context.Context, limit, offset int) ([]domain.Event, int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`, COUNT(*) OVER () AS total_count
		FROM events
		ORDER BY start_time, created_at
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	totalCount := 0
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(
			&event.ID, &event.Title, &event.Description, &event.Location,
			&event.StartTime, &event.EndTime, &event.CreatedBy, &event.CreatedAt,
			&event.IsRecurring, &event.RecurrencePattern, &totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read events: %w", err)
	}

	return events, totalCount, nil
}

// ListByCreator retrieves every event created by the given user, ordered by
// start time.
func (r *eventRepository) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE created_by = $1
		ORDER BY start_time`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by creator: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Update applies a partial update inside one transaction: lock the event
// row, re-validate the effective schedule against the editor's other
// events, append the pre-update state to the history ledger, then write the
// new state. Concurrent updates to the same event serialize on the row
// lock.
func (r *eventRepository) Update(ctx context.Context, eventID, editorID uuid.UUID, patch domain.EventPatch) (domain.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return domain.Event{}, err
	}

	effective := current.Apply(patch)
	if patch.TouchesSchedule() {
		if !effective.StartTime.Before(effective.EndTime) {
			return domain.Event{}, domain.ValidationError("end_time must be after start_time")
		}
		if err := checkEditorOverlap(ctx, tx, editorID, eventID, effective); err != nil {
			return domain.Event{}, err
		}
	}

	if _, err := insertHistory(ctx, tx, current.ID, &editorID, domain.NewSnapshotFromEvent(current)); err != nil {
		return domain.Event{}, err
	}

	updated, err := writeEventFields(ctx, tx, effective)
	if err != nil {
		return domain.Event{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Event{}, fmt.Errorf("failed to commit event update: %w", err)
	}

	return updated, nil
}

// Delete removes an event; role grants and history records go with it via
// ON DELETE CASCADE.
func (r *eventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("event")
	}
	return nil
}

// Rollback restores a historical version inside one transaction: lock the
// event row, load the version scoped to the event, append the current
// (pre-rollback) state to the ledger attributed to the caller, then
// overwrite the mutable fields with the version's values. Either both
// writes commit or neither does.
func (r *eventRepository) Rollback(ctx context.Context, eventID, versionID, callerID uuid.UUID) (domain.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return domain.Event{}, err
	}

	var version domain.EventHistory
	row := tx.QueryRow(ctx, `
		SELECT id, event_id, edited_by, title, description, location, start_time, end_time, edited_at
		FROM event_history
		WHERE id = $1 AND event_id = $2`, versionID, eventID)
	if err := scanHistory(row, &version); err != nil {
		return domain.Event{}, translateError(err, "history version")
	}

	if _, err := insertHistory(ctx, tx, current.ID, &callerID, domain.NewSnapshotFromEvent(current)); err != nil {
		return domain.Event{}, err
	}

	restored := current
	restored.Title = version.Title
	restored.Description = version.Description
	restored.Location = version.Location
	restored.StartTime = version.StartTime
	restored.EndTime = version.EndTime

	updated, err := writeEventFields(ctx, tx, restored)
	if err != nil {
		return domain.Event{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Event{}, fmt.Errorf("failed to commit rollback: %w", err)
	}

	return updated, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, event domain.Event) (domain.Event, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO events (id, title, description, location, start_time, end_time, created_by, is_recurring, recurrence_pattern)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+eventColumns,
		event.ID, event.Title, event.Description, event.Location,
		event.StartTime, event.EndTime, event.CreatedBy,
		event.IsRecurring, event.RecurrencePattern,
	)

	created, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, translateError(err, "event")
	}
	return created, nil
}

func insertOwnerGrant(ctx context.Context, tx pgx.Tx, userID, eventID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO event_roles (user_id, event_id, role)
		VALUES ($1, $2, $3)`, userID, eventID, domain.RoleOwner)
	if err != nil {
		return translateError(err, "user")
	}
	return nil
}

func lockEvent(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (domain.Event, error) {
	row := tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID)
	event, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, translateError(err, "event")
	}
	return event, nil
}

// checkEditorOverlap rejects a schedule that overlaps another event created
// by the editor, the event being updated excluded. Half-open ranges:
// touching endpoints do not conflict.
func checkEditorOverlap(ctx context.Context, tx pgx.Tx, editorID, eventID uuid.UUID, effective domain.Event) error {
	var overlapping bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE created_by = $1 AND id <> $2 AND start_time < $3 AND end_time > $4
		)`, editorID, eventID, effective.EndTime, effective.StartTime).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("failed to check schedule overlap: %w", err)
	}
	if overlapping {
		return domain.ConflictError("event overlaps another scheduled event")
	}
	return nil
}

func writeEventFields(ctx context.Context, tx pgx.Tx, event domain.Event) (domain.Event, error) {
	row := tx.QueryRow(ctx, `
		UPDATE events
		SET title = $2, description = $3, location = $4, start_time = $5, end_time = $6,
		    is_recurring = $7, recurrence_pattern = $8
		WHERE id = $1
		RETURNING `+eventColumns,
		event.ID, event.Title, event.Description, event.Location,
		event.StartTime, event.EndTime, event.IsRecurring, event.RecurrencePattern,
	)

	updated, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, translateError(err, "event")
	}
	return updated, nil
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var event domain.Event
	err := row.Scan(
		&event.ID, &event.Title, &event.Description, &event.Location,
		&event.StartTime, &event.EndTime, &event.CreatedBy, &event.CreatedAt,
		&event.IsRecurring, &event.RecurrencePattern,
	)
	return event, err
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(
			&event.ID, &event.Title, &event.Description, &event.Location,
			&event.StartTime, &event.EndTime, &event.CreatedBy, &event.CreatedAt,
			&event.IsRecurring, &event.RecurrencePattern,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
