package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/calql/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const historyColumns = `id, event_id, edited_by, title, description, location, start_time, end_time, edited_at`

// historyRepository implements HistoryRepository on Postgres. The ledger is
// append-only: this type exposes no update or delete, and the schema offers
// none either.
type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new history ledger repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

// Record appends a snapshot for the event. Each call produces its own
// independently ordered record; concurrent writers never fail on each
// other.
func (r *historyRepository) Record(ctx context.Context, eventID, editorID uuid.UUID, snapshot domain.EventSnapshot) (domain.EventHistory, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.EventHistory{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	record, err := insertHistory(ctx, tx, eventID, &editorID, snapshot)
	if err != nil {
		return domain.EventHistory{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.EventHistory{}, fmt.Errorf("failed to commit history record: %w", err)
	}

	return record, nil
}

// ListForEvent returns the event's history, most recent edit first.
func (r *historyRepository) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]domain.EventHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+historyColumns+`
		FROM event_history
		WHERE event_id = $1
		ORDER BY seq DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event history: %w", err)
	}
	defer rows.Close()

	records := []domain.EventHistory{}
	for rows.Next() {
		var record domain.EventHistory
		if err := rows.Scan(
			&record.ID, &record.EventID, &record.EditedBy,
			&record.Title, &record.Description, &record.Location,
			&record.StartTime, &record.EndTime, &record.EditedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}

	return records, nil
}

// Get fetches one version scoped to the event. A version id that belongs to
// a different event is NotFound; its existence is not disclosed.
func (r *historyRepository) Get(ctx context.Context, eventID, versionID uuid.UUID) (domain.EventHistory, error) {
	var record domain.EventHistory
	row := r.pool.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM event_history
		WHERE id = $1 AND event_id = $2`, versionID, eventID)
	if err := scanHistory(row, &record); err != nil {
		return domain.EventHistory{}, translateError(err, "history version")
	}
	return record, nil
}

// insertHistory appends one ledger row within the caller's transaction.
// Shared with the event repository so update and rollback snapshots land in
// the same transaction as the mutation they precede.
func insertHistory(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, editorID *uuid.UUID, snapshot domain.EventSnapshot) (domain.EventHistory, error) {
	var record domain.EventHistory
	row := tx.QueryRow(ctx, `
		INSERT INTO event_history (event_id, edited_by, title, description, location, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+historyColumns,
		eventID, editorID, snapshot.Title, snapshot.Description, snapshot.Location,
		snapshot.StartTime, snapshot.EndTime,
	)
	if err := scanHistory(row, &record); err != nil {
		return domain.EventHistory{}, translateError(err, "event")
	}
	return record, nil
}

func scanHistory(row pgx.Row, record *domain.EventHistory) error {
	return row.Scan(
		&record.ID, &record.EventID, &record.EditedBy,
		&record.Title, &record.Description, &record.Location,
		&record.StartTime, &record.EndTime, &record.EditedAt,
	)
}
