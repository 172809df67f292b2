package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventHistory is an immutable snapshot of an event's mutable fields taken
// immediately before a successful update or rollback. Records are only ever
// appended; there is no update or delete surface for them. EditedBy is
// nulled (not cascaded) when the editing account is removed, so the ledger
// keeps the fact that someone made the edit.
type EventHistory struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	EditedBy    *uuid.UUID `json:"edited_by"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	EditedAt    time.Time  `json:"edited_at"`
}
