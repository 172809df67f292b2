package domain

import "time"

// EventSnapshot holds the minimal data required to compare two versions of
// an event, whether current or historical.
type EventSnapshot struct {
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
}

// NewSnapshotFromEvent captures the current state of an event.
func NewSnapshotFromEvent(event Event) EventSnapshot {
	return EventSnapshot{
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
	}
}

// NewSnapshotFromHistory captures the state recorded by a history entry.
func NewSnapshotFromHistory(history EventHistory) EventSnapshot {
	return EventSnapshot{
		Title:       history.Title,
		Description: history.Description,
		Location:    history.Location,
		StartTime:   history.StartTime,
		EndTime:     history.EndTime,
	}
}

// FieldChange reports one differing field between two snapshots.
type FieldChange struct {
	Changed bool   `json:"changed"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// CanonicalTime is the string form timestamps are compared and reported in,
// so differing serialization precision between stored versions does not
// produce spurious changes.
func CanonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DiffSnapshots compares two snapshots field by field and returns the
// changed fields keyed by name. Fields that compare equal are omitted, so
// identical snapshots produce an empty map. The comparison is pure and
// symmetric: DiffSnapshots(b, a) reports the same field set with From/To
// swapped.
func DiffSnapshots(from, to EventSnapshot) map[string]FieldChange {
	changes := make(map[string]FieldChange)

	compare := func(field, fromValue, toValue string) {
		if fromValue != toValue {
			changes[field] = FieldChange{Changed: true, From: fromValue, To: toValue}
		}
	}

	compare("title", from.Title, to.Title)
	compare("description", from.Description, to.Description)
	compare("location", from.Location, to.Location)
	compare("start_time", CanonicalTime(from.StartTime), CanonicalTime(to.StartTime))
	compare("end_time", CanonicalTime(from.EndTime), CanonicalTime(to.EndTime))

	return changes
}
