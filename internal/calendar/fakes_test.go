package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/calql/internal/domain"

	"github.com/google/uuid"
)

// memStore backs the fake repositories with the same cross-entity semantics
// the Postgres schema enforces: owner grant on create, cascade on delete,
// history appended in the same "transaction" as the mutation.
type memStore struct {
	events  map[uuid.UUID]domain.Event
	grants  []domain.RoleGrant
	history []domain.EventHistory
	users   map[uuid.UUID]domain.User
	seq     int
}

func newMemStore() *memStore {
	return &memStore{
		events: make(map[uuid.UUID]domain.Event),
		users:  make(map[uuid.UUID]domain.User),
	}
}

func (s *memStore) addUser(username string) uuid.UUID {
	id := uuid.New()
	s.users[id] = domain.User{ID: id, Username: username, Email: username + "@example.com", CreatedAt: s.tick()}
	return id
}

// tick produces strictly increasing timestamps so creation order is
// unambiguous.
func (s *memStore) tick() time.Time {
	s.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

func (s *memStore) overlapExists(creatorID, excludeEventID uuid.UUID, start, end time.Time) bool {
	for _, other := range s.events {
		if other.CreatedBy != creatorID || other.ID == excludeEventID {
			continue
		}
		if domain.Overlaps(start, end, other.StartTime, other.EndTime) {
			return true
		}
	}
	return false
}

func (s *memStore) grantIndex(userID, eventID uuid.UUID) int {
	for i, grant := range s.grants {
		if grant.UserID == userID && grant.EventID == eventID {
			return i
		}
	}
	return -1
}

func (s *memStore) appendHistory(eventID uuid.UUID, editorID *uuid.UUID, snap domain.EventSnapshot) domain.EventHistory {
	record := domain.EventHistory{
		ID:          uuid.New(),
		EventID:     eventID,
		EditedBy:    editorID,
		Title:       snap.Title,
		Description: snap.Description,
		Location:    snap.Location,
		StartTime:   snap.StartTime,
		EndTime:     snap.EndTime,
		EditedAt:    s.tick(),
	}
	s.history = append(s.history, record)
	return record
}

type fakeEvents struct{ store *memStore }

func (f *fakeEvents) Create(_ context.Context, event domain.Event) (domain.Event, error) {
	if f.store.overlapExists(event.CreatedBy, event.ID, event.StartTime, event.EndTime) {
		return domain.Event{}, domain.ConflictError("event overlaps another event by the same creator")
	}
	event.CreatedAt = f.store.tick()
	f.store.events[event.ID] = event
	f.store.grants = append(f.store.grants, domain.RoleGrant{
		UserID: event.CreatedBy, EventID: event.ID, Role: domain.RoleOwner, CreatedAt: f.store.tick(),
	})
	return event, nil
}

func (f *fakeEvents) CreateBatch(ctx context.Context, events []domain.Event) ([]domain.Event, error) {
	staged := newMemStore()
	staged.events = make(map[uuid.UUID]domain.Event, len(f.store.events))
	for id, event := range f.store.events {
		staged.events[id] = event
	}

	for i, event := range events {
		if staged.overlapExists(event.CreatedBy, event.ID, event.StartTime, event.EndTime) {
			return nil, fmt.Errorf("item %d: %w", i, domain.ConflictError("event overlaps another event by the same creator"))
		}
		staged.events[event.ID] = event
	}

	created := make([]domain.Event, 0, len(events))
	for _, event := range events {
		inserted, err := f.Create(ctx, event)
		if err != nil {
			return nil, err
		}
		created = append(created, inserted)
	}
	return created, nil
}

func (f *fakeEvents) GetByID(_ context.Context, id uuid.UUID) (domain.Event, error) {
	event, ok := f.store.events[id]
	if !ok {
		return domain.Event{}, domain.NotFoundError("event")
	}
	return event, nil
}

func (f *fakeEvents) List(_ context.Context, limit, offset int) ([]domain.Event, int, error) {
	all := make([]domain.Event, 0, len(f.store.events))
	for _, event := range f.store.events {
		all = append(all, event)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeEvents) ListByCreator(_ context.Context, creatorID uuid.UUID) ([]domain.Event, error) {
	owned := []domain.Event{}
	for _, event := range f.store.events {
		if event.CreatedBy == creatorID {
			owned = append(owned, event)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].StartTime.Before(owned[j].StartTime) })
	return owned, nil
}

func (f *fakeEvents) Update(_ context.Context, eventID, editorID uuid.UUID, patch domain.EventPatch) (domain.Event, error) {
	current, ok := f.store.events[eventID]
	if !ok {
		return domain.Event{}, domain.NotFoundError("event")
	}

	effective := current.Apply(patch)
	if patch.TouchesSchedule() {
		if !effective.StartTime.Before(effective.EndTime) {
			return domain.Event{}, domain.ValidationError("end_time must be after start_time")
		}
		if f.store.overlapExists(editorID, eventID, effective.StartTime, effective.EndTime) {
			return domain.Event{}, domain.ConflictError("event overlaps another scheduled event")
		}
	}

	f.store.appendHistory(eventID, &editorID, domain.NewSnapshotFromEvent(current))
	f.store.events[eventID] = effective
	return effective, nil
}

func (f *fakeEvents) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.store.events[id]; !ok {
		return domain.NotFoundError("event")
	}
	delete(f.store.events, id)

	kept := f.store.grants[:0]
	for _, grant := range f.store.grants {
		if grant.EventID != id {
			kept = append(kept, grant)
		}
	}
	f.store.grants = kept

	history := f.store.history[:0]
	for _, record := range f.store.history {
		if record.EventID != id {
			history = append(history, record)
		}
	}
	f.store.history = history
	return nil
}

func (f *fakeEvents) Rollback(_ context.Context, eventID, versionID, callerID uuid.UUID) (domain.Event, error) {
	current, ok := f.store.events[eventID]
	if !ok {
		return domain.Event{}, domain.NotFoundError("event")
	}

	var version *domain.EventHistory
	for i := range f.store.history {
		if f.store.history[i].ID == versionID && f.store.history[i].EventID == eventID {
			version = &f.store.history[i]
			break
		}
	}
	if version == nil {
		return domain.Event{}, domain.NotFoundError("history version")
	}

	f.store.appendHistory(eventID, &callerID, domain.NewSnapshotFromEvent(current))

	current.Title = version.Title
	current.Description = version.Description
	current.Location = version.Location
	current.StartTime = version.StartTime
	current.EndTime = version.EndTime
	f.store.events[eventID] = current
	return current, nil
}

type fakeRoles struct{ store *memStore }

func (f *fakeRoles) Grant(_ context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error) {
	if _, ok := f.store.users[userID]; !ok {
		return domain.RoleGrant{}, domain.NotFoundError("user")
	}
	if f.store.grantIndex(userID, eventID) >= 0 {
		return domain.RoleGrant{}, domain.DuplicateGrantError("user already has a role on this event")
	}
	grant := domain.RoleGrant{UserID: userID, EventID: eventID, Role: role, CreatedAt: f.store.tick()}
	f.store.grants = append(f.store.grants, grant)
	return grant, nil
}

func (f *fakeRoles) GetRole(_ context.Context, userID, eventID uuid.UUID) (domain.Role, error) {
	if i := f.store.grantIndex(userID, eventID); i >= 0 {
		return f.store.grants[i].Role, nil
	}
	return "", domain.NotFoundError("grant")
}

func (f *fakeRoles) UpdateRole(_ context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error) {
	i := f.store.grantIndex(userID, eventID)
	if i < 0 {
		return domain.RoleGrant{}, domain.NotFoundError("grant")
	}
	f.store.grants[i].Role = role
	return f.store.grants[i], nil
}

func (f *fakeRoles) Revoke(_ context.Context, userID, eventID uuid.UUID) error {
	i := f.store.grantIndex(userID, eventID)
	if i < 0 {
		return domain.NotFoundError("grant")
	}
	f.store.grants = append(f.store.grants[:i], f.store.grants[i+1:]...)
	return nil
}

func (f *fakeRoles) ListGrants(_ context.Context, eventID uuid.UUID) ([]domain.RoleGrant, error) {
	grants := []domain.RoleGrant{}
	for _, grant := range f.store.grants {
		if grant.EventID == eventID {
			grants = append(grants, grant)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].CreatedAt.Before(grants[j].CreatedAt) })
	return grants, nil
}

type fakeHistory struct{ store *memStore }

func (f *fakeHistory) Record(_ context.Context, eventID, editorID uuid.UUID, snapshot domain.EventSnapshot) (domain.EventHistory, error) {
	if _, ok := f.store.events[eventID]; !ok {
		return domain.EventHistory{}, domain.NotFoundError("event")
	}
	return f.store.appendHistory(eventID, &editorID, snapshot), nil
}

func (f *fakeHistory) ListForEvent(_ context.Context, eventID uuid.UUID) ([]domain.EventHistory, error) {
	records := []domain.EventHistory{}
	for _, record := range f.store.history {
		if record.EventID == eventID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].EditedAt.After(records[j].EditedAt) })
	return records, nil
}

func (f *fakeHistory) Get(_ context.Context, eventID, versionID uuid.UUID) (domain.EventHistory, error) {
	for _, record := range f.store.history {
		if record.ID == versionID && record.EventID == eventID {
			return record, nil
		}
	}
	return domain.EventHistory{}, domain.NotFoundError("history version")
}

type fakeUsers struct{ store *memStore }

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	user, ok := f.store.users[id]
	if !ok {
		return domain.User{}, domain.NotFoundError("user")
	}
	return user, nil
}

func (f *fakeUsers) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.User, error) {
	users := []domain.User{}
	for _, id := range ids {
		if user, ok := f.store.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

type fakeNotifier struct {
	notified []uuid.UUID
	messages []string
	fail     bool
}

func (f *fakeNotifier) Notify(_ context.Context, userID uuid.UUID, message string) error {
	if f.fail {
		return fmt.Errorf("push backend unavailable")
	}
	f.notified = append(f.notified, userID)
	f.messages = append(f.messages, message)
	return nil
}

type fixture struct {
	store    *memStore
	service  *Service
	notifier *fakeNotifier
}

func newFixture() *fixture {
	store := newMemStore()
	notifier := &fakeNotifier{}
	service := NewService(
		&fakeEvents{store: store},
		&fakeRoles{store: store},
		&fakeHistory{store: store},
		&fakeUsers{store: store},
		notifier,
	)
	return &fixture{store: store, service: service, notifier: notifier}
}
