package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/rpattn/calql/internal/auth"
	"github.com/rpattn/calql/internal/calendar"
	"github.com/rpattn/calql/internal/domain"
	"github.com/rpattn/calql/internal/middleware"
	"github.com/rpattn/calql/internal/notify"

	"github.com/google/uuid"
)

// stubRepos is a single in-memory implementation of all four repository
// interfaces, just enough to drive the HTTP surface.
type stubRepos struct {
	events  map[uuid.UUID]domain.Event
	grants  map[string]domain.RoleGrant
	history []domain.EventHistory
	users   map[uuid.UUID]domain.User
	clock   time.Time
}

func newStubRepos() *stubRepos {
	return &stubRepos{
		events: make(map[uuid.UUID]domain.Event),
		grants: make(map[string]domain.RoleGrant),
		users:  make(map[uuid.UUID]domain.User),
		clock:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *stubRepos) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func grantKey(userID, eventID uuid.UUID) string {
	return userID.String() + "/" + eventID.String()
}

func (s *stubRepos) Create(_ context.Context, event domain.Event) (domain.Event, error) {
	for _, other := range s.events {
		if other.CreatedBy == event.CreatedBy &&
			domain.Overlaps(event.StartTime, event.EndTime, other.StartTime, other.EndTime) {
			return domain.Event{}, domain.ConflictError("event overlaps another event by the same creator")
		}
	}
	event.CreatedAt = s.tick()
	s.events[event.ID] = event
	s.grants[grantKey(event.CreatedBy, event.ID)] = domain.RoleGrant{
		UserID: event.CreatedBy, EventID: event.ID, Role: domain.RoleOwner, CreatedAt: s.tick(),
	}
	return event, nil
}

func (s *stubRepos) CreateBatch(ctx context.Context, events []domain.Event) ([]domain.Event, error) {
	created := make([]domain.Event, 0, len(events))
	for _, event := range events {
		inserted, err := s.Create(ctx, event)
		if err != nil {
			return nil, err
		}
		created = append(created, inserted)
	}
	return created, nil
}

func (s *stubRepos) GetByID(_ context.Context, id uuid.UUID) (domain.Event, error) {
	event, ok := s.events[id]
	if !ok {
		return domain.Event{}, domain.NotFoundError("event")
	}
	return event, nil
}

func (s *stubRepos) List(_ context.Context, limit, offset int) ([]domain.Event, int, error) {
	all := make([]domain.Event, 0, len(s.events))
	for _, event := range s.events {
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

func (s *stubRepos) ListByCreator(_ context.Context, creatorID uuid.UUID) ([]domain.Event, error) {
	owned := []domain.Event{}
	for _, event := range s.events {
		if event.CreatedBy == creatorID {
			owned = append(owned, event)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].StartTime.Before(owned[j].StartTime) })
	return owned, nil
}

func (s *stubRepos) Update(_ context.Context, eventID, editorID uuid.UUID, patch domain.EventPatch) (domain.Event, error) {
	current, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, domain.NotFoundError("event")
	}
	s.appendHistory(eventID, &editorID, current)
	updated := current.Apply(patch)
	s.events[eventID] = updated
	return updated, nil
}

func (s *stubRepos) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.events[id]; !ok {
		return domain.NotFoundError("event")
	}
	delete(s.events, id)
	return nil
}

func (s *stubRepos) Rollback(_ context.Context, eventID, versionID, callerID uuid.UUID) (domain.Event, error) {
	current, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, domain.NotFoundError("event")
	}
	for _, record := range s.history {
		if record.ID == versionID && record.EventID == eventID {
			s.appendHistory(eventID, &callerID, current)
			current.Title = record.Title
			current.Description = record.Description
			current.Location = record.Location
			current.StartTime = record.StartTime
			current.EndTime = record.EndTime
			s.events[eventID] = current
			return current, nil
		}
	}
	return domain.Event{}, domain.NotFoundError("history version")
}

func (s *stubRepos) appendHistory(eventID uuid.UUID, editorID *uuid.UUID, event domain.Event) {
	s.history = append(s.history, domain.EventHistory{
		ID:          uuid.New(),
		EventID:     eventID,
		EditedBy:    editorID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
		EditedAt:    s.tick(),
	})
}

func (s *stubRepos) Grant(_ context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error) {
	key := grantKey(userID, eventID)
	if _, ok := s.grants[key]; ok {
		return domain.RoleGrant{}, domain.DuplicateGrantError("user already has a role on this event")
	}
	grant := domain.RoleGrant{UserID: userID, EventID: eventID, Role: role, CreatedAt: s.tick()}
	s.grants[key] = grant
	return grant, nil
}

func (s *stubRepos) GetRole(_ context.Context, userID, eventID uuid.UUID) (domain.Role, error) {
	if grant, ok := s.grants[grantKey(userID, eventID)]; ok {
		return grant.Role, nil
	}
	return "", domain.NotFoundError("grant")
}

func (s *stubRepos) UpdateRole(_ context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error) {
	key := grantKey(userID, eventID)
	grant, ok := s.grants[key]
	if !ok {
		return domain.RoleGrant{}, domain.NotFoundError("grant")
	}
	grant.Role = role
	s.grants[key] = grant
	return grant, nil
}

func (s *stubRepos) Revoke(_ context.Context, userID, eventID uuid.UUID) error {
	key := grantKey(userID, eventID)
	if _, ok := s.grants[key]; !ok {
		return domain.NotFoundError("grant")
	}
	delete(s.grants, key)
	return nil
}

func (s *stubRepos) ListGrants(_ context.Context, eventID uuid.UUID) ([]domain.RoleGrant, error) {
	grants := []domain.RoleGrant{}
	for _, grant := range s.grants {
		if grant.EventID == eventID {
			grants = append(grants, grant)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].CreatedAt.Before(grants[j].CreatedAt) })
	return grants, nil
}

func (s *stubRepos) Record(_ context.Context, eventID, editorID uuid.UUID, snapshot domain.EventSnapshot) (domain.EventHistory, error) {
	record := domain.EventHistory{
		ID: uuid.New(), EventID: eventID, EditedBy: &editorID,
		Title: snapshot.Title, Description: snapshot.Description, Location: snapshot.Location,
		StartTime: snapshot.StartTime, EndTime: snapshot.EndTime, EditedAt: s.tick(),
	}
	s.history = append(s.history, record)
	return record, nil
}

func (s *stubRepos) ListForEvent(_ context.Context, eventID uuid.UUID) ([]domain.EventHistory, error) {
	records := []domain.EventHistory{}
	for _, record := range s.history {
		if record.EventID == eventID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].EditedAt.After(records[j].EditedAt) })
	return records, nil
}

func (s *stubRepos) Get(_ context.Context, eventID, versionID uuid.UUID) (domain.EventHistory, error) {
	for _, record := range s.history {
		if record.ID == versionID && record.EventID == eventID {
			return record, nil
		}
	}
	return domain.EventHistory{}, domain.NotFoundError("history version")
}

func (s *stubRepos) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.User, error) {
	users := []domain.User{}
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (s *stubRepos) addUser(username string) uuid.UUID {
	id := uuid.New()
	s.users[id] = domain.User{ID: id, Username: username, Email: username + "@example.com", CreatedAt: s.tick()}
	return id
}

type userStub struct{ repos *stubRepos }

func (u userStub) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	user, ok := u.repos.users[id]
	if !ok {
		return domain.User{}, domain.NotFoundError("user")
	}
	return user, nil
}

func (u userStub) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error) {
	return u.repos.GetByIDs(ctx, ids)
}

type apiFixture struct {
	repos    *stubRepos
	handler  http.Handler
	verifier *auth.TokenVerifier
}

func newAPIFixture() *apiFixture {
	repos := newStubRepos()
	service := calendar.NewService(repos, repos, repos, userStub{repos}, notify.NewLogNotifier())

	mux := http.NewServeMux()
	NewHandler(service).Register(mux)

	verifier := auth.NewTokenVerifier("test-secret")
	var handler http.Handler = mux
	handler = middleware.DataLoaderMiddleware(userStub{repos})(handler)
	handler = middleware.AuthMiddleware(verifier)(handler)
	return &apiFixture{repos: repos, handler: handler, verifier: verifier}
}

func (fx *apiFixture) do(t *testing.T, userID uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != uuid.Nil {
		token, err := fx.verifier.Issue(userID, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(rec.Body.Bytes(), &value); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return value
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	fx := newAPIFixture()

	rec := fx.do(t, uuid.Nil, http.MethodGet, "/events", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAPI_CreateAndGetEvent(t *testing.T) {
	fx := newAPIFixture()
	alice := fx.repos.addUser("alice")

	rec := fx.do(t, alice, http.MethodPost, "/events", calendar.EventInput{
		Title:     "Standup",
		StartTime: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Event](t, rec)

	rec = fx.do(t, alice, http.MethodGet, "/events/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rec.Code, rec.Body.String())
	}
	fetched := decodeBody[domain.Event](t, rec)
	if fetched.ID != created.ID || fetched.Title != "Standup" {
		t.Fatalf("unexpected event: %#v", fetched)
	}
}

func TestAPI_ErrorStatusMapping(t *testing.T) {
	fx := newAPIFixture()
	alice := fx.repos.addUser("alice")
	bob := fx.repos.addUser("bob")

	// 400: invalid range.
	rec := fx.do(t, alice, http.MethodPost, "/events", calendar.EventInput{
		Title:     "Backwards",
		StartTime: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation status = %d", rec.Code)
	}

	rec = fx.do(t, alice, http.MethodPost, "/events", calendar.EventInput{
		Title:     "Original",
		StartTime: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	event := decodeBody[domain.Event](t, rec)

	// 409: overlapping create by the same creator.
	rec = fx.do(t, alice, http.MethodPost, "/events", calendar.EventInput{
		Title:     "Clash",
		StartTime: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d", rec.Code)
	}

	// 403: stranger reads.
	rec = fx.do(t, bob, http.MethodGet, "/events/"+event.ID.String(), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("forbidden status = %d", rec.Code)
	}

	// 404: missing event.
	rec = fx.do(t, alice, http.MethodGet, "/events/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("not found status = %d", rec.Code)
	}

	// 400: malformed event id.
	rec = fx.do(t, alice, http.MethodGet, "/events/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestAPI_ShareAndPermissions(t *testing.T) {
	fx := newAPIFixture()
	alice := fx.repos.addUser("alice")
	bob := fx.repos.addUser("bob")

	rec := fx.do(t, alice, http.MethodPost, "/events", calendar.EventInput{
		Title:     "Review",
		StartTime: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	})
	event := decodeBody[domain.Event](t, rec)

	rec = fx.do(t, alice, http.MethodPost, fmt.Sprintf("/events/%s/share", event.ID),
		map[string]string{"user_id": bob.String(), "role": "viewer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("share status = %d: %s", rec.Code, rec.Body.String())
	}

	// Re-sharing collides.
	rec = fx.do(t, alice, http.MethodPost, fmt.Sprintf("/events/%s/share", event.ID),
		map[string]string{"user_id": bob.String(), "role": "editor"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate share status = %d", rec.Code)
	}

	rec = fx.do(t, alice, http.MethodGet, fmt.Sprintf("/events/%s/permissions", event.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("permissions status = %d", rec.Code)
	}
	grants := decodeBody[[]grantView](t, rec)
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	// The dataloader resolves grantee usernames.
	names := map[string]bool{}
	for _, grant := range grants {
		names[grant.Username] = true
	}
	if !names["alice"] || !names["bob"] {
		t.Fatalf("usernames not resolved: %#v", grants)
	}

	rec = fx.do(t, alice, http.MethodPut, fmt.Sprintf("/events/%s/permissions/%s", event.ID, bob),
		map[string]string{"role": "editor"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update role status = %d: %s", rec.Code, rec.Body.String())
	}
	if grant := decodeBody[grantView](t, rec); grant.Role != domain.RoleEditor {
		t.Fatalf("role = %s, want editor", grant.Role)
	}

	rec = fx.do(t, alice, http.MethodDelete, fmt.Sprintf("/events/%s/permissions/%s", event.ID, bob), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d", rec.Code)
	}
}

func TestAPI_ChangelogDiffRollback(t *testing.T) {
	fx := newAPIFixture()
	alice := fx.repos.addUser("alice")

	rec := fx.do(t, alice, http.MethodPost, "/events", calendar.EventInput{
		Title:     "v1",
		StartTime: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	})
	event := decodeBody[domain.Event](t, rec)

	for _, title := range []string{"v2", "v3"} {
		rec = fx.do(t, alice, http.MethodPatch, "/events/"+event.ID.String(),
			map[string]string{"title": title})
		if rec.Code != http.StatusOK {
			t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec = fx.do(t, alice, http.MethodGet, fmt.Sprintf("/events/%s/changelog", event.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("changelog status = %d", rec.Code)
	}
	records := decodeBody[[]historyView](t, rec)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].EditorUsername != "alice" {
		t.Fatalf("editor username not resolved: %#v", records[0])
	}

	rec = fx.do(t, alice, http.MethodGet,
		fmt.Sprintf("/events/%s/diff/%s/%s", event.ID, records[1].ID, records[0].ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("diff status = %d", rec.Code)
	}
	changes := decodeBody[map[string]domain.FieldChange](t, rec)
	if change, ok := changes["title"]; !ok || change.From != "v1" || change.To != "v2" {
		t.Fatalf("unexpected diff: %#v", changes)
	}

	rec = fx.do(t, alice, http.MethodPost,
		fmt.Sprintf("/events/%s/rollback/%s", event.ID, records[1].ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback status = %d: %s", rec.Code, rec.Body.String())
	}
	restored := decodeBody[domain.Event](t, rec)
	if restored.Title != "v1" {
		t.Fatalf("rollback restored %q, want v1", restored.Title)
	}
}

func TestAPI_EmptyPatchRejected(t *testing.T) {
	fx := newAPIFixture()
	alice := fx.repos.addUser("alice")

	rec := fx.do(t, alice, http.MethodPost, "/events", calendar.EventInput{
		Title:     "Fixed",
		StartTime: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	})
	event := decodeBody[domain.Event](t, rec)

	rec = fx.do(t, alice, http.MethodPatch, "/events/"+event.ID.String(), map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty patch status = %d", rec.Code)
	}
}
