package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rpattn/calql/internal/domain"
	"github.com/rpattn/calql/internal/notify"
	"github.com/rpattn/calql/internal/repository"

	"github.com/google/uuid"
)

// Service orchestrates event operations: every mutating path authorizes the
// caller first, then touches the event store and history ledger through a
// single repository transaction. The service itself holds no mutable state.
type Service struct {
	events   repository.EventRepository
	roles    repository.RoleRepository
	history  repository.HistoryRepository
	users    repository.UserRepository
	notifier notify.Notifier
}

// NewService creates a new calendar service.
func NewService(
	events repository.EventRepository,
	roles repository.RoleRepository,
	history repository.HistoryRepository,
	users repository.UserRepository,
	notifier notify.Notifier,
) *Service {
	return &Service{
		events:   events,
		roles:    roles,
		history:  history,
		users:    users,
		notifier: notifier,
	}
}

// EventInput carries the caller-settable fields for creating an event.
type EventInput struct {
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern *string   `json:"recurrence_pattern,omitempty"`
}

// CreateEvent validates and stores a new event. The creator's owner grant
// is written in the same transaction as the event itself.
func (s *Service) CreateEvent(ctx context.Context, callerID uuid.UUID, input EventInput) (domain.Event, error) {
	event, err := domain.NewEvent(
		callerID, input.Title, input.Description, input.Location,
		input.StartTime, input.EndTime, input.IsRecurring, input.RecurrencePattern,
	)
	if err != nil {
		return domain.Event{}, err
	}

	return s.events.Create(ctx, event)
}

// BatchCreateEvents creates all events or none. The first failing item's
// error is returned and nothing is committed.
func (s *Service) BatchCreateEvents(ctx context.Context, callerID uuid.UUID, inputs []EventInput) ([]domain.Event, error) {
	if len(inputs) == 0 {
		return nil, domain.ValidationError("batch is empty")
	}

	events := make([]domain.Event, 0, len(inputs))
	for i, input := range inputs {
		event, err := domain.NewEvent(
			callerID, input.Title, input.Description, input.Location,
			input.StartTime, input.EndTime, input.IsRecurring, input.RecurrencePattern,
		)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		events = append(events, event)
	}

	return s.events.CreateBatch(ctx, events)
}

// GetEvent returns an event to callers holding any role on it.
func (s *Service) GetEvent(ctx context.Context, callerID, eventID uuid.UUID) (domain.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}

	role, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if !domain.Authorize(role, domain.ActionReadEvent) {
		return domain.Event{}, domain.ForbiddenError("no permission to read this event")
	}

	return event, nil
}

// ListEvents returns all events with pagination. Listing carries no
// per-event role check, matching the upstream contract.
func (s *Service) ListEvents(ctx context.Context, callerID uuid.UUID, limit, offset int) ([]domain.Event, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.events.List(ctx, limit, offset)
}

// UpdateEvent applies a partial update for owners and editors. The
// pre-update state is appended to the history ledger inside the same
// transaction as the field write.
func (s *Service) UpdateEvent(ctx context.Context, callerID, eventID uuid.UUID, patch domain.EventPatch) (domain.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}

	role, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if !domain.Authorize(role, domain.ActionUpdateEvent) {
		return domain.Event{}, domain.ForbiddenError("no permission to update this event")
	}

	if err := event.Apply(patch).Validate(); err != nil {
		return domain.Event{}, err
	}

	return s.events.Update(ctx, eventID, callerID, patch)
}

// DeleteEvent removes an event for its owners. Grants and history cascade.
func (s *Service) DeleteEvent(ctx context.Context, callerID, eventID uuid.UUID) error {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return err
	}

	role, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return err
	}
	if !domain.Authorize(role, domain.ActionDeleteEvent) {
		return domain.ForbiddenError("only owners can delete this event")
	}

	return s.events.Delete(ctx, eventID)
}

// ShareEvent grants a role on the event to another user. Only owners may
// share. The notification is best-effort: a delivery failure is logged and
// never rolls the grant back.
func (s *Service) ShareEvent(ctx context.Context, callerID, eventID, userID uuid.UUID, roleValue string) (domain.RoleGrant, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return domain.RoleGrant{}, err
	}

	callerRole, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return domain.RoleGrant{}, err
	}
	if !domain.Authorize(callerRole, domain.ActionShareEvent) {
		return domain.RoleGrant{}, domain.ForbiddenError("only owners can share the event")
	}

	role, err := domain.ParseRole(roleValue)
	if err != nil {
		return domain.RoleGrant{}, err
	}

	grant, err := s.roles.Grant(ctx, userID, eventID, role)
	if err != nil {
		return domain.RoleGrant{}, err
	}

	if err := s.notifier.Notify(ctx, userID, fmt.Sprintf("You've been added to the event: %q", event.Title)); err != nil {
		log.Printf("[SHARE] failed to notify user %s: %v", userID, err)
	}

	return grant, nil
}

// ListPermissions returns the event's grants in creation order. Owner only.
func (s *Service) ListPermissions(ctx context.Context, callerID, eventID uuid.UUID) ([]domain.RoleGrant, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}

	role, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return nil, err
	}
	if !domain.Authorize(role, domain.ActionViewPermissions) {
		return nil, domain.ForbiddenError("only the owner can view the permission list")
	}

	return s.roles.ListGrants(ctx, eventID)
}

// UpdateRole changes another user's role on the event. Owner only.
func (s *Service) UpdateRole(ctx context.Context, callerID, eventID, userID uuid.UUID, roleValue string) (domain.RoleGrant, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return domain.RoleGrant{}, err
	}

	callerRole, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return domain.RoleGrant{}, err
	}
	if !domain.Authorize(callerRole, domain.ActionManageRoles) {
		return domain.RoleGrant{}, domain.ForbiddenError("only owners can update roles")
	}

	// Grant existence is checked before the role value so an unknown
	// grant reports NotFound rather than a validation failure.
	if _, err := s.roles.GetRole(ctx, userID, eventID); err != nil {
		return domain.RoleGrant{}, err
	}

	role, err := domain.ParseRole(roleValue)
	if err != nil {
		return domain.RoleGrant{}, err
	}

	return s.roles.UpdateRole(ctx, userID, eventID, role)
}

// RevokeRole removes a user's grant on the event. Owner only. No guard
// stops the last owner from being revoked; see DESIGN.md.
func (s *Service) RevokeRole(ctx context.Context, callerID, eventID, userID uuid.UUID) error {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return err
	}

	callerRole, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return err
	}
	if !domain.Authorize(callerRole, domain.ActionManageRoles) {
		return domain.ForbiddenError("only owners can revoke permissions")
	}

	return s.roles.Revoke(ctx, userID, eventID)
}

// ListHistory returns the event's edit history, most recent first. History
// reads require authentication but no role on the event; this preserves the
// upstream contract rather than tightening it (see DESIGN.md).
func (s *Service) ListHistory(ctx context.Context, callerID, eventID uuid.UUID) ([]domain.EventHistory, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.history.ListForEvent(ctx, eventID)
}

// GetHistoryVersion returns one history record scoped to the event. A
// version id belonging to a different event is NotFound.
func (s *Service) GetHistoryVersion(ctx context.Context, callerID, eventID, versionID uuid.UUID) (domain.EventHistory, error) {
	return s.history.Get(ctx, eventID, versionID)
}

// DiffVersions compares two history records of the same event field by
// field.
func (s *Service) DiffVersions(ctx context.Context, callerID, eventID, v1ID, v2ID uuid.UUID) (map[string]domain.FieldChange, error) {
	v1, err := s.history.Get(ctx, eventID, v1ID)
	if err != nil {
		return nil, err
	}
	v2, err := s.history.Get(ctx, eventID, v2ID)
	if err != nil {
		return nil, err
	}

	return domain.DiffSnapshots(domain.NewSnapshotFromHistory(v1), domain.NewSnapshotFromHistory(v2)), nil
}

// RollbackEvent restores the event to a prior version. The caller must be
// the event's creator or hold the owner or editor role. The pre-rollback
// state is appended to the ledger in the same transaction as the overwrite.
func (s *Service) RollbackEvent(ctx context.Context, callerID, eventID, versionID uuid.UUID) (domain.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}

	if _, err := s.history.Get(ctx, eventID, versionID); err != nil {
		return domain.Event{}, err
	}

	role, err := s.roleOf(ctx, callerID, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if !domain.CanRollback(event.CreatedBy, callerID, role) {
		return domain.Event{}, domain.ForbiddenError("no permission to rollback this event")
	}

	return s.events.Rollback(ctx, eventID, versionID, callerID)
}

// roleOf resolves the caller's role on an event; nil means no grant.
func (s *Service) roleOf(ctx context.Context, userID, eventID uuid.UUID) (*domain.Role, error) {
	role, err := s.roles.GetRole(ctx, userID, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}
