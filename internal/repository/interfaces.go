package repository

import (
	"context"

	"github.com/rpattn/calql/internal/domain"

	"github.com/google/uuid"
)

// EventRepository defines the interface for event persistence. Every
// mutating call runs inside a single storage transaction; Create and
// CreateBatch also write the creator's owner grant, Update and Rollback
// also append the pre-mutation history record.
type EventRepository interface {
	Create(ctx context.Context, event domain.Event) (domain.Event, error)
	CreateBatch(ctx context.Context, events []domain.Event) ([]domain.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Event, error)
	List(ctx context.Context, limit, offset int) ([]domain.Event, int, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Event, error)
	Update(ctx context.Context, eventID, editorID uuid.UUID, patch domain.EventPatch) (domain.Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Rollback(ctx context.Context, eventID, versionID, callerID uuid.UUID) (domain.Event, error)
}

// RoleRepository defines the interface for role grant persistence. A grant
// is unique per (user, event); Grant fails on an existing pair instead of
// overwriting it.
type RoleRepository interface {
	Grant(ctx context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error)
	GetRole(ctx context.Context, userID, eventID uuid.UUID) (domain.Role, error)
	UpdateRole(ctx context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error)
	Revoke(ctx context.Context, userID, eventID uuid.UUID) error
	ListGrants(ctx context.Context, eventID uuid.UUID) ([]domain.RoleGrant, error)
}

// HistoryRepository defines the read surface of the append-only history
// ledger plus the single append operation. There is deliberately no update
// or delete.
type HistoryRepository interface {
	Record(ctx context.Context, eventID, editorID uuid.UUID, snapshot domain.EventSnapshot) (domain.EventHistory, error)
	ListForEvent(ctx context.Context, eventID uuid.UUID) ([]domain.EventHistory, error)
	Get(ctx context.Context, eventID, versionID uuid.UUID) (domain.EventHistory, error)
}

// UserRepository defines read-only access to referenced identities. Account
// lifecycle belongs to the external identity provider.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
}
