package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access level a user holds on a single event.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole validates a role value from the wire.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleOwner, RoleEditor, RoleViewer:
		return Role(value), nil
	default:
		return "", ValidationError("invalid role %q", value)
	}
}

// RoleGrant is a (user, event, role) authorization fact. At most one grant
// exists per (user, event) pair; changing it goes through an explicit
// update, never a silent overwrite.
type RoleGrant struct {
	UserID    uuid.UUID `json:"user_id"`
	EventID   uuid.UUID `json:"event_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the referenced identity for grants and history attribution.
// Account lifecycle is handled by the external identity provider.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
