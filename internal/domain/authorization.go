package domain

import "github.com/google/uuid"

// Action enumerates everything a caller can attempt against an event.
type Action string

const (
	ActionReadEvent       Action = "event.read"
	ActionUpdateEvent     Action = "event.update"
	ActionDeleteEvent     Action = "event.delete"
	ActionShareEvent      Action = "event.share"
	ActionViewPermissions Action = "permissions.view"
	ActionManageRoles     Action = "roles.manage"
	ActionRollbackEvent   Action = "event.rollback"
	ActionViewHistory     Action = "history.view"
)

// AllActions lists every action the matrix covers.
var AllActions = []Action{
	ActionReadEvent,
	ActionUpdateEvent,
	ActionDeleteEvent,
	ActionShareEvent,
	ActionViewPermissions,
	ActionManageRoles,
	ActionRollbackEvent,
	ActionViewHistory,
}

// anyAuthenticated marks actions open to every authenticated caller
// regardless of their role on the event.
var anyAuthenticated = []Role{}

// allowedRoles is the single source of truth for authorization decisions.
// Role ordering is not a strict hierarchy; each action names its roles.
// History and diff reads intentionally carry no role requirement, matching
// the upstream contract; see DESIGN.md before tightening this.
var allowedRoles = map[Action][]Role{
	ActionReadEvent:       {RoleOwner, RoleEditor, RoleViewer},
	ActionUpdateEvent:     {RoleOwner, RoleEditor},
	ActionDeleteEvent:     {RoleOwner},
	ActionShareEvent:      {RoleOwner},
	ActionViewPermissions: {RoleOwner},
	ActionManageRoles:     {RoleOwner},
	ActionRollbackEvent:   {RoleOwner, RoleEditor},
	ActionViewHistory:     anyAuthenticated,
}

// Authorize decides whether a caller holding role may perform action.
// A nil role means the caller has no grant on the event. The function is
// total: unknown actions deny.
func Authorize(role *Role, action Action) bool {
	roles, ok := allowedRoles[action]
	if !ok {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	if role == nil {
		return false
	}
	for _, allowed := range roles {
		if *role == allowed {
			return true
		}
	}
	return false
}

// CanRollback extends the matrix for rollback's creator bypass: the event
// creator may roll back regardless of their current grant.
func CanRollback(createdBy, callerID uuid.UUID, role *Role) bool {
	if callerID == createdBy {
		return true
	}
	return Authorize(role, ActionRollbackEvent)
}
