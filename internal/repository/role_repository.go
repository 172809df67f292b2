package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/calql/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// roleRepository implements RoleRepository on Postgres.
type roleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository creates a new role grant repository.
func NewRoleRepository(pool *pgxpool.Pool) RoleRepository {
	return &roleRepository{pool: pool}
}

// Grant creates a new (user, event, role) grant. An existing grant for the
// pair fails with ErrDuplicateGrant; changing a role goes through
// UpdateRole instead.
func (r *roleRepository) Grant(ctx context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error) {
	grant := domain.RoleGrant{UserID: userID, EventID: eventID, Role: role}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO event_roles (user_id, event_id, role)
		VALUES ($1, $2, $3)
		RETURNING created_at`, userID, eventID, role).Scan(&grant.CreatedAt)
	if err != nil {
		return domain.RoleGrant{}, translateError(err, "grant")
	}
	return grant, nil
}

// GetRole returns the user's role on the event, or ErrNotFound when the
// user holds no grant.
func (r *roleRepository) GetRole(ctx context.Context, userID, eventID uuid.UUID) (domain.Role, error) {
	var role domain.Role
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM event_roles
		WHERE user_id = $1 AND event_id = $2`, userID, eventID).Scan(&role)
	if err != nil {
		return "", translateError(err, "grant")
	}
	return role, nil
}

// UpdateRole changes an existing grant's role.
func (r *roleRepository) UpdateRole(ctx context.Context, userID, eventID uuid.UUID, role domain.Role) (domain.RoleGrant, error) {
	grant := domain.RoleGrant{UserID: userID, EventID: eventID, Role: role}
	err := r.pool.QueryRow(ctx, `
		UPDATE event_roles SET role = $3
		WHERE user_id = $1 AND event_id = $2
		RETURNING created_at`, userID, eventID, role).Scan(&grant.CreatedAt)
	if err != nil {
		return domain.RoleGrant{}, translateError(err, "grant")
	}
	return grant, nil
}

// Revoke removes an existing grant. Nothing prevents revoking the last
// owner; see DESIGN.md.
func (r *roleRepository) Revoke(ctx context.Context, userID, eventID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM event_roles
		WHERE user_id = $1 AND event_id = $2`, userID, eventID)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("grant")
	}
	return nil
}

// ListGrants returns the event's grants in grant creation order.
func (r *roleRepository) ListGrants(ctx context.Context, eventID uuid.UUID) ([]domain.RoleGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, event_id, role, created_at
		FROM event_roles
		WHERE event_id = $1
		ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	grants := []domain.RoleGrant{}
	for rows.Next() {
		var grant domain.RoleGrant
		if err := rows.Scan(&grant.UserID, &grant.EventID, &grant.Role, &grant.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}

	return grants, nil
}
