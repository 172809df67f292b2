package repository

import (
	"errors"
	"strings"

	"github.com/rpattn/calql/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Constraint names from migrations/001_init.up.sql.
const (
	constraintCreatorOverlap = "events_no_creator_overlap"
	constraintTimeOrder      = "events_time_order"
	constraintGrantUnique    = "event_roles_pkey"
)

// SQLSTATE codes the business layer cares about.
const (
	codeUniqueViolation    = "23505"
	codeForeignKeyMissing  = "23503"
	codeCheckViolation     = "23514"
	codeExclusionViolation = "23P01"
)

// translateError maps storage errors onto the business taxonomy. Anything
// it does not recognize passes through untouched and surfaces as an
// internal error.
func translateError(err error, resource string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFoundError(resource)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeExclusionViolation:
		if pgErr.ConstraintName == constraintCreatorOverlap {
			return domain.ConflictError("event overlaps another event by the same creator")
		}
	case codeUniqueViolation:
		if pgErr.ConstraintName == constraintGrantUnique {
			return domain.DuplicateGrantError("user already has a role on this event")
		}
	case codeCheckViolation:
		if pgErr.ConstraintName == constraintTimeOrder {
			return domain.ValidationError("end_time must be after start_time")
		}
	case codeForeignKeyMissing:
		return domain.NotFoundError(referencedResource(pgErr.ConstraintName))
	}

	return err
}

// referencedResource names the missing side of a foreign key violation.
func referencedResource(constraint string) string {
	switch {
	case strings.Contains(constraint, "user_id"), strings.Contains(constraint, "edited_by"), strings.Contains(constraint, "created_by"):
		return "user"
	case strings.Contains(constraint, "event"):
		return "event"
	default:
		return "resource"
	}
}
