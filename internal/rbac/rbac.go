// Package rbac holds the role-gate table for version lifecycle transitions
// and the last-active-admin check for user delete/demote (spec §3, §4.1,
// §8 property 7); no handler in this module calls that check.
package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
)

// transition is one row of the version status state machine (spec §4.1).
type transition struct {
	from domain.VersionStatus
	to   domain.VersionStatus
	min  domain.Role
}

var transitions = []transition{
	{domain.VersionDraft, domain.VersionReview, domain.RoleEditor},
	{domain.VersionReview, domain.VersionDraft, domain.RoleEditor},
	{domain.VersionReview, domain.VersionApproved, domain.RoleAdmin},
}

// CheckTransition reports whether role may move a version from -> to. It
// returns a *api.RegistryError ready to propagate: KindConflict for an
// unreachable transition (including the terminal "approved" state),
// KindForbidden when the transition exists but the role is insufficient.
func CheckTransition(role domain.Role, from, to domain.VersionStatus) error {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			if !role.AtLeast(t.min) {
				return api.NewError(api.KindForbidden, fmt.Sprintf("transitioning %s -> %s requires role %s", from, to, t.min))
			}
			return nil
		}
	}
	return api.NewError(api.KindConflict, fmt.Sprintf("invalid status transition %s -> %s", from, to))
}

// CanApprove reports whether role can move a version into "approved". No
// handler calls it; the approval path is gated by CheckTransition like every
// other transition.
func CanApprove(role domain.Role) bool {
	return role.AtLeast(domain.RoleAdmin)
}

// EnsureNotLastActiveAdmin blocks a delete or demote of userID when it would
// leave the organization with zero active admins. It must run inside the
// same transaction as the delete/demote it is guarding.
func EnsureNotLastActiveAdmin(ctx context.Context, tx *sql.Tx, orgID, userID uuid.UUID) error {
	var currentRole domain.Role
	var active bool
	err := tx.QueryRowContext(ctx, `SELECT role, active FROM users WHERE id = $1 AND org_id = $2`, userID, orgID).
		Scan(&currentRole, &active)
	if err != nil {
		if err == sql.ErrNoRows {
			return api.NewError(api.KindNotFound, "user not found")
		}
		return fmt.Errorf("rbac: load user: %w", err)
	}
	if currentRole != domain.RoleAdmin || !active {
		return nil
	}

	var otherActiveAdmins int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM users
		WHERE org_id = $1 AND role = $2 AND active = TRUE AND id <> $3
	`, orgID, domain.RoleAdmin, userID).Scan(&otherActiveAdmins)
	if err != nil {
		return fmt.Errorf("rbac: count active admins: %w", err)
	}
	if otherActiveAdmins == 0 {
		return api.NewError(api.KindConflict, "cannot remove the last active admin of an organization")
	}
	return nil
}
