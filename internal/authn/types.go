// Package authn handles JWT issuance/validation, request-scoped principal
// propagation, and the per-actor rate-limit middleware that sits in front of
// the HTTP surface.
package authn

import "github.com/annexops/registry/internal/domain"

// Principal is the authenticated entity making a request: always a human
// user scoped to exactly one organization (no service accounts or agents in
// this system).
type Principal interface {
	GetUserID() string
	GetOrgID() string
	GetRole() domain.Role
	// HasRole reports whether the principal's role is at least as
	// privileged as min on the viewer < reviewer < editor < admin ladder.
	HasRole(min domain.Role) bool
}

// BasePrincipal is the concrete Principal built by the JWT middleware from
// validated claims.
type BasePrincipal struct {
	UserID string
	OrgID  string
	Role   domain.Role
}

func (b *BasePrincipal) GetUserID() string { return b.UserID }
func (b *BasePrincipal) GetOrgID() string  { return b.OrgID }
func (b *BasePrincipal) GetRole() domain.Role { return b.Role }

func (b *BasePrincipal) HasRole(min domain.Role) bool {
	return b.Role.AtLeast(min)
}
