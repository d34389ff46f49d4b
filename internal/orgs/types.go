// Package orgs provisions a new Organization together with its first admin
// User in a single transaction. There is no self-service signup beyond this
// one bootstrap call, and this package has no other user-creation path.
package orgs

import "github.com/annexops/registry/internal/domain"

// BootstrapRequest is the payload for POST /api/v1/organizations.
type BootstrapRequest struct {
	OrgName       string `json:"org_name"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// BootstrapResult returns the created org and admin user so the caller can
// render a first-login prompt; no token is issued here, the caller still
// has to log in.
type BootstrapResult struct {
	Organization *domain.Organization `json:"organization"`
	AdminUser    *domain.User         `json:"admin_user"`
}
