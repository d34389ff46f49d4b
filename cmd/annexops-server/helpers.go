package main

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
)

// readAll drains a request body already capped by http.MaxBytesReader.
func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// pathUUID parses a path parameter as a UUID, writing a 400 and returning
// ok=false on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		api.WriteBadRequest(w, r, "invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// principalOrgID resolves the caller's organization as a UUID; middleware
// guarantees a principal is present on every non-public route.
func principalOrgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	principal, err := authn.GetPrincipal(r.Context())
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "missing principal"))
		return uuid.Nil, false
	}
	orgID, err := uuid.Parse(principal.GetOrgID())
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "malformed organization id"))
		return uuid.Nil, false
	}
	return orgID, true
}

func principalUserID(r *http.Request) (uuid.UUID, error) {
	principal, err := authn.GetPrincipal(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(principal.GetUserID())
}

// requirePrincipal fetches the request's principal, writing a 401 and
// returning a non-nil error if none is present.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (authn.Principal, error) {
	principal, err := authn.GetPrincipal(r.Context())
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "missing principal"))
		return nil, err
	}
	return principal, nil
}

// requireMinRole reports whether the request's principal meets min,
// writing a 403 and returning false otherwise.
func requireMinRole(w http.ResponseWriter, r *http.Request, min domain.Role) bool {
	principal, err := authn.GetPrincipal(r.Context())
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "missing principal"))
		return false
	}
	if !principal.HasRole(min) {
		api.WriteRegistryError(w, r, api.NewError(api.KindForbidden, "insufficient role for this operation"))
		return false
	}
	return true
}
