package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/orgs"
)

func (s *server) handleBootstrapOrg(w http.ResponseWriter, r *http.Request) {
	var req orgs.BootstrapRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	if req.OrgName == "" || req.AdminEmail == "" || req.AdminPassword == "" {
		api.WriteBadRequest(w, r, "org_name, admin_email, and admin_password are required")
		return
	}

	if existing, err := s.provisioner.GetByAdminEmail(r.Context(), req.AdminEmail); err == nil && existing != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindConflict, "an organization is already registered for this admin email"))
		return
	}

	result, err := s.provisioner.Bootstrap(r.Context(), req)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var user domain.User
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, org_id, email, password_hash, role, active
		FROM users WHERE email = $1
	`, req.Email).Scan(&user.ID, &user.OrgID, &user.Email, &user.PasswordHash, &user.Role, &user.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "invalid email or password"))
			return
		}
		api.WriteInternal(w, r, err)
		return
	}
	if !user.Active {
		api.WriteRegistryError(w, r, api.NewError(api.KindForbidden, "account is deactivated"))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "invalid email or password"))
		return
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.JWTAccessTTL)
	claims := &authn.RegistryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.cfg.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OrgID: user.OrgID.String(),
		Role:  user.Role,
	}
	token, err := s.keySet.Sign(r.Context(), claims)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, loginResponse{AccessToken: token, ExpiresAt: expiresAt})
}
