package authn

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
)

// JWTValidator validates JWT tokens and extracts claims.
type JWTValidator struct {
	KeySet KeySet
}

// RegistryClaims are the JWT claims issued on login, binding a subject to
// exactly one organization and role.
type RegistryClaims struct {
	jwt.RegisteredClaims
	OrgID string      `json:"org_id"`
	Role  domain.Role `json:"role"`
}

// NewJWTValidator creates a validator with the given KeySet.
func NewJWTValidator(ks KeySet) *JWTValidator {
	if ks == nil {
		return nil
	}
	return &JWTValidator{KeySet: ks}
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*RegistryClaims, error) {
	if v.KeySet == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	claims := &RegistryClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.KeySet.KeyFunc())
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
	"/readiness",
	"/api/v1/auth/login",
	"/api/v1/organizations",       // bootstrap-once, gated internally by its own handler
	"/api/v1/decision-logs/ingest", // authenticated by its own per-version API key, not a user JWT
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware creates JWT auth middleware. If validator is nil, every
// non-public request is rejected (fail closed).
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "missing Authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "expected 'Bearer <token>' Authorization header"))
				return
			}
			tokenStr := parts[1]

			if validator == nil {
				api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "authentication not configured"))
				return
			}

			claims, err := validator.Validate(tokenStr)
			if err != nil {
				api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "invalid or expired token"))
				return
			}
			if claims.Subject == "" || claims.OrgID == "" {
				api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "token is missing subject or organization binding"))
				return
			}
			if !claims.Role.Valid() {
				api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "token carries an unrecognized role"))
				return
			}

			principal := &BasePrincipal{
				UserID: claims.Subject,
				OrgID:  claims.OrgID,
				Role:   claims.Role,
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
