package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annexops/registry/internal/domain"
)

func newTestKeySet(t *testing.T) *InMemoryKeySet {
	t.Helper()
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	return ks
}

func signToken(t *testing.T, ks *InMemoryKeySet, orgID string, role domain.Role, subject string) string {
	t.Helper()
	claims := &RegistryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrgID: orgID,
		Role:  role,
	}
	tok, err := ks.Sign(context.Background(), claims)
	require.NoError(t, err)
	return tok
}

func TestMiddleware_RejectsMissingAuthHeader(t *testing.T) {
	validator := NewJWTValidator(newTestKeySet(t))
	mw := NewMiddleware(validator)

	called := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/systems", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AllowsPublicPath(t *testing.T) {
	mw := NewMiddleware(nil)
	called := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_ValidTokenInjectsPrincipal(t *testing.T) {
	ks := newTestKeySet(t)
	validator := NewJWTValidator(ks)
	mw := NewMiddleware(validator)

	token := signToken(t, ks, "org-123", domain.RoleEditor, "user-abc")

	var gotOrg, gotUser string
	var gotRole domain.Role
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipal(r.Context())
		require.NoError(t, err)
		gotOrg = p.GetOrgID()
		gotUser = p.GetUserID()
		gotRole = p.GetRole()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/systems", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "org-123", gotOrg)
	assert.Equal(t, "user-abc", gotUser)
	assert.Equal(t, domain.RoleEditor, gotRole)
}

func TestMiddleware_RejectsTokenWithoutOrg(t *testing.T) {
	ks := newTestKeySet(t)
	validator := NewJWTValidator(ks)
	mw := NewMiddleware(validator)

	token := signToken(t, ks, "", domain.RoleEditor, "user-abc")

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/systems", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
