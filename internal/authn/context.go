package authn

import (
	"context"
	"errors"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return nil, errors.New("authn: no principal in context")
	}
	return p, nil
}

// GetOrgID is a helper to get the organization ID from the context's Principal.
func GetOrgID(ctx context.Context) (string, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "", err
	}
	return p.GetOrgID(), nil
}

// MustGetOrgID panics if the org ID is missing; only call where middleware
// guarantees a principal is present.
func MustGetOrgID(ctx context.Context) string {
	orgID, err := GetOrgID(ctx)
	if err != nil {
		panic(err)
	}
	return orgID
}
