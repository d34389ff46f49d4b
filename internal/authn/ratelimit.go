package authn

import (
	"fmt"
	"net/http"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/pkg/ratelimit"
)

// RateLimitMiddleware enforces a BackpressurePolicy per authenticated
// user (keyed by org and user id), falling back to remote address for unauthenticated routes
// such as login. A nil store fails open (no limiter configured).
func RateLimitMiddleware(store ratelimit.LimiterStore, policy ratelimit.BackpressurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actorID = fmt.Sprintf("%s/%s", principal.GetOrgID(), principal.GetUserID())
			}

			allowed, err := store.Allow(r.Context(), actorID, policy, 1)
			if err != nil {
				// Fail open on limiter errors so a Redis blip doesn't take
				// down every request.
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				retryAfter := 60 / policy.RPM
				if retryAfter < 1 {
					retryAfter = 1
				}
				api.WriteTooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
