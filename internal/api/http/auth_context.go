package httpapi

import (
	"context"
	"net/http"
	"strings"

	appIdentity "github.com/lecture-hub/lecture-hub/internal/application/identity"
	"github.com/lecture-hub/lecture-hub/internal/domain/identity"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/metrics"
)

type authContextKey string

const identityKey authContextKey = "identity"

func withIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func identityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityKey).(identity.Identity)
	return id, ok
}

// requireAuth resolves the request's identity. REST calls may use a bearer
// token or, for device-identified learners, the X-Device-ID header.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.resolver.Resolve(appIdentity.ResolveInput{
			Token:       extractToken(r),
			DeviceID:    r.Header.Get("X-Device-ID"),
			DisplayName: r.Header.Get("X-Display-Name"),
		})
		if err != nil {
			metrics.AuthRejections.WithLabelValues("rest").Inc()
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "credentials rejected")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func (s *Server) requireInstructor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
			return
		}
		if !id.IsInstructor() {
			respondError(w, http.StatusForbidden, "FORBIDDEN", "instructor role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
