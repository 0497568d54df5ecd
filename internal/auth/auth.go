package auth

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Role of an authenticated request principal. Credential verification is
// performed upstream (API gateway); this service trusts the identity
// headers the gateway injects.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
)

type Principal struct {
	UserID uuid.UUID
	Role   Role
}

type contextKey struct{}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given principal. Used by
// tests and the middleware below.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func validRole(r Role) bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// Middleware extracts the request principal from gateway headers and
// rejects requests without a valid identity.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.FromString(r.Header.Get(HeaderUserID))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		role := Role(r.Header.Get(HeaderRole))
		if !validRole(role) {
			log.Warn().Str("role", string(role)).Msg("Request with unknown role rejected")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{UserID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole guards a route subtree to the given roles. Must run after
// Middleware.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok || !allowed[p.Role] {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
