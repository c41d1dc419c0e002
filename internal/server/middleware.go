package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rosterhq/rosterd/internal/csvdoc"
	apierrors "github.com/rosterhq/rosterd/internal/errors"
	"github.com/rosterhq/rosterd/internal/server/handlers"
	"github.com/rosterhq/rosterd/internal/session"
)

type tokenKey struct{}

// tokenFrom returns the raw session token stored by AuthMiddleware, or "".
func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// AuthMiddleware validates the session cookie and adds the caller's
// identity to the context. Login, register and non-API paths pass
// through unauthenticated.
func AuthMiddleware(sessions session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for login and register
			if r.URL.Path == "/api/auth/login" || r.URL.Path == "/api/auth/register" ||
				r.URL.Path == "/api/health" || !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(handlers.SessionCookie)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			identity, err := sessions.Validate(r.Context(), cookie.Value)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := session.WithIdentity(r.Context(), identity)
			ctx = context.WithValue(ctx, tokenKey{}, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole ensures the authenticated caller has at least the
// required role.
func RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := session.IdentityFrom(r.Context())
			if identity == nil {
				unauthorized(w)
				return
			}

			if !hasPermission(identity.Role, requiredRole) {
				writeErrorResponseWithCode(w, http.StatusForbidden, apierrors.ErrForbidden,
					"Forbidden: insufficient permissions", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasPermission(userRole, requiredRole string) bool {
	weights := map[string]int{
		csvdoc.RoleAuthor:  1,
		csvdoc.RoleManager: 2,
		csvdoc.RoleAdmin:   3,
	}

	return weights[userRole] >= weights[requiredRole]
}

func unauthorized(w http.ResponseWriter) {
	writeErrorResponseWithCode(w, http.StatusUnauthorized, apierrors.ErrUnauthorized, "Unauthorized", nil)
}

// clientIP extracts the caller's address for rate limiting standalone
// deployments. X-Forwarded-For is not trusted here.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
