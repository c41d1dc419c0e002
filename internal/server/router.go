package server

import (
	"net/http"
	"time"

	"github.com/rosterhq/rosterd/internal/csvdoc"
	"github.com/rosterhq/rosterd/internal/roster"
	"github.com/rosterhq/rosterd/internal/server/handlers"
	"github.com/rosterhq/rosterd/internal/server/ratelimit"
	"github.com/rosterhq/rosterd/internal/session"
)

// Options configures the router.
type Options struct {
	// SessionTTL bounds the session cookie lifetime.
	SessionTTL time.Duration
	// LoginRateLimit is login and register attempts allowed per client
	// IP per minute. 0 disables rate limiting.
	LoginRateLimit int
}

// NewRouter creates and configures the HTTP router. The returned
// shutdown function releases router-owned resources (the rate limiter's
// cleanup goroutine) and must be called when the server stops.
func NewRouter(rosterSvc *roster.Service, sessions session.Store, opts Options) (http.Handler, func()) {
	mux := http.NewServeMux()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(rosterSvc, sessions, opts.SessionTTL, tokenFrom)
	userHandler := handlers.NewUserHandler(rosterSvc)

	// Health check
	mux.Handle("GET /api/health", Wrap(handlers.Health))

	// Auth endpoints
	mux.Handle("POST /api/auth/register", Wrap(authHandler.Register))
	mux.Handle("POST /api/auth/login", Wrap(authHandler.Login))
	mux.Handle("POST /api/auth/logout", Wrap(authHandler.Logout))
	mux.Handle("GET /api/auth/me", Wrap(authHandler.Me))

	// User management, admin only
	admin := RequireRole(csvdoc.RoleAdmin)
	mux.Handle("GET /api/users", admin(Wrap(userHandler.ListUsers)))
	mux.Handle("GET /api/users/{email}", admin(Wrap(userHandler.GetUser)))
	mux.Handle("POST /api/users/update", admin(Wrap(userHandler.UpdateUser)))
	mux.Handle("POST /api/users/delete", admin(Wrap(userHandler.DeleteUser)))

	var handler http.Handler = mux
	handler = AuthMiddleware(sessions)(handler)

	shutdown := func() {}
	if opts.LoginRateLimit > 0 {
		limiter := ratelimit.NewLimiter(opts.LoginRateLimit, time.Minute, opts.LoginRateLimit)
		isAuth := func(r *http.Request) bool {
			return r.URL.Path == "/api/auth/login" || r.URL.Path == "/api/auth/register"
		}
		handler = ratelimit.Middleware(limiter, isAuth, clientIP)(handler)
		shutdown = limiter.Close
	}

	return handler, shutdown
}
