package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rosterhq/rosterd/internal/csvdoc"
	apierrors "github.com/rosterhq/rosterd/internal/errors"
	"github.com/rosterhq/rosterd/internal/roster"
	"github.com/rosterhq/rosterd/internal/session"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "roster_session"

// AuthHandler handles authentication requests.
type AuthHandler struct {
	roster   *roster.Service
	sessions session.Store
	ttl      time.Duration
	// tokenFrom retrieves the raw session token the middleware stored.
	tokenFrom func(context.Context) string
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(rosterSvc *roster.Service, sessions session.Store, ttl time.Duration, tokenFrom func(context.Context) string) *AuthHandler {
	return &AuthHandler{
		roster:    rosterSvc,
		sessions:  sessions,
		ttl:       ttl,
		tokenFrom: tokenFrom,
	}
}

// LoginRequest is a request to log in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by Login and Register. The token also
// travels in an HttpOnly cookie.
type SessionResponse struct {
	User    csvdoc.Record `json:"user"`
	created bool
	cookie  *http.Cookie
}

// StatusCode returns 201 for registrations and 200 otherwise.
func (r *SessionResponse) StatusCode() int {
	if r.created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// Cookies returns the session cookie to set, if any.
func (r *SessionResponse) Cookies() []*http.Cookie {
	if r.cookie == nil {
		return nil
	}
	return []*http.Cookie{r.cookie}
}

func (h *AuthHandler) sessionCookie(token string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// RegisterRequest is a request to register a new user.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register creates a new Author account and opens a session for it.
func (h *AuthHandler) Register(ctx context.Context, req RegisterRequest) (*SessionResponse, error) {
	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" {
		return nil, apierrors.MissingField("firstName, lastName, email or password")
	}

	record, err := h.roster.Register(ctx, roster.Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	switch {
	case errors.Is(err, roster.ErrDuplicateEmail):
		return nil, apierrors.DuplicateEmail(req.Email)
	case errors.Is(err, csvdoc.ErrFieldDelimiter):
		return nil, apierrors.BadRequest(err.Error())
	case err != nil:
		return nil, apierrors.InternalWithError("Failed to create user", err)
	}

	token, err := h.sessions.Issue(ctx, session.Identity{Email: record.Email, Role: record.Role})
	if err != nil {
		return nil, apierrors.InternalWithError("Failed to create session", err)
	}

	return &SessionResponse{
		User:    record,
		created: true,
		cookie:  h.sessionCookie(token, int(h.ttl.Seconds())),
	}, nil
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, apierrors.MissingField("email or password")
	}

	record, err := h.roster.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		// A bad email and a bad password answer identically.
		return nil, apierrors.NewAPIError(http.StatusUnauthorized, apierrors.ErrUnauthorized, "Invalid credentials")
	}

	token, err := h.sessions.Issue(ctx, session.Identity{Email: record.Email, Role: record.Role})
	if err != nil {
		return nil, apierrors.InternalWithError("Failed to create session", err)
	}

	return &SessionResponse{
		User:   record,
		cookie: h.sessionCookie(token, int(h.ttl.Seconds())),
	}, nil
}

// LogoutRequest is a request to log out (empty).
type LogoutRequest struct{}

// LogoutResponse clears the session cookie.
type LogoutResponse struct {
	Status string `json:"status"`
	cookie *http.Cookie
}

// Cookies returns the expired session cookie.
func (r *LogoutResponse) Cookies() []*http.Cookie {
	return []*http.Cookie{r.cookie}
}

// Logout revokes the current session and clears the cookie.
func (h *AuthHandler) Logout(ctx context.Context, req LogoutRequest) (*LogoutResponse, error) {
	if token := h.tokenFrom(ctx); token != "" {
		if err := h.sessions.Revoke(ctx, token); err != nil {
			return nil, apierrors.InternalWithError("Failed to revoke session", err)
		}
	}
	return &LogoutResponse{
		Status: "ok",
		cookie: h.sessionCookie("", -1),
	}, nil
}

// MeRequest is a request to get current user info.
type MeRequest struct{}

// Me returns the roster record for the authenticated caller.
func (h *AuthHandler) Me(ctx context.Context, req MeRequest) (*csvdoc.Record, error) {
	identity := session.IdentityFrom(ctx)
	if identity == nil {
		return nil, apierrors.Unauthorized()
	}
	record, err := h.roster.Get(ctx, identity.Email)
	if errors.Is(err, roster.ErrNotFound) {
		// The account was deleted after the session was issued.
		return nil, apierrors.Unauthorized()
	}
	if err != nil {
		return nil, apierrors.InternalWithError("Failed to load user", err)
	}
	return &record, nil
}
