package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Stateless signs {email, role, exp} into the token itself (HS256). No
// server-side table exists, so Validate needs no storage round trip and
// Revoke cannot invalidate a token before its natural expiry: logout only
// clears the client-held cookie.
type Stateless struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewStateless creates a signed-token session store. ttl <= 0 selects
// DefaultTTL.
func NewStateless(secret string, ttl time.Duration) *Stateless {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Stateless{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue implements Store.
func (s *Stateless) Issue(_ context.Context, identity Identity) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"email": identity.Email,
		"role":  identity.Role,
		"exp":   now.Add(s.ttl).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate implements Store. Expiry is checked by the JWT library against
// the exp claim.
func (s *Stateless) Validate(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalid
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalid
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if email == "" {
		return nil, ErrInvalid
	}
	return &Identity{Email: email, Role: role}, nil
}

// Revoke implements Store. A signed token cannot be invalidated server-side;
// this is a documented no-op.
func (s *Stateless) Revoke(context.Context, string) error {
	return nil
}

var _ Store = (*Stateless)(nil)
