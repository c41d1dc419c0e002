// Package session issues, validates, and revokes the opaque tokens that
// prove a prior successful authentication.
//
// Two implementations satisfy the same contract: DocStore persists a
// token table through the document store, supporting true revocation;
// Stateless signs the identity into the token itself and needs no server
// state, at the cost of Revoke being a no-op.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is the session lifetime.
const DefaultTTL = 24 * time.Hour

// ErrInvalid is returned by Validate for tokens that are absent, expired,
// malformed, or revoked.
var ErrInvalid = errors.New("invalid or expired session")

// Identity is the authenticated principal bound to a token.
type Identity struct {
	Email string
	Role  string
}

// Store is the session layer contract.
type Store interface {
	// Issue creates a token bound to identity, valid for the store's TTL.
	Issue(ctx context.Context, identity Identity) (string, error)
	// Validate resolves a token to its identity, or ErrInvalid.
	Validate(ctx context.Context, token string) (*Identity, error)
	// Revoke invalidates a token. Idempotent; revoking an unknown token is
	// not an error.
	Revoke(ctx context.Context, token string) error
}

// newToken returns a random 128-bit token, hex encoded.
func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Context plumbing for the authenticated identity.

type contextKey string

const identityKey contextKey = "sessionIdentity"

// WithIdentity adds the authenticated identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the authenticated identity from the context, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey).(*Identity); ok {
		return v
	}
	return nil
}
