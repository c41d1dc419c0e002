package session

import (
	"context"
	"testing"
	"time"

	"github.com/rosterhq/rosterd/internal/docstore"
	"github.com/rosterhq/rosterd/internal/objstore"
)

func newDocStoreSessions(t *testing.T) *DocStoreSessions {
	t.Helper()
	docs := docstore.New(objstore.NewMemoryClient(), "sessions", TableHeader+"\n")
	return NewDocStoreSessions(docs, DefaultTTL)
}

func TestDocStoreIssueValidate(t *testing.T) {
	ctx := context.Background()
	store := newDocStoreSessions(t)

	token, err := store.Issue(ctx, Identity{Email: "alice@example.com", Role: "Admin"})
	if err != nil {
		t.Fatal(err)
	}
	if len(token) != 32 {
		t.Errorf("expected 32 hex chars (128 bits), got %d", len(token))
	}

	id, err := store.Validate(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if id.Email != "alice@example.com" || id.Role != "Admin" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestDocStoreValidateUnknownToken(t *testing.T) {
	ctx := context.Background()
	store := newDocStoreSessions(t)

	if _, err := store.Validate(ctx, "deadbeefdeadbeefdeadbeefdeadbeef"); err != ErrInvalid {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := store.Validate(ctx, ""); err != ErrInvalid {
		t.Errorf("expected ErrInvalid for empty token, got %v", err)
	}
}

func TestDocStoreExpiryIsLazy(t *testing.T) {
	ctx := context.Background()
	store := newDocStoreSessions(t)

	token, err := store.Issue(ctx, Identity{Email: "a@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}

	// Move the clock past the TTL; the entry must be invalid and evicted.
	store.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Minute) }
	if _, err := store.Validate(ctx, token); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid after TTL, got %v", err)
	}

	// Even with the clock restored, the lazy eviction removed the row.
	store.now = time.Now
	if _, err := store.Validate(ctx, token); err != ErrInvalid {
		t.Errorf("expected evicted token to stay invalid, got %v", err)
	}
}

func TestDocStoreValidateWithMixedTable(t *testing.T) {
	ctx := context.Background()
	store := newDocStoreSessions(t)

	// First row of the table is already expired; bob and the admin
	// sit behind it in document order.
	store.now = func() time.Time { return time.Now().Add(-(DefaultTTL + time.Hour)) }
	stale, err := store.Issue(ctx, Identity{Email: "old@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}
	store.now = time.Now
	bob, err := store.Issue(ctx, Identity{Email: "bob@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}
	admin, err := store.Issue(ctx, Identity{Email: "admin@x.com", Role: "Admin"})
	if err != nil {
		t.Fatal(err)
	}

	// The lookup must return bob's own identity, not a neighbor's,
	// while the expired row gets evicted around it.
	id, err := store.Validate(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if id.Email != "bob@x.com" || id.Role != "Author" {
		t.Fatalf("validate returned wrong identity: %+v", id)
	}

	if _, err := store.Validate(ctx, stale); err != ErrInvalid {
		t.Errorf("expired token: got %v", err)
	}
	id, err = store.Validate(ctx, admin)
	if err != nil {
		t.Fatal(err)
	}
	if id.Email != "admin@x.com" || id.Role != "Admin" {
		t.Errorf("admin session damaged by eviction: %+v", id)
	}
}

func TestDocStoreRevoke(t *testing.T) {
	ctx := context.Background()
	store := newDocStoreSessions(t)

	token, err := store.Issue(ctx, Identity{Email: "a@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Validate(ctx, token); err != ErrInvalid {
		t.Errorf("expected ErrInvalid after revoke, got %v", err)
	}
	// Idempotent.
	if err := store.Revoke(ctx, token); err != nil {
		t.Errorf("second revoke should be a no-op: %v", err)
	}
}

func TestDocStoreRevokeLeavesOtherSessions(t *testing.T) {
	ctx := context.Background()
	store := newDocStoreSessions(t)

	t1, err := store.Issue(ctx, Identity{Email: "a@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}
	t2, err := store.Issue(ctx, Identity{Email: "b@x.com", Role: "Admin"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Revoke(ctx, t1); err != nil {
		t.Fatal(err)
	}
	id, err := store.Validate(ctx, t2)
	if err != nil {
		t.Fatal(err)
	}
	if id.Email != "b@x.com" {
		t.Errorf("unrelated session damaged: %+v", id)
	}
}

func TestStatelessIssueValidate(t *testing.T) {
	ctx := context.Background()
	store := NewStateless("test-secret", DefaultTTL)

	token, err := store.Issue(ctx, Identity{Email: "alice@example.com", Role: "Manager"})
	if err != nil {
		t.Fatal(err)
	}
	id, err := store.Validate(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if id.Email != "alice@example.com" || id.Role != "Manager" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestStatelessRejectsTampering(t *testing.T) {
	ctx := context.Background()
	store := NewStateless("test-secret", DefaultTTL)

	token, err := store.Issue(ctx, Identity{Email: "a@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Validate(ctx, token+"x"); err != ErrInvalid {
		t.Errorf("expected ErrInvalid for tampered token, got %v", err)
	}

	// Token signed with a different secret must not validate.
	other := NewStateless("other-secret", DefaultTTL)
	foreign, err := other.Issue(ctx, Identity{Email: "a@x.com", Role: "Admin"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Validate(ctx, foreign); err != ErrInvalid {
		t.Errorf("expected ErrInvalid for foreign signature, got %v", err)
	}
}

func TestStatelessExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewStateless("test-secret", DefaultTTL)

	token, err := store.Issue(ctx, Identity{Email: "a@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}
	store.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Minute) }
	if _, err := store.Validate(ctx, token); err != ErrInvalid {
		t.Errorf("expected ErrInvalid after TTL, got %v", err)
	}
}

func TestStatelessRevokeIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewStateless("test-secret", DefaultTTL)

	token, err := store.Issue(ctx, Identity{Email: "a@x.com", Role: "Author"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	// Documented limitation: the token stays valid until exp.
	if _, err := store.Validate(ctx, token); err != nil {
		t.Errorf("stateless revoke cannot invalidate: %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFrom(ctx) != nil {
		t.Error("expected nil identity on empty context")
	}
	id := &Identity{Email: "a@x.com", Role: "Admin"}
	ctx = WithIdentity(ctx, id)
	if got := IdentityFrom(ctx); got != id {
		t.Errorf("got %+v", got)
	}
}
