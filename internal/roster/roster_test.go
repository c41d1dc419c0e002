package roster

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/rosterhq/rosterd/internal/csvdoc"
	"github.com/rosterhq/rosterd/internal/docstore"
	"github.com/rosterhq/rosterd/internal/objstore"
)

func newService(t *testing.T) *Service {
	t.Helper()
	docs := docstore.New(objstore.NewMemoryClient(), "users", csvdoc.Header+"\n")
	return NewService(docs, bcrypt.MinCost)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	record, err := svc.Register(ctx, Registration{
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
		Password:  "s3cret",
	})
	if err != nil {
		t.Fatal(err)
	}
	if record.Role != csvdoc.RoleAuthor {
		t.Errorf("new users must be Author, got %q", record.Role)
	}
	if record.PasswordHash == "s3cret" || record.PasswordHash == "" {
		t.Error("password must be stored as a hash")
	}

	got, err := svc.Authenticate(ctx, "alice@example.com", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if got.FirstName != "Alice" {
		t.Errorf("got %+v", got)
	}
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	if _, err := svc.Register(ctx, Registration{FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Authenticate(ctx, "a@x.com", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@x.com", "pw"); err != ErrInvalidCredentials {
		t.Errorf("unknown email: got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	if _, err := svc.Register(ctx, Registration{FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	// Case-insensitive duplicate.
	if _, err := svc.Register(ctx, Registration{FirstName: "C", LastName: "D", Email: "A@X.COM", Password: "pw"}); err != ErrDuplicateEmail {
		t.Errorf("got %v", err)
	}
}

func TestRegisterRejectsDelimiterInFields(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.Register(ctx, Registration{FirstName: "A,B", LastName: "C", Email: "a@x.com", Password: "pw"})
	if err != csvdoc.ErrFieldDelimiter {
		t.Errorf("got %v", err)
	}
}

func TestRegisterPersistsAcrossServiceInstances(t *testing.T) {
	ctx := context.Background()
	client := objstore.NewMemoryClient()
	docs := docstore.New(client, "users", csvdoc.Header+"\n")
	svc := NewService(docs, bcrypt.MinCost)
	if _, err := svc.Register(ctx, Registration{FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	// A fresh service over the same bucket reads through the pointer.
	svc2 := NewService(docstore.New(client, "users", csvdoc.Header+"\n"), bcrypt.MinCost)
	if _, err := svc2.Authenticate(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("read-after-write across instances: %v", err)
	}
}

func TestUpdatePartial(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	orig, err := svc.Register(ctx, Registration{FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}

	first := "Anna"
	role := "Manager"
	updated, err := svc.Update(ctx, "a@x.com", csvdoc.Update{FirstName: &first, Role: &role})
	if err != nil {
		t.Fatal(err)
	}
	if updated.FirstName != "Anna" || updated.LastName != "B" || updated.Role != csvdoc.RoleManager {
		t.Errorf("got %+v", updated)
	}
	if updated.PasswordHash != orig.PasswordHash {
		t.Error("update must not touch the password hash")
	}
	// Credentials still work after the update.
	if _, err := svc.Authenticate(ctx, "a@x.com", "pw"); err != nil {
		t.Errorf("authenticate after update: %v", err)
	}
}

func TestUpdateUnknownRoleFallsBack(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	if _, err := svc.Register(ctx, Registration{FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	role := "Superuser"
	updated, err := svc.Update(ctx, "a@x.com", csvdoc.Update{Role: &role})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Role != csvdoc.RoleAuthor {
		t.Errorf("unknown role must normalize to Author, got %q", updated.Role)
	}
}

func TestUpdateEmailChange(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	if _, err := svc.Register(ctx, Registration{FirstName: "A", LastName: "B", Email: "old@x.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	email := "new@x.com"
	updated, err := svc.Update(ctx, "old@x.com", csvdoc.Update{Email: &email})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Email != "new@x.com" {
		t.Errorf("got %+v", updated)
	}
	if _, err := svc.Get(ctx, "old@x.com"); err != ErrNotFound {
		t.Errorf("old email must no longer resolve, got %v", err)
	}
}

func TestUpdateMissingTarget(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	first := "A"
	if _, err := svc.Update(ctx, "nobody@x.com", csvdoc.Update{FirstName: &first}); err != ErrNotFound {
		t.Errorf("got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	if _, err := svc.Register(ctx, Registration{FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "a@x.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, "a@x.com"); err != ErrNotFound {
		t.Errorf("got %v", err)
	}
	if err := svc.Delete(ctx, "a@x.com"); err != ErrNotFound {
		t.Errorf("second delete: got %v", err)
	}
}

func TestListPreservesDocumentOrder(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if _, err := svc.Register(ctx, Registration{FirstName: "U", LastName: "V", Email: email, Password: "pw"}); err != nil {
			t.Fatal(err)
		}
	}
	records, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var emails []string
	for _, r := range records {
		emails = append(emails, r.Email)
	}
	if got := strings.Join(emails, " "); got != "a@x.com b@x.com c@x.com" {
		t.Errorf("got %q", got)
	}
}
