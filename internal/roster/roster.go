// Package roster implements user account management on top of a
// single CSV document held in a docstore.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rosterhq/rosterd/internal/csvdoc"
	"github.com/rosterhq/rosterd/internal/docstore"
)

var (
	// ErrDuplicateEmail is returned by Register when the email is taken.
	ErrDuplicateEmail = errors.New("email is already registered")
	// ErrNotFound is returned when no record matches the given email.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned by Authenticate for a bad email
	// or password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Registration is the input to Register.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Service manages the user roster document. Every mutation reloads the
// full document, applies the change and commits a new version, so the
// last committed write wins under concurrency.
type Service struct {
	docs       docstore.Store
	bcryptCost int
}

// NewService creates a Service over the given document store. A cost of
// 0 selects the bcrypt default.
func NewService(docs docstore.Store, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{docs: docs, bcryptCost: bcryptCost}
}

func (s *Service) load(ctx context.Context) (*csvdoc.RecordSet, error) {
	document, err := s.docs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return csvdoc.Parse(document), nil
}

func (s *Service) commit(ctx context.Context, rs *csvdoc.RecordSet) error {
	if err := s.docs.Commit(ctx, csvdoc.Serialize(rs)); err != nil {
		return fmt.Errorf("commit roster: %w", err)
	}
	return nil
}

// Register adds a new user with the Author role. The email comparison
// is case-insensitive and the stored password is a bcrypt hash.
func (s *Service) Register(ctx context.Context, reg Registration) (csvdoc.Record, error) {
	for _, field := range []string{reg.FirstName, reg.LastName, reg.Email} {
		if err := csvdoc.ValidateField(field); err != nil {
			return csvdoc.Record{}, err
		}
	}

	rs, err := s.load(ctx)
	if err != nil {
		return csvdoc.Record{}, err
	}
	if _, ok := rs.FindByEmail(reg.Email); ok {
		return csvdoc.Record{}, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.bcryptCost)
	if err != nil {
		return csvdoc.Record{}, fmt.Errorf("hash password: %w", err)
	}

	record := csvdoc.Record{
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Email:        strings.TrimSpace(reg.Email),
		PasswordHash: string(hash),
		Role:         csvdoc.RoleAuthor,
	}
	rs.Insert(record)
	if err := s.commit(ctx, rs); err != nil {
		return csvdoc.Record{}, err
	}

	slog.InfoContext(ctx, "User registered", "email", record.Email, "role", record.Role)
	return record, nil
}

// Authenticate verifies an email and password pair. It returns
// ErrInvalidCredentials whether the email is unknown or the password
// does not match.
func (s *Service) Authenticate(ctx context.Context, email, password string) (csvdoc.Record, error) {
	rs, err := s.load(ctx)
	if err != nil {
		return csvdoc.Record{}, err
	}
	record, ok := rs.FindByEmail(email)
	if !ok {
		return csvdoc.Record{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return csvdoc.Record{}, ErrInvalidCredentials
	}
	return record, nil
}

// List returns every record in the roster in document order.
func (s *Service) List(ctx context.Context) ([]csvdoc.Record, error) {
	rs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return rs.Records(), nil
}

// Get returns the record for the given email.
func (s *Service) Get(ctx context.Context, email string) (csvdoc.Record, error) {
	rs, err := s.load(ctx)
	if err != nil {
		return csvdoc.Record{}, err
	}
	record, ok := rs.FindByEmail(email)
	if !ok {
		return csvdoc.Record{}, ErrNotFound
	}
	return record, nil
}

// Update applies a partial update to the record matching email. The
// password hash is never touched.
func (s *Service) Update(ctx context.Context, email string, u csvdoc.Update) (csvdoc.Record, error) {
	for _, field := range []*string{u.FirstName, u.LastName, u.Email} {
		if field == nil {
			continue
		}
		if err := csvdoc.ValidateField(*field); err != nil {
			return csvdoc.Record{}, err
		}
	}

	rs, err := s.load(ctx)
	if err != nil {
		return csvdoc.Record{}, err
	}
	if _, ok := rs.FindByEmail(email); !ok {
		return csvdoc.Record{}, ErrNotFound
	}
	rs.Apply(email, u)
	if err := s.commit(ctx, rs); err != nil {
		return csvdoc.Record{}, err
	}

	// The updated record may live under a new email.
	lookup := email
	if u.Email != nil && *u.Email != "" {
		lookup = *u.Email
	}
	record, _ := rs.FindByEmail(lookup)
	slog.InfoContext(ctx, "User updated", "email", email)
	return record, nil
}

// Delete removes the record matching email.
func (s *Service) Delete(ctx context.Context, email string) error {
	rs, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := rs.FindByEmail(email); !ok {
		return ErrNotFound
	}
	rs.Delete(email)
	if err := s.commit(ctx, rs); err != nil {
		return err
	}
	slog.InfoContext(ctx, "User deleted", "email", email)
	return nil
}
