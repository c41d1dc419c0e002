package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rosterhq/rosterd/internal/docstore"
)

// TableHeader is the schema tag of the session document.
const TableHeader = "Token,Email,Role,ExpiresAt"

// DocStoreSessions persists the token table as a second logical document
// through the same persistence protocol as the roster, in a disjoint
// namespace. Every operation re-reads the document and recommits it in
// full; nothing is cached across calls.
type DocStoreSessions struct {
	docs docstore.Store
	ttl  time.Duration

	now func() time.Time
}

type entry struct {
	token   string
	email   string
	role    string
	expires time.Time
}

// NewDocStoreSessions creates a document-backed session store. ttl <= 0
// selects DefaultTTL.
func NewDocStoreSessions(docs docstore.Store, ttl time.Duration) *DocStoreSessions {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DocStoreSessions{docs: docs, ttl: ttl, now: time.Now}
}

// parseTable decodes the session document. Malformed rows are skipped.
func parseTable(document string) []entry {
	var entries []entry
	first := true
	for line := range strings.SplitSeq(document, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if first {
			first = false
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			continue
		}
		unix, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, entry{
			token:   fields[0],
			email:   fields[1],
			role:    fields[2],
			expires: time.Unix(unix, 0),
		})
	}
	return entries
}

func serializeTable(entries []entry) string {
	var b strings.Builder
	b.WriteString(TableHeader)
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(e.token)
		b.WriteByte(',')
		b.WriteString(e.email)
		b.WriteByte(',')
		b.WriteString(e.role)
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(e.expires.Unix(), 10))
		b.WriteByte('\n')
	}
	return b.String()
}

// Issue implements Store.
func (s *DocStoreSessions) Issue(ctx context.Context, identity Identity) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	doc, err := s.docs.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load session table: %w", err)
	}
	entries := append(parseTable(doc), entry{
		token:   token,
		email:   strings.ToLower(strings.TrimSpace(identity.Email)),
		role:    identity.Role,
		expires: s.now().Add(s.ttl),
	})
	if err := s.docs.Commit(ctx, serializeTable(entries)); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}
	return token, nil
}

// Validate implements Store. Expired entries discovered during the lookup
// are evicted lazily: the table is recommitted without them. There is no
// background sweep.
func (s *DocStoreSessions) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalid
	}
	doc, err := s.docs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session table: %w", err)
	}
	entries := parseTable(doc)
	now := s.now()

	// The compaction below reuses the entries backing array, so the match
	// must be copied out before any slot can be overwritten.
	var found *Identity
	live := entries[:0]
	expired := 0
	for _, e := range entries {
		if !e.expires.After(now) {
			expired++
			continue
		}
		live = append(live, e)
		if e.token == token {
			found = &Identity{Email: e.email, Role: e.role}
		}
	}

	if expired > 0 {
		if err := s.docs.Commit(ctx, serializeTable(live)); err != nil {
			// Eviction is opportunistic; the lookup result stands either way.
			slog.WarnContext(ctx, "Failed to evict expired sessions", "err", err)
		}
	}

	if found == nil {
		return nil, ErrInvalid
	}
	return found, nil
}

// Revoke implements Store.
func (s *DocStoreSessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	doc, err := s.docs.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session table: %w", err)
	}
	entries := parseTable(doc)
	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if e.token == token {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return nil
	}
	if err := s.docs.Commit(ctx, serializeTable(kept)); err != nil {
		return fmt.Errorf("failed to persist revocation: %w", err)
	}
	return nil
}

var _ Store = (*DocStoreSessions)(nil)
