// Package docstore persists whole text documents into an immutable-object
// backend using pointer indirection.
//
// Each logical document owns a namespace in the object store. Every commit
// writes the full document to a freshly named version object, then rewrites
// a single pointer object to name it. Readers resolve the pointer with a
// revalidated read and then fetch the named version, which is safe to treat
// as immutable. This yields read-after-write consistency on a backend that
// supports neither update-in-place nor fresh reads of overwritten keys.
//
// There is no cross-writer concurrency control: two concurrent commits both
// succeed and the last pointer write wins in full. The superseded version
// object remains fetchable by anyone who already holds its name.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rosterhq/rosterd/internal/objstore"
)

const contentType = "text/csv; charset=utf-8"

// Store is the persistence boundary for one logical document.
type Store interface {
	// EnsureInitialized bootstraps the document on first use: if no pointer
	// exists yet it writes the seed (or fallback) document and points at it.
	// Idempotent; safe to call at every startup.
	EnsureInitialized(ctx context.Context) error
	// Load returns the current canonical document. Read failures degrade to
	// the seed or fallback document rather than erroring.
	Load(ctx context.Context) (string, error)
	// Commit durably replaces the canonical document. The commit is durable
	// only once the pointer rewrite succeeds.
	Commit(ctx context.Context, document string) error
}

// DocStore implements Store over an objstore.Client.
type DocStore struct {
	client    objstore.Client
	namespace string
	seed      string
	fallback  string
	keep      int

	now func() time.Time
}

// Option configures a DocStore.
type Option func(*DocStore)

// WithSeed sets the seed document used on first bootstrap and as the read
// fallback. Without it the fallback document is used.
func WithSeed(seed string) Option {
	return func(d *DocStore) {
		if seed != "" {
			d.seed = seed
		}
	}
}

// WithRetention keeps only the newest n version objects after each commit.
// Zero disables pruning and versions accumulate without bound.
func WithRetention(n int) Option {
	return func(d *DocStore) { d.keep = n }
}

// New creates a DocStore for one logical document.
//
// namespace scopes all object names ("users", "sessions", ...). fallback is
// the document returned when nothing is stored and no seed is configured,
// typically the header-only empty document.
func New(client objstore.Client, namespace, fallback string, opts ...Option) *DocStore {
	d := &DocStore{
		client:    client,
		namespace: namespace,
		fallback:  fallback,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DocStore) pointerName() string {
	return d.namespace + "/current"
}

func (d *DocStore) versionPrefix() string {
	return d.namespace + "/v/"
}

// newVersionName returns a globally unique object name for one commit.
// Names must never be reused: a reused name could serve stale cached
// content to a reader that resolved the pointer before the rewrite.
func (d *DocStore) newVersionName() string {
	return fmt.Sprintf("%s%d-%s.csv", d.versionPrefix(), d.now().UnixNano(), uuid.NewString())
}

func (d *DocStore) seedOrFallback() string {
	if d.seed != "" {
		return d.seed
	}
	return d.fallback
}

// EnsureInitialized implements Store.
func (d *DocStore) EnsureInitialized(ctx context.Context) error {
	_, err := d.client.Fetch(ctx, d.pointerName())
	if err == nil {
		return nil
	}
	if !errors.Is(err, objstore.ErrNotFound) {
		return fmt.Errorf("failed to read pointer for %s: %w", d.namespace, err)
	}
	if err := d.Commit(ctx, d.seedOrFallback()); err != nil {
		return fmt.Errorf("failed to bootstrap %s: %w", d.namespace, err)
	}
	slog.InfoContext(ctx, "Bootstrapped document", "namespace", d.namespace, "seeded", d.seed != "")
	return nil
}

// Load implements Store. The pointer read bypasses caches; the version read
// targets a unique immutable name. Both failure paths degrade to the seed
// or fallback document so that reads never hard-fail.
func (d *DocStore) Load(ctx context.Context) (string, error) {
	ptr, err := d.client.Fetch(ctx, d.pointerName())
	if err != nil {
		if !errors.Is(err, objstore.ErrNotFound) {
			slog.WarnContext(ctx, "Pointer read failed, serving fallback", "namespace", d.namespace, "err", err)
		}
		return d.seedOrFallback(), nil
	}

	version := string(ptr)
	content, err := d.client.Fetch(ctx, version)
	if err != nil {
		slog.WarnContext(ctx, "Version read failed, serving fallback", "namespace", d.namespace, "version", version, "err", err)
		return d.seedOrFallback(), nil
	}
	return string(content), nil
}

// Commit implements Store. Write failures propagate; the caller decides
// whether to retry the whole operation.
func (d *DocStore) Commit(ctx context.Context, document string) error {
	version := d.newVersionName()
	if _, err := d.client.Put(ctx, version, []byte(document), contentType); err != nil {
		return fmt.Errorf("failed to write version object: %w", err)
	}
	if _, err := d.client.Put(ctx, d.pointerName(), []byte(version), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("failed to rewrite pointer: %w", err)
	}
	d.prune(ctx, version)
	return nil
}

// prune removes superseded version objects beyond the retention limit.
// Best effort: a failed prune never fails the commit that triggered it.
func (d *DocStore) prune(ctx context.Context, current string) {
	if d.keep <= 0 {
		return
	}
	infos, err := d.client.List(ctx, d.versionPrefix())
	if err != nil {
		slog.WarnContext(ctx, "Failed to list versions for pruning", "namespace", d.namespace, "err", err)
		return
	}
	if len(infos) <= d.keep {
		return
	}
	// Names start with the commit's UnixNano, so lexical order is commit
	// order; newest last.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	for _, info := range infos[:len(infos)-d.keep] {
		if info.Name == current {
			continue
		}
		if err := d.client.Delete(ctx, info.Name); err != nil {
			slog.WarnContext(ctx, "Failed to prune version", "namespace", d.namespace, "version", info.Name, "err", err)
		}
	}
}
