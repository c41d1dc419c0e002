// Package objstore defines the client contract for the immutable-object
// backend the document store persists into.
//
// The backend is a key -> content store where every named object, once
// written, is treated as permanently immutable and independently cacheable.
// The only name that is ever rewritten is the pointer object maintained by
// the docstore package; implementations must serve reads of it without
// returning stale cached content.
package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Fetch for names that do not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Name         string
	URL          string
	LastModified time.Time
}

// Client is the object store contract.
//
// Put writes content under name and returns a direct URL for it. Names
// other than the pointer are written exactly once; rewriting the pointer
// name is the single supported mutation.
//
// Fetch reads an object by name with revalidation (no stale cache), which
// makes it safe for pointer lookups. Version objects are unique-per-write,
// so revalidated reads of them are equivalent to cached reads.
type Client interface {
	Put(ctx context.Context, name string, content []byte, contentType string) (string, error)
	Fetch(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}
