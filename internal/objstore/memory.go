package objstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryClient is an in-process Client used by tests and by the memory
// backend. Objects other than pointer names ("*/current") are write-once:
// a second Put under the same name keeps the original content, mirroring
// the immutability of the real backend.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	content  []byte
	modified time.Time
}

// NewMemoryClient creates an empty in-memory object store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string]memoryObject)}
}

// Put stores content under name.
func (c *MemoryClient) Put(_ context.Context, name string, content []byte, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.objects[name]; exists && !strings.HasSuffix(name, "/current") {
		// Immutable object already written; keep the original.
		return "memory://" + name, nil
	}
	c.objects[name] = memoryObject{content: append([]byte(nil), content...), modified: time.Now()}
	return "memory://" + name, nil
}

// Fetch reads content by name.
func (c *MemoryClient) Fetch(_ context.Context, name string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.content...), nil
}

// List returns objects under prefix, sorted by name.
func (c *MemoryClient) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var infos []ObjectInfo
	for name, obj := range c.objects {
		if strings.HasPrefix(name, prefix) {
			infos = append(infos, ObjectInfo{Name: name, URL: "memory://" + name, LastModified: obj.modified})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes an object; missing names are a no-op.
func (c *MemoryClient) Delete(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, name)
	return nil
}
