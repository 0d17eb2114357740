package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/document"
	"github.com/beyond-immersion/bannou-service-sub001/store"
)

// ModelCache is the shared read-mostly cache of compiled behavior
// artifacts. Actor loops read through it every tick; invalidation comes
// only from store watch notifications, never from the loops themselves.
// Bytecode models are verified once at load; a model that fails
// verification never enters the cache.
type ModelCache struct {
	models store.ModelStore

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	model   *bytecode.Model
	doc     *document.Document
	version int
}

func NewModelCache(models store.ModelStore) *ModelCache {
	return &ModelCache{
		models:  models,
		entries: make(map[string]*cacheEntry),
	}
}

// Bytecode returns the verified model for a reference, loading it on the
// first request after a miss or invalidation.
func (c *ModelCache) Bytecode(ref string) (*bytecode.Model, error) {
	c.mu.RLock()
	entry, ok := c.entries[ref]
	c.mu.RUnlock()
	if ok && entry.model != nil {
		return entry.model, nil
	}

	data, err := c.models.Load(ref)
	if err != nil {
		return nil, err
	}
	model, err := bytecode.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", ref, err)
	}
	if err := bytecode.Verify(model); err != nil {
		return nil, fmt.Errorf("model %q: %w", ref, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	version := 1
	if prev, ok := c.entries[ref]; ok {
		version = prev.version + 1
	}
	c.entries[ref] = &cacheEntry{model: model, version: version}
	return model, nil
}

// Document returns the parsed document for a reference. The version
// counter increments on each reload so ticks can tell a swap happened.
func (c *ModelCache) Document(ref string) (*document.Document, error) {
	c.mu.RLock()
	entry, ok := c.entries[ref]
	c.mu.RUnlock()
	if ok && entry.doc != nil {
		return entry.doc, nil
	}

	data, err := c.models.Load(ref)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", ref, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	version := 1
	if prev, ok := c.entries[ref]; ok {
		version = prev.version + 1
	}
	doc.Version = version
	c.entries[ref] = &cacheEntry{doc: doc, version: version}
	return doc, nil
}

// Invalidate drops a cached entry. The next read through the cache
// reloads from the store; in-flight users keep their immutable copy.
func (c *ModelCache) Invalidate(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[ref]; ok {
		// Keep the version counter across the reload.
		c.entries[ref] = &cacheEntry{version: entry.version}
	}
}

// Len returns the number of cached references.
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// WatchInvalidate consumes store change notifications until ctx ends,
// invalidating the touched references. Returns after the watch channel
// closes.
func (c *ModelCache) WatchInvalidate(ctx context.Context) error {
	changes, err := c.models.Watch(ctx)
	if err != nil {
		return err
	}
	for ref := range changes {
		log.Infof("model %q changed, invalidating cache", ref)
		c.Invalidate(ref)
	}
	return nil
}
