package flow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/document"
)

// Handler executes a single document action against a scope.
type Handler interface {
	Execute(ctx context.Context, sc *Scope, action *document.Action) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, sc *Scope, action *document.Action) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, sc *Scope, action *document.Action) error {
	return f(ctx, sc, action)
}

// controlKinds are interpreted by the executor itself and can never
// be bound to a handler.
var controlKinds = map[string]bool{
	document.KindGoto:      true,
	document.KindCall:      true,
	document.KindEnd:       true,
	document.KindTerminate: true,
	document.KindAwait:     true,
}

// Registry maps action kinds to handlers. The core kinds are installed
// at construction; callers register domain kinds on top, typically at
// actor spawn. Lookups and registrations may race, so the map is
// guarded.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry with the core handlers installed.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	registerCoreHandlers(r)
	return r
}

// Register binds a handler to an action kind, replacing any previous
// binding for that kind.
func (r *Registry) Register(kind string, h Handler) error {
	if kind == "" {
		return fmt.Errorf("flow: empty handler kind")
	}
	if controlKinds[kind] {
		return fmt.Errorf("flow: %q is a control kind and cannot be registered", kind)
	}
	if h == nil {
		return fmt.Errorf("flow: nil handler for kind %q", kind)
	}
	r.mu.Lock()
	r.handlers[kind] = h
	r.mu.Unlock()
	return nil
}

// RegisterFunc is Register for bare functions.
func (r *Registry) RegisterFunc(kind string, fn HandlerFunc) error {
	return r.Register(kind, fn)
}

// Lookup returns the handler bound to kind.
func (r *Registry) Lookup(kind string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[kind]
	r.mu.RUnlock()
	return h, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	r.mu.RUnlock()
	sort.Strings(kinds)
	return kinds
}
