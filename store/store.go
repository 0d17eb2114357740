// Package store holds the persistence boundaries the runtime talks
// through: a read-only model store supplying compiled behavior
// artifacts, and a state store keeping one snapshot per actor,
// last-write-wins. Backends are selected in the manifest.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested key doesn't exist.
var ErrNotFound = errors.New("store: not found")

// ModelStore is the source of compiled behavior artifacts (bytecode
// models and documents). The runtime never writes through it.
type ModelStore interface {
	// Load returns the raw bytes for a model reference.
	Load(ref string) ([]byte, error)
	// Watch emits references whose content changed, until ctx ends.
	// The channel closes when the watch stops.
	Watch(ctx context.Context) (<-chan string, error)
}

// StateStore persists actor snapshots, one key per actor id.
type StateStore interface {
	Save(actorID string, snapshot []byte) error
	// Load returns the last saved snapshot, or ErrNotFound.
	Load(actorID string) ([]byte, error)
	Delete(actorID string) error
	// List returns every actor id with a stored snapshot.
	List() ([]string, error)
	Close() error
}

// OpenStateStore builds the backend a manifest selected. "memory" is
// a badger instance without disk, intended for tests and ephemeral
// deployments.
func OpenStateStore(backend, path string) (StateStore, error) {
	switch backend {
	case "", "badger":
		return NewBadgerStateStore(path)
	case "memory":
		return NewBadgerInMemory()
	case "sqlite":
		return NewSQLiteStateStore(path)
	default:
		return nil, fmt.Errorf("store: unknown state backend %q", backend)
	}
}
