package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("bannou.store")

// FSModelStore serves model bytes from a directory tree. References
// are slash-separated paths relative to the root, e.g. "npc/guard.bbm"
// or "npc/guard.yaml".
type FSModelStore struct {
	root string
}

func NewFSModelStore(root string) (*FSModelStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("model root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model root %q is not a directory", root)
	}
	return &FSModelStore{root: root}, nil
}

func (s *FSModelStore) Load(ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("model %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", ref, err)
	}
	return data, nil
}

// Watch emits the reference of every file created or rewritten under
// the root. Directories present at watch time are covered; directories
// created later are added as they appear. Events are dropped rather
// than blocking a slow consumer.
func (s *FSModelStore) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("model watch: %w", err)
	}
	if err := s.addRecursive(watcher, s.root); err != nil {
		watcher.Close()
		return nil, err
	}

	ch := make(chan string, 16)
	go func() {
		defer watcher.Close()
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.handleEvent(watcher, event, ch)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warningf("model watch: %s", err.Error())
			}
		}
	}()
	return ch, nil
}

func (s *FSModelStore) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, ch chan<- string) {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				log.Warningf("model watch: add %q: %s", event.Name, err.Error())
			}
			return
		}
	}
	rel, err := filepath.Rel(s.root, event.Name)
	if err != nil {
		return
	}
	ref := filepath.ToSlash(rel)
	select {
	case ch <- ref:
	default:
		log.Warningf("model watch: dropped change notification for %q", ref)
	}
}

func (s *FSModelStore) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("model watch: add %q: %w", path, err)
			}
		}
		return nil
	})
}

func (s *FSModelStore) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("model reference is empty")
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("model reference %q escapes the model root", ref)
	}
	return filepath.Join(s.root, clean), nil
}
