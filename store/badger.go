package store

import (
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/tliron/commonlog"
)

// BadgerStateStore keeps actor snapshots in an embedded badger
// database, one key per actor id. It is the default backend.
type BadgerStateStore struct {
	db *badger.DB
}

var _ StateStore = (*BadgerStateStore)(nil)

func NewBadgerStateStore(dir string) (*BadgerStateStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger state store needs a data directory")
	}
	opts := badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{commonlog.GetLogger("bannou.store.badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerStateStore{db: db}, nil
}

// NewBadgerInMemory opens a badger instance with no disk backing.
func NewBadgerInMemory() (*BadgerStateStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(badgerLogger{commonlog.GetLogger("bannou.store.badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &BadgerStateStore{db: db}, nil
}

func (s *BadgerStateStore) Save(actorID string, snapshot []byte) error {
	if actorID == "" {
		return fmt.Errorf("actor id is empty")
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(actorID), snapshot)
	})
	if err != nil {
		return fmt.Errorf("save state for %q: %w", actorID, err)
	}
	return nil
}

func (s *BadgerStateStore) Load(actorID string) ([]byte, error) {
	var snapshot []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(actorID))
		if err != nil {
			return err
		}
		snapshot, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("state for %q: %w", actorID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load state for %q: %w", actorID, err)
	}
	return snapshot, nil
}

func (s *BadgerStateStore) Delete(actorID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(actorID))
	})
	if err != nil {
		return fmt.Errorf("delete state for %q: %w", actorID, err)
	}
	return nil
}

func (s *BadgerStateStore) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list state keys: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *BadgerStateStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through commonlog,
// demoting its chatty info output to debug.
type badgerLogger struct {
	log commonlog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warningf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
