package visited

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const badgerKeyPrefix = "visited:"

// Badger stores visited pages as JSON values under "visited:<id>" keys.
type Badger struct {
	db     *badger.DB
	owned  bool
	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens a BadgerDB directory at path.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	database, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Badger{db: database, owned: true}, nil
}

// NewBadger wraps an existing BadgerDB; Close does not close it.
func NewBadger(database *badger.DB) *Badger {
	return &Badger{db: database}
}

func (b *Badger) key(id string) []byte {
	return append([]byte(badgerKeyPrefix), id...)
}

func (b *Badger) Has(ctx context.Context, id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, ErrClosed
	}

	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(b.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup visited page %s: %w", id, err)
	}
	return found, nil
}

func (b *Badger) Add(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("visited entry requires an id")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	entry = stamp(entry)
	err := b.db.Update(func(txn *badger.Txn) error {
		key := b.key(entry.ID)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("record visited page %s: %w", entry.ID, err)
	}
	return nil
}

func (b *Badger) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}

	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count visited pages: %w", err)
	}
	return count, nil
}

func (b *Badger) List(ctx context.Context) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	var entries []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list visited pages: %w", err)
	}
	sortEntries(entries)
	return entries, nil
}

func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.owned {
		return b.db.Close()
	}
	return nil
}
