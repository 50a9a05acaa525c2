// Package visited records which pages a run has fully relabeled, so a
// restarted run can skip their label mutation.
package visited

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrClosed is returned by every operation on a closed cache.
var ErrClosed = errors.New("visited cache is closed")

// Backend names a cache storage engine.
type Backend string

const (
	// BackendSQLite stores entries in a SQLite table (default).
	BackendSQLite Backend = "sqlite"

	// BackendBadger stores entries in a BadgerDB key-value directory.
	BackendBadger Backend = "badger"

	// BackendMemory keeps entries in process memory; nothing survives exit.
	BackendMemory Backend = "memory"
)

// Entry is one fully processed page.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	VisitedAt time.Time `json:"visited_at" yaml:"visited_at"`
}

// Cache is an append-only set of page ids.
type Cache interface {
	// Has reports whether id was recorded by this or an earlier run.
	Has(ctx context.Context, id string) (bool, error)

	// Add records an entry. Adding an id that is already present is a no-op;
	// the first record wins.
	Add(ctx context.Context, entry Entry) error

	// Count returns the number of recorded ids.
	Count(ctx context.Context) (int, error)

	// List returns all entries ordered by visit time.
	List(ctx context.Context) ([]Entry, error)

	// Close releases the underlying storage.
	Close() error
}

// Open opens the cache for the given backend at path.
func Open(backend Backend, path string) (Cache, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(string(backend)))) {
	case "", BackendSQLite:
		return OpenSQLite(path)
	case BackendBadger:
		return OpenBadger(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want sqlite, badger or memory)", backend)
	}
}

func stamp(entry Entry) Entry {
	if entry.VisitedAt.IsZero() {
		entry.VisitedAt = time.Now().UTC()
	}
	return entry
}
