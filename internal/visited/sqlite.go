package visited

import (
	"context"
	"fmt"
	"time"

	"github.com/lherron/labelsync/internal/db"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite stores visited pages in the visited_pages table.
type SQLite struct {
	db *db.DB
}

// OpenSQLite opens (creating if needed) a SQLite cache file and applies
// pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	return &SQLite{db: database}, nil
}

// NewSQLite wraps an already migrated database.
func NewSQLite(database *db.DB) *SQLite {
	return &SQLite{db: database}
}

func (s *SQLite) Has(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM visited_pages WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query visited page %s: %w", id, err)
	}
	return count > 0, nil
}

func (s *SQLite) Add(ctx context.Context, entry Entry) error {
	if s.db == nil {
		return ErrClosed
	}
	if entry.ID == "" {
		return fmt.Errorf("visited entry requires an id")
	}
	entry = stamp(entry)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO visited_pages (id, title, run_id, visited_at)
		VALUES (?, ?, ?, ?)
	`, entry.ID, entry.Title, entry.RunID, entry.VisitedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record visited page %s: %w", entry.ID, err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM visited_pages").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count visited pages: %w", err)
	}
	return count, nil
}

func (s *SQLite) List(ctx context.Context) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, run_id, visited_at FROM visited_pages
		ORDER BY visited_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list visited pages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var visitedAt string
		if err := rows.Scan(&e.ID, &e.Title, &e.RunID, &visitedAt); err != nil {
			return nil, fmt.Errorf("failed to scan visited page: %w", err)
		}
		e.VisitedAt = parseTime(visitedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visited pages: %w", err)
	}
	return entries, nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// parseTime accepts both the nanosecond layout written by Add and the
// second-resolution default of the column.
func parseTime(v string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
