package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a history entry is not found.
var ErrNotFound = errors.New("history entry not found")

// Store defines persistence operations for the history list.
type Store interface {
	// Load returns the first limit entries, newest first. A limit <= 0 returns all.
	// Missing or unreadable data yields an empty list.
	Load(ctx context.Context, limit int) ([]Entry, error)
	// Get returns an entry by ID. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (Entry, error)
	// FindByTimestamp returns the entry created at ts. Returns ErrNotFound if none.
	FindByTimestamp(ctx context.Context, ts time.Time) (Entry, error)
	// Append inserts entry at the head, evicting from the tail until at most limit
	// entries remain. The stored entry, with its sequence number, is returned.
	Append(ctx context.Context, entry Entry, limit int) (Entry, error)
	// Clear removes all entries.
	Clear(ctx context.Context) error
}
