// Package state holds the small key/value surface shared by the popup, the bridge and
// the web results view.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Persistent keys.
const (
	KeyLastResult     = "lastResult"
	KeyLastError      = "lastError"
	KeyShowLastResult = "showLastResult" // one-shot flag consumed on the next popup open
)

// Session-scoped keys written by the web surface and consumed by the results view.
const (
	KeyAnalysisResult   = "analysisResult"
	KeyAnalysisImage    = "analysisImage"
	KeyAnalysisFilename = "analysisFilename"
)

// Entry is a stored value with metadata.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store defines persistence operations for state keys.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	// Set stores value encoded as JSON.
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Watch polls until the key is updated after the given time or the timeout elapses.
	Watch(ctx context.Context, key string, after time.Time, timeout time.Duration) (Entry, error)
}

// Lookup reads key and decodes it into T. ok is false when the key is absent.
func Lookup[T any](ctx context.Context, s Store, key string) (v T, ok bool, err error) {
	entry, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}

	if err := json.Unmarshal(entry.Value, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}

	return v, true, nil
}
