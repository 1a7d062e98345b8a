// Package history defines the bounded, newest-first list of past classifications.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/hay-kot/deepguard/internal/core/prediction"
)

// Default caps on the stored list. The context-menu path keeps a longer list than the
// popup save path.
const (
	ContextMenuCap = 20
	PopupCap       = 12
)

// Source is the provenance tag of an entry. It is informational only.
type Source string

const (
	SourceContextMenu Source = "context-menu"
	SourcePopup       Source = "popup"
	SourceWeb         Source = "web"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceContextMenu, SourcePopup, SourceWeb:
		return true
	default:
		return false
	}
}

// Entry is one persisted classification. Entries are never mutated after insertion.
type Entry struct {
	ID          string            `json:"id"`
	Seq         uint64            `json:"seq"`                    // assigned by the store on append
	Timestamp   time.Time         `json:"timestamp"`              // millisecond precision
	ImageRef    string            `json:"image_ref,omitempty"`    // local path, source URL or server path
	ImageDigest string            `json:"image_digest,omitempty"` // xxhash64 of the uploaded bytes
	Result      prediction.Result `json:"result"`
	Source      Source            `json:"source"`
}

// NewEntry creates an entry stamped at now, truncated to milliseconds.
func NewEntry(result prediction.Result, imageRef, digest string, source Source, now time.Time) Entry {
	return Entry{
		ID:          uuid.NewString(),
		Timestamp:   now.Truncate(time.Millisecond),
		ImageRef:    imageRef,
		ImageDigest: digest,
		Result:      result,
		Source:      source,
	}
}

// UnixMilli returns the timestamp as milliseconds since the epoch, the lookup key shown
// to users.
func (e *Entry) UnixMilli() int64 {
	return e.Timestamp.UnixMilli()
}

// Prepend inserts entry at the head of entries and trims the tail so that the result
// holds at most limit entries. A limit <= 0 disables trimming. The input slice is not
// modified.
func Prepend(entries []Entry, entry Entry, limit int) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	out = append(out, entry)
	out = append(out, entries...)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

// FindByTimestamp scans entries for one created at ts. When several entries share the
// timestamp the one with the highest Seq (the latest insertion) wins.
func FindByTimestamp(entries []Entry, ts time.Time) (Entry, bool) {
	ts = ts.Truncate(time.Millisecond)

	var (
		best  Entry
		found bool
	)

	for _, e := range entries {
		if !e.Timestamp.Equal(ts) {
			continue
		}
		if !found || e.Seq > best.Seq {
			best = e
			found = true
		}
	}

	return best, found
}

// Head returns the first limit entries. A limit <= 0 returns all of them.
func Head(entries []Entry, limit int) []Entry {
	if limit <= 0 || limit >= len(entries) {
		return entries
	}
	return entries[:limit]
}
