package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deepguard/internal/core/history"
)

// historyFile is the root JSON structure stored on disk.
type historyFile struct {
	NextSeq uint64          `json:"next_seq"`
	Entries []history.Entry `json:"entries"`
}

// HistoryStore implements history.Store using a JSON file for persistence.
//
// Append is a single read-modify-write guarded by a process mutex and an exclusive file
// lock, so concurrent writers (the bridge and a popup in another process) never drop
// each other's entries.
type HistoryStore struct {
	path string
	log  zerolog.Logger
	mu   sync.RWMutex
}

// NewHistoryStore creates a new JSON file history store at the given path.
func NewHistoryStore(path string, log zerolog.Logger) *HistoryStore {
	return &HistoryStore{path: path, log: log}
}

// Load returns the first limit entries, newest first.
func (s *HistoryStore) Load(ctx context.Context, limit int) ([]history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f historyFile
	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		var err error
		f, err = s.load()
		return err
	})
	if err != nil {
		return nil, err
	}

	entries := history.Head(f.Entries, limit)
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}

// Get returns a history entry by ID. Returns ErrNotFound if not found.
func (s *HistoryStore) Get(ctx context.Context, id string) (history.Entry, error) {
	entries, err := s.Load(ctx, 0)
	if err != nil {
		return history.Entry{}, err
	}

	for _, entry := range entries {
		if entry.ID == id {
			return entry, nil
		}
	}

	return history.Entry{}, history.ErrNotFound
}

// FindByTimestamp returns the entry created at ts. Returns ErrNotFound if none.
func (s *HistoryStore) FindByTimestamp(ctx context.Context, ts time.Time) (history.Entry, error) {
	entries, err := s.Load(ctx, 0)
	if err != nil {
		return history.Entry{}, err
	}

	entry, ok := history.FindByTimestamp(entries, ts)
	if !ok {
		return history.Entry{}, history.ErrNotFound
	}
	return entry, nil
}

// Append adds a new entry at the head, pruning old entries to stay within limit.
func (s *HistoryStore) Append(ctx context.Context, entry history.Entry, limit int) (history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := withFileLock(s.path, syscall.LOCK_EX, func() error {
		f, err := s.load()
		if err != nil {
			return err
		}

		seq := f.NextSeq
		for _, e := range f.Entries {
			if e.Seq > seq {
				seq = e.Seq
			}
		}
		seq++

		entry.Seq = seq
		f.NextSeq = seq
		f.Entries = history.Prepend(f.Entries, entry, limit)

		return s.save(f)
	})
	if err != nil {
		return history.Entry{}, err
	}

	s.log.Debug().
		Str("id", entry.ID).
		Uint64("seq", entry.Seq).
		Str("source", string(entry.Source)).
		Int("limit", limit).
		Msg("history entry appended")

	return entry, nil
}

// Clear removes all history entries. The sequence counter is kept so that sequence
// numbers stay unique across clears.
func (s *HistoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.path, syscall.LOCK_EX, func() error {
		f, err := s.load()
		if err != nil {
			return err
		}
		return s.save(historyFile{NextSeq: f.NextSeq, Entries: []history.Entry{}})
	})
}

// load reads the history file from disk. A missing, empty or corrupted file is treated
// as an empty list.
func (s *HistoryStore) load() (historyFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return historyFile{}, nil
		}
		return historyFile{}, fmt.Errorf("read history file: %w", err)
	}

	if len(data) == 0 {
		return historyFile{}, nil
	}

	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("history file unreadable, treating as empty")
		return historyFile{}, nil
	}

	return f, nil
}

func (s *HistoryStore) save(f historyFile) error {
	if err := writeAtomic(s.path, f); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
