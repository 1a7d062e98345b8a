package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/deepguard/internal/core/state"
)

// KVFile is the root JSON structure stored on disk for state data.
type KVFile struct {
	Entries map[string]state.Entry `json:"entries"`
}

// KVStore implements state.Store using a JSON file for persistence.
type KVStore struct {
	path string
	mu   sync.RWMutex

	// pollInterval controls how often Watch re-reads the file.
	pollInterval time.Duration
}

// NewKVStore creates a new JSON file KV store at the given path.
func NewKVStore(path string) *KVStore {
	return &KVStore{path: path, pollInterval: 500 * time.Millisecond}
}

// Get returns an entry by key. Returns ErrKeyNotFound if not found.
func (s *KVStore) Get(ctx context.Context, key string) (state.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry state.Entry
	var found bool

	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		entry, found = file.Entries[key]
		return nil
	})
	if err != nil {
		return state.Entry{}, err
	}

	if !found {
		return state.Entry{}, state.ErrKeyNotFound
	}

	return entry, nil
}

// Set creates or updates an entry.
func (s *KVStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.path, syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		now := time.Now()
		entry, exists := file.Entries[key]
		if exists {
			entry.Value = raw
			entry.UpdatedAt = now
		} else {
			entry = state.Entry{
				Key:       key,
				Value:     raw,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}

		file.Entries[key] = entry
		return writeAtomic(s.path, file)
	})
}

// Delete removes an entry by key. Returns ErrKeyNotFound if not found.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notFound bool

	err := withFileLock(s.path, syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		if _, ok := file.Entries[key]; !ok {
			notFound = true
			return nil
		}

		delete(file.Entries, key)
		return writeAtomic(s.path, file)
	})
	if err != nil {
		return err
	}

	if notFound {
		return state.ErrKeyNotFound
	}

	return nil
}

// List returns all entries matching the prefix, sorted by key.
func (s *KVStore) List(ctx context.Context, prefix string) ([]state.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []state.Entry

	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		for _, entry := range file.Entries {
			if prefix == "" || strings.HasPrefix(entry.Key, prefix) {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Watch polls for key updates until UpdatedAt > after or timeout. A timeout <= 0 waits
// until ctx is done.
func (s *KVStore) Watch(ctx context.Context, key string, after time.Time, timeout time.Duration) (state.Entry, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return state.Entry{}, ctx.Err()
		case <-ticker.C:
			if timeout > 0 && time.Now().After(deadline) {
				return state.Entry{}, context.DeadlineExceeded
			}

			entry, err := s.Get(ctx, key)
			if errors.Is(err, state.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return state.Entry{}, err
			}

			if entry.UpdatedAt.After(after) {
				return entry, nil
			}
		}
	}
}

// load reads the KV file from disk.
// Returns empty KVFile if the file doesn't exist or cannot be parsed.
func (s *KVStore) load() (KVFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return KVFile{Entries: make(map[string]state.Entry)}, nil
		}
		return KVFile{}, err
	}

	if len(data) == 0 {
		return KVFile{Entries: make(map[string]state.Entry)}, nil
	}

	var file KVFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("state file unreadable, treating as empty")
		return KVFile{Entries: make(map[string]state.Entry)}, nil
	}

	if file.Entries == nil {
		file.Entries = make(map[string]state.Entry)
	}

	return file, nil
}
