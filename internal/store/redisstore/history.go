// Package redisstore provides a Redis-backed history store for setups where the bridge
// and the CLI run on different machines.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hay-kot/deepguard/internal/core/history"
)

// maxTxRetries bounds optimistic-lock retries in Append.
const maxTxRetries = 20

// Open parses a redis:// URL and returns a client. No connection is made until the
// first command, so an unreachable server surfaces where the store is used.
func Open(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Ping checks that the server answers.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// HistoryStore implements history.Store on a Redis list. The sequence counter, LPUSH
// and LTRIM commit in one WATCH/MULTI/EXEC, so list order matches seq order and the cap
// holds under concurrent writers.
type HistoryStore struct {
	rdb    redis.UniversalClient
	key    string
	seqKey string
	log    zerolog.Logger
}

// NewHistoryStore creates a store that keeps its list under prefix+":history".
func NewHistoryStore(rdb redis.UniversalClient, prefix string, log zerolog.Logger) *HistoryStore {
	return &HistoryStore{
		rdb:    rdb,
		key:    prefix + ":history",
		seqKey: prefix + ":history:seq",
		log:    log,
	}
}

// Load returns the first limit entries, newest first. Undecodable items are skipped.
func (s *HistoryStore) Load(ctx context.Context, limit int) ([]history.Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := s.rdb.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		if isWrongType(err) {
			s.log.Warn().Err(err).Str("key", s.key).Msg("history key unreadable, treating as empty")
			return []history.Entry{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	entries := make([]history.Entry, 0, len(items))
	for _, item := range items {
		var e history.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.log.Warn().Err(err).Msg("skipping unreadable history item")
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Get returns a history entry by ID. Returns ErrNotFound if not found.
func (s *HistoryStore) Get(ctx context.Context, id string) (history.Entry, error) {
	entries, err := s.Load(ctx, 0)
	if err != nil {
		return history.Entry{}, err
	}

	for _, e := range entries {
		if e.ID == id {
			return e, nil
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

	e, ok := history.FindByTimestamp(entries, ts)
	if !ok {
		return history.Entry{}, history.ErrNotFound
	}
	return e, nil
}

// Append assigns the next seq, pushes entry to the head of the list and trims it to
// limit. A history key of the wrong type is replaced.
func (s *HistoryStore) Append(ctx context.Context, entry history.Entry, limit int) (history.Entry, error) {
	txf := func(tx *redis.Tx) error {
		seq, err := tx.Get(ctx, s.seqKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read history seq: %w", err)
		}
		entry.Seq = seq + 1

		kind, err := tx.Type(ctx, s.key).Result()
		if err != nil {
			return fmt.Errorf("inspect history key: %w", err)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal history entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if kind != "none" && kind != "list" {
				s.log.Warn().Str("key", s.key).Str("type", kind).Msg("replacing unreadable history key")
				pipe.Del(ctx, s.key)
			}
			pipe.Set(ctx, s.seqKey, entry.Seq, 0)
			pipe.LPush(ctx, s.key, data)
			if limit > 0 {
				pipe.LTrim(ctx, s.key, 0, int64(limit-1))
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, s.seqKey, s.key)
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return history.Entry{}, fmt.Errorf("append history: %w", err)
		}
	}

	return history.Entry{}, fmt.Errorf("append history: %w", redis.TxFailedErr)
}

// Clear removes all entries. The sequence counter is kept.
func (s *HistoryStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func isWrongType(err error) bool {
	return strings.HasPrefix(err.Error(), "WRONGTYPE")
}
