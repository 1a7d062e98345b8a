package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
)

func newTestHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()
	return NewHistoryStore(filepath.Join(t.TempDir(), "history.json"), zerolog.Nop())
}

func entryAt(id string, ts time.Time) history.Entry {
	return history.Entry{
		ID:        id,
		Timestamp: ts,
		Result:    prediction.Result{Class: prediction.ClassReal, Confidence: 90},
		Source:    history.SourcePopup,
	}
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	t.Run("load empty", func(t *testing.T) {
		store := newTestHistoryStore(t)

		entries, err := store.Load(ctx, 8)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("got %v, want empty non-nil slice", entries)
		}
	})

	t.Run("append keeps newest first within cap", func(t *testing.T) {
		store := newTestHistoryStore(t)

		for i := 0; i < history.PopupCap+5; i++ {
			if _, err := store.Append(ctx, entryAt(fmt.Sprint(i), base.Add(time.Duration(i)*time.Second)), history.PopupCap); err != nil {
				t.Fatalf("Append %d: %v", i, err)
			}
		}

		entries, err := store.Load(ctx, 0)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(entries) != history.PopupCap {
			t.Fatalf("got %d entries, want %d", len(entries), history.PopupCap)
		}

		last := history.PopupCap + 4
		for i, e := range entries {
			if e.ID != fmt.Sprint(last-i) {
				t.Errorf("entry %d: got id %s, want %d", i, e.ID, last-i)
			}
		}
	})

	t.Run("append assigns increasing seq", func(t *testing.T) {
		store := newTestHistoryStore(t)

		first, err := store.Append(ctx, entryAt("a", base), 0)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		second, err := store.Append(ctx, entryAt("b", base), 0)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}

		if second.Seq <= first.Seq {
			t.Errorf("seq not increasing: %d then %d", first.Seq, second.Seq)
		}
	})

	t.Run("load limit", func(t *testing.T) {
		store := newTestHistoryStore(t)
		for i := 0; i < 10; i++ {
			_, _ = store.Append(ctx, entryAt(fmt.Sprint(i), base), history.ContextMenuCap)
		}

		entries, err := store.Load(ctx, 8)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(entries) != 8 {
			t.Errorf("got %d entries, want 8", len(entries))
		}
		if entries[0].ID != "9" {
			t.Errorf("got head %s, want 9", entries[0].ID)
		}
	})

	t.Run("clear then load", func(t *testing.T) {
		store := newTestHistoryStore(t)
		_, _ = store.Append(ctx, entryAt("a", base), 0)

		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}

		for _, n := range []int{0, 1, 8, 100} {
			entries, err := store.Load(ctx, n)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("Load(%d) returned %d entries after clear", n, len(entries))
			}
		}
	})

	t.Run("seq survives clear", func(t *testing.T) {
		store := newTestHistoryStore(t)
		before, _ := store.Append(ctx, entryAt("a", base), 0)
		_ = store.Clear(ctx)
		after, _ := store.Append(ctx, entryAt("b", base), 0)

		if after.Seq <= before.Seq {
			t.Errorf("seq reused after clear: %d then %d", before.Seq, after.Seq)
		}
	})

	t.Run("find by timestamp prefers latest insertion", func(t *testing.T) {
		store := newTestHistoryStore(t)
		_, _ = store.Append(ctx, entryAt("first", base), 0)
		_, _ = store.Append(ctx, entryAt("between", base.Add(time.Millisecond)), 0)
		_, _ = store.Append(ctx, entryAt("second", base), 0)

		got, err := store.FindByTimestamp(ctx, base)
		if err != nil {
			t.Fatalf("FindByTimestamp: %v", err)
		}
		if got.ID != "second" {
			t.Errorf("got %s, want second", got.ID)
		}

		_, err = store.FindByTimestamp(ctx, base.Add(time.Hour))
		if !errors.Is(err, history.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("get by id", func(t *testing.T) {
		store := newTestHistoryStore(t)
		_, _ = store.Append(ctx, entryAt("wanted", base), 0)

		got, err := store.Get(ctx, "wanted")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != "wanted" {
			t.Errorf("got %s", got.ID)
		}

		if _, err := store.Get(ctx, "missing"); !errors.Is(err, history.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("malformed file treated as empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.json")
		if err := os.WriteFile(path, []byte(`{"entries": "oops"`), 0o644); err != nil {
			t.Fatal(err)
		}
		store := NewHistoryStore(path, zerolog.Nop())

		entries, err := store.Load(ctx, 0)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("got %d entries, want 0", len(entries))
		}

		if _, err := store.Append(ctx, entryAt("fresh", base), 0); err != nil {
			t.Fatalf("Append over malformed file: %v", err)
		}
		entries, _ = store.Load(ctx, 0)
		if len(entries) != 1 {
			t.Errorf("got %d entries, want 1", len(entries))
		}
	})

	t.Run("concurrent appends never drop entries", func(t *testing.T) {
		store := newTestHistoryStore(t)

		const writers = 15
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := store.Append(ctx, entryAt(fmt.Sprint(i), base), history.ContextMenuCap); err != nil {
					t.Errorf("Append %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		entries, err := store.Load(ctx, 0)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(entries) != writers {
			t.Errorf("got %d entries, want %d", len(entries), writers)
		}

		seen := make(map[uint64]bool)
		for _, e := range entries {
			if seen[e.Seq] {
				t.Errorf("duplicate seq %d", e.Seq)
			}
			seen[e.Seq] = true
		}
	})
}
