package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/store/redisstore"
	"github.com/hay-kot/deepguard/pkg/executil"
)

type mockChecker struct {
	status prediction.ModelStatus
}

func (m *mockChecker) Status(_ context.Context) prediction.ModelStatus {
	return m.status
}

type mockStore struct {
	entries []history.Entry
	err     error
}

func (m *mockStore) Load(_ context.Context, _ int) ([]history.Entry, error) {
	return m.entries, m.err
}

func (m *mockStore) Get(_ context.Context, _ string) (history.Entry, error) {
	return history.Entry{}, history.ErrNotFound
}

func (m *mockStore) FindByTimestamp(_ context.Context, _ time.Time) (history.Entry, error) {
	return history.Entry{}, history.ErrNotFound
}

func (m *mockStore) Append(_ context.Context, e history.Entry, _ int) (history.Entry, error) {
	return e, nil
}

func (m *mockStore) Clear(_ context.Context) error {
	return nil
}

func statuses(r Result) []Status {
	out := make([]Status, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, item.Status)
	}
	return out
}

func TestAPICheck(t *testing.T) {
	tests := []struct {
		name   string
		status prediction.ModelStatus
		want   []Status
	}{
		{
			name:   "online",
			status: prediction.ModelStatus{Reachable: true, Exists: true, Loaded: true},
			want:   []Status{StatusPass, StatusPass, StatusPass},
		},
		{
			name:   "not loaded",
			status: prediction.ModelStatus{Reachable: true, Exists: true},
			want:   []Status{StatusPass, StatusPass, StatusWarn},
		},
		{
			name:   "missing model",
			status: prediction.ModelStatus{Reachable: true},
			want:   []Status{StatusPass, StatusFail, StatusWarn},
		},
		{
			name:   "unreachable",
			status: prediction.ModelStatus{},
			want:   []Status{StatusFail},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewAPICheck(&mockChecker{status: tt.status}, "http://localhost:5001")
			result := check.Run(context.Background())

			assert.Equal(t, "Detection API", result.Name)
			assert.Equal(t, tt.want, statuses(result))
		})
	}
}

func TestStorageCheck(t *testing.T) {
	t.Run("readable", func(t *testing.T) {
		check := NewStorageCheck(&mockStore{entries: make([]history.Entry, 3)}, config.DriverJSONFile, 12, 20)
		result := check.Run(context.Background())

		require.Len(t, result.Items, 1)
		assert.Equal(t, StatusPass, result.Items[0].Status)
		assert.Contains(t, result.Items[0].Detail, "3 entries")
	})

	t.Run("over cap", func(t *testing.T) {
		check := NewStorageCheck(&mockStore{entries: make([]history.Entry, 25)}, config.DriverJSONFile, 12, 20)
		result := check.Run(context.Background())

		assert.Equal(t, []Status{StatusPass, StatusWarn}, statuses(result))
	})

	t.Run("unreadable", func(t *testing.T) {
		check := NewStorageCheck(&mockStore{err: errors.New("connection refused")}, config.DriverRedis, 12, 20)
		result := check.Run(context.Background())

		require.Len(t, result.Items, 1)
		assert.Equal(t, StatusFail, result.Items[0].Status)
		assert.Contains(t, result.Items[0].Detail, "redis")
	})

	t.Run("redis unreachable", func(t *testing.T) {
		rdb, err := redisstore.Open("redis://127.0.0.1:1/0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = rdb.Close() })

		store := redisstore.NewHistoryStore(rdb, "deepguard", zerolog.Nop())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		result := NewStorageCheck(store, config.DriverRedis, 12, 20).Run(ctx)

		require.Len(t, result.Items, 1)
		assert.Equal(t, StatusFail, result.Items[0].Status)
		assert.Equal(t, "History readable", result.Items[0].Label)
	})
}

func TestHooksCheck(t *testing.T) {
	t.Run("no hooks", func(t *testing.T) {
		exec := &executil.RecordingExecutor{}
		result := NewHooksCheck(nil, exec).Run(context.Background())

		assert.Equal(t, []Status{StatusPass}, statuses(result))
		assert.Empty(t, exec.Recorded(), "shell is not probed without hooks")
	})

	t.Run("shell works", func(t *testing.T) {
		exec := &executil.RecordingExecutor{Outputs: map[string][]byte{"sh": []byte("ok\n")}}
		hooks := []config.Hook{{Commands: []string{"notify-send {{ .Label }}"}}}

		result := NewHooksCheck(hooks, exec).Run(context.Background())

		assert.Equal(t, []Status{StatusPass, StatusPass}, statuses(result))
		require.Len(t, exec.Recorded(), 1)
		assert.Equal(t, "sh", exec.Recorded()[0].Cmd)
	})

	t.Run("shell missing", func(t *testing.T) {
		exec := &executil.RecordingExecutor{Errors: map[string]error{"sh": errors.New("not found")}}
		hooks := []config.Hook{{Commands: []string{"true"}}}

		result := NewHooksCheck(hooks, exec).Run(context.Background())

		assert.Equal(t, []Status{StatusFail}, statuses(result))
	})
}

func TestRunAllAndSummary(t *testing.T) {
	checks := []Check{
		NewAPICheck(&mockChecker{status: prediction.ModelStatus{Reachable: true, Exists: true}}, "http://api"),
		NewConfigCheck(nil, ""),
	}

	results := RunAll(context.Background(), checks)
	require.Len(t, results, 2)
	assert.Equal(t, "Detection API", results[0].Name)
	assert.Equal(t, StatusWarn, results[0].Worst())
	assert.Equal(t, StatusFail, results[1].Worst())

	data, err := json.Marshal(results[0].Items[2])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)

	passed, warned, failed := Summary(results)
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, warned)
	assert.Equal(t, 1, failed)
}
