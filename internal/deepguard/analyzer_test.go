package deepguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/core/state"
	"github.com/hay-kot/deepguard/internal/store/jsonfile"
	"github.com/hay-kot/deepguard/internal/upload"
	"github.com/hay-kot/deepguard/pkg/executil"
)

// mockPredictor implements Predictor for testing.
type mockPredictor struct {
	mu       sync.Mutex
	result   prediction.Result
	err      error
	failFor  map[string]error
	delay    time.Duration
	calls    int
	inFlight int
	maxSeen  int
}

func (m *mockPredictor) Submit(ctx context.Context, p upload.Payload) (prediction.Result, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	m.maxSeen = max(m.maxSeen, m.inFlight)
	res, err := m.result, m.err
	if e, ok := m.failFor[p.Name]; ok {
		err = e
	}
	delay := m.delay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return prediction.Result{}, ctx.Err()
		}
	}

	return res, err
}

func (m *mockPredictor) Status(_ context.Context) prediction.ModelStatus {
	return prediction.ModelStatus{Reachable: true, Loaded: true, Exists: true}
}

// mockFetcher implements Fetcher for testing.
type mockFetcher struct {
	err error
}

func (m *mockFetcher) FromURL(_ context.Context, rawURL string) (upload.Payload, error) {
	if m.err != nil {
		return upload.Payload{}, m.err
	}
	return upload.NewPayload("remote.jpg", rawURL, []byte("\xff\xd8\xff\xe0jpeg")), nil
}

type testEnv struct {
	analyzer  *Analyzer
	predictor *mockPredictor
	fetcher   *mockFetcher
	history   *jsonfile.HistoryStore
	state     *jsonfile.KVStore
	session   *jsonfile.KVStore
	exec      *executil.RecordingExecutor
	cfg       *config.Config
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		predictor: &mockPredictor{result: prediction.Result{Class: prediction.ClassReal, Confidence: 97}},
		fetcher:   &mockFetcher{},
		history:   jsonfile.NewHistoryStore(cfg.HistoryFile(), zerolog.Nop()),
		state:     jsonfile.NewKVStore(cfg.StateFile()),
		session:   jsonfile.NewKVStore(filepath.Join(cfg.DataDir, "session.json")),
		exec:      &executil.RecordingExecutor{},
		cfg:       &cfg,
	}

	log := zerolog.New(io.Discard)
	env.analyzer = New(env.predictor, env.fetcher, env.history, env.state, env.session, env.cfg, env.exec, log, io.Discard, io.Discard)

	return env
}

func localPayload(name string) upload.Payload {
	return upload.NewPayload(name, "/photos/"+name, []byte("\x89PNG\r\n\x1a\n"+name))
}

func TestAnalyze_NoSelection(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.analyzer.Analyze(context.Background(), history.SourcePopup)
	require.ErrorIs(t, err, ErrNoSelection)
	assert.Equal(t, 0, env.predictor.calls)
}

func TestSelectAndReset(t *testing.T) {
	env := newTestEnv(t, nil)

	env.analyzer.Select(localPayload("a.png"))
	env.analyzer.Select(localPayload("b.png"))

	p, ok := env.analyzer.Selected()
	require.True(t, ok)
	assert.Equal(t, "b.png", p.Name, "later selection replaces earlier one")

	env.analyzer.Reset()
	_, ok = env.analyzer.Selected()
	assert.False(t, ok)
}

func TestAnalyze_PopupSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.analyzer.Select(localPayload("a.png"))
	out, err := env.analyzer.Analyze(ctx, history.SourcePopup)
	require.NoError(t, err)

	require.NotNil(t, out.Entry)
	assert.Equal(t, history.SourcePopup, out.Entry.Source)
	assert.Equal(t, "/photos/a.png", out.Entry.ImageRef)
	assert.NotEmpty(t, out.Entry.ImageDigest)

	entries, err := env.analyzer.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, out.Entry.ID, entries[0].ID)

	last, err := env.analyzer.LastResult(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, prediction.ClassReal, last.Class)

	_, ok, err := env.analyzer.ConsumeLastResult(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "popup results are not flagged for the next open")
}

func TestAnalyze_CorruptStateFile(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(env.cfg.StateFile(), []byte("{not json"), 0o644))

	for i := 0; i < 2; i++ {
		env.analyzer.Select(localPayload(fmt.Sprintf("%d.png", i)))
		_, err := env.analyzer.Analyze(ctx, history.SourcePopup)
		require.NoError(t, err)
	}

	entries, err := env.analyzer.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	last, err := env.analyzer.LastResult(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, prediction.ClassReal, last.Class)
}

func TestAnalyze_Caps(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.History.PopupCap = 3
		cfg.History.ContextMenuCap = 5
	})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := env.analyzer.AnalyzeURL(ctx, fmt.Sprintf("https://example.com/%d.jpg", i))
		require.NoError(t, err)
	}

	entries, err := env.analyzer.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	assert.Equal(t, "https://example.com/5.jpg", entries[0].ImageRef)

	_, err = env.analyzer.AnalyzePayload(ctx, localPayload("p.png"), history.SourcePopup)
	require.NoError(t, err)

	entries, err = env.analyzer.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "popup save path trims to its own cap")
	assert.Equal(t, history.SourcePopup, entries[0].Source)
}

func TestAnalyzeURL_ContextMenuFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.analyzer.AnalyzeURL(ctx, "https://example.com/cat.jpg")
	require.NoError(t, err)

	pending, ok, err := env.analyzer.ConsumeLastResult(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, pending.Result)
	assert.Equal(t, prediction.ClassReal, pending.Result.Class)
	assert.Equal(t, "https://example.com/cat.jpg", pending.ImageRef)

	_, ok, err = env.analyzer.ConsumeLastResult(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "flag is consumed on first open")
}

func TestAnalyze_FailureLeavesHistoryUntouched(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.analyzer.AnalyzePayload(ctx, localPayload("ok.png"), history.SourcePopup)
	require.NoError(t, err)

	before, err := env.analyzer.History(ctx, 0)
	require.NoError(t, err)

	env.predictor.err = &prediction.ConnectivityError{Address: "localhost:5001", Err: errors.New("connection refused")}

	_, err = env.analyzer.AnalyzePayload(ctx, localPayload("bad.png"), history.SourcePopup)
	var cErr *prediction.ConnectivityError
	require.ErrorAs(t, err, &cErr)
	assert.Contains(t, err.Error(), "Make sure backend is running")

	after, err := env.analyzer.History(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, ok, err := env.analyzer.ConsumeLastResult(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "popup failures are shown inline, not stored")
}

func TestAnalyzeURL_FailureStoresLastError(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.predictor.err = prediction.NewAPIError("", 400)

	_, err := env.analyzer.AnalyzeURL(ctx, "https://example.com/x.jpg")
	require.Error(t, err)

	entries, err := env.analyzer.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	show, ok, err := state.Lookup[bool](ctx, env.state, state.KeyShowLastResult)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, show)

	pending, ok, err := env.analyzer.ConsumeLastResult(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, pending.Result)
	assert.Equal(t, prediction.FallbackMessage, pending.Error)

	_, ok, err = env.analyzer.ConsumeLastResult(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "error is removed once shown")
}

func TestAnalyzeURL_CanceledDoesNotStoreLastError(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.fetcher.err = fmt.Errorf("fetch image: %w", context.Canceled)

	_, err := env.analyzer.AnalyzeURL(ctx, "https://example.com/x.jpg")
	require.ErrorIs(t, err, context.Canceled)

	_, ok, err := state.Lookup[string](ctx, env.state, state.KeyLastError)
	require.NoError(t, err)
	assert.False(t, ok, "canceled checks leave no error for the next popup open")

	_, ok, err = env.analyzer.ConsumeLastResult(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyzeURL_FetchFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.fetcher.err = errors.New("fetch https://example.com/x.jpg: status 404")

	_, err := env.analyzer.AnalyzeURL(ctx, "https://example.com/x.jpg")
	require.Error(t, err)
	assert.Equal(t, 0, env.predictor.calls)

	msg, ok, err := state.Lookup[string](ctx, env.state, state.KeyLastError)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, msg, "status 404")
}

func TestAnalyze_WebSource(t *testing.T) {
	ctx := context.Background()

	t.Run("server image preferred", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.predictor.result = prediction.Result{Class: prediction.ClassFake, Confidence: 61, ImageURL: "/static/uploads/a.png"}

		out, err := env.analyzer.AnalyzePayload(ctx, localPayload("a.png"), history.SourceWeb)
		require.NoError(t, err)
		assert.Nil(t, out.Entry)

		entries, err := env.analyzer.History(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, entries, "web results are not added to history")

		web, ok, err := env.analyzer.ConsumeWebResult(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, prediction.ClassFake, web.Result.Class)
		assert.Equal(t, "/static/uploads/a.png", web.Image)
		assert.Equal(t, "a.png", web.Filename)

		_, ok, err = env.analyzer.ConsumeWebResult(ctx)
		require.NoError(t, err)
		assert.True(t, ok, "results view keys are not cleared on read")
	})

	t.Run("local ref fallback", func(t *testing.T) {
		env := newTestEnv(t, nil)

		_, err := env.analyzer.AnalyzePayload(ctx, localPayload("b.png"), history.SourceWeb)
		require.NoError(t, err)

		web, ok, err := env.analyzer.ConsumeWebResult(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "/photos/b.png", web.Image)
	})

	t.Run("empty before any check", func(t *testing.T) {
		env := newTestEnv(t, nil)

		_, ok, err := env.analyzer.ConsumeWebResult(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestAnalyze_UnknownSource(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.analyzer.AnalyzePayload(context.Background(), localPayload("a.png"), history.Source("email"))
	assert.ErrorContains(t, err, "unknown source")
}

func TestAnalyze_RunsMatchingHooks(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Hooks.OnResult = []config.Hook{
			{Pattern: "^Fake$", Commands: []string{"notify {{ .Label }} {{ .Confidence }} {{ .ImageRef | shq }}"}},
			{Pattern: "^Real$", Commands: []string{"echo real"}},
		}
	})
	env.predictor.result = prediction.Result{Class: prediction.ClassFake, Confidence: 61}

	_, err := env.analyzer.AnalyzePayload(context.Background(), localPayload("a.png"), history.SourcePopup)
	require.NoError(t, err)

	cmds := env.exec.Recorded()
	require.Len(t, cmds, 1)
	assert.Equal(t, "sh", cmds[0].Cmd)
	assert.Equal(t, []string{"-c", "notify FAKE 61% '/photos/a.png'"}, cmds[0].Args)
}

func TestAnalyze_HookFailureDoesNotFailAnalysis(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Hooks.OnResult = []config.Hook{{Commands: []string{"false"}}}
	})
	env.exec.Errors = map[string]error{"sh": errors.New("exit status 1")}

	_, err := env.analyzer.AnalyzePayload(context.Background(), localPayload("a.png"), history.SourcePopup)
	assert.NoError(t, err)
}

func TestSubscribe(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	events, cancel := env.analyzer.Subscribe()
	defer cancel()

	_, err := env.analyzer.AnalyzeURL(ctx, "https://example.com/a.jpg")
	require.NoError(t, err)

	env.predictor.err = prediction.NewAPIError("bad image", 400)
	_, _ = env.analyzer.AnalyzeURL(ctx, "https://example.com/b.jpg")

	first := <-events
	assert.Equal(t, EventResult, first.Type)
	require.NotNil(t, first.Entry)
	assert.Equal(t, history.SourceContextMenu, first.Source)

	second := <-events
	assert.Equal(t, EventError, second.Type)
	assert.Equal(t, "bad image", second.Error)
}

func TestClearHistoryAndLookups(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	out, err := env.analyzer.AnalyzePayload(ctx, localPayload("a.png"), history.SourcePopup)
	require.NoError(t, err)

	got, err := env.analyzer.Get(ctx, out.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Entry.ID, got.ID)

	got, err = env.analyzer.FindByTimestamp(ctx, out.Entry.UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, out.Entry.ID, got.ID)

	require.NoError(t, env.analyzer.ClearHistory(ctx))

	entries, err := env.analyzer.History(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = env.analyzer.Get(ctx, out.Entry.ID)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestCheckMany(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.API.Workers = 2
		cfg.History.PopupCap = 50
	})
	env.predictor.delay = 20 * time.Millisecond
	env.predictor.failFor = map[string]error{"c.png": prediction.NewAPIError("bad image", 400)}

	payloads := []upload.Payload{
		localPayload("a.png"),
		localPayload("b.png"),
		localPayload("c.png"),
		localPayload("d.png"),
		localPayload("e.png"),
	}

	items := env.analyzer.CheckMany(context.Background(), payloads, history.SourcePopup)
	require.Len(t, items, 5)

	for i, item := range items {
		assert.Equal(t, payloads[i].Name, item.Payload.Name, "results keep input order")
		if item.Payload.Name == "c.png" {
			assert.EqualError(t, item.Err, "bad image")
			continue
		}
		assert.NoError(t, item.Err)
	}

	assert.LessOrEqual(t, env.predictor.maxSeen, 2)

	entries, err := env.analyzer.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "concurrent saves never lose an entry")
}

func TestCheckMany_Canceled(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := env.analyzer.CheckMany(ctx, []upload.Payload{localPayload("a.png")}, history.SourcePopup)
	require.Len(t, items, 1)
	assert.ErrorIs(t, items[0].Err, context.Canceled)
}
