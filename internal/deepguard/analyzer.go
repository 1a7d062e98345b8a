// Package deepguard coordinates image analysis: it owns the current selection, submits
// images for classification and records the outcome in history and state.
package deepguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/core/state"
	"github.com/hay-kot/deepguard/internal/render"
	"github.com/hay-kot/deepguard/internal/upload"
	"github.com/hay-kot/deepguard/pkg/executil"
)

// ErrNoSelection is returned by Analyze when no image has been selected.
var ErrNoSelection = errors.New("no image selected")

// Predictor submits images to the detection API.
type Predictor interface {
	Submit(ctx context.Context, p upload.Payload) (prediction.Result, error)
	Status(ctx context.Context) prediction.ModelStatus
}

// Fetcher downloads images for the context-menu path.
type Fetcher interface {
	FromURL(ctx context.Context, rawURL string) (upload.Payload, error)
}

// Outcome is a successful analysis.
type Outcome struct {
	Result  prediction.Result
	Source  history.Source
	Payload upload.Payload
	// Entry is the saved history entry. It is nil for the web source, which hands
	// results to the results view instead of history.
	Entry *history.Entry
}

// Pending is a result or error left for the next popup open.
type Pending struct {
	Result   *prediction.Result
	ImageRef string
	Error    string
}

// WebResult is what the results view displays.
type WebResult struct {
	Result   prediction.Result
	Image    string
	Filename string
}

// Analyzer runs the Upload -> Predict -> (History + State) flow.
type Analyzer struct {
	predictor Predictor
	fetcher   Fetcher
	history   history.Store
	state     state.Store
	session   state.Store
	config    *config.Config
	log       zerolog.Logger
	hooks     *HookRunner
	events    *broadcaster
	now       func() time.Time

	mu       sync.Mutex
	selected *upload.Payload
}

// New creates a new Analyzer. The state store holds persistent keys, the session store
// holds the web results view keys.
func New(
	predictor Predictor,
	fetcher Fetcher,
	historyStore history.Store,
	stateStore state.Store,
	sessionStore state.Store,
	cfg *config.Config,
	exec executil.Executor,
	log zerolog.Logger,
	stdout, stderr io.Writer,
) *Analyzer {
	return &Analyzer{
		predictor: predictor,
		fetcher:   fetcher,
		history:   historyStore,
		state:     stateStore,
		session:   sessionStore,
		config:    cfg,
		log:       log,
		hooks:     NewHookRunner(log.With().Str("component", "hooks").Logger(), exec, stdout, stderr),
		events:    newBroadcaster(),
		now:       time.Now,
	}
}

// Select replaces the current selection.
func (a *Analyzer) Select(p upload.Payload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selected = &p
}

// Selected returns the current selection.
func (a *Analyzer) Selected() (upload.Payload, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected == nil {
		return upload.Payload{}, false
	}
	return *a.selected, true
}

// Reset clears the selection.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selected = nil
}

// Subscribe returns a channel of analysis events and a function that unsubscribes.
func (a *Analyzer) Subscribe() (<-chan Event, func()) {
	return a.events.subscribe(16)
}

// Analyze classifies the selected image.
func (a *Analyzer) Analyze(ctx context.Context, source history.Source) (Outcome, error) {
	p, ok := a.Selected()
	if !ok {
		return Outcome{}, ErrNoSelection
	}
	return a.AnalyzePayload(ctx, p, source)
}

// AnalyzeURL fetches an image and classifies it as a context-menu check.
func (a *Analyzer) AnalyzeURL(ctx context.Context, rawURL string) (Outcome, error) {
	p, err := a.fetcher.FromURL(ctx, rawURL)
	if err != nil {
		a.recordFailure(ctx, history.SourceContextMenu, err)
		return Outcome{}, err
	}
	return a.AnalyzePayload(ctx, p, history.SourceContextMenu)
}

// AnalyzePayload submits p and records the result according to source. On failure the
// history is left untouched.
func (a *Analyzer) AnalyzePayload(ctx context.Context, p upload.Payload, source history.Source) (Outcome, error) {
	if !source.Valid() {
		return Outcome{}, fmt.Errorf("unknown source %q", source)
	}

	a.log.Debug().
		Str("file", p.Name).
		Str("source", string(source)).
		Int("bytes", p.Size()).
		Msg("analyzing image")

	res, err := a.predictor.Submit(ctx, p)
	if err != nil {
		a.recordFailure(ctx, source, err)
		return Outcome{}, err
	}

	out := Outcome{Result: res, Source: source, Payload: p}

	if source == history.SourceWeb {
		if err := a.saveWebResult(ctx, p, res); err != nil {
			return out, err
		}
	} else {
		entry, err := a.saveResult(ctx, p, res, source)
		if err != nil {
			return out, err
		}
		out.Entry = &entry
	}

	a.log.Info().
		Str("file", p.Name).
		Str("class", string(res.Class)).
		Float64("confidence", res.Confidence).
		Str("source", string(source)).
		Msg("analysis complete")

	a.runHooks(ctx, out)

	a.events.publish(Event{
		Type:   EventResult,
		Source: source,
		Result: &out.Result,
		Entry:  out.Entry,
		At:     a.now(),
	})

	return out, nil
}

func (a *Analyzer) saveResult(ctx context.Context, p upload.Payload, res prediction.Result, source history.Source) (history.Entry, error) {
	limit := a.config.History.PopupCap
	if source == history.SourceContextMenu {
		limit = a.config.History.ContextMenuCap
	}

	entry := history.NewEntry(res, p.Ref, p.Digest, source, a.now())

	saved, err := a.history.Append(ctx, entry, limit)
	if err != nil {
		return history.Entry{}, fmt.Errorf("save history: %w", err)
	}

	if err := a.state.Set(ctx, state.KeyLastResult, res); err != nil {
		return saved, fmt.Errorf("save last result: %w", err)
	}

	if source == history.SourceContextMenu {
		if err := a.state.Set(ctx, state.KeyShowLastResult, true); err != nil {
			return saved, fmt.Errorf("flag last result: %w", err)
		}
	}

	return saved, nil
}

func (a *Analyzer) saveWebResult(ctx context.Context, p upload.Payload, res prediction.Result) error {
	image := res.ImageURL
	if image == "" {
		image = p.Ref
	}

	values := []struct {
		key   string
		value any
	}{
		{state.KeyAnalysisResult, res},
		{state.KeyAnalysisImage, image},
		{state.KeyAnalysisFilename, p.Name},
	}

	for _, kv := range values {
		if err := a.session.Set(ctx, kv.key, kv.value); err != nil {
			return fmt.Errorf("save %s: %w", kv.key, err)
		}
	}

	return nil
}

// recordFailure stores the error for the next popup open on the context-menu path and
// publishes an error event. Canceled analyses are not stored. Store failures are logged;
// the analysis error is what the caller reports.
func (a *Analyzer) recordFailure(ctx context.Context, source history.Source, cause error) {
	a.log.Debug().Err(cause).Str("source", string(source)).Msg("analysis failed")

	if source == history.SourceContextMenu && !errors.Is(cause, context.Canceled) {
		if err := a.state.Set(ctx, state.KeyLastError, cause.Error()); err != nil {
			a.log.Warn().Err(err).Msg("failed to store last error")
		}
		if err := a.state.Set(ctx, state.KeyShowLastResult, false); err != nil {
			a.log.Warn().Err(err).Msg("failed to reset last result flag")
		}
	}

	a.events.publish(Event{
		Type:   EventError,
		Source: source,
		Error:  cause.Error(),
		At:     a.now(),
	})
}

func (a *Analyzer) runHooks(ctx context.Context, out Outcome) {
	if len(a.config.Hooks.OnResult) == 0 {
		return
	}

	v := render.For(out.Result)
	data := config.ResultTemplateData{
		Class:      string(out.Result.Class),
		Label:      v.Label,
		Confidence: v.Confidence,
		Source:     string(out.Source),
		ImageRef:   out.Payload.Ref,
		Filename:   out.Payload.Name,
	}
	if out.Entry != nil {
		data.ID = out.Entry.ID
	}

	if err := a.hooks.RunHooks(ctx, a.config.Hooks.OnResult, data); err != nil {
		a.log.Warn().Err(err).Msg("result hook failed")
	}
}

// ConsumeLastResult implements the popup-open check. A flagged context-menu result is
// returned with the image reference of the newest history entry and the flag is reset;
// otherwise a stored error is returned and removed. ok is false when neither is present.
func (a *Analyzer) ConsumeLastResult(ctx context.Context) (Pending, bool, error) {
	show, _, err := state.Lookup[bool](ctx, a.state, state.KeyShowLastResult)
	if err != nil {
		return Pending{}, false, err
	}

	last, hasLast, err := state.Lookup[prediction.Result](ctx, a.state, state.KeyLastResult)
	if err != nil {
		return Pending{}, false, err
	}

	if show && hasLast {
		pending := Pending{Result: &last}

		head, err := a.history.Load(ctx, 1)
		if err != nil {
			return Pending{}, false, err
		}
		if len(head) > 0 {
			pending.ImageRef = head[0].ImageRef
		}

		if err := a.state.Set(ctx, state.KeyShowLastResult, false); err != nil {
			return Pending{}, false, fmt.Errorf("reset last result flag: %w", err)
		}

		return pending, true, nil
	}

	msg, hasErr, err := state.Lookup[string](ctx, a.state, state.KeyLastError)
	if err != nil {
		return Pending{}, false, err
	}

	if hasErr {
		if err := a.state.Delete(ctx, state.KeyLastError); err != nil && !errors.Is(err, state.ErrKeyNotFound) {
			return Pending{}, false, fmt.Errorf("remove last error: %w", err)
		}
		return Pending{Error: msg}, true, nil
	}

	return Pending{}, false, nil
}

// LastResult returns the most recent result, or nil when none is stored.
func (a *Analyzer) LastResult(ctx context.Context) (*prediction.Result, error) {
	res, ok, err := state.Lookup[prediction.Result](ctx, a.state, state.KeyLastResult)
	if err != nil || !ok {
		return nil, err
	}
	return &res, nil
}

// WaitLastResult blocks until lastResult is written after the given time.
func (a *Analyzer) WaitLastResult(ctx context.Context, after time.Time, timeout time.Duration) (prediction.Result, error) {
	if _, err := a.state.Watch(ctx, state.KeyLastResult, after, timeout); err != nil {
		return prediction.Result{}, err
	}

	res, err := a.LastResult(ctx)
	if err != nil {
		return prediction.Result{}, err
	}
	if res == nil {
		return prediction.Result{}, state.ErrKeyNotFound
	}
	return *res, nil
}

// ConsumeWebResult reads the results view keys. They are not cleared.
func (a *Analyzer) ConsumeWebResult(ctx context.Context) (WebResult, bool, error) {
	res, ok, err := state.Lookup[prediction.Result](ctx, a.session, state.KeyAnalysisResult)
	if err != nil || !ok {
		return WebResult{}, false, err
	}

	image, _, err := state.Lookup[string](ctx, a.session, state.KeyAnalysisImage)
	if err != nil {
		return WebResult{}, false, err
	}

	filename, _, err := state.Lookup[string](ctx, a.session, state.KeyAnalysisFilename)
	if err != nil {
		return WebResult{}, false, err
	}

	return WebResult{Result: res, Image: image, Filename: filename}, true, nil
}

// History returns up to limit entries, newest first. A limit <= 0 returns all entries.
func (a *Analyzer) History(ctx context.Context, limit int) ([]history.Entry, error) {
	return a.history.Load(ctx, limit)
}

// Get returns a history entry by ID.
func (a *Analyzer) Get(ctx context.Context, id string) (history.Entry, error) {
	return a.history.Get(ctx, id)
}

// FindByTimestamp returns the entry created at the given unix millisecond timestamp.
func (a *Analyzer) FindByTimestamp(ctx context.Context, ms int64) (history.Entry, error) {
	return a.history.FindByTimestamp(ctx, time.UnixMilli(ms))
}

// ClearHistory empties the history list.
func (a *Analyzer) ClearHistory(ctx context.Context) error {
	if err := a.history.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	a.log.Info().Msg("history cleared")
	return nil
}

// Status reports whether the detection model is online.
func (a *Analyzer) Status(ctx context.Context) prediction.ModelStatus {
	return a.predictor.Status(ctx)
}
