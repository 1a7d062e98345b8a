package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/deepguard"
	"github.com/hay-kot/deepguard/internal/render"
	"github.com/hay-kot/deepguard/internal/styles"
	"github.com/hay-kot/deepguard/internal/upload"
)

// Analyzer is the subset of deepguard.Analyzer the popup needs.
type Analyzer interface {
	Select(p upload.Payload)
	Reset()
	Analyze(ctx context.Context, source history.Source) (deepguard.Outcome, error)
	ConsumeLastResult(ctx context.Context) (deepguard.Pending, bool, error)
	History(ctx context.Context, limit int) ([]history.Entry, error)
	ClearHistory(ctx context.Context) error
	Status(ctx context.Context) prediction.ModelStatus
}

// UIState represents the current state of the popup.
type UIState int

const (
	stateIdle UIState = iota
	stateAnalyzing
	stateConfirming
)

type focusArea int

const (
	focusInput focusArea = iota
	focusHistory
)

const (
	defaultWidth  = 60
	maxPanelWidth = 72
	minListHeight = 3
)

// Options configures the popup.
type Options struct {
	// DisplayLimit is the number of history entries listed.
	DisplayLimit int
	// Load reads the entered path. Defaults to upload.FromDrop so pasted or dragged
	// paths are checked for image content.
	Load func(path string) (upload.Payload, error)
}

// analysisDoneMsg is sent when an analysis finishes. gen identifies the request that
// produced it.
type analysisDoneMsg struct {
	gen     int
	outcome deepguard.Outcome
	err     error
}

// clearedMsg is sent after history has been cleared.
type clearedMsg struct {
	err error
}

// Model is the main Bubble Tea model for the popup.
type Model struct {
	analyzer Analyzer
	opts     Options
	keys     KeyMap

	input   textinput.Model
	list    list.Model
	spinner spinner.Model
	help    help.Model
	modal   Modal

	state  UIState
	focus  focusArea
	width  int
	height int

	status      prediction.ModelStatus
	statusKnown bool
	result      *prediction.Result
	resultRef   string
	err         string

	// gen increases with every analysis and every reset. Responses carrying an older
	// gen are dropped.
	gen    int
	cancel context.CancelFunc

	quitting bool
}

// New creates a new popup model.
func New(analyzer Analyzer, opts Options) Model {
	if opts.Load == nil {
		opts.Load = upload.FromDrop
	}

	ti := textinput.New()
	ti.Prompt = "Image: "
	ti.Placeholder = "path to an image (drag a file here)"
	ti.Focus()

	l := list.New(nil, HistoryDelegate{}, defaultWidth, minListHeight)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	h := help.New()
	h.Styles.ShortKey = lipgloss.NewStyle().Foreground(styles.ColorBlue)
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(styles.ColorGray)

	return Model{
		analyzer: analyzer,
		opts:     opts,
		keys:     DefaultKeyMap(),
		input:    ti,
		list:     l,
		spinner:  sp,
		help:     h,
		width:    defaultWidth,
	}
}

// Init consumes any pending context-menu result and starts the refresh loops.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		consumePending(m.analyzer),
		loadHistory(m.analyzer, m.opts.DisplayLimit),
		loadStatus(m.analyzer),
		scheduleHistoryTick(),
		scheduleStatusTick(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-len(m.input.Prompt)-4, 10)
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pendingLoadedMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("read pending result")
			return m, nil
		}
		if !msg.ok || m.state == stateAnalyzing {
			return m, nil
		}
		if msg.pending.Error != "" {
			m.err = msg.pending.Error
			m.result = nil
		} else if msg.pending.Result != nil {
			m.err = ""
			m.result = msg.pending.Result
			m.resultRef = msg.pending.ImageRef
		}
		m.resize()
		return m, nil

	case historyLoadedMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("load history")
			return m, nil
		}
		cmd := m.list.SetItems(historyItems(msg.entries))
		return m, cmd

	case statusLoadedMsg:
		m.status = msg.status
		m.statusKnown = true
		return m, nil

	case historyTickMsg:
		return m, tea.Batch(loadHistory(m.analyzer, m.opts.DisplayLimit), scheduleHistoryTick())

	case statusTickMsg:
		return m, tea.Batch(loadStatus(m.analyzer), scheduleStatusTick())

	case analysisDoneMsg:
		if msg.gen != m.gen {
			log.Debug().Int("gen", msg.gen).Int("current", m.gen).Msg("dropping stale analysis")
			return m, nil
		}
		m.state = stateIdle
		m.cancel = nil
		if msg.err != nil {
			m.err = msg.err.Error()
			m.result = nil
		} else {
			m.err = ""
			res := msg.outcome.Result
			m.result = &res
			m.resultRef = msg.outcome.Payload.Ref
		}
		m.resize()
		return m, loadHistory(m.analyzer, m.opts.DisplayLimit)

	case clearedMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		return m, loadHistory(m.analyzer, m.opts.DisplayLimit)

	case spinner.TickMsg:
		if m.state != stateAnalyzing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.focus == focusInput {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m.quit()
	}

	if m.state == stateConfirming {
		return m.handleConfirmKey(msg)
	}

	if key.Matches(msg, m.keys.Switch) {
		if m.focus == focusInput {
			m.focus = focusHistory
			m.input.Blur()
			return m, nil
		}
		m.focus = focusInput
		return m, m.input.Focus()
	}

	if key.Matches(msg, m.keys.Reset) {
		m.reset()
		return m, nil
	}

	if m.focus == focusInput {
		if key.Matches(msg, m.keys.Analyze) {
			return m.startAnalysis()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Open):
		if item, ok := m.list.SelectedItem().(HistoryItem); ok {
			res := item.Entry.Result
			m.result = &res
			m.resultRef = item.Entry.ImageRef
			m.err = ""
			m.resize()
		}
		return m, nil
	case key.Matches(msg, m.keys.Clear):
		if len(m.list.Items()) == 0 {
			return m, nil
		}
		m.modal = NewModal("Clear History", "Clear all history?")
		m.state = stateConfirming
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(loadHistory(m.analyzer, m.opts.DisplayLimit), loadStatus(m.analyzer))
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "right", "h", "l", "tab":
		m.modal.ToggleSelection()
		return m, nil
	case "esc", "n":
		m.state = stateIdle
		return m, nil
	case "enter":
		m.state = stateIdle
		if !m.modal.ConfirmSelected() {
			return m, nil
		}
		return m, clearHistory(m.analyzer)
	}
	return m, nil
}

// startAnalysis loads the entered path, selects it and analyzes it in the background.
// An analysis already in flight is canceled and its response ignored.
func (m Model) startAnalysis() (tea.Model, tea.Cmd) {
	path := cleanPath(m.input.Value())
	if path == "" {
		return m, nil
	}

	p, err := m.opts.Load(path)
	if err != nil {
		m.err = err.Error()
		m.result = nil
		m.resize()
		return m, nil
	}

	m.cancelInFlight()
	m.analyzer.Select(p)

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = stateAnalyzing
	m.err = ""
	m.result = nil
	m.resize()

	return m, tea.Batch(analyze(ctx, m.analyzer, m.gen), m.spinner.Tick)
}

// reset returns to the initial picker state.
func (m *Model) reset() {
	m.cancelInFlight()
	m.gen++
	m.analyzer.Reset()
	m.state = stateIdle
	m.result = nil
	m.resultRef = ""
	m.err = ""
	m.input.Reset()
	m.focus = focusInput
	m.input.Focus()
	m.resize()
}

func (m *Model) cancelInFlight() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.cancelInFlight()
	m.quitting = true
	return m, tea.Quit
}

// resize gives the history list whatever height the rest of the view leaves.
func (m *Model) resize() {
	if m.height == 0 {
		return
	}
	used := lipgloss.Height(m.header()) + lipgloss.Height(m.body()) + 3
	m.list.SetSize(m.width, max(m.height-used, minListHeight))
}

func analyze(ctx context.Context, a Analyzer, gen int) tea.Cmd {
	return func() tea.Msg {
		out, err := a.Analyze(ctx, history.SourcePopup)
		return analysisDoneMsg{gen: gen, outcome: out, err: err}
	}
}

func clearHistory(a Analyzer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		return clearedMsg{err: a.ClearHistory(ctx)}
	}
}

// cleanPath undoes the quoting terminals apply to dragged-in paths.
func cleanPath(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, `\ `, " ")
}

// View renders the popup.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.state == stateConfirming {
		return m.modal.Overlay(m.width, max(m.height, lipgloss.Height(m.modal.View())))
	}

	sections := []string{m.header(), m.body(), titleStyle.Render("Recent checks")}

	if len(m.list.Items()) == 0 {
		sections = append(sections, helpStyle.Render("No history yet"))
	} else {
		sections = append(sections, m.list.View())
	}

	bindings := m.keys.inputHelp()
	if m.focus == focusHistory {
		bindings = m.keys.historyHelp()
	}
	sections = append(sections, helpStyle.Render(m.help.ShortHelpView(bindings)))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) header() string {
	status := helpStyle.Render("checking API...")
	if m.statusKnown {
		status = panelStyle.Render(render.StatusIndicator(m.status))
	}
	return lipgloss.JoinVertical(lipgloss.Left, bannerStyle.Render(strings.TrimPrefix(styles.Banner, "\n")), status)
}

func (m Model) body() string {
	var b strings.Builder

	b.WriteString("\n ")
	if m.state == stateAnalyzing {
		b.WriteString(m.spinner.View() + " Analyzing " + pathStyle.Render(cleanPath(m.input.Value())))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	if m.err != "" {
		b.WriteString(errorStyle.Render("Error: "+m.err) + "\n")
	}

	if m.result != nil {
		width := min(max(m.width-2, 20), maxPanelWidth)
		v := render.For(*m.result)
		b.WriteString(panelStyle.Render(v.Render(width)) + "\n")
		if m.resultRef != "" {
			b.WriteString(panelStyle.Render(pathStyle.Render(truncateLeft(m.resultRef, width))) + "\n")
		}
		if line := v.Celebration(width); line != "" {
			b.WriteString(panelStyle.Render(line) + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
