package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/deepguard"
)

const (
	historyRefreshInterval = 2 * time.Second
	statusRefreshInterval  = 30 * time.Second
	loadTimeout            = 5 * time.Second
)

// historyLoadedMsg is sent when history entries are loaded.
type historyLoadedMsg struct {
	entries []history.Entry
	err     error
}

// statusLoadedMsg is sent when the model status has been queried.
type statusLoadedMsg struct {
	status prediction.ModelStatus
}

// pendingLoadedMsg carries the result or error left by a context-menu check.
type pendingLoadedMsg struct {
	pending deepguard.Pending
	ok      bool
	err     error
}

// historyTickMsg triggers a history reload so checks made by the bridge show up.
type historyTickMsg struct{}

// statusTickMsg triggers a status check.
type statusTickMsg struct{}

func loadHistory(a Analyzer, limit int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		entries, err := a.History(ctx, limit)
		return historyLoadedMsg{entries: entries, err: err}
	}
}

func loadStatus(a Analyzer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		return statusLoadedMsg{status: a.Status(ctx)}
	}
}

func consumePending(a Analyzer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		pending, ok, err := a.ConsumeLastResult(ctx)
		return pendingLoadedMsg{pending: pending, ok: ok, err: err}
	}
}

func scheduleHistoryTick() tea.Cmd {
	return tea.Tick(historyRefreshInterval, func(time.Time) tea.Msg {
		return historyTickMsg{}
	})
}

func scheduleStatusTick() tea.Cmd {
	return tea.Tick(statusRefreshInterval, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}
