package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/render"
)

// HistoryItem wraps a history entry for the list component.
type HistoryItem struct {
	Entry history.Entry
}

// FilterValue returns the value used for filtering.
func (i HistoryItem) FilterValue() string {
	return string(i.Entry.Result.Class) + " " + i.Entry.ImageRef
}

// HistoryDelegate renders history entries as two-line rows.
type HistoryDelegate struct{}

// Height returns the height of each item.
func (d HistoryDelegate) Height() int {
	return 2
}

// Spacing returns the spacing between items.
func (d HistoryDelegate) Spacing() int {
	return 1
}

// Update handles item updates.
func (d HistoryDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render renders a single item.
func (d HistoryDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	hi, ok := item.(HistoryItem)
	if !ok {
		return
	}

	e := hi.Entry
	v := render.For(e.Result)

	label := lipgloss.NewStyle().Foreground(v.Color()).Bold(true).Render(v.Label)
	when := e.Timestamp.Local().Format("Jan 02 15:04")
	title := fmt.Sprintf("%s %s  %s %s %s", label, v.Confidence, pathStyle.Render(when), iconDot, e.Source)

	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}

	ref := truncateLeft(e.ImageRef, max(m.Width()-4, 10))

	_, _ = fmt.Fprintf(w, "%s%s\n", prefix, normalStyle.Render(title))
	_, _ = fmt.Fprintf(w, "  %s", pathStyle.Render(ref))
}

// truncateLeft keeps the end of s, which for paths and URLs is the informative part.
func truncateLeft(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return "…" + strings.TrimSpace(string(r[len(r)-width+1:]))
}

func historyItems(entries []history.Entry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = HistoryItem{Entry: e}
	}
	return items
}
