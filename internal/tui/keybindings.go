package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the popup key bindings.
type KeyMap struct {
	Analyze   key.Binding
	Switch    key.Binding
	Open      key.Binding
	Reset     key.Binding
	Clear     key.Binding
	Refresh   key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Analyze: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "analyze"),
		),
		Switch: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch focus"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "show result"),
		),
		Reset: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "new check"),
		),
		Clear: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "clear history"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
	}
}

// inputHelp is shown while the path input has focus.
func (k KeyMap) inputHelp() []key.Binding {
	return []key.Binding{k.Analyze, k.Switch, k.Reset}
}

// historyHelp is shown while the history list has focus.
func (k KeyMap) historyHelp() []key.Binding {
	return []key.Binding{k.Open, k.Switch, k.Clear, k.Refresh, k.Quit}
}
