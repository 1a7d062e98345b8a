package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Modal represents a confirmation dialog.
type Modal struct {
	title           string
	message         string
	confirmSelected bool // true = confirm button selected, false = cancel button selected
}

// NewModal creates a new modal with the given title and message. Cancel is selected by
// default so a stray enter does not destroy anything.
func NewModal(title, message string) Modal {
	return Modal{
		title:   title,
		message: message,
	}
}

// ToggleSelection switches the selected button.
func (m *Modal) ToggleSelection() {
	m.confirmSelected = !m.confirmSelected
}

// ConfirmSelected returns true if the confirm button is selected.
func (m Modal) ConfirmSelected() bool {
	return m.confirmSelected
}

// View renders the dialog box.
func (m Modal) View() string {
	confirmBtn := modalButtonStyle.Render("Clear")
	cancelBtn := modalButtonSelectedStyle.Render("Cancel")
	if m.confirmSelected {
		confirmBtn = modalButtonSelectedStyle.Render("Clear")
		cancelBtn = modalButtonStyle.Render("Cancel")
	}

	buttons := lipgloss.JoinHorizontal(lipgloss.Center, confirmBtn, "  ", cancelBtn)
	buttonRow := lipgloss.NewStyle().MarginTop(1).Render(buttons)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		modalTitleStyle.Render(m.title),
		"",
		m.message,
		buttonRow,
		modalHelpStyle.Render("←/→ select  enter confirm  esc cancel"),
	)

	return modalStyle.Render(content)
}

// Overlay centers the dialog in a width x height area. lipgloss v1 has no layers, so the
// background is replaced rather than composited.
func (m Modal) Overlay(width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, m.View())
}
