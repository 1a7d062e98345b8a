// Package styles provides shared lipgloss styles for CLI and TUI components.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Tokyo Night color palette.
var (
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorRed    = lipgloss.Color("#f7768e")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorPurple = lipgloss.Color("#bb9af7")
	ColorCyan   = lipgloss.Color("#7dcfff")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
)

// ConfettiColors are cycled by the celebration line.
var ConfettiColors = []lipgloss.Color{ColorPurple, ColorGreen, ColorRed, ColorYellow, ColorWhite}

// Banner ASCII art for the header.
const Banner = `
 ╔╦╗╔═╗╔═╗╔═╗╔═╗╦ ╦╔═╗╦═╗╔╦╗
  ║║║╣ ║╣ ╠═╝║ ╦║ ║╠═╣╠╦╝ ║║
 ═╩╝╚═╝╚═╝╩  ╚═╝╚═╝╩ ╩╩╚══╩╝`

// BannerStyle styles the ASCII art banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// CommandHeaderStyle styles the hook command headers.
var CommandHeaderStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// CommandStyle styles the command text.
var CommandStyle = lipgloss.NewStyle().
	Foreground(ColorWhite)

// DividerStyle styles horizontal dividers.
var DividerStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// MutedStyle styles secondary text.
var MutedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// RealLabelStyle styles the REAL badge.
var RealLabelStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#1a1b26")).
	Background(ColorGreen).
	Bold(true).
	Padding(0, 1)

// FakeLabelStyle styles the FAKE badge.
var FakeLabelStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#1a1b26")).
	Background(ColorYellow).
	Bold(true).
	Padding(0, 1)

// ResultBoxStyle frames a rendered result. The border color is set per variant.
var ResultBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 2)

// OnlineStyle and OfflineStyle color the API status indicator.
var (
	OnlineStyle  = lipgloss.NewStyle().Foreground(ColorGreen)
	OfflineStyle = lipgloss.NewStyle().Foreground(ColorRed)
)
