// Package render turns predictions into terminal output. Rendering is a pure function of
// the prediction and never touches stored history.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/styles"
)

// Variant selects the visual path for a result.
type Variant string

const (
	VariantSuccess Variant = "success"
	VariantWarning Variant = "warning"
)

// Status texts shown next to the label.
const (
	StatusReal = "Real Image ✓"
	StatusFake = "Deepfake Detected ⚠"
)

// View is the visual state derived from a prediction.
type View struct {
	Label      string  // REAL or FAKE
	Confidence string  // e.g. "97%"
	Status     string  // StatusReal or StatusFake
	Badge      string  // e.g. "97% Real", used by the web results view
	Variant    Variant // success for Real, warning for Fake
	Celebrate  bool    // true only for Real
	Fill       float64 // confidence as a 0-1 fraction for bars
}

// For derives the View for a prediction.
func For(r prediction.Result) View {
	conf := FormatConfidence(r.Confidence)

	v := View{
		Confidence: conf,
		Badge:      conf + " " + string(r.Class),
		Fill:       clamp(r.Confidence/100, 0, 1),
	}

	if r.Class.IsReal() {
		v.Label = "REAL"
		v.Status = StatusReal
		v.Variant = VariantSuccess
		v.Celebrate = true
	} else {
		v.Label = "FAKE"
		v.Status = StatusFake
		v.Variant = VariantWarning
	}

	return v
}

// FormatConfidence formats a percentage without trailing zeros, e.g. 97 -> "97%" and
// 97.5 -> "97.5%".
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64) + "%"
}

// Color returns the accent color for the variant.
func (v View) Color() lipgloss.Color {
	if v.Variant == VariantSuccess {
		return styles.ColorGreen
	}
	return styles.ColorYellow
}

// LabelBadge renders the REAL/FAKE badge.
func (v View) LabelBadge() string {
	if v.Variant == VariantSuccess {
		return styles.RealLabelStyle.Render(v.Label)
	}
	return styles.FakeLabelStyle.Render(v.Label)
}

// Bar renders a confidence bar width cells wide.
func (v View) Bar(width int) string {
	if width < 1 {
		return ""
	}

	filled := int(v.Fill*float64(width) + 0.5)
	filled = min(max(filled, 0), width)

	on := lipgloss.NewStyle().Foreground(v.Color()).Render(strings.Repeat("█", filled))
	off := styles.MutedStyle.Render(strings.Repeat("░", width-filled))
	return on + off
}

// Render draws the result panel.
func (v View) Render(width int) string {
	barWidth := max(width-12, 10)

	status := lipgloss.NewStyle().Foreground(v.Color()).Bold(true).Render(v.Status)

	lines := []string{
		v.LabelBadge() + "  " + lipgloss.NewStyle().Bold(true).Render(v.Confidence),
		"",
		styles.MutedStyle.Render("Status      ") + status,
		styles.MutedStyle.Render("Confidence  ") + v.Confidence,
		v.Bar(barWidth),
	}

	box := styles.ResultBoxStyle.BorderForeground(v.Color())
	return box.Render(strings.Join(lines, "\n"))
}

// Celebration returns a line of confetti for Real results and an empty string otherwise.
func (v View) Celebration(width int) string {
	if !v.Celebrate || width < 1 {
		return ""
	}

	glyphs := []string{"✦", "•", "✧", "*", "·"}

	var b strings.Builder
	for i := 0; i < width; i++ {
		if i%2 == 1 {
			b.WriteByte(' ')
			continue
		}
		n := i / 2
		style := lipgloss.NewStyle().Foreground(styles.ConfettiColors[n%len(styles.ConfettiColors)])
		b.WriteString(style.Render(glyphs[(n*3)%len(glyphs)]))
	}
	return b.String()
}

// Summary is a single-line description used in lists and logs.
func Summary(r prediction.Result) string {
	v := For(r)
	return fmt.Sprintf("%s %s", v.Label, v.Confidence)
}

// StatusText maps the model status to the indicator text.
func StatusText(s prediction.ModelStatus) string {
	switch {
	case s.Online():
		return "Model Ready"
	case s.Reachable:
		return "Model Not Loaded"
	default:
		return "API Offline"
	}
}

// StatusIndicator renders a colored dot with StatusText.
func StatusIndicator(s prediction.ModelStatus) string {
	if s.Online() {
		return styles.OnlineStyle.Render("●") + " " + StatusText(s)
	}
	return styles.OfflineStyle.Render("●") + " " + StatusText(s)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
