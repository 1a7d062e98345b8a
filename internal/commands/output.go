package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/render"
)

const (
	formatText = "text"
	formatJSON = "json"

	defaultWidth = 60
)

// termWidth returns the width of f when it is a terminal, capped for readability.
func termWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return min(w, 80)
}

// writeResult draws a result panel, followed by confetti for Real results.
func writeResult(w io.Writer, r prediction.Result, width int) {
	v := render.For(r)
	_, _ = fmt.Fprintln(w, v.Render(width))
	if line := v.Celebration(width); line != "" {
		_, _ = fmt.Fprintln(w, line)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func validateFormat(format string) error {
	if format != formatText && format != formatJSON {
		return fmt.Errorf("invalid format %q (want text or json)", format)
	}
	return nil
}
