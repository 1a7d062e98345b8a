package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hay-kot/deepguard/internal/core/history"
)

// sanitizer strips markup from server-provided strings before they are embedded.
var sanitizer = bluemonday.StrictPolicy()

// Markdown builds a detail report for a history entry.
func Markdown(e history.Entry) string {
	v := For(e.Result)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s · %s\n\n", v.Label, v.Confidence)
	fmt.Fprintf(&b, "**%s**\n\n", v.Status)

	b.WriteString("| Field | Value |\n")
	b.WriteString("|---|---|\n")
	row(&b, "ID", "`"+e.ID+"`")
	row(&b, "Checked", e.Timestamp.Local().Format(time.DateTime))
	row(&b, "Timestamp", strconv.FormatInt(e.UnixMilli(), 10))
	row(&b, "Source", string(e.Source))
	if e.ImageRef != "" {
		row(&b, "Image", "`"+clean(e.ImageRef)+"`")
	}
	if e.ImageDigest != "" {
		row(&b, "Digest", "`"+e.ImageDigest+"`")
	}
	if e.Result.RawScore != nil {
		row(&b, "Raw score", strconv.FormatFloat(*e.Result.RawScore, 'f', -1, 64))
	}
	if e.Result.Filename != "" {
		row(&b, "Server file", clean(e.Result.Filename))
	}
	if e.Result.ImageURL != "" {
		row(&b, "Server image", clean(e.Result.ImageURL))
	}

	return b.String()
}

// RenderMarkdown renders markdown for the terminal, falling back to the raw text when
// the renderer fails.
func RenderMarkdown(md string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}

	out, err := renderer.Render(md)
	if err != nil {
		return md
	}

	return strings.TrimRight(out, "\n") + "\n"
}

func row(b *strings.Builder, k, v string) {
	fmt.Fprintf(b, "| %s | %s |\n", k, v)
}

// clean removes markup and characters that would break a table cell.
func clean(s string) string {
	s = sanitizer.Sanitize(s)
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "`", "'")
	return strings.ReplaceAll(s, "\n", " ")
}
