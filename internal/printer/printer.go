// Package printer writes user-facing CLI output: status lines, check lists and the
// boxed error shown when a command fails.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/styles"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

var (
	red     = lipgloss.NewStyle().Foreground(styles.ColorRed)
	green   = lipgloss.NewStyle().Foreground(styles.ColorGreen)
	yellow  = lipgloss.NewStyle().Foreground(styles.ColorYellow)
	gray    = lipgloss.NewStyle().Foreground(styles.ColorGray)
	section = lipgloss.NewStyle().Bold(true).Underline(true)
)

type ctxKey struct{}

// Printer writes formatted messages to a single writer.
type Printer struct {
	writer io.Writer
}

// New creates a new Printer that writes to the given writer
func New(w io.Writer) *Printer {
	return &Printer{writer: w}
}

// NewContext returns a context with the printer attached
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx retrieves the printer from context, or creates a default one
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// FatalError prints a boxed error. It does not exit; the caller owns the exit code.
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		p.printValidationErrors(err, fieldErrs)
		return
	}

	bar := red.Render("│")
	lines := []string{
		red.Render("╭ Error"),
		bar + " " + gray.Render(err.Error()),
	}
	if hint := Hint(err); hint != "" {
		lines = append(lines, bar, bar+" "+hint)
	}
	lines = append(lines, red.Render("╵"))

	p.write(strings.Join(lines, "\n"))
}

// Hint suggests a next step for errors raised while talking to the detection API.
func Hint(err error) string {
	var (
		connErr      *prediction.ConnectivityError
		malformedErr *prediction.MalformedResponseError
	)

	switch {
	case errors.As(err, &connErr):
		return "Start the detection backend or point --api-url at it, then run 'deepguard status'."
	case errors.As(err, &malformedErr):
		return "The server answered but not in the expected format. Check that --api-url points at the detection API."
	}
	return ""
}

// printValidationErrors lists each criterio field error under the wrapping context,
// e.g. "load config: invalid config".
func (p *Printer) printValidationErrors(wrappedErr error, fieldErrs criterio.FieldErrors) {
	errStr := wrappedErr.Error()

	errContext := ""
	if idx := strings.Index(errStr, fieldErrs.Error()); idx > 0 {
		errContext = strings.TrimSuffix(errStr[:idx], ": ")
	}

	bar := red.Render("│")
	lines := []string{red.Render("╭ Validation Error")}

	if errContext != "" {
		lines = append(lines, bar+" "+gray.Render(errContext), bar)
	}

	for _, fe := range fieldErrs {
		line := bar + " " + red.Render(Cross) + " "
		if fe.Field != "" {
			line += gray.Render(fe.Field + ": ")
		}
		lines = append(lines, line+fe.Err.Error())
	}

	lines = append(lines, red.Render("╵"))
	p.write(strings.Join(lines, "\n"))
}

// Errorf prints an error message in red
func (p *Printer) Errorf(format string, args ...any) {
	p.write(red.Render(Cross + " " + fmt.Sprintf(format, args...)))
}

// Successf prints a success message in green
func (p *Printer) Successf(format string, args ...any) {
	p.write(green.Render(Check + " " + fmt.Sprintf(format, args...)))
}

// Infof prints an info message in gray
func (p *Printer) Infof(format string, args ...any) {
	p.write(gray.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Warnf prints a warning message in yellow
func (p *Printer) Warnf(format string, args ...any) {
	p.write(yellow.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Printf prints a plain message without colors
func (p *Printer) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

// Section prints a section header (bold + underlined)
func (p *Printer) Section(title string) {
	p.write(section.Render(title))
}

// CheckItem prints a passing check item.
func (p *Printer) CheckItem(label, detail string) {
	p.item(green, Check, label, detail)
}

// WarnItem prints a check item that needs attention.
func (p *Printer) WarnItem(label, detail string) {
	p.item(yellow, Dot, label, detail)
}

// FailItem prints a failing check item.
func (p *Printer) FailItem(label, detail string) {
	p.item(red, Cross, label, detail)
}

func (p *Printer) item(style lipgloss.Style, symbol, label, detail string) {
	line := "  " + style.Render(symbol) + " " + label
	switch {
	case label == "":
		line += detail
	case detail != "":
		line += ": " + detail
	}
	p.write(line)
}

func (p *Printer) write(s string) {
	_, _ = io.WriteString(p.writer, s+"\n")
}

// StatusOK returns a green checkmark with "ok" for use in tables.
func StatusOK() string {
	return StatusPass("ok")
}

// StatusPass returns a green checkmark with the given message for use in tables.
func StatusPass(msg string) string {
	return green.Render(Check) + " " + msg
}

// StatusFailed returns a red cross with the given message for use in tables.
func StatusFailed(msg string) string {
	return red.Render(Cross) + " " + msg
}

// StatusWarn returns a yellow dot with the given message for use in tables.
func StatusWarn(msg string) string {
	return yellow.Render(Dot) + " " + msg
}
