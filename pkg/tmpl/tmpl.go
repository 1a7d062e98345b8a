// Package tmpl renders the shell command templates configured as result hooks.
package tmpl

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"
)

// shellQuote returns a shell-safe quoted string. It wraps the string in single
// quotes and escapes any existing single quotes using the '\'' technique.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	escaped := strings.ReplaceAll(s, "'", `'\''`)
	return "'" + escaped + "'"
}

var funcs = template.FuncMap{
	"shq":   shellQuote,
	"upper": strings.ToUpper,
}

func parse(tmpl string) (*template.Template, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

// Render executes a Go template string with the given data.
// Returns an error if the template is invalid or references undefined keys.
//
// Available template functions:
//   - shq: Shell-quote a string for safe use in shell commands
//   - upper: Upper-case a string
func Render(tmpl string, data any) (string, error) {
	t, err := parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

// Validate parses tmpl and dry-runs it against the zero value of the data type so that
// unknown fields are reported before a hook ever runs.
func Validate(tmpl string, data any) error {
	t, err := parse(tmpl)
	if err != nil {
		return err
	}
	if err := t.Execute(io.Discard, data); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}
	return nil
}
