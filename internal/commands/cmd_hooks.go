package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/printer"
	"github.com/hay-kot/deepguard/internal/render"
	"github.com/hay-kot/deepguard/pkg/tmpl"
)

type HooksCmd struct {
	flags *Flags

	class      string
	confidence float64
}

// NewHooksCmd creates a new hooks command
func NewHooksCmd(flags *Flags) *HooksCmd {
	return &HooksCmd{flags: flags}
}

// Register adds the hooks command to the application
func (cmd *HooksCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "hooks",
		Usage:       "Inspect on_result hooks",
		UsageText:   "deepguard hooks <command>",
		Description: "List the hooks defined under hooks.on_result and preview the commands they would run.",
		Commands: []*cli.Command{
			{
				Name:        "list",
				Aliases:     []string{"ls"},
				Usage:       "List all configured hooks",
				UsageText:   "deepguard hooks list",
				Description: "Displays a table of hooks with their class pattern and command count.",
				Action:      cmd.runList,
			},
			{
				Name:      "show",
				Usage:     "Preview the commands of a hook",
				UsageText: "deepguard hooks show [--class Fake] [--confidence 90] <number>",
				Description: `Renders each command of the hook with sample result data, without running it.

Hooks are numbered from 1 in the order shown by 'deepguard hooks list'.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "class",
						Usage:       "sample result class (Real, Fake)",
						Value:       string(prediction.ClassFake),
						Destination: &cmd.class,
					},
					&cli.FloatFlag{
						Name:        "confidence",
						Usage:       "sample confidence percentage",
						Value:       90,
						Destination: &cmd.confidence,
					},
				},
				Action: cmd.runShow,
			},
		},
	})

	return app
}

func (cmd *HooksCmd) runList(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	hooks := cmd.flags.Config.Hooks.OnResult
	if len(hooks) == 0 {
		p.Infof("No hooks defined. Add hooks.on_result to your config file.")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tPATTERN\tCOMMANDS")

	for i, hook := range hooks {
		pattern := hook.Pattern
		if pattern == "" {
			pattern = "(any)"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, pattern, len(hook.Commands))
	}

	return w.Flush()
}

func (cmd *HooksCmd) runShow(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if c.Args().Len() < 1 {
		return fmt.Errorf("hook number required")
	}

	hooks := cmd.flags.Config.Hooks.OnResult
	n, err := strconv.Atoi(c.Args().First())
	if err != nil || n < 1 || n > len(hooks) {
		return fmt.Errorf("hook %q not found (have %d)", c.Args().First(), len(hooks))
	}

	class := prediction.Class(cmd.class)
	if !class.Valid() {
		return fmt.Errorf("invalid class %q (want %s or %s)", cmd.class, prediction.ClassReal, prediction.ClassFake)
	}

	hook := hooks[n-1]
	data := sampleTemplateData(prediction.Result{Class: class, Confidence: cmd.confidence})

	p.Infof("Hook %d", n)
	return writeHookPreview(c.Root().Writer, hook, data)
}

// sampleTemplateData fills the hook template fields for a made-up popup check.
func sampleTemplateData(r prediction.Result) config.ResultTemplateData {
	v := render.For(r)
	return config.ResultTemplateData{
		ID:         "00000000-0000-0000-0000-000000000000",
		Class:      string(r.Class),
		Label:      v.Label,
		Confidence: v.Confidence,
		Source:     "popup",
		ImageRef:   "/path/to/photo.jpg",
		Filename:   "photo.jpg",
	}
}

func writeHookPreview(w io.Writer, hook config.Hook, data config.ResultTemplateData) error {
	pattern := hook.Pattern
	if pattern == "" {
		pattern = "(any)"
	}
	_, _ = fmt.Fprintf(w, "Pattern: %s\n\n", pattern)

	if len(hook.Commands) == 0 {
		_, _ = fmt.Fprintln(w, "Commands: (none)")
		return nil
	}

	_, _ = fmt.Fprintln(w, "Commands:")
	for i, cmdTmpl := range hook.Commands {
		rendered, err := tmpl.Render(cmdTmpl, data)
		if err != nil {
			return fmt.Errorf("render command %d: %w", i+1, err)
		}
		_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, cmdTmpl)
		for _, line := range strings.Split(rendered, "\n") {
			_, _ = fmt.Fprintf(w, "     → %s\n", line)
		}
	}

	return nil
}
