package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/printer"
	"github.com/hay-kot/deepguard/internal/render"
)

type HistoryCmd struct {
	flags *Flags

	// Command-specific flags
	clear  bool
	yes    bool
	all    bool
	limit  int
	format string
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "View or manage past checks",
		UsageText: "deepguard history [options]\n   deepguard history show <id|timestamp>",
		Description: `Lists recent checks, newest first.

By default only the most recent history.display_limit entries are shown.
Use --all to list everything and --clear to remove all entries.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "clear",
				Aliases:     []string{"c"},
				Usage:       "clear all history",
				Destination: &cmd.clear,
			},
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "skip the confirmation prompt when clearing",
				Destination: &cmd.yes,
			},
			&cli.BoolFlag{
				Name:        "all",
				Aliases:     []string{"a"},
				Usage:       "list every stored entry",
				Destination: &cmd.all,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of entries to list (defaults to history.display_limit)",
				Destination: &cmd.limit,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       formatText,
				Destination: &cmd.format,
			},
		},
		Commands: []*cli.Command{
			{
				Name:        "show",
				Usage:       "Show a detailed report for one entry",
				UsageText:   "deepguard history show <id|timestamp>",
				Description: "Looks an entry up by id, or by its millisecond timestamp as shown in the list.",
				Action:      cmd.runShow,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if err := validateFormat(cmd.format); err != nil {
		return err
	}

	if cmd.clear {
		return cmd.runClear(ctx, p)
	}

	return cmd.runList(ctx, c)
}

func (cmd *HistoryCmd) runList(ctx context.Context, c *cli.Command) error {
	limit := cmd.flags.Config.History.DisplayLimit
	if cmd.limit > 0 {
		limit = cmd.limit
	}
	if cmd.all {
		limit = 0
	}

	entries, err := cmd.flags.Analyzer.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	if cmd.format == formatJSON {
		if entries == nil {
			entries = []history.Entry{}
		}
		return writeJSON(c.Root().Writer, entries)
	}

	if len(entries) == 0 {
		printer.Ctx(ctx).Infof("No history yet")
		return nil
	}

	out := c.Root().Writer
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tRESULT\tSOURCE\tIMAGE\tTIME")

	for _, e := range entries {
		v := render.For(e.Result)

		result := printer.StatusWarn(v.Label + " " + v.Confidence)
		if e.Result.Class.IsReal() {
			result = printer.StatusPass(v.Label + " " + v.Confidence)
		}

		ref := shortenRef(e.ImageRef, maxRefWidth)

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.UnixMilli(),
			result,
			e.Source,
			ref,
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
		)
	}

	return w.Flush()
}

func (cmd *HistoryCmd) runShow(ctx context.Context, c *cli.Command) error {
	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("entry id or timestamp required")
	}

	entry, err := cmd.lookup(ctx, key)
	if err != nil {
		return err
	}

	md := render.Markdown(entry)
	_, _ = fmt.Fprint(c.Root().Writer, render.RenderMarkdown(md, termWidth(os.Stdout)))
	return nil
}

// lookup resolves an id, falling back to a millisecond timestamp when key is numeric.
func (cmd *HistoryCmd) lookup(ctx context.Context, key string) (history.Entry, error) {
	entry, err := cmd.flags.Analyzer.Get(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, history.ErrNotFound) {
		return history.Entry{}, err
	}

	ms, convErr := strconv.ParseInt(key, 10, 64)
	if convErr != nil {
		return history.Entry{}, fmt.Errorf("entry %q: %w", key, err)
	}

	entry, err = cmd.flags.Analyzer.FindByTimestamp(ctx, ms)
	if err != nil {
		return history.Entry{}, fmt.Errorf("entry %q: %w", key, err)
	}
	return entry, nil
}

func (cmd *HistoryCmd) runClear(ctx context.Context, p *printer.Printer) error {
	if !cmd.yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to clear history without confirmation; pass --yes")
		}

		var confirmed bool
		err := huh.NewConfirm().
			Title("Clear all history?").
			Affirmative("Clear").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
		if !confirmed {
			p.Infof("History kept")
			return nil
		}
	}

	if err := cmd.flags.Analyzer.ClearHistory(ctx); err != nil {
		return err
	}

	p.Successf("History cleared")
	return nil
}

const maxRefWidth = 50

// shortenRef keeps the tail of ref, which holds the file name, within width runes.
func shortenRef(ref string, width int) string {
	r := []rune(ref)
	if len(r) <= width {
		return ref
	}
	return "..." + string(r[len(r)-width+3:])
}
