package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/printer"
)

type LastCmd struct {
	flags *Flags

	wait    bool
	timeout time.Duration
	peek    bool
	format  string
}

// NewLastCmd creates a new last command
func NewLastCmd(flags *Flags) *LastCmd {
	return &LastCmd{flags: flags}
}

// Register adds the last command to the application
func (cmd *LastCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "last",
		Usage:     "Show the result left by the last context-menu check",
		UsageText: "deepguard last [options]",
		Description: `Shows what the popup would show when opened.

A flagged context-menu result is shown once, together with its image, and the
flag is reset. Otherwise a stored error is shown once and removed.

With --wait, blocks until the next result is written (for example by the bridge).
With --peek, prints the most recent result without consuming anything.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "wait",
				Aliases:     []string{"w"},
				Usage:       "wait for the next result",
				Destination: &cmd.wait,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "how long --wait blocks (0 waits forever)",
				Value:       2 * time.Minute,
				Destination: &cmd.timeout,
			},
			&cli.BoolFlag{
				Name:        "peek",
				Usage:       "show the most recent result without consuming it",
				Destination: &cmd.peek,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       formatText,
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})

	return app
}

type lastOutput struct {
	Result   *prediction.Result `json:"result"`
	ImageRef string             `json:"image_ref,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func (cmd *LastCmd) run(ctx context.Context, c *cli.Command) error {
	if err := validateFormat(cmd.format); err != nil {
		return err
	}

	analyzer := cmd.flags.Analyzer

	var out lastOutput

	switch {
	case cmd.wait:
		res, err := analyzer.WaitLastResult(ctx, time.Now(), cmd.timeout)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("no result within %s", cmd.timeout)
			}
			return fmt.Errorf("wait for result: %w", err)
		}
		out.Result = &res

		// the flag belongs to this result now
		if pending, ok, err := analyzer.ConsumeLastResult(ctx); err == nil && ok {
			out.ImageRef = pending.ImageRef
		}

	case cmd.peek:
		res, err := analyzer.LastResult(ctx)
		if err != nil {
			return err
		}
		out.Result = res

	default:
		pending, ok, err := analyzer.ConsumeLastResult(ctx)
		if err != nil {
			return err
		}
		if ok {
			out = lastOutput{Result: pending.Result, ImageRef: pending.ImageRef, Error: pending.Error}
		}
	}

	if cmd.format == formatJSON {
		return writeJSON(c.Root().Writer, out)
	}

	p := printer.Ctx(ctx)

	switch {
	case out.Error != "":
		p.Errorf("%s", out.Error)
		return cli.Exit("", 1)
	case out.Result == nil:
		p.Infof("Nothing to show")
		return nil
	}

	writeResult(c.Root().Writer, *out.Result, termWidth(os.Stdout))
	if out.ImageRef != "" {
		p.Infof("%s", out.ImageRef)
	}
	return nil
}
