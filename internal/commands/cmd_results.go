package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deepguard/internal/printer"
	"github.com/hay-kot/deepguard/internal/render"
	"github.com/hay-kot/deepguard/internal/styles"
)

type ResultsCmd struct {
	flags  *Flags
	format string
}

// NewResultsCmd creates a new results command
func NewResultsCmd(flags *Flags) *ResultsCmd {
	return &ResultsCmd{flags: flags}
}

// Register adds the results command to the application
func (cmd *ResultsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "results",
		Usage:       "Show the result of the last 'check --web'",
		UsageText:   "deepguard results [options]",
		Description: "Displays the analysed image, its filename and a confidence badge. The stored result is kept until the next web check.",
		Flags: []cli.Flag{
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

func (cmd *ResultsCmd) run(ctx context.Context, c *cli.Command) error {
	if err := validateFormat(cmd.format); err != nil {
		return err
	}

	web, ok, err := cmd.flags.Analyzer.ConsumeWebResult(ctx)
	if err != nil {
		return fmt.Errorf("read results: %w", err)
	}

	if !ok {
		if cmd.format == formatJSON {
			return writeJSON(c.Root().Writer, struct {
				Result any `json:"result"`
			}{})
		}
		printer.Ctx(ctx).Infof("No analysis results found. Run 'deepguard check --web <image>' first.")
		return nil
	}

	v := render.For(web.Result)

	if cmd.format == formatJSON {
		return writeJSON(c.Root().Writer, struct {
			Result   any    `json:"result"`
			Badge    string `json:"badge"`
			Image    string `json:"image"`
			Filename string `json:"filename"`
		}{web.Result, v.Badge, web.Image, web.Filename})
	}

	width := termWidth(os.Stdout)
	out := c.Root().Writer

	_, _ = fmt.Fprintln(out, styles.CommandHeaderStyle.Render(web.Filename))
	_, _ = fmt.Fprintln(out, styles.MutedStyle.Render(web.Image))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "%s  %s\n", v.LabelBadge(), v.Badge)
	_, _ = fmt.Fprintln(out, v.Bar(max(width-4, 10)))
	if line := v.Celebration(width); line != "" {
		_, _ = fmt.Fprintln(out, line)
	}

	return nil
}
