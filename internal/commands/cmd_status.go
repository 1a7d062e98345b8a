package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deepguard/internal/render"
)

type StatusCmd struct {
	flags  *Flags
	format string
}

// NewStatusCmd creates a new status command
func NewStatusCmd(flags *Flags) *StatusCmd {
	return &StatusCmd{flags: flags}
}

// Register adds the status command to the application
func (cmd *StatusCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "status",
		Usage:       "Show whether the detection model is online",
		UsageText:   "deepguard status [options]",
		Description: "Queries the model-status endpoint. The model is online only when it both exists and is loaded.",
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

func (cmd *StatusCmd) run(ctx context.Context, c *cli.Command) error {
	if err := validateFormat(cmd.format); err != nil {
		return err
	}

	st := cmd.flags.Analyzer.Status(ctx)

	if cmd.format == formatJSON {
		return writeJSON(c.Root().Writer, struct {
			URL       string `json:"url"`
			Online    bool   `json:"online"`
			Loaded    bool   `json:"loaded"`
			Exists    bool   `json:"exists"`
			Reachable bool   `json:"reachable"`
			ModelPath string `json:"model_path,omitempty"`
			Text      string `json:"text"`
		}{
			URL:       cmd.flags.Config.API.BaseURL,
			Online:    st.Online(),
			Loaded:    st.Loaded,
			Exists:    st.Exists,
			Reachable: st.Reachable,
			ModelPath: st.ModelPath,
			Text:      render.StatusText(st),
		})
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "%s  %s\n", render.StatusIndicator(st), cmd.flags.Config.API.BaseURL)
	if st.ModelPath != "" {
		_, _ = fmt.Fprintf(out, "  model: %s\n", st.ModelPath)
	}

	return nil
}
