package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/deepguard"
	"github.com/hay-kot/deepguard/internal/printer"
	"github.com/hay-kot/deepguard/internal/render"
	"github.com/hay-kot/deepguard/internal/upload"
)

const (
	// StatusOK indicates the image was classified.
	StatusOK = "ok"
	// StatusFailed indicates the image could not be loaded or classified.
	StatusFailed = "failed"

	stdinArg = "-"
)

// CheckResult is the JSON output for a single image.
type CheckResult struct {
	Ref        string  `json:"ref"`
	Status     string  `json:"status"`
	ID         string  `json:"id,omitempty"`
	Class      string  `json:"class,omitempty"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`

	result *prediction.Result
	err    error
}

// CheckOutput is the JSON output schema.
type CheckOutput struct {
	Source  history.Source `json:"source"`
	Results []CheckResult  `json:"results"`
}

type CheckCmd struct {
	flags *Flags

	urls   []string
	drop   bool
	web    bool
	format string
}

// NewCheckCmd creates a new check command
func NewCheckCmd(flags *Flags) *CheckCmd {
	return &CheckCmd{flags: flags}
}

// Register adds the check command to the application
func (cmd *CheckCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "check",
		Usage: "Check images for deepfakes",
		UsageText: `deepguard check [options] <path|glob|dir|->...

Check a file:
  deepguard check photo.jpg

Check a dropped file (rejects content that is not an image):
  deepguard check --drop ~/Downloads/photo

Check an image on the web (stored like a context-menu check):
  deepguard check --url https://example.com/photo.jpg

Check every image in a directory:
  deepguard check ./photos "shots/**/*.png"

Read image bytes from stdin:
  cat photo.jpg | deepguard check -`,
		Description: `Uploads each image to the detection API and prints the classification.

Directories are walked recursively and globs are expanded; only files with a
common image extension are picked up. Several images are checked concurrently,
bounded by api.workers.

Results are saved to history (popup cap for files, context-menu cap for --url).
With --web the result is handed to 'deepguard results' instead of history.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "url",
				Aliases:     []string{"u"},
				Usage:       "image URL to fetch and check (repeatable)",
				Destination: &cmd.urls,
			},
			&cli.BoolFlag{
				Name:        "drop",
				Usage:       "validate that files are images before uploading",
				Destination: &cmd.drop,
			},
			&cli.BoolFlag{
				Name:        "web",
				Usage:       "store the result for the results view instead of history",
				Destination: &cmd.web,
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

func (cmd *CheckCmd) run(ctx context.Context, c *cli.Command) error {
	if err := validateFormat(cmd.format); err != nil {
		return err
	}

	args := c.Args().Slice()
	if len(args) == 0 && len(cmd.urls) == 0 {
		return fmt.Errorf("no images given; pass a path, a glob or --url")
	}

	if cmd.web && len(cmd.urls) > 0 {
		return fmt.Errorf("--web cannot be combined with --url")
	}

	source := history.SourcePopup
	if cmd.web {
		source = history.SourceWeb
	}

	var results []CheckResult

	if len(args) > 0 {
		payloads, failed, err := cmd.loadPayloads(args)
		if err != nil {
			return err
		}
		results = append(results, failed...)
		results = append(results, cmd.checkPayloads(ctx, payloads, source)...)
	}

	for _, u := range cmd.urls {
		out, err := cmd.flags.Analyzer.AnalyzeURL(ctx, u)
		results = append(results, toCheckResult(u, out, err))
	}

	if len(args) == 0 {
		source = history.SourceContextMenu
	}

	if cmd.format == formatJSON {
		if err := writeJSON(c.Root().Writer, CheckOutput{Source: source, Results: results}); err != nil {
			return err
		}
		return exitOnFailure(results)
	}

	return cmd.outputText(ctx, c.Root().Writer, results)
}

// loadPayloads reads every argument. Files that cannot be read or fail drop validation
// are reported as failed results rather than aborting the whole run.
func (cmd *CheckCmd) loadPayloads(args []string) ([]upload.Payload, []CheckResult, error) {
	var (
		payloads []upload.Payload
		failed   []CheckResult
		paths    []string
	)

	for _, arg := range args {
		if arg != stdinArg {
			paths = append(paths, arg)
			continue
		}

		p, err := cmd.readStdin()
		if err != nil {
			return nil, nil, err
		}
		payloads = append(payloads, p)
	}

	if len(paths) > 0 {
		expanded, err := upload.Expand(paths)
		if err != nil {
			return nil, nil, err
		}

		load := upload.FromFile
		if cmd.drop {
			load = upload.FromDrop
		}

		for _, path := range expanded {
			p, err := load(path)
			if err != nil {
				failed = append(failed, CheckResult{Ref: path, Status: StatusFailed, Error: err.Error(), err: err})
				continue
			}
			payloads = append(payloads, p)
		}
	}

	return payloads, failed, nil
}

func (cmd *CheckCmd) readStdin() (upload.Payload, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return upload.Payload{}, fmt.Errorf("no input provided (stdin is a terminal); pipe image bytes or pass a path")
	}

	data, err := io.ReadAll(io.LimitReader(os.Stdin, cmd.flags.Config.API.MaxImageBytes+1))
	if err != nil {
		return upload.Payload{}, fmt.Errorf("read stdin: %w", err)
	}
	if int64(len(data)) > cmd.flags.Config.API.MaxImageBytes {
		return upload.Payload{}, fmt.Errorf("stdin exceeds limit of %d bytes", cmd.flags.Config.API.MaxImageBytes)
	}

	p := upload.NewPayload("stdin", stdinArg, data)
	if cmd.drop && !p.IsImage() {
		return upload.Payload{}, fmt.Errorf("stdin (%s): %w", p.MIME, upload.ErrNotImage)
	}
	return p, nil
}

// checkPayloads analyzes a single payload through the selection, several through a
// bounded batch.
func (cmd *CheckCmd) checkPayloads(ctx context.Context, payloads []upload.Payload, source history.Source) []CheckResult {
	switch len(payloads) {
	case 0:
		return nil
	case 1:
		analyzer := cmd.flags.Analyzer
		analyzer.Select(payloads[0])
		defer analyzer.Reset()

		out, err := analyzer.Analyze(ctx, source)
		return []CheckResult{toCheckResult(payloads[0].Ref, out, err)}
	}

	items := cmd.flags.Analyzer.CheckMany(ctx, payloads, source)

	results := make([]CheckResult, 0, len(items))
	for _, item := range items {
		results = append(results, toCheckResult(item.Payload.Ref, item.Outcome, item.Err))
	}
	return results
}

func toCheckResult(ref string, out deepguard.Outcome, err error) CheckResult {
	if err != nil {
		return CheckResult{Ref: ref, Status: StatusFailed, Error: err.Error(), err: err}
	}

	res := CheckResult{
		Ref:        ref,
		Status:     StatusOK,
		Class:      string(out.Result.Class),
		Label:      render.For(out.Result).Label,
		Confidence: out.Result.Confidence,
		result:     &out.Result,
	}
	if out.Entry != nil {
		res.ID = out.Entry.ID
	}
	return res
}

func (cmd *CheckCmd) outputText(ctx context.Context, out io.Writer, results []CheckResult) error {
	p := printer.Ctx(ctx)

	if len(results) == 1 {
		r := results[0]
		if r.Status == StatusFailed {
			if r.err != nil {
				return r.err
			}
			return errors.New(r.Error)
		}

		writeResult(out, *r.result, termWidth(os.Stdout))
		if r.ID != "" {
			p.Infof("saved as %s", r.ID)
		}
		if cmd.web {
			p.Infof("Run 'deepguard results' to view it")
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "IMAGE\tRESULT\tSTATUS")

	for _, r := range results {
		status := printer.StatusOK()
		result := r.Label + " " + render.FormatConfidence(r.Confidence)
		if r.Status == StatusFailed {
			status = printer.StatusFailed(r.Error)
			result = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Ref, result, status)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	ok, failed := countResults(results)
	p.Printf("")
	p.Printf("Summary: %d checked, %d failed", ok, failed)

	return exitOnFailure(results)
}

func countResults(results []CheckResult) (ok, failed int) {
	for _, r := range results {
		if r.Status == StatusFailed {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}

func exitOnFailure(results []CheckResult) error {
	if _, failed := countResults(results); failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}
