package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config command and its validate and show subcommands.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate configuration file",
				UsageText: "deepguard config validate [options]",
				Description: `Checks the API address, history caps, storage driver, bridge settings and hook
templates. Exits 1 when the configuration has errors; warnings do not fail.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       formatText,
						Destination: &cmd.format,
					},
				},
				Action: cmd.runValidate,
			},
			{
				Name:        "show",
				Usage:       "Print the effective configuration",
				UsageText:   "deepguard config show",
				Description: "Prints the configuration after defaults, the config file and --api-url are applied, as YAML.",
				Action:      cmd.runShow,
			},
		},
	})

	return app
}

// validationReport is the JSON output of config validate.
type validationReport struct {
	Valid    bool                       `json:"valid"`
	Errors   []fieldErrorJSON           `json:"errors,omitempty"`
	Warnings []config.ValidationWarning `json:"warnings,omitempty"`
}

type fieldErrorJSON struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (cmd *ConfigValidateCmd) runValidate(ctx context.Context, c *cli.Command) error {
	if err := validateFormat(cmd.format); err != nil {
		return err
	}

	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	report := buildReport(
		cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath),
		cmd.flags.Config.Warnings(),
	)

	if cmd.format == formatJSON {
		if err := writeJSON(c.Root().Writer, report); err != nil {
			return err
		}
	} else {
		writeReport(printer.Ctx(ctx), report)
	}

	if !report.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *ConfigValidateCmd) runShow(_ context.Context, c *cli.Command) error {
	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}
	return writeYAML(c.Root().Writer, cmd.flags.Config)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func buildReport(validationErr error, warnings []config.ValidationWarning) validationReport {
	report := validationReport{
		Valid:    validationErr == nil,
		Warnings: warnings,
	}

	for _, fe := range extractFieldErrors(validationErr) {
		report.Errors = append(report.Errors, fieldErrorJSON{Field: fe.Field, Message: fe.Err.Error()})
	}

	return report
}

// extractFieldErrors extracts field errors from a validation error.
func extractFieldErrors(err error) criterio.FieldErrors {
	if err == nil {
		return nil
	}
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}

func writeReport(p *printer.Printer, report validationReport) {
	if len(report.Errors) > 0 {
		p.Section("Errors")
		for _, fe := range report.Errors {
			p.FailItem(fe.Field, fe.Message)
		}
		p.Printf("")
	}

	if len(report.Warnings) > 0 {
		p.Section("Warnings")
		for _, warn := range report.Warnings {
			msg := warn.Message
			if warn.Item != "" {
				msg = warn.Item + ": " + msg
			}
			p.WarnItem(warn.Category, msg)
		}
		p.Printf("")
	}

	switch {
	case !report.Valid:
		p.Errorf("%d error(s), %d warning(s)", len(report.Errors), len(report.Warnings))
	case len(report.Warnings) > 0:
		p.Successf("Configuration is valid (%d warning(s))", len(report.Warnings))
	default:
		p.Successf("Configuration is valid")
	}
}
