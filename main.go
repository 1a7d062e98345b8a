package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deepguard/internal/client"
	"github.com/hay-kot/deepguard/internal/commands"
	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/deepguard"
	"github.com/hay-kot/deepguard/internal/printer"
	"github.com/hay-kot/deepguard/internal/store/jsonfile"
	"github.com/hay-kot/deepguard/internal/store/redisstore"
	"github.com/hay-kot/deepguard/internal/upload"
	"github.com/hay-kot/deepguard/pkg/executil"
	"github.com/hay-kot/deepguard/pkg/utils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	if err := setupLogger("info", "", nil); err != nil {
		panic(err)
	}

	var (
		p     = printer.New(os.Stderr)
		ctx   = printer.NewContext(context.Background(), p)
		flags = &commands.Flags{}
	)

	var (
		deferredLogs *utils.DeferredWriter
		closers      []io.Closer
	)

	app := &cli.Command{
		Name:      "deepguard",
		Usage:     "Check images for deepfakes",
		UsageText: "deepguard [global options] command [command options]",
		Description: `DeepGuard sends images to a deepfake-detection API and shows whether they are
real or fake, with the model's confidence.

Run 'deepguard' with no arguments to open the interactive popup.
Run 'deepguard check <image>' to check images from the command line.
Run 'deepguard bridge' to serve the browser extension.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("DEEPGUARD_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("DEEPGUARD_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("DEEPGUARD_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("DEEPGUARD_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "api-url",
				Usage:       "detection API base address (overrides api.base_url)",
				Sources:     cli.EnvVars("DEEPGUARD_API_URL"),
				Destination: &flags.APIURL,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Detect TUI mode: no subcommand means TUI (default action)
			isTUI := len(c.Args().Slice()) == 0

			// In TUI mode, buffer logs to display after exit
			var deferred io.Writer
			if isTUI {
				deferredLogs = &utils.DeferredWriter{}
				deferred = deferredLogs
			}

			if err := setupLogger(flags.LogLevel, flags.LogFile, deferred); err != nil {
				return ctx, err
			}

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}

			if flags.APIURL != "" {
				cfg.API.BaseURL = flags.APIURL
				if err := cfg.Validate(); err != nil {
					return ctx, fmt.Errorf("invalid --api-url: %w", err)
				}
			}
			flags.Config = cfg

			historyStore, closer, err := openHistory(cfg)
			if err != nil {
				return ctx, err
			}
			if closer != nil {
				closers = append(closers, closer)
			}

			var (
				exec    = &executil.RealExecutor{Env: hookEnv(cfg)}
				logger  = log.With().Str("component", "deepguard").Logger()
				api     = client.New(cfg.API.BaseURL, cfg.API.Timeout, log.With().Str("component", "client").Logger())
				fetcher = upload.NewFetcher(cfg.API.Timeout, cfg.API.MaxImageBytes)
			)

			flags.History = historyStore
			flags.Executor = exec
			flags.Analyzer = deepguard.New(
				api,
				fetcher,
				historyStore,
				jsonfile.NewKVStore(cfg.StateFile()),
				jsonfile.NewKVStore(cfg.SessionFile()),
				cfg,
				exec,
				logger,
				os.Stdout,
				os.Stderr,
			)
			return ctx, nil
		},
	}

	tuiCmd := commands.NewTuiCmd(flags)

	app = commands.NewCheckCmd(flags).Register(app)
	app = commands.NewStatusCmd(flags).Register(app)
	app = commands.NewHistoryCmd(flags).Register(app)
	app = commands.NewLastCmd(flags).Register(app)
	app = commands.NewResultsCmd(flags).Register(app)
	app = commands.NewBridgeCmd(flags).Register(app)
	app = commands.NewHooksCmd(flags).Register(app)
	app = commands.NewDoctorCmd(flags).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	// Set TUI as default action when no subcommand is provided
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'deepguard --help' for usage", c.Args().First())
		}
		return tuiCmd.Run(ctx, c)
	}

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Println()
		printer.Ctx(ctx).FatalError(err)
		exitCode = 1
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("close store")
		}
	}

	// Flush deferred logs to console after TUI exits
	if deferredLogs != nil {
		if err := deferredLogs.Flush(zerolog.ConsoleWriter{Out: os.Stderr}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}

	os.Exit(exitCode)
}

// openHistory builds the configured history backend. The returned closer is nil for
// file storage.
func openHistory(cfg *config.Config) (history.Store, io.Closer, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		rdb, err := redisstore.Open(cfg.Storage.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open history: %w", err)
		}
		logger := log.With().Str("component", "history").Str("driver", config.DriverRedis).Logger()
		return redisstore.NewHistoryStore(rdb, cfg.Storage.RedisPrefix, logger), rdb, nil
	default:
		logger := log.With().Str("component", "history").Str("driver", config.DriverJSONFile).Logger()
		return jsonfile.NewHistoryStore(cfg.HistoryFile(), logger), nil, nil
	}
}

// hookEnv points deepguard invocations inside hook commands at the same API and data
// directory as the parent process.
func hookEnv(cfg *config.Config) []string {
	return []string{
		"DEEPGUARD_API_URL=" + cfg.API.BaseURL,
		"DEEPGUARD_DATA_DIR=" + cfg.DataDir,
	}
}

func setupLogger(level string, logFile string, deferred io.Writer) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		if deferred != nil {
			// popup mode with a log file: file plus the deferred buffer
			output = io.MultiWriter(file, deferred)
		} else {
			output = io.MultiWriter(
				zerolog.ConsoleWriter{Out: os.Stderr},
				file,
			)
		}
	} else if deferred != nil {
		output = deferred
	}

	log.Logger = log.Output(output).Level(parsedLevel)

	return nil
}
