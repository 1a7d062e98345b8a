package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/deepguard/internal/bridge"
)

type BridgeCmd struct {
	flags *Flags
	addr  string
}

// NewBridgeCmd creates a new bridge command
func NewBridgeCmd(flags *Flags) *BridgeCmd {
	return &BridgeCmd{flags: flags}
}

// Register adds the bridge command to the application
func (cmd *BridgeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "bridge",
		Usage:     "Serve the extension messaging API on a local port",
		UsageText: "deepguard bridge [options]",
		Description: `Starts a local HTTP server that browser extensions and scripts talk to.

  POST /v1/messages   {"action":"analyzeImage","imageUrl":"..."}
                      {"action":"getLastResult"}
                      {"action":"clearHistory"}
  GET  /v1/events     websocket feed of every completed analysis
  GET  /v1/history    recent history (?limit=n, 0 for all)
  GET  /v1/status     model status

Only origins listed in bridge.allowed_origins may call it from a browser.
Messages are rate limited per client (bridge.rate_per_minute, bridge.burst).`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides bridge.addr)",
				Sources:     cli.EnvVars("DEEPGUARD_BRIDGE_ADDR"),
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *BridgeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config

	bridgeCfg := cfg.Bridge
	if cmd.addr != "" {
		bridgeCfg.Addr = cmd.addr
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.With().Str("component", "bridge").Logger()
	srv := bridge.New(cmd.flags.Analyzer, bridgeCfg, cfg.History.DisplayLimit, logger)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}
