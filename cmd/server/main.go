package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/GriffinCanCode/spanwire/internal/infrastructure/config"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/server"
)

// Build information, set with -ldflags "-X main.Version=...".
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Usage:   "traced HTTP service",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "server port (overrides PORT)"},
			&cli.StringFlag{Name: "host", Usage: "listen host (overrides HOST)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides LOG_LEVEL)"},
			&cli.BoolFlag{Name: "dev", Usage: "development mode: console logs, gin debug mode"},
			&cli.StringFlag{Name: "service-name", Usage: "service name reported on spans (overrides SERVICE_NAME)"},
			&cli.Float64Flag{Name: "sample-ratio", Usage: "fraction of root traces sampled (overrides TRACE_SAMPLE_RATIO)"},
			&cli.BoolFlag{Name: "log-spans", Usage: "log every finished span (overrides TRACE_LOG_SPANS)"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// loadConfig reads the environment, then applies flags that were set.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.String("port")
	}
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("log-level") {
		cfg.Logging.Level = cmd.String("log-level")
	}
	if cmd.IsSet("dev") {
		cfg.Logging.Development = cmd.Bool("dev")
	}
	if cmd.IsSet("service-name") {
		cfg.Tracing.ServiceName = cmd.String("service-name")
	}
	if cmd.IsSet("sample-ratio") {
		cfg.Tracing.SampleRatio = cmd.Float64("sample-ratio")
	}
	if cmd.IsSet("log-spans") {
		cfg.Tracing.LogSpans = cmd.Bool("log-spans")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
