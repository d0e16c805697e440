package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/sweetpotato0/fiberkb/config"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

// globals are the root flags shared by every command.
type globals struct {
	envFile     string
	store       string
	seed        string
	noTelemetry bool
	traceStdout bool

	cfg config.Config
	out io.Writer
}

func run(ctx context.Context, args []string) error {
	g := &globals{out: os.Stdout}
	var shutdown func(context.Context) error

	app := &cli.Command{
		Name:    "fiberkb",
		Usage:   "Fiber knowledge base retrieval engine",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "Optional .env file loaded before the environment",
				Sources:     cli.EnvVars("FIBERKB_ENV_FILE"),
				Destination: &g.envFile,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "Storage backend (postgres|memory)",
				Value:       storePostgres,
				Sources:     cli.EnvVars("FIBERKB_STORE"),
				Destination: &g.store,
			},
			&cli.StringFlag{
				Name:        "seed",
				Usage:       "Workbook imported into the memory store at startup",
				Sources:     cli.EnvVars("FIBERKB_SEED_WORKBOOK"),
				Destination: &g.seed,
			},
			&cli.BoolFlag{
				Name:        "no-telemetry",
				Usage:       "Disable OpenTelemetry tracing",
				Sources:     cli.EnvVars("FIBERKB_NO_TELEMETRY"),
				Destination: &g.noTelemetry,
			},
			&cli.BoolFlag{
				Name:        "trace-stdout",
				Usage:       "Write spans to stderr when no OTLP endpoint is configured",
				Sources:     cli.EnvVars("FIBERKB_TRACE_STDOUT"),
				Destination: &g.traceStdout,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var envFiles []string
			if g.envFile != "" {
				envFiles = append(envFiles, g.envFile)
			}
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return ctx, fmt.Errorf("failed to load configuration: %w", err)
			}
			g.cfg = cfg
			logging.SetLogger(logging.New(cfg.LogFormat, cfg.LogLevel))

			shutdown, err = telemetry.Init(ctx, telemetry.Config{
				ServiceName:    "fiberkb",
				ServiceVersion: version,
				Disable:        g.noTelemetry,
				Stdout:         g.traceStdout,
			})
			if err != nil {
				return ctx, fmt.Errorf("failed to initialise telemetry: %w", err)
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if shutdown != nil {
				return shutdown(context.WithoutCancel(ctx))
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdMCP(g),
			cmdAsk(g),
			cmdSearch(g),
			cmdImport(g),
			cmdEmbedFibers(g),
			cmdDoc(g),
			cmdCacheClear(g),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Logger().Error("fiberkb failed", "error", err)
		return err
	}
	return nil
}
