package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/halcyon-id/halcyon/internal/commands"
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
	ctrl := &commands.Controller{
		Flags: &commands.Flags{},
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:    "halcyon",
		Usage:   `Policy tooling for the Halcyon identity server: validate, evaluate, and document authorization policy bundles.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to halcyon.json",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			log.Logger = log.Level(level)
			ctrl.Logger = log.Logger
			ctrl.Flags.ConfigPath = c.String("config")

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Load and validate a policy bundle",
				ArgsUsage: "[bundle.wasm]",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Check(ctx, c.Args().First())
				},
			},
			{
				Name:  "eval",
				Usage: "Evaluate a policy entrypoint against a JSON input document",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "bundle",
						Usage: "path to the policy bundle (defaults to the configured bundle)",
					},
					&cli.StringFlag{
						Name:     "entrypoint",
						Usage:    "logical entrypoint name, e.g. register",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "input",
						Usage:    "path to the JSON input document",
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					err := ctrl.Eval(ctx, c.String("bundle"), c.String("entrypoint"), c.String("input"))
					if errors.Is(err, commands.ErrPolicyDenied) {
						return cli.Exit(err.Error(), 2)
					}
					return err
				},
			},
			{
				Name:  "schema",
				Usage: "Export the input-shape schemas policy authors compile against",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "output",
						Usage: "output directory",
						Value: "./schemas",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Schema(ctx, c.String("output"))
				},
			},
		},
	}

	ctx := context.Background()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to run halcyon")
	}
}
