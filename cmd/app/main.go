// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/allisson/authgate/cmd/app/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "authgate",
		Usage:   "Authorization gateway for data plane capability tokens",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the HTTP server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunMigrations()
				},
			},
			{
				Name:  "sign-token",
				Usage: "Sign a capability token with a registered issuer's primary key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "issuer",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "Registered issuer id to sign on behalf of",
					},
					&cli.StringFlag{
						Name:     "subject",
						Aliases:  []string{"s"},
						Required: true,
						Usage:    "Token subject in the form <task_type>/<task_shard>",
					},
					&cli.StringFlag{
						Name:     "capability",
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "Pipe-joined capability names (e.g., AUTHORIZE|READ)",
					},
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Required: true,
						Usage:    "Target resource name for the token selector",
					},
					&cli.DurationFlag{
						Name:    "ttl",
						Aliases: []string{"t"},
						Value:   time.Hour,
						Usage:   "Token lifetime",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunSignToken(
						ctx,
						commands.DefaultIO(),
						cmd.String("issuer"),
						cmd.String("subject"),
						cmd.String("capability"),
						cmd.String("name"),
						cmd.Duration("ttl"),
					)
				},
			},
			{
				Name:  "verify-registry",
				Usage: "Load and validate the issuer registry, printing a summary",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunVerifyRegistry(ctx, commands.DefaultIO())
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
