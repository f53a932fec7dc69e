package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/auth"
	"github.com/starford/ansuz/internal/models"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func parseTier(s string) (models.Tier, error) {
	tier := models.Tier(s)
	if !tier.Valid() {
		return "", fmt.Errorf("unknown tier %q (want %s or %s)", s, models.TierMetered, models.TierUnmetered)
	}
	return tier, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tier, err := parseTier(cmd.String("tier"))
	if err != nil {
		return err
	}

	// stdout carries the protocol.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))

	acct := models.Account{UserID: cmd.String("user"), Tier: tier}
	if err := internal.RunMCP(ctx, acct, internal.WithConfig(cfg), internal.WithLogger(logger)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func issueToken(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Auth.AuthEnabled() {
		return fmt.Errorf("auth mode is %q; tokens are only checked in %q mode", cfg.Auth.Mode, internal.AuthModeJWT)
	}
	tier, err := parseTier(cmd.String("tier"))
	if err != nil {
		return err
	}

	verifier := auth.NewJWTVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
	token, err := verifier.Issue(models.Account{UserID: cmd.String("user"), Tier: tier}, cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, token)
	return err
}

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User id the command acts as",
		Required: true,
	}
}

func tierFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "tier",
		Usage: "Quota tier: metered or unmetered",
		Value: string(models.TierMetered),
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "ansuz",
		Usage:  "Voice capture service that turns short recordings into tasks, interactions and journal entries",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: run,
			},
			{
				Name:   "mcp",
				Usage:  "Serve one user's journal and usage as MCP tools over stdio",
				Flags:  []cli.Flag{userFlag(), tierFlag()},
				Action: runMCP,
			},
			{
				Name:  "token",
				Usage: "Issue a bearer token for local testing",
				Flags: []cli.Flag{
					userFlag(),
					tierFlag(),
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: 24 * time.Hour,
					},
				},
				Action: issueToken,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
