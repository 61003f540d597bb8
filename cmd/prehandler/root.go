package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/trevanbox/internal"
)

var version = "dev"

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "prehandler",
		Usage:   "Normalize note front matter and enrich it with AI titles, tags and summaries",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (.yaml or .toml)",
				Sources: cli.EnvVars("PREHANDLER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Vault root, overrides vault.path",
				Sources: cli.EnvVars("PREHANDLER_VAULT"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error; overrides app.log_level",
			},
		},
		Commands: []*cli.Command{
			statusCommand(),
			processCommand(),
			placeholderCommand("title", "Generate a title for one note"),
			placeholderCommand("tags", "Generate tags for one note"),
			placeholderCommand("summary", "Generate a summary for one note"),
			historyCommand(),
			watchCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg, err := internal.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if v := cmd.String("vault"); v != "" {
		cfg.Vault.Path = v
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openRuntime loads the config and wires the runtime. With lock set the
// vault lock is taken as well.
func openRuntime(cmd *cli.Command, lock bool) (*internal.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(cfg.App, os.Stderr)
	slog.SetDefault(logger)

	rt, err := internal.NewRuntime(cfg, logger)
	if err != nil {
		return nil, err
	}
	if lock {
		if err := rt.AcquireLock(); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
