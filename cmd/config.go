package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schemasync/internal/config"
	"github.com/kyleking/schemasync/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, environment variables, and command-line flags.`,
		Action: withApp(func(_ context.Context, a *app, _ *cli.Command) error {
			return RunConfigWithConfig(a.out, a.cfg)
		}),
	}
}

// RunConfigWithConfig prints cfg in a readable form
func RunConfigWithConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	fmt.Fprintln(w, "====================")
	fmt.Fprintln(w, "Active Configuration:")
	fmt.Fprintf(w, "  Config File: %s\n", config.ConfigPath())

	fmt.Fprintln(w, "\nDatabase:")
	fmt.Fprintf(w, "  Backend: %s\n", cfg.Database.Backend)
	fmt.Fprintf(w, "  Path: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "  Busy Timeout: %s\n", cfg.Database.BusyTimeout)
	fmt.Fprintf(w, "  Max Connections: %d\n", cfg.Database.MaxConnections)

	fmt.Fprintln(w, "\nMigrations:")
	fmt.Fprintf(w, "  Manifest: %s\n", cfg.Migrations.Manifest)

	fmt.Fprintln(w, "\nSync:")

	if cfg.Sync.MigrationsEnabledAtVersion > 0 {
		fmt.Fprintf(w, "  Migrations Enabled At Version: %d\n", cfg.Sync.MigrationsEnabledAtVersion)
	} else {
		fmt.Fprintln(w, "  Migrations Enabled At Version: disabled")
	}

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", cfg.Logging.File)
	}

	fmt.Fprintf(w, "  Add Source: %t\n", cfg.Logging.AddSource)

	fmt.Fprintln(w, "\nMetrics:")
	fmt.Fprintf(w, "  Enabled: %t\n", cfg.Metrics.Enabled)

	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "  Namespace: %s\n", cfg.Metrics.Namespace)
		fmt.Fprintf(w, "  Textfile: %s\n", cfg.Metrics.Textfile)
	}

	fmt.Fprintln(w, "\nDebug:")
	fmt.Fprintf(w, "  Enabled: %t\n", cfg.Debug.Enabled)
	fmt.Fprintf(w, "  Verbose: %t\n", cfg.Debug.Verbose)

	// Show raw JSON if debug is enabled
	if cfg.Debug.Enabled {
		fmt.Fprintln(w, "\nRaw Configuration (JSON):")
		fmt.Fprintln(w, "==========================")

		jsonData, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}

		fmt.Fprintln(w, string(jsonData))
	}

	return nil
}
