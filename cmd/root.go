package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schemasync/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the schemasync CLI with the process arguments
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Commands replace this once configuration is loaded
	logging.SetupFallbackLogger()

	return NewRootCommand().Run(ctx, os.Args)
}

// NewRootCommand builds the command tree
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "schemasync",
		Usage: "Inspect and apply schema migrations for local-first stores",
		Description: `schemasync reads a manifest describing the current app schema and the
migrations leading to it. It lists migration steps, renders the relational DDL,
computes the schema changes a sync must carry, and brings a local SQLite or
in-memory store up to the current schema version.`,
		Version: version + " (" + commit + ")",
		Writer:  os.Stdout,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ValidateCommand(),
			StepsCommand(),
			SQLCommand(),
			DiffCommand(),
			MigrateCommand(),
			SyncPlanCommand(),
			ConfigCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "manifest",
			Aliases: []string{"m"},
			Usage:   "path to the schema manifest (YAML)",
		},
		&cli.StringFlag{
			Name:  "db-path",
			Usage: "path to the SQLite database",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "storage backend: sqlite or memory",
		},
		&cli.IntFlag{
			Name:  "migrations-enabled-at",
			Usage: "schema version at which migration syncs were enabled",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"o"},
			Usage:   "output format: text or json",
			Value:   "text",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "metrics-textfile",
			Usage: "write Prometheus metrics to this file after the command",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug output",
		},
	}
}

// flagOverrides collects the config overrides given on the command line
func flagOverrides(cmd *cli.Command) map[string]interface{} {
	overrides := make(map[string]interface{})

	for _, name := range []string{"manifest", "db-path", "backend", "log-level", "metrics-textfile"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	if cmd.IsSet("migrations-enabled-at") {
		overrides["migrations-enabled-at"] = int(cmd.Int("migrations-enabled-at"))
	}

	for _, name := range []string{"verbose", "debug"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.Bool(name)
		}
	}

	return overrides
}
