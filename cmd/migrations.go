package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/formatter"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
	"github.com/kyleking/schemasync/internal/storage"
)

func fromFlag(usage string) *cli.IntFlag {
	return &cli.IntFlag{Name: "from", Usage: usage}
}

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:        "validate",
		Usage:       "Check the manifest and summarize its schema",
		Description: `Parse the manifest, validate the schema and every migration step, and print the resulting schema and migration list.`,
		Action: withApp(func(_ context.Context, a *app, _ *cli.Command) error {
			return runValidate(a)
		}),
	}
}

func runValidate(a *app) error {
	m, err := a.loadManifest()
	if err != nil {
		return err
	}

	out, err := formatter.NewFormatter().FormatManifest(m.Schema, m.Registry, a.format)
	if err != nil {
		return err
	}

	if a.format == formatter.FormatText {
		out += "\nManifest is valid"
	}

	return a.print(out)
}

func StepsCommand() *cli.Command {
	return &cli.Command{
		Name:        "steps",
		Usage:       "List the migration steps between two schema versions",
		Description: `Print the steps a store at --from must apply to reach --to (the manifest schema version by default).`,
		Flags: []cli.Flag{
			fromFlag("schema version the store is at"),
			&cli.IntFlag{Name: "to", Usage: "target schema version (default: manifest schema version)"},
			&cli.BoolFlag{Name: "sql", Usage: "include the relational DDL for each step"},
		},
		Action: withApp(func(_ context.Context, a *app, cmd *cli.Command) error {
			from, err := versionFlag(cmd, "from")
			if err != nil {
				return err
			}

			to, err := versionFlag(cmd, "to")
			if err != nil {
				return err
			}

			return runSteps(a, from, to, cmd.Bool("sql"))
		}),
	}
}

func runSteps(a *app, from, to schema.Version, withSQL bool) error {
	steps, err := selectSteps(a, from, to)
	if err != nil {
		return err
	}

	f := &formatter.Formatter{WithSQL: withSQL}

	out, err := f.FormatSteps(steps, a.format)
	if err != nil {
		return err
	}

	return a.print(out)
}

func selectSteps(a *app, from, to schema.Version) ([]migrations.Step, error) {
	m, err := a.loadManifest()
	if err != nil {
		return nil, err
	}

	if to == 0 {
		to = m.Schema.Version
	}

	if from == 0 {
		return nil, errors.NewConfigError("--from is required", "from")
	}

	steps, ok := migrations.StepsForMigration(m.Registry, from, to)
	if !ok {
		return nil, errors.NewRangeUnavailableError(int(from), int(to))
	}

	return steps, nil
}

func SQLCommand() *cli.Command {
	return &cli.Command{
		Name:  "sql",
		Usage: "Print the SQLite DDL for the schema or a migration",
		Description: `Without --from, print the statements that create the whole schema in an empty database.
With --from, print the statements that migrate a database from that version to the manifest schema version.`,
		Flags: []cli.Flag{
			fromFlag("print the migration from this schema version instead of the full schema"),
		},
		Action: withApp(func(_ context.Context, a *app, cmd *cli.Command) error {
			from, err := versionFlag(cmd, "from")
			if err != nil {
				return err
			}

			return runSQL(a, from)
		}),
	}
}

func runSQL(a *app, from schema.Version) error {
	m, err := a.loadManifest()
	if err != nil {
		return err
	}

	var sql string

	if from == 0 {
		sql = storage.EncodeSchema(m.Schema)
	} else {
		steps, err := selectSteps(a, from, m.Schema.Version)
		if err != nil {
			return err
		}

		sql, err = storage.EncodeMigrationSteps(steps)
		if err != nil {
			return err
		}
	}

	return a.print(splitStatements(sql))
}

// splitStatements puts each statement on its own line
func splitStatements(sql string) string {
	parts := strings.SplitAfter(sql, ";")
	lines := make([]string, 0, len(parts))

	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			lines = append(lines, part)
		}
	}

	return strings.Join(lines, "\n")
}

func DiffCommand() *cli.Command {
	return &cli.Command{
		Name:        "diff",
		Usage:       "Show the schema changes a sync from an older version must carry",
		Description: `Fold the migrations after --from into the net set of new tables and columns that a pull must request from the server.`,
		Flags: []cli.Flag{
			fromFlag("schema version of the last pull"),
		},
		Action: withApp(func(_ context.Context, a *app, cmd *cli.Command) error {
			from, err := versionFlag(cmd, "from")
			if err != nil {
				return err
			}

			return runDiff(a, from)
		}),
	}
}

func runDiff(a *app, from schema.Version) error {
	m, err := a.loadManifest()
	if err != nil {
		return err
	}

	if from == 0 {
		return errors.NewConfigError("--from is required", "from")
	}

	changes, err := migrations.SyncChanges(m.Registry, from, m.Schema.Version)
	if err != nil {
		return fmt.Errorf("failed to compute schema changes: %w", err)
	}

	out, err := formatter.NewFormatter().FormatChangeSet(changes, a.format)
	if err != nil {
		return err
	}

	return a.print(out)
}
