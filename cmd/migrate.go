package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/schemasync/internal/formatter"
	"github.com/kyleking/schemasync/internal/storage"
)

// MigrateResult describes what a migrate run did to the store
type MigrateResult struct {
	Backend     string              `json:"backend"`
	Action      storage.SetUpAction `json:"action"`
	FromVersion int                 `json:"fromVersion"`
	ToVersion   int                 `json:"toVersion"`
	Steps       int                 `json:"steps"`
}

func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Bring the configured store up to the manifest schema version",
		Description: `Open the configured store and set it up: migrate it when the required steps are
available, and reset it to an empty database of the current schema otherwise.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "reset", Usage: "drop all data and recreate the schema"},
		},
		Action: withApp(func(ctx context.Context, a *app, cmd *cli.Command) error {
			adapter, err := a.openAdapter()
			if err != nil {
				return err
			}
			defer adapter.Close()

			return runMigrate(ctx, a, adapter, cmd.Bool("reset"))
		}),
	}
}

func runMigrate(ctx context.Context, a *app, adapter storage.Adapter, reset bool) error {
	m, err := a.loadManifest()
	if err != nil {
		return err
	}

	before, err := adapter.StoredVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored schema version: %w", err)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(" Setting up %s store...", adapter.Backend())
	s.Start()

	var setUp storage.SetUpResult

	if reset {
		err = adapter.UnsafeResetDatabase(ctx)
		setUp = storage.SetUpResult{Action: storage.SetUpReset, FromVersion: before, ToVersion: m.Schema.Version}
	} else {
		setUp, err = adapter.SetUp(ctx)
	}

	s.Stop()

	if err != nil {
		return fmt.Errorf("failed to set up %s store: %w", adapter.Backend(), err)
	}

	result := MigrateResult{
		Backend:     adapter.Backend(),
		Action:      setUp.Action,
		FromVersion: int(setUp.FromVersion),
		ToVersion:   int(setUp.ToVersion),
		Steps:       setUp.Steps,
	}

	if a.format == formatter.FormatJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}

		return a.print(string(data))
	}

	return a.print(formatMigrateResult(result))
}

func formatMigrateResult(r MigrateResult) string {
	switch r.Action {
	case storage.SetUpNone:
		return fmt.Sprintf("%s store is up to date at version %d", r.Backend, r.ToVersion)
	case storage.SetUpCreate:
		return fmt.Sprintf("Created %s store at version %d", r.Backend, r.ToVersion)
	case storage.SetUpReset:
		return fmt.Sprintf("Reset %s store from version %d to version %d", r.Backend, r.FromVersion, r.ToVersion)
	default:
		return fmt.Sprintf("Migrated %s store from version %d to version %d (%d steps)",
			r.Backend, r.FromVersion, r.ToVersion, r.Steps)
	}
}
