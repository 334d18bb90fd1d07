package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schemasync/internal/formatter"
	"github.com/kyleking/schemasync/internal/schema"
	"github.com/kyleking/schemasync/internal/storage"
	"github.com/kyleking/schemasync/internal/sync"
)

func SyncPlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-plan",
		Usage: "Show the migration part of the next pull request",
		Description: `Read the sync bookkeeping kept in the configured store and print what the next pull
would send: the schema version, the version to migrate from and the new tables and columns.

With --pulled-at, record a finished pull at that server timestamp, as a sync session would.`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pulled-at", Usage: "record a finished pull at this server timestamp (ms)"},
		},
		Action: withApp(func(ctx context.Context, a *app, cmd *cli.Command) error {
			adapter, err := a.openAdapter()
			if err != nil {
				return err
			}
			defer adapter.Close()

			if _, err := adapter.SetUp(ctx); err != nil {
				return fmt.Errorf("failed to set up %s store: %w", adapter.Backend(), err)
			}

			return runSyncPlan(ctx, a, adapter, int64(cmd.Int("pulled-at")))
		}),
	}
}

func newCoordinator(a *app, store sync.LocalStorage) (*sync.Coordinator, error) {
	m, err := a.loadManifest()
	if err != nil {
		return nil, err
	}

	return sync.NewCoordinator(store, sync.Options{
		SchemaVersion:              m.Schema.Version,
		Migrations:                 m.Registry,
		MigrationsEnabledAtVersion: schema.Version(a.cfg.Sync.MigrationsEnabledAtVersion),
		Logger:                     a.logger,
		Metrics:                    a.metrics,
	}), nil
}

func runSyncPlan(ctx context.Context, a *app, adapter storage.Adapter, pulledAt int64) error {
	coordinator, err := newCoordinator(a, adapter)
	if err != nil {
		return err
	}

	var plan *sync.Plan

	if pulledAt > 0 {
		plan, err = coordinator.Synchronize(ctx, func(_ context.Context, req sync.PullRequest) (sync.PullResponse, error) {
			a.logger.WithFields(map[string]interface{}{
				"schema_version": int(req.SchemaVersion),
				"migration":      req.Migration != nil,
			}).Debug("Recording pull")

			return sync.PullResponse{Timestamp: pulledAt}, nil
		})
	} else {
		var lastPulledAt int64

		lastPulledAt, _, err = coordinator.GetLastPulledAt(ctx)
		if err != nil {
			return err
		}

		plan, err = coordinator.Plan(ctx, lastPulledAt)
	}

	if err != nil {
		return fmt.Errorf("failed to plan sync: %w", err)
	}

	out, err := formatter.NewFormatter().FormatPlan(plan, a.format)
	if err != nil {
		return err
	}

	if pulledAt > 0 && a.format == formatter.FormatText {
		out += fmt.Sprintf("\nRecorded pull at %d", pulledAt)
	}

	return a.print(out)
}
