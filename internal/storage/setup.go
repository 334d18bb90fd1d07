package storage

import (
	"context"
	"time"

	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/metrics"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// SetUpAction is what SetUp did with a store
type SetUpAction string

const (
	SetUpNone    SetUpAction = "none"
	SetUpCreate  SetUpAction = "create"
	SetUpReset   SetUpAction = "reset"
	SetUpMigrate SetUpAction = "migrate"
)

// SetUpResult reports the action SetUp took and the versions involved
type SetUpResult struct {
	Action      SetUpAction
	FromVersion schema.Version
	ToVersion   schema.Version
	Steps       int
}

// setUpPlan is the decision for one SetUp call
type setUpPlan struct {
	action  SetUpAction
	steps   []migrations.Step
	outcome string
	// warning is set when a store holding data is reset
	warning string
}

// planSetUp decides how a store at version stored reaches version current
func planSetUp(stored, current schema.Version, reg *migrations.Registry) setUpPlan {
	switch {
	case stored == current:
		return setUpPlan{action: SetUpNone}
	case stored == 0:
		return setUpPlan{action: SetUpCreate, outcome: metrics.OutcomeReset}
	case stored > current:
		return setUpPlan{
			action:  SetUpReset,
			outcome: metrics.OutcomeReset,
			warning: "Database has newer version than app schema, resetting database",
		}
	}

	steps, ok := migrations.StepsForMigration(reg, stored, current)
	if !ok {
		return setUpPlan{
			action:  SetUpReset,
			outcome: metrics.OutcomeUnavailable,
			warning: "Migrations not available for this version range, resetting database",
		}
	}

	return setUpPlan{action: SetUpMigrate, steps: steps, outcome: metrics.OutcomeSuccess}
}

// runSetUp is the set-up flow shared by every adapter
func runSetUp(ctx context.Context, a Adapter, opts Options, logger *logging.Logger) (SetUpResult, error) {
	start := time.Now()

	stored, err := a.StoredVersion(ctx)
	if err != nil {
		opts.Metrics.RecordMigration(a.Backend(), metrics.OutcomeFailure, time.Since(start))
		return SetUpResult{}, err
	}

	plan := planSetUp(stored, opts.Schema.Version, opts.Migrations)
	result := SetUpResult{
		Action:      plan.action,
		FromVersion: stored,
		ToVersion:   opts.Schema.Version,
		Steps:       len(plan.steps),
	}

	logger = logger.WithFields(map[string]interface{}{
		"stored_version": int(stored),
		"schema_version": int(opts.Schema.Version),
		"action":         string(plan.action),
	})

	switch plan.action {
	case SetUpNone:
		logger.Debug("Database schema is up to date")
		return result, nil
	case SetUpMigrate:
		logger.Infof("Migrating database with %d steps", len(plan.steps))
		err = a.Migrate(ctx, plan.steps)
	case SetUpCreate:
		logger.Info("Setting up empty database")
		err = a.UnsafeResetDatabase(ctx)
	case SetUpReset:
		logger.Warn(plan.warning)
		err = a.UnsafeResetDatabase(ctx)
	}

	if err != nil {
		opts.Metrics.RecordMigration(a.Backend(), metrics.OutcomeFailure, time.Since(start))
		logger.ErrorWithErr("Database set-up failed", err)

		return SetUpResult{}, err
	}

	opts.Metrics.RecordMigration(a.Backend(), plan.outcome, time.Since(start))

	return result, nil
}
