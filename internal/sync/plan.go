// Package sync decides which schema changes a pull request must carry so that
// the server can send data for tables and columns the client has not seen.
package sync

import (
	"fmt"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// PlanInput holds everything PlanSync needs. Zero values mean absent: no
// previous pull, no persisted schema version, migration syncs disabled.
type PlanInput struct {
	SchemaVersion              schema.Version
	Registry                   *migrations.Registry
	LastPulledAt               int64
	LastPulledSchemaVersion    schema.Version
	MigrationsEnabledAtVersion schema.Version
}

// Plan is the outcome of planning one sync session
type Plan struct {
	SchemaVersion schema.Version        `json:"schemaVersion"`
	MigrateFrom   schema.Version        `json:"migrateFrom"`
	Migration     *migrations.ChangeSet `json:"migration"`
	// ShouldPersistSchemaVersion tells the caller to store SchemaVersion
	// once the session succeeds.
	ShouldPersistSchemaVersion bool `json:"shouldPersistSchemaVersion"`
	IsFirstSync                bool `json:"isFirstSync"`
	MigrationsEnabled          bool `json:"migrationsEnabled"`
}

// PlanSync computes the migration part of a pull request
func PlanSync(in PlanInput) (*Plan, error) {
	isFirstSync := in.LastPulledAt == 0
	enabled := in.MigrationsEnabledAtVersion != 0

	if enabled {
		if err := validateEnabled(in); err != nil {
			return nil, err
		}
	}

	migrateFrom := in.LastPulledSchemaVersion
	if migrateFrom == 0 {
		migrateFrom = in.MigrationsEnabledAtVersion
	}

	shouldMigrate := enabled && migrateFrom < in.SchemaVersion && !isFirstSync

	plan := &Plan{
		SchemaVersion:              in.SchemaVersion,
		MigrateFrom:                migrateFrom,
		ShouldPersistSchemaVersion: shouldMigrate || isFirstSync,
		IsFirstSync:                isFirstSync,
		MigrationsEnabled:          enabled,
	}

	if shouldMigrate {
		changes, err := migrations.SyncChanges(in.Registry, migrateFrom, in.SchemaVersion)
		if err != nil {
			return nil, err
		}

		plan.Migration = changes
	}

	return plan, nil
}

func validateEnabled(in PlanInput) error {
	at := in.MigrationsEnabledAtVersion

	switch {
	case at < 1:
		return errors.NewConfigError(
			fmt.Sprintf("invalid migrations enabled at version %d", at), "migrations_enabled_at_version")
	case at > in.SchemaVersion:
		return errors.NewConfigError(
			fmt.Sprintf("migrations enabled at version %d is greater than the current schema version %d",
				at, in.SchemaVersion), "migrations_enabled_at_version")
	case in.Registry == nil:
		return errors.NewConfigError(
			"migration syncs cannot be enabled without a migrations registry", "migrations_enabled_at_version")
	case at < in.Registry.MinVersion():
		return errors.NewConfigError(
			fmt.Sprintf("migrations enabled at version %d is too low, migrations start at version %d",
				at, in.Registry.MinVersion()), "migrations_enabled_at_version")
	case in.LastPulledSchemaVersion > in.SchemaVersion:
		return errors.NewConfigError(
			fmt.Sprintf("last pulled schema version %d is greater than the current schema version %d",
				in.LastPulledSchemaVersion, in.SchemaVersion), "last_pulled_schema_version")
	}

	return nil
}
