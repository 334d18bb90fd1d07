package migrations

import (
	"github.com/kyleking/schemasync/internal/schema"
)

// StepsForMigration returns the steps of every migration with a target in
// (from, to], in ascending order. ok is false when the range is not covered by
// the registry; callers should then reset local storage instead of migrating.
func StepsForMigration(reg *Registry, from, to schema.Version) (steps []Step, ok bool) {
	if reg == nil || from < reg.minVersion || to > reg.maxVersion {
		return nil, false
	}

	steps = []Step{}

	for _, m := range reg.migrations {
		if m.ToVersion > from && m.ToVersion <= to {
			steps = append(steps, m.Steps...)
		}
	}

	return steps, true
}
