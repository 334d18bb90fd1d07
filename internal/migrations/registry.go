package migrations

import (
	"sort"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/schema"
)

// Migration moves a database from ToVersion-1 to ToVersion
type Migration struct {
	ToVersion schema.Version
	Steps     []Step
}

// Registry is the validated, version-sorted list of every known migration.
// It is immutable once built and safe for concurrent reads.
type Registry struct {
	migrations []Migration
	minVersion schema.Version
	maxVersion schema.Version
}

// NewRegistry sorts migrations by target version and builds a registry.
// Validation runs only when schema.ValidationEnabled is set.
func NewRegistry(migrations ...Migration) (*Registry, error) {
	if schema.ValidationEnabled {
		return NewRegistryStrict(migrations...)
	}

	return buildRegistry(migrations), nil
}

// NewRegistryStrict is NewRegistry with validation regardless of build flags
func NewRegistryStrict(migrations ...Migration) (*Registry, error) {
	for _, m := range migrations {
		if m.ToVersion < 2 {
			return nil, errors.NewValidationError(
				"invalid migration to version %d: minimum possible migration version is 2", m.ToVersion)
		}

		for i, step := range m.Steps {
			if step == nil {
				return nil, errors.NewValidationError(
					"invalid migration to version %d: step %d is nil", m.ToVersion, i)
			}

			if !IsKnownStep(step) {
				return nil, errors.NewValidationError(
					"invalid migration to version %d: unknown step %T (%s)", m.ToVersion, step, step.Kind())
			}
		}
	}

	reg := buildRegistry(migrations)

	for i := 1; i < len(reg.migrations); i++ {
		prev, cur := reg.migrations[i-1].ToVersion, reg.migrations[i].ToVersion
		if cur != prev+1 {
			return nil, errors.NewValidationError(
				"invalid migrations: migration to version %d follows migration to version %d; "+
					"versions must be contiguous with no gaps or duplicates", cur, prev)
		}
	}

	return reg, nil
}

func buildRegistry(migrations []Migration) *Registry {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ToVersion < sorted[j].ToVersion
	})

	reg := &Registry{
		migrations: sorted,
		minVersion: schema.BaselineVersion,
		maxVersion: schema.BaselineVersion,
	}

	if len(sorted) > 0 {
		reg.minVersion = sorted[0].ToVersion - 1
		reg.maxVersion = sorted[len(sorted)-1].ToVersion
	}

	return reg
}

// MinVersion is the oldest version the registry can migrate from. A nil
// registry behaves like an empty one.
func (r *Registry) MinVersion() schema.Version {
	if r == nil {
		return schema.BaselineVersion
	}

	return r.minVersion
}

// MaxVersion is the newest version the registry migrates to
func (r *Registry) MaxVersion() schema.Version {
	if r == nil {
		return schema.BaselineVersion
	}

	return r.maxVersion
}

// Migrations returns a copy of the sorted migrations
func (r *Registry) Migrations() []Migration {
	if r == nil {
		return nil
	}

	out := make([]Migration, len(r.migrations))
	copy(out, r.migrations)

	return out
}

// Len returns the number of migrations
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	return len(r.migrations)
}
