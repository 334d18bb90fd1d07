// Package manifest reads the declarative migration language: a YAML document
// holding the current app schema and the migrations that lead to it.
package manifest

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// ColumnConfig is a column as written in a manifest
type ColumnConfig struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Indexed  bool   `json:"indexed,omitempty" yaml:"indexed,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// TableConfig is a table as written in a manifest
type TableConfig struct {
	Name    string         `json:"name" yaml:"name"`
	Columns []ColumnConfig `json:"columns" yaml:"columns"`
}

// SchemaConfig is the current app schema
type SchemaConfig struct {
	Version int           `json:"version" yaml:"version"`
	Tables  []TableConfig `json:"tables" yaml:"tables"`
}

// StepConfig is one migration step. Type selects which of the other fields
// are read.
type StepConfig struct {
	Type         string         `json:"type" yaml:"type"`
	Table        string         `json:"table,omitempty" yaml:"table,omitempty"`
	Columns      []ColumnConfig `json:"columns,omitempty" yaml:"columns,omitempty"`
	Column       string         `json:"column,omitempty" yaml:"column,omitempty"`
	From         string         `json:"from,omitempty" yaml:"from,omitempty"`
	To           string         `json:"to,omitempty" yaml:"to,omitempty"`
	DefaultValue interface{}    `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	SQL          string         `json:"sql,omitempty" yaml:"sql,omitempty"`
}

// MigrationConfig is one migration
type MigrationConfig struct {
	ToVersion int          `json:"toVersion" yaml:"toVersion"`
	Steps     []StepConfig `json:"steps" yaml:"steps"`
}

// Config is the raw manifest document
type Config struct {
	Schema     SchemaConfig      `json:"schema" yaml:"schema"`
	Migrations []MigrationConfig `json:"migrations,omitempty" yaml:"migrations,omitempty"`
}

// Manifest is a decoded and validated manifest
type Manifest struct {
	Schema schema.AppSchema
	// Registry is nil when the manifest declares no migrations
	Registry *migrations.Registry
}

// LoadFromFile reads and builds a manifest from a YAML file
func LoadFromFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to read manifest %s", path)
	}

	return Parse(data)
}

// Parse decodes YAML and builds the schema and registry. Unknown fields are
// rejected so that typos do not silently drop a step's payload.
func Parse(data []byte) (*Manifest, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeValidation, "failed to parse manifest")
	}

	return Build(cfg)
}

// Build converts a raw manifest document into a schema and registry. When
// migrations are present the newest one must target the schema version.
func Build(cfg Config) (*Manifest, error) {
	tables := make([]schema.TableSpec, 0, len(cfg.Schema.Tables))

	for _, t := range cfg.Schema.Tables {
		table, err := schema.NewTableSpec(t.Name, columnSpecs(t.Columns)...)
		if err != nil {
			return nil, err
		}

		tables = append(tables, table)
	}

	appSchema, err := schema.NewAppSchema(schema.Version(cfg.Schema.Version), tables...)
	if err != nil {
		return nil, err
	}

	list := make([]migrations.Migration, 0, len(cfg.Migrations))

	for _, m := range cfg.Migrations {
		steps := make([]migrations.Step, 0, len(m.Steps))

		for i, sc := range m.Steps {
			step, err := buildStep(sc)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrTypeValidation,
					"invalid step %d of migration to version %d", i, m.ToVersion)
			}

			steps = append(steps, step)
		}

		list = append(list, migrations.Migration{ToVersion: schema.Version(m.ToVersion), Steps: steps})
	}

	if len(list) == 0 {
		return &Manifest{Schema: appSchema}, nil
	}

	reg, err := migrations.NewRegistryStrict(list...)
	if err != nil {
		return nil, err
	}

	if reg.MaxVersion() != appSchema.Version {
		return nil, errors.NewValidationError(
			"newest migration targets version %d but the schema is at version %d",
			reg.MaxVersion(), appSchema.Version)
	}

	return &Manifest{Schema: appSchema, Registry: reg}, nil
}

func buildStep(sc StepConfig) (migrations.Step, error) {
	switch migrations.Kind(sc.Type) {
	case migrations.KindCreateTable:
		return migrations.NewCreateTable(sc.Table, columnSpecs(sc.Columns)...)
	case migrations.KindAddColumns:
		return migrations.NewAddColumns(sc.Table, columnSpecs(sc.Columns)...)
	case migrations.KindDestroyColumn:
		return migrations.NewDestroyColumn(sc.Table, sc.Column)
	case migrations.KindRenameColumn:
		return migrations.NewRenameColumn(sc.Table, sc.From, sc.To)
	case migrations.KindDestroyTable:
		return migrations.NewDestroyTable(sc.Table)
	case migrations.KindMakeColumnOptional:
		return migrations.NewMakeColumnOptional(sc.Table, sc.Column)
	case migrations.KindMakeColumnRequired:
		return migrations.NewMakeColumnRequired(sc.Table, sc.Column, sc.DefaultValue)
	case migrations.KindAddColumnIndex:
		return migrations.NewAddColumnIndex(sc.Table, sc.Column)
	case migrations.KindRemoveColumnIndex:
		return migrations.NewRemoveColumnIndex(sc.Table, sc.Column)
	case migrations.KindSQL:
		return migrations.UnsafeExecuteSQL(sc.SQL)
	default:
		return nil, errors.NewValidationError("unknown migration step type %q", sc.Type)
	}
}

func columnSpecs(cols []ColumnConfig) []schema.ColumnSpec {
	specs := make([]schema.ColumnSpec, 0, len(cols))
	for _, c := range cols {
		specs = append(specs, schema.ColumnSpec{
			Name:       c.Name,
			Type:       schema.ColumnType(c.Type),
			IsIndexed:  c.Indexed,
			IsOptional: c.Optional,
		})
	}

	return specs
}
