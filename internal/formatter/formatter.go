package formatter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
	"github.com/kyleking/schemasync/internal/storage"
	"github.com/kyleking/schemasync/internal/sync"
)

// OutputFormat represents the different output formats
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(value)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text or json)", value)
	}
}

// Formatter handles output formatting for schemas, migrations and sync plans
type Formatter struct {
	// WithSQL adds the relational DDL to each rendered step
	WithSQL bool
}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{}
}

// StepView is the rendered form of one migration step
type StepView struct {
	Kind        string `json:"kind"`
	Table       string `json:"table,omitempty"`
	Description string `json:"description"`
	SQL         string `json:"sql,omitempty"`
}

// MigrationView is the rendered form of one migration
type MigrationView struct {
	ToVersion schema.Version `json:"toVersion"`
	Steps     []StepView     `json:"steps"`
}

// RegistryView is the rendered form of a registry
type RegistryView struct {
	MinVersion schema.Version  `json:"minVersion"`
	MaxVersion schema.Version  `json:"maxVersion"`
	Migrations []MigrationView `json:"migrations"`
}

// FormatSchema renders the tables and columns of an app schema
func (f *Formatter) FormatSchema(s schema.AppSchema, format OutputFormat) (string, error) {
	if format == FormatJSON {
		return marshal(s)
	}

	lines := []string{"Schema version: " + strconv.Itoa(int(s.Version))}

	if len(s.Tables) == 0 {
		lines = append(lines, "Tables: -")
		return strings.Join(lines, "\n"), nil
	}

	lines = append(lines, fmt.Sprintf("Tables: %d", len(s.Tables)))

	for _, table := range s.Tables {
		lines = append(lines, fmt.Sprintf("  %s: %s", table.Name, f.formatColumns(table.Columns)))
	}

	return strings.Join(lines, "\n"), nil
}

// FormatRegistry renders every migration in the registry
func (f *Formatter) FormatRegistry(reg *migrations.Registry, format OutputFormat) (string, error) {
	view, err := f.registryView(reg)
	if err != nil {
		return "", err
	}

	if format == FormatJSON {
		return marshal(view)
	}

	if len(view.Migrations) == 0 {
		return "Migrations: -", nil
	}

	lines := []string{
		fmt.Sprintf("Versions: %d-%d", view.MinVersion, view.MaxVersion),
		fmt.Sprintf("Migrations: %d", len(view.Migrations)),
	}

	for _, m := range view.Migrations {
		lines = append(lines, fmt.Sprintf("v%d (%d steps)", m.ToVersion, len(m.Steps)))
		lines = append(lines, f.formatStepLines(m.Steps, "  ")...)
	}

	return strings.Join(lines, "\n"), nil
}

// FormatManifest renders a schema together with the registry leading to it
func (f *Formatter) FormatManifest(s schema.AppSchema, reg *migrations.Registry, format OutputFormat) (string, error) {
	if format == FormatJSON {
		view, err := f.registryView(reg)
		if err != nil {
			return "", err
		}

		return marshal(map[string]interface{}{"schema": s, "registry": view})
	}

	schemaOut, err := f.FormatSchema(s, format)
	if err != nil {
		return "", err
	}

	registryOut, err := f.FormatRegistry(reg, format)
	if err != nil {
		return "", err
	}

	return schemaOut + "\n" + registryOut, nil
}

// FormatSteps renders a list of steps, as returned by the step range selector
func (f *Formatter) FormatSteps(steps []migrations.Step, format OutputFormat) (string, error) {
	views, err := f.stepViews(steps)
	if err != nil {
		return "", err
	}

	if format == FormatJSON {
		return marshal(views)
	}

	if len(views) == 0 {
		return "Steps: -", nil
	}

	lines := []string{fmt.Sprintf("Steps: %d", len(views))}
	lines = append(lines, f.formatStepLines(views, "")...)

	return strings.Join(lines, "\n"), nil
}

// FormatChangeSet renders a sync change set. A nil change set means there is
// nothing new.
func (f *Formatter) FormatChangeSet(changes *migrations.ChangeSet, format OutputFormat) (string, error) {
	if format == FormatJSON {
		return marshal(changes)
	}

	if changes == nil {
		return "No schema changes", nil
	}

	lines := []string{
		"From version: " + strconv.Itoa(int(changes.From)),
		"New tables: " + orDash(strings.Join(changes.Tables, ", ")),
		"New columns: " + f.formatTableColumns(changes.Columns),
	}

	return strings.Join(lines, "\n"), nil
}

// FormatPlan renders a sync plan
func (f *Formatter) FormatPlan(plan *sync.Plan, format OutputFormat) (string, error) {
	if format == FormatJSON {
		return marshal(plan)
	}

	migrateFrom := "-"
	if plan.MigrationsEnabled {
		migrateFrom = strconv.Itoa(int(plan.MigrateFrom))
	}

	lines := []string{
		"Schema version: " + strconv.Itoa(int(plan.SchemaVersion)),
		"First sync: " + yesNo(plan.IsFirstSync),
		"Migration syncs: " + enabled(plan.MigrationsEnabled),
		"Migrate from: " + migrateFrom,
		"Persist schema version: " + yesNo(plan.ShouldPersistSchemaVersion),
	}

	if plan.Migration == nil {
		lines = append(lines, "Migration: -")
		return strings.Join(lines, "\n"), nil
	}

	lines = append(lines,
		"Migration:",
		"  New tables: "+orDash(strings.Join(plan.Migration.Tables, ", ")),
		"  New columns: "+f.formatTableColumns(plan.Migration.Columns),
	)

	return strings.Join(lines, "\n"), nil
}

func (f *Formatter) registryView(reg *migrations.Registry) (RegistryView, error) {
	view := RegistryView{Migrations: []MigrationView{}}
	if reg == nil {
		return view, nil
	}

	view.MinVersion = reg.MinVersion()
	view.MaxVersion = reg.MaxVersion()

	for _, m := range reg.Migrations() {
		steps, err := f.stepViews(m.Steps)
		if err != nil {
			return RegistryView{}, fmt.Errorf("migration to version %d: %w", m.ToVersion, err)
		}

		view.Migrations = append(view.Migrations, MigrationView{ToVersion: m.ToVersion, Steps: steps})
	}

	return view, nil
}

func (f *Formatter) stepViews(steps []migrations.Step) ([]StepView, error) {
	views := make([]StepView, 0, len(steps))

	for _, step := range steps {
		table, description := describeStep(step)
		view := StepView{Kind: migrations.KindOf(step), Table: table, Description: description}

		if f.WithSQL {
			sql, err := storage.EncodeStep(step)
			if err != nil {
				return nil, err
			}

			view.SQL = strings.TrimSpace(sql)
		}

		views = append(views, view)
	}

	return views, nil
}

func (f *Formatter) formatStepLines(steps []StepView, indent string) []string {
	lines := make([]string, 0, len(steps))

	for i, step := range steps {
		lines = append(lines, fmt.Sprintf("%s%d. %s %s", indent, i+1, step.Kind, step.Description))

		if step.SQL != "" {
			for _, sql := range strings.Split(step.SQL, "\n") {
				lines = append(lines, indent+"   "+sql)
			}
		}
	}

	return lines
}

func (f *Formatter) formatColumns(columns []schema.ColumnSpec) string {
	if len(columns) == 0 {
		return "-"
	}

	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, describeColumn(column))
	}

	return strings.Join(parts, ", ")
}

func (f *Formatter) formatTableColumns(columns []migrations.TableColumns) string {
	if len(columns) == 0 {
		return "-"
	}

	parts := make([]string, 0, len(columns))
	for _, tc := range columns {
		parts = append(parts, fmt.Sprintf("%s (%s)", tc.Table, strings.Join(tc.Columns, ", ")))
	}

	return strings.Join(parts, "; ")
}

// describeStep returns the table a step touches and a one-line summary
func describeStep(step migrations.Step) (string, string) {
	switch s := step.(type) {
	case migrations.CreateTable:
		return s.Schema.Name, fmt.Sprintf("%s (%s)", s.Schema.Name, columnNames(s.Schema.Columns))
	case migrations.AddColumns:
		return s.Table, fmt.Sprintf("%s (%s)", s.Table, columnNames(s.Columns))
	case migrations.DestroyColumn:
		return s.Table, s.Table + "." + s.Column
	case migrations.RenameColumn:
		return s.Table, fmt.Sprintf("%s.%s -> %s", s.Table, s.From, s.To)
	case migrations.DestroyTable:
		return s.Table, s.Table
	case migrations.MakeColumnOptional:
		return s.Table, s.Table + "." + s.Column
	case migrations.MakeColumnRequired:
		return s.Table, fmt.Sprintf("%s.%s default %s", s.Table, s.Column, storage.EncodeValue(s.DefaultValue))
	case migrations.AddColumnIndex:
		return s.Table, s.Table + "." + s.Column
	case migrations.RemoveColumnIndex:
		return s.Table, s.Table + "." + s.Column
	case migrations.RawSQL:
		return "", truncate(strings.Join(strings.Fields(s.SQL), " "), 60)
	default:
		return "", "-"
	}
}

func describeColumn(column schema.ColumnSpec) string {
	attrs := []string{string(column.Type)}
	if column.IsOptional {
		attrs = append(attrs, "optional")
	}

	if column.IsIndexed {
		attrs = append(attrs, "indexed")
	}

	return fmt.Sprintf("%s (%s)", column.Name, strings.Join(attrs, ", "))
}

func columnNames(columns []schema.ColumnSpec) string {
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, column.Name)
	}

	return orDash(strings.Join(names, ", "))
}

func marshal(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode output: %w", err)
	}

	return string(data), nil
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit-3] + "..."
	}

	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}

	return "disabled"
}
