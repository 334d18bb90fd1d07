package testutil

import (
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// ColumnOption is a functional option for configuring test columns
type ColumnOption func(*schema.ColumnSpec)

// Optional marks the column as nullable
func Optional() ColumnOption {
	return func(c *schema.ColumnSpec) {
		c.IsOptional = true
	}
}

// Indexed marks the column as indexed
func Indexed() ColumnOption {
	return func(c *schema.ColumnSpec) {
		c.IsIndexed = true
	}
}

// NewTestColumn creates a column of the given type
func NewTestColumn(name string, columnType schema.ColumnType, opts ...ColumnOption) schema.ColumnSpec {
	column := schema.ColumnSpec{Name: name, Type: columnType}

	for _, opt := range opts {
		opt(&column)
	}

	return column
}

// StringColumn creates a string column
func StringColumn(name string, opts ...ColumnOption) schema.ColumnSpec {
	return NewTestColumn(name, schema.TypeString, opts...)
}

// NumberColumn creates a number column
func NumberColumn(name string, opts ...ColumnOption) schema.ColumnSpec {
	return NewTestColumn(name, schema.TypeNumber, opts...)
}

// BooleanColumn creates a boolean column
func BooleanColumn(name string, opts ...ColumnOption) schema.ColumnSpec {
	return NewTestColumn(name, schema.TypeBoolean, opts...)
}

// NewTestTable creates a table without validation
func NewTestTable(name string, columns ...schema.ColumnSpec) schema.TableSpec {
	return schema.TableSpec{Name: name, Columns: columns}
}

// NewTestSchema creates an app schema without validation
func NewTestSchema(version schema.Version, tables ...schema.TableSpec) schema.AppSchema {
	return schema.AppSchema{Version: version, Tables: tables}
}

// NewTestMigration creates a migration to version made of steps
func NewTestMigration(toVersion schema.Version, steps ...migrations.Step) migrations.Migration {
	return migrations.Migration{ToVersion: toVersion, Steps: steps}
}

// RecordOption is a functional option for configuring test records
type RecordOption func(schema.RawRecord)

// WithField sets a record field
func WithField(name string, value any) RecordOption {
	return func(r schema.RawRecord) {
		r[name] = value
	}
}

// WithStatus sets the hidden sync status
func WithStatus(status string) RecordOption {
	return func(r schema.RawRecord) {
		r[schema.ColumnStatus] = status
	}
}

// NewTestRecord creates a synced record with the given id
func NewTestRecord(id string, opts ...RecordOption) schema.RawRecord {
	record := schema.RawRecord{
		schema.ColumnID:      id,
		schema.ColumnStatus:  schema.StatusSynced,
		schema.ColumnChanged: "",
	}

	for _, opt := range opts {
		opt(record)
	}

	return record
}

// Must returns v and panics on err. It keeps step construction in test
// tables on one line.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}
