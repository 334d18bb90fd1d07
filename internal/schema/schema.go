// Package schema describes the declared shape of a local database: tables,
// their columns and the schema version they belong to.
package schema

import (
	"github.com/kyleking/schemasync/internal/errors"
)

// Version is a schema version. Version 1 is the baseline with no migrations.
type Version int

// BaselineVersion is the version of a database that has never been migrated.
const BaselineVersion Version = 1

// ColumnType is the declared type of a column
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
)

// Valid reports whether t is one of the known column types
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean:
		return true
	default:
		return false
	}
}

// ColumnSpec describes a single declared column
type ColumnSpec struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	IsOptional bool       `json:"isOptional,omitempty"`
	IsIndexed  bool       `json:"isIndexed,omitempty"`
}

// SQLRewriter receives the statement text generated for a step or table and
// returns the text that is actually executed.
type SQLRewriter func(sql string) string

// SchemaRewriter is the whole-schema variant of SQLRewriter. kind tags the
// call site: "setup", "create_indices" or "drop_indices".
type SchemaRewriter func(sql string, kind string) string

// Call sites passed to SchemaRewriter
const (
	RewriteSetup         = "setup"
	RewriteCreateIndices = "create_indices"
	RewriteDropIndices   = "drop_indices"
)

// TableSpec describes a table and its declared columns in declaration order
type TableSpec struct {
	Name      string       `json:"name"`
	Columns   []ColumnSpec `json:"columns"`
	UnsafeSQL SQLRewriter  `json:"-"`
}

// Column looks up a declared column by name
func (t TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}

	return ColumnSpec{}, false
}

// IndexedColumns returns the names of columns declared with IsIndexed
func (t TableSpec) IndexedColumns() []string {
	var names []string

	for _, c := range t.Columns {
		if c.IsIndexed {
			names = append(names, c.Name)
		}
	}

	return names
}

// AppSchema is the current schema of the whole database
type AppSchema struct {
	Version   Version        `json:"version"`
	Tables    []TableSpec    `json:"tables"`
	UnsafeSQL SchemaRewriter `json:"-"`
}

// Table looks up a table by name
func (s AppSchema) Table(name string) (TableSpec, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}

	return TableSpec{}, false
}

// NewTableSpec builds a table description, validating names and column shapes
// unless validation is compiled out.
func NewTableSpec(name string, columns ...ColumnSpec) (TableSpec, error) {
	table := TableSpec{Name: name, Columns: columns}

	if ValidationEnabled {
		if err := ValidateTable(table); err != nil {
			return TableSpec{}, err
		}
	}

	return table, nil
}

// NewAppSchema builds the application schema. Versions start at 1 and table
// names must be unique.
func NewAppSchema(version Version, tables ...TableSpec) (AppSchema, error) {
	if ValidationEnabled {
		if version < BaselineVersion {
			return AppSchema{}, errors.NewValidationError(
				"schema version must be at least %d, got %d", BaselineVersion, version)
		}

		seen := make(map[string]bool, len(tables))
		for _, t := range tables {
			if err := ValidateTable(t); err != nil {
				return AppSchema{}, err
			}

			if seen[t.Name] {
				return AppSchema{}, errors.NewValidationError("table %q is declared twice", t.Name)
			}

			seen[t.Name] = true
		}
	}

	return AppSchema{Version: version, Tables: tables}, nil
}
