package migrations

import (
	"github.com/kyleking/schemasync/internal/schema"
)

// Kind is the discriminator of a migration step
type Kind string

const (
	KindCreateTable        Kind = "create_table"
	KindAddColumns         Kind = "add_columns"
	KindDestroyColumn      Kind = "destroy_column"
	KindRenameColumn       Kind = "rename_column"
	KindDestroyTable       Kind = "destroy_table"
	KindMakeColumnOptional Kind = "make_column_optional"
	KindMakeColumnRequired Kind = "make_column_required"
	KindAddColumnIndex     Kind = "add_column_index"
	KindRemoveColumnIndex  Kind = "remove_column_index"
	KindSQL                Kind = "sql"
)

// Kinds lists every known step discriminator
var Kinds = []Kind{
	KindCreateTable,
	KindAddColumns,
	KindDestroyColumn,
	KindRenameColumn,
	KindDestroyTable,
	KindMakeColumnOptional,
	KindMakeColumnRequired,
	KindAddColumnIndex,
	KindRemoveColumnIndex,
	KindSQL,
}

// Step is one schema transformation. Only the value types declared in this
// package are executed; IsKnownStep rejects anything else.
type Step interface {
	Kind() Kind
	isStep()
}

// CreateTable creates a table with its hidden columns and indexes
type CreateTable struct {
	Schema schema.TableSpec
}

// AddColumns adds columns to an existing table, filling existing records with
// each column's null value
type AddColumns struct {
	Table     string
	Columns   []schema.ColumnSpec
	UnsafeSQL schema.SQLRewriter
}

// DestroyColumn removes a column and its index
type DestroyColumn struct {
	Table     string
	Column    string
	UnsafeSQL schema.SQLRewriter
}

// RenameColumn renames a column, keeping its values
type RenameColumn struct {
	Table     string
	From      string
	To        string
	UnsafeSQL schema.SQLRewriter
}

// DestroyTable drops a table if it exists
type DestroyTable struct {
	Table     string
	UnsafeSQL schema.SQLRewriter
}

// MakeColumnOptional allows nulls in a column. Stored data is not touched.
type MakeColumnOptional struct {
	Table     string
	Column    string
	UnsafeSQL schema.SQLRewriter
}

// MakeColumnRequired replaces nulls in a column with DefaultValue
type MakeColumnRequired struct {
	Table        string
	Column       string
	DefaultValue any
	UnsafeSQL    schema.SQLRewriter
}

// AddColumnIndex indexes an existing column
type AddColumnIndex struct {
	Table     string
	Column    string
	UnsafeSQL schema.SQLRewriter
}

// RemoveColumnIndex drops the index on a column
type RemoveColumnIndex struct {
	Table     string
	Column    string
	UnsafeSQL schema.SQLRewriter
}

// RawSQL is executed verbatim by the relational backend and ignored elsewhere
type RawSQL struct {
	SQL string
}

func (CreateTable) Kind() Kind        { return KindCreateTable }
func (AddColumns) Kind() Kind         { return KindAddColumns }
func (DestroyColumn) Kind() Kind      { return KindDestroyColumn }
func (RenameColumn) Kind() Kind       { return KindRenameColumn }
func (DestroyTable) Kind() Kind       { return KindDestroyTable }
func (MakeColumnOptional) Kind() Kind { return KindMakeColumnOptional }
func (MakeColumnRequired) Kind() Kind { return KindMakeColumnRequired }
func (AddColumnIndex) Kind() Kind     { return KindAddColumnIndex }
func (RemoveColumnIndex) Kind() Kind  { return KindRemoveColumnIndex }
func (RawSQL) Kind() Kind             { return KindSQL }

func (CreateTable) isStep()        {}
func (AddColumns) isStep()         {}
func (DestroyColumn) isStep()      {}
func (RenameColumn) isStep()       {}
func (DestroyTable) isStep()       {}
func (MakeColumnOptional) isStep() {}
func (MakeColumnRequired) isStep() {}
func (AddColumnIndex) isStep()     {}
func (RemoveColumnIndex) isStep()  {}
func (RawSQL) isStep()             {}

// KindOf returns the step's discriminator, or "<nil>" for a nil step
func KindOf(step Step) string {
	if step == nil {
		return "<nil>"
	}

	return string(step.Kind())
}
