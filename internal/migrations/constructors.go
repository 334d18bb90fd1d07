package migrations

import (
	"strings"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/schema"
)

// Step constructors. Shape and name checks only run when
// schema.ValidationEnabled is set; production builds return the step as given.

// NewCreateTable builds a CreateTable step
func NewCreateTable(name string, columns ...schema.ColumnSpec) (CreateTable, error) {
	table, err := schema.NewTableSpec(name, columns...)
	if err != nil {
		return CreateTable{}, err
	}

	return CreateTable{Schema: table}, nil
}

// NewAddColumns builds an AddColumns step
func NewAddColumns(table string, columns ...schema.ColumnSpec) (AddColumns, error) {
	if schema.ValidationEnabled {
		if table == "" {
			return AddColumns{}, errors.NewValidationError("missing table name in add columns step")
		}

		if len(columns) == 0 {
			return AddColumns{}, errors.NewValidationError("add columns step for %q has no columns", table)
		}

		for _, c := range columns {
			if err := schema.ValidateColumn(c); err != nil {
				return AddColumns{}, err
			}
		}
	}

	return AddColumns{Table: table, Columns: columns}, nil
}

// NewDestroyColumn builds a DestroyColumn step. The relational backend needs
// SQLite 3.35 or newer to run it.
func NewDestroyColumn(table, column string) (DestroyColumn, error) {
	if err := requireTableColumn("destroy column", table, column); err != nil {
		return DestroyColumn{}, err
	}

	return DestroyColumn{Table: table, Column: column}, nil
}

// NewRenameColumn builds a RenameColumn step. The new name must be safe.
func NewRenameColumn(table, from, to string) (RenameColumn, error) {
	if schema.ValidationEnabled {
		if err := requireTableColumn("rename column", table, from); err != nil {
			return RenameColumn{}, err
		}

		if err := schema.ValidateName(to); err != nil {
			return RenameColumn{}, err
		}
	}

	return RenameColumn{Table: table, From: from, To: to}, nil
}

// NewDestroyTable builds a DestroyTable step
func NewDestroyTable(table string) (DestroyTable, error) {
	if schema.ValidationEnabled && table == "" {
		return DestroyTable{}, errors.NewValidationError("missing table name in destroy table step")
	}

	return DestroyTable{Table: table}, nil
}

// NewMakeColumnOptional builds a MakeColumnOptional step
func NewMakeColumnOptional(table, column string) (MakeColumnOptional, error) {
	if err := requireTableColumn("make column optional", table, column); err != nil {
		return MakeColumnOptional{}, err
	}

	return MakeColumnOptional{Table: table, Column: column}, nil
}

// NewMakeColumnRequired builds a MakeColumnRequired step. defaultValue must
// be a bool, string or finite number.
func NewMakeColumnRequired(table, column string, defaultValue any) (MakeColumnRequired, error) {
	if err := requireTableColumn("make column required", table, column); err != nil {
		return MakeColumnRequired{}, err
	}

	if schema.ValidationEnabled && !schema.IsNonNullValue(defaultValue) {
		return MakeColumnRequired{}, errors.NewValidationError(
			"make column required step for %s.%s needs a non-null default value, got %v", table, column, defaultValue)
	}

	return MakeColumnRequired{Table: table, Column: column, DefaultValue: defaultValue}, nil
}

// NewAddColumnIndex builds an AddColumnIndex step
func NewAddColumnIndex(table, column string) (AddColumnIndex, error) {
	if err := requireTableColumn("add column index", table, column); err != nil {
		return AddColumnIndex{}, err
	}

	return AddColumnIndex{Table: table, Column: column}, nil
}

// NewRemoveColumnIndex builds a RemoveColumnIndex step
func NewRemoveColumnIndex(table, column string) (RemoveColumnIndex, error) {
	if err := requireTableColumn("remove column index", table, column); err != nil {
		return RemoveColumnIndex{}, err
	}

	return RemoveColumnIndex{Table: table, Column: column}, nil
}

// UnsafeExecuteSQL builds a RawSQL step. The statement must end with a
// semicolon so that it can be concatenated with other steps.
func UnsafeExecuteSQL(sql string) (RawSQL, error) {
	if schema.ValidationEnabled && !strings.HasSuffix(strings.TrimRight(sql, " \t\r\n"), ";") {
		return RawSQL{}, errors.NewValidationError(
			"SQL passed to UnsafeExecuteSQL must end with a semicolon: %q", sql)
	}

	return RawSQL{SQL: sql}, nil
}

func requireTableColumn(step, table, column string) error {
	if !schema.ValidationEnabled {
		return nil
	}

	if table == "" {
		return errors.NewValidationError("missing table name in %s step", step)
	}

	if column == "" {
		return errors.NewValidationError("missing column name in %s step for table %q", step, table)
	}

	return nil
}
