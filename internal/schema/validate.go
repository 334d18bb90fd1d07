package schema

import (
	"regexp"
	"strings"

	"github.com/kyleking/schemasync/internal/errors"
)

var safeName = regexp.MustCompile(`^[a-zA-Z_]\w*$`)

// Names that collide with hidden columns, the local storage table or SQLite
// internals.
var reservedNames = map[string]bool{
	"id":            true,
	"_changed":      true,
	"_status":       true,
	"local_storage": true,
	"rowid":         true,
	"oid":           true,
	"_rowid_":       true,
	"$loki":         true,
	"__proto__":     true,
}

// ValidateName checks that name is a safe, non-reserved identifier
func ValidateName(name string) error {
	if name == "" {
		return errors.NewValidationError("name must not be empty")
	}

	if reservedNames[strings.ToLower(name)] {
		return errors.NewValidationError("unsafe name %q is not allowed", name)
	}

	if !safeName.MatchString(name) {
		return errors.NewValidationError("name %q must contain only letters, digits and underscores", name)
	}

	return nil
}

// ValidateColumn checks a column's name and declared type
func ValidateColumn(column ColumnSpec) error {
	if err := ValidateName(column.Name); err != nil {
		return err
	}

	if !column.Type.Valid() {
		return errors.NewValidationError(
			"column %q has invalid type %q (must be string, number or boolean)", column.Name, column.Type)
	}

	return nil
}

// ValidateTable checks the table name, every column, and column name uniqueness
func ValidateTable(table TableSpec) error {
	if err := ValidateName(table.Name); err != nil {
		return err
	}

	seen := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		if err := ValidateColumn(c); err != nil {
			return errors.Wrapf(err, errors.ErrTypeValidation, "invalid column in table %q", table.Name)
		}

		if seen[c.Name] {
			return errors.NewValidationError("column %q is declared twice in table %q", c.Name, table.Name)
		}

		seen[c.Name] = true
	}

	return nil
}
