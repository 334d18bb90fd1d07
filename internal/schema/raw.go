package schema

import (
	"math"
)

// Hidden columns present on every table
const (
	ColumnID      = "id"
	ColumnChanged = "_changed"
	ColumnStatus  = "_status"
)

// Record sync statuses stored in the hidden status column
const (
	StatusSynced  = "synced"
	StatusCreated = "created"
	StatusUpdated = "updated"
	StatusDeleted = "deleted"
)

// RawRecord is a stored record keyed by column name
type RawRecord map[string]any

// ID returns the record id, or "" when missing
func (r RawRecord) ID() string {
	id, _ := r[ColumnID].(string)
	return id
}

// Clone returns a shallow copy of the record
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}

	return out
}

// NullValue returns the value a column holds when nothing was written to it:
// nil for optional columns, otherwise the zero value of the declared type.
func NullValue(column ColumnSpec) any {
	if column.IsOptional {
		return nil
	}

	switch column.Type {
	case TypeString:
		return ""
	case TypeNumber:
		return float64(0)
	case TypeBoolean:
		return false
	default:
		return nil
	}
}

// IsNullValue reports whether v equals the column's null value. Integer
// numbers and SQLite-style 0/1 booleans compare equal to their float and bool
// forms.
func IsNullValue(v any, column ColumnSpec) bool {
	if column.IsOptional || v == nil {
		return column.IsOptional && v == nil
	}

	switch column.Type {
	case TypeString:
		return v == ""
	case TypeNumber:
		n, ok := ToFloat(v)
		return ok && n == 0
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return !b
		}

		n, ok := ToFloat(v)

		return ok && n == 0
	default:
		return false
	}
}

// SanitizeValue coerces v into a value valid for the column, falling back to
// the column's null value when v does not fit.
func SanitizeValue(v any, column ColumnSpec) any {
	switch column.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s
		}
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b
		default:
			if n, ok := ToFloat(v); ok && (n == 0 || n == 1) {
				return n == 1
			}
		}
	case TypeNumber:
		if n, ok := ToFloat(v); ok && !math.IsNaN(n) && !math.IsInf(n, 0) {
			return n
		}
	}

	return NullValue(column)
}

// ToFloat converts any Go numeric value to float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// IsNonNullValue reports whether v can be used as a column default: a bool,
// string or finite number.
func IsNonNullValue(v any) bool {
	switch v.(type) {
	case bool, string:
		return true
	}

	n, ok := ToFloat(v)

	return ok && !math.IsNaN(n) && !math.IsInf(n, 0)
}
