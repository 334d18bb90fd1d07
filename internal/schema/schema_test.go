package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/schemasync/internal/errors"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "posts", true},
		{"underscore prefix", "_internal", true},
		{"digits", "col_2", true},
		{"empty", "", false},
		{"hidden id", "id", false},
		{"hidden status uppercase", "_STATUS", false},
		{"local storage", "local_storage", false},
		{"leading digit", "2col", false},
		{"quote", `bad"name`, false},
		{"space", "bad name", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			}
		})
	}
}

func TestNewTableSpec(t *testing.T) {
	table, err := NewTableSpec("posts",
		ColumnSpec{Name: "title", Type: TypeString},
		ColumnSpec{Name: "author_id", Type: TypeString, IsIndexed: true},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"author_id"}, table.IndexedColumns())

	col, ok := table.Column("title")
	assert.True(t, ok)
	assert.Equal(t, TypeString, col.Type)

	_, err = NewTableSpec("posts",
		ColumnSpec{Name: "title", Type: TypeString},
		ColumnSpec{Name: "title", Type: TypeNumber},
	)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	_, err = NewTableSpec("posts", ColumnSpec{Name: "title", Type: "date"})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestNewAppSchema(t *testing.T) {
	posts := TableSpec{Name: "posts", Columns: []ColumnSpec{{Name: "title", Type: TypeString}}}

	s, err := NewAppSchema(3, posts)
	require.NoError(t, err)
	assert.Equal(t, Version(3), s.Version)

	_, ok := s.Table("posts")
	assert.True(t, ok)

	_, err = NewAppSchema(0, posts)
	assert.Error(t, err)

	_, err = NewAppSchema(2, posts, posts)
	assert.Error(t, err)
}

func TestNullValue(t *testing.T) {
	assert.Equal(t, "", NullValue(ColumnSpec{Name: "a", Type: TypeString}))
	assert.Equal(t, float64(0), NullValue(ColumnSpec{Name: "a", Type: TypeNumber}))
	assert.Equal(t, false, NullValue(ColumnSpec{Name: "a", Type: TypeBoolean}))
	assert.Nil(t, NullValue(ColumnSpec{Name: "a", Type: TypeBoolean, IsOptional: true}))
}

func TestIsNullValue(t *testing.T) {
	str := ColumnSpec{Name: "s", Type: TypeString}
	num := ColumnSpec{Name: "n", Type: TypeNumber}
	boolean := ColumnSpec{Name: "b", Type: TypeBoolean}
	optional := ColumnSpec{Name: "o", Type: TypeString, IsOptional: true}

	assert.True(t, IsNullValue("", str))
	assert.False(t, IsNullValue("x", str))
	assert.False(t, IsNullValue(nil, str))

	assert.True(t, IsNullValue(int64(0), num))
	assert.True(t, IsNullValue(0.0, num))
	assert.False(t, IsNullValue(1, num))

	assert.True(t, IsNullValue(false, boolean))
	assert.True(t, IsNullValue(int64(0), boolean))
	assert.False(t, IsNullValue(int64(1), boolean))

	assert.True(t, IsNullValue(nil, optional))
	assert.False(t, IsNullValue("", optional))
}

func TestSanitizeValue(t *testing.T) {
	boolean := ColumnSpec{Name: "b", Type: TypeBoolean}
	num := ColumnSpec{Name: "n", Type: TypeNumber, IsOptional: true}

	assert.Equal(t, true, SanitizeValue(int64(1), boolean))
	assert.Equal(t, false, SanitizeValue("yes", boolean))
	assert.Equal(t, float64(7), SanitizeValue(7, num))
	assert.Nil(t, SanitizeValue("7", num))
}

func TestIsNonNullValue(t *testing.T) {
	assert.True(t, IsNonNullValue(""))
	assert.True(t, IsNonNullValue(false))
	assert.True(t, IsNonNullValue(3))
	assert.False(t, IsNonNullValue(nil))
	assert.False(t, IsNonNullValue([]string{"a"}))
}
