package storage

import (
	"math"
	"strconv"
	"strings"

	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

const standardColumns = `"id" primary key, "_changed", "_status"`

const localStorageSchema = `create table "local_storage" ("key" varchar(16) primary key not null, "value" text not null);` +
	`create index "local_storage_key_index" on "local_storage" ("key");`

func encodeName(name string) string {
	return `"` + name + `"`
}

// EncodeValue renders v as a SQL literal. Booleans become 0 and 1; nil, NaN
// and infinities become null.
func EncodeValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case bool:
		if value {
			return "1"
		}

		return "0"
	case string:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'"
	}

	n, ok := schema.ToFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return "null"
	}

	return strconv.FormatFloat(n, 'f', -1, 64)
}

func encodeCreateTable(table schema.TableSpec) string {
	columns := []string{standardColumns}
	for _, c := range table.Columns {
		columns = append(columns, encodeName(c.Name))
	}

	return "create table " + encodeName(table.Name) + " (" + strings.Join(columns, ", ") + ");"
}

func indexName(table, column string) string {
	return encodeName(table + "_" + column)
}

func encodeIndex(table, column string) string {
	return "create index if not exists " + indexName(table, column) +
		" on " + encodeName(table) + " (" + encodeName(column) + ");"
}

func encodeDropIndex(table, column string) string {
	return "drop index if exists " + indexName(table, column) + ";"
}

func encodeTableIndices(table schema.TableSpec) string {
	var sb strings.Builder

	for _, column := range table.IndexedColumns() {
		sb.WriteString(encodeIndex(table.Name, column))
	}

	sb.WriteString(encodeIndex(table.Name, schema.ColumnStatus))

	return sb.String()
}

func encodeTableDropIndices(table schema.TableSpec) string {
	var sb strings.Builder

	for _, column := range table.IndexedColumns() {
		sb.WriteString(encodeDropIndex(table.Name, column))
	}

	sb.WriteString(encodeDropIndex(table.Name, schema.ColumnStatus))

	return sb.String()
}

func rewrite(hook schema.SQLRewriter, sql string) string {
	if hook == nil {
		return sql
	}

	return hook(sql)
}

func rewriteSchema(hook schema.SchemaRewriter, sql, kind string) string {
	if hook == nil {
		return sql
	}

	return hook(sql, kind)
}

// EncodeTable renders the create statement and indices of a single table,
// passed through the table's rewriter.
func EncodeTable(table schema.TableSpec) string {
	return rewrite(table.UnsafeSQL, encodeCreateTable(table)+encodeTableIndices(table))
}

// EncodeSchema renders the full set-up script: local storage followed by
// every table.
func EncodeSchema(s schema.AppSchema) string {
	var sb strings.Builder

	sb.WriteString(localStorageSchema)

	for _, table := range s.Tables {
		sb.WriteString(EncodeTable(table))
	}

	return rewriteSchema(s.UnsafeSQL, sb.String(), schema.RewriteSetup)
}

// EncodeCreateIndices renders every index of the schema
func EncodeCreateIndices(s schema.AppSchema) string {
	var sb strings.Builder

	for _, table := range s.Tables {
		sb.WriteString(encodeTableIndices(table))
	}

	return rewriteSchema(s.UnsafeSQL, sb.String(), schema.RewriteCreateIndices)
}

// EncodeDropIndices renders a drop statement for every index of the schema
func EncodeDropIndices(s schema.AppSchema) string {
	var sb strings.Builder

	for _, table := range s.Tables {
		sb.WriteString(encodeTableDropIndices(table))
	}

	return rewriteSchema(s.UnsafeSQL, sb.String(), schema.RewriteDropIndices)
}

// EncodeMigrationSteps renders steps as one script in step order
func EncodeMigrationSteps(steps []migrations.Step) (string, error) {
	enc := &stepEncoder{}
	if err := migrations.DispatchAll(enc, steps); err != nil {
		return "", err
	}

	return enc.sb.String(), nil
}

// EncodeStep renders a single step
func EncodeStep(step migrations.Step) (string, error) {
	enc := &stepEncoder{}
	if err := migrations.Dispatch(enc, step); err != nil {
		return "", err
	}

	return enc.sb.String(), nil
}

// stepEncoder is the relational executor: it turns each step into SQL text
type stepEncoder struct {
	sb strings.Builder
}

func (e *stepEncoder) VisitCreateTable(step migrations.CreateTable) error {
	e.sb.WriteString(EncodeTable(step.Schema))
	return nil
}

func (e *stepEncoder) VisitAddColumns(step migrations.AddColumns) error {
	var sb strings.Builder

	table := encodeName(step.Table)

	for _, column := range step.Columns {
		name := encodeName(column.Name)
		sb.WriteString("alter table " + table + " add " + name + ";")
		sb.WriteString("update " + table + " set " + name + " = " + EncodeValue(schema.NullValue(column)) + ";")

		if column.IsIndexed {
			sb.WriteString(encodeIndex(step.Table, column.Name))
		}
	}

	e.sb.WriteString(rewrite(step.UnsafeSQL, sb.String()))

	return nil
}

func (e *stepEncoder) VisitDestroyColumn(step migrations.DestroyColumn) error {
	sql := encodeDropIndex(step.Table, step.Column) +
		"alter table " + encodeName(step.Table) + " drop column " + encodeName(step.Column) + ";"
	e.sb.WriteString(rewrite(step.UnsafeSQL, sql))

	return nil
}

func (e *stepEncoder) VisitRenameColumn(step migrations.RenameColumn) error {
	sql := "alter table " + encodeName(step.Table) +
		" rename column " + encodeName(step.From) + " to " + encodeName(step.To) + ";"
	e.sb.WriteString(rewrite(step.UnsafeSQL, sql))

	return nil
}

func (e *stepEncoder) VisitDestroyTable(step migrations.DestroyTable) error {
	e.sb.WriteString(rewrite(step.UnsafeSQL, "drop table if exists "+encodeName(step.Table)+";"))
	return nil
}

// Nullability is not enforced by the relational layout, so only the rewriter
// gets a say.
func (e *stepEncoder) VisitMakeColumnOptional(step migrations.MakeColumnOptional) error {
	e.sb.WriteString(rewrite(step.UnsafeSQL, ""))
	return nil
}

func (e *stepEncoder) VisitMakeColumnRequired(step migrations.MakeColumnRequired) error {
	column := encodeName(step.Column)
	sql := "update " + encodeName(step.Table) + " set " + column + " = " + EncodeValue(step.DefaultValue) +
		" where " + column + " is null;"
	e.sb.WriteString(rewrite(step.UnsafeSQL, sql))

	return nil
}

func (e *stepEncoder) VisitAddColumnIndex(step migrations.AddColumnIndex) error {
	e.sb.WriteString(rewrite(step.UnsafeSQL, encodeIndex(step.Table, step.Column)))
	return nil
}

func (e *stepEncoder) VisitRemoveColumnIndex(step migrations.RemoveColumnIndex) error {
	e.sb.WriteString(rewrite(step.UnsafeSQL, encodeDropIndex(step.Table, step.Column)))
	return nil
}

func (e *stepEncoder) VisitRawSQL(step migrations.RawSQL) error {
	e.sb.WriteString(step.SQL)
	return nil
}
