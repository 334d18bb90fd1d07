package storage

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
	tu "github.com/kyleking/schemasync/internal/testutil"
)

func postsTable() schema.TableSpec {
	return tu.NewTestTable("posts",
		tu.StringColumn("title"),
		tu.BooleanColumn("is_pinned", tu.Indexed()),
	)
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"true", true, "1"},
		{"false", false, "0"},
		{"nil", nil, "null"},
		{"nan", math.NaN(), "null"},
		{"infinity", math.Inf(1), "null"},
		{"integer", 3, "3"},
		{"float", 1.5, "1.5"},
		{"zero", float64(0), "0"},
		{"string", "hello", "'hello'"},
		{"quoted string", "it's", "'it''s'"},
		{"empty string", "", "''"},
		{"unsupported", []int{1}, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EncodeValue(tt.value))
		})
	}
}

func TestEncodeTable(t *testing.T) {
	expected := `create table "posts" ("id" primary key, "_changed", "_status", "title", "is_pinned");` +
		`create index if not exists "posts_is_pinned" on "posts" ("is_pinned");` +
		`create index if not exists "posts__status" on "posts" ("_status");`

	assert.Equal(t, expected, EncodeTable(postsTable()))
}

func TestEncodeTableRewriter(t *testing.T) {
	table := postsTable()
	table.UnsafeSQL = func(sql string) string {
		return strings.ReplaceAll(sql, "create table", "create table if not exists")
	}

	assert.True(t, strings.HasPrefix(EncodeTable(table), `create table if not exists "posts"`))
}

func TestEncodeSchema(t *testing.T) {
	s := tu.NewTestSchema(2, postsTable())

	sql := EncodeSchema(s)
	assert.True(t, strings.HasPrefix(sql, localStorageSchema))
	assert.Contains(t, sql, `create table "posts"`)

	var kinds []string

	s.UnsafeSQL = func(sql, kind string) string {
		kinds = append(kinds, kind)
		return sql + "-- " + kind
	}

	assert.True(t, strings.HasSuffix(EncodeSchema(s), "-- setup"))
	assert.True(t, strings.HasSuffix(EncodeCreateIndices(s), "-- create_indices"))
	assert.True(t, strings.HasSuffix(EncodeDropIndices(s), "-- drop_indices"))
	assert.Equal(t, []string{schema.RewriteSetup, schema.RewriteCreateIndices, schema.RewriteDropIndices}, kinds)
}

func TestEncodeIndices(t *testing.T) {
	s := tu.NewTestSchema(1, postsTable())

	assert.Equal(t,
		`create index if not exists "posts_is_pinned" on "posts" ("is_pinned");`+
			`create index if not exists "posts__status" on "posts" ("_status");`,
		EncodeCreateIndices(s))
	assert.Equal(t,
		`drop index if exists "posts_is_pinned";drop index if exists "posts__status";`,
		EncodeDropIndices(s))
}

func TestEncodeStep(t *testing.T) {
	tests := []struct {
		name     string
		step     migrations.Step
		expected string
	}{
		{
			name: "add columns",
			step: tu.Must(migrations.NewAddColumns("posts",
				tu.StringColumn("subtitle", tu.Optional()),
				tu.NumberColumn("rank", tu.Indexed()),
			)),
			expected: `alter table "posts" add "subtitle";update "posts" set "subtitle" = null;` +
				`alter table "posts" add "rank";update "posts" set "rank" = 0;` +
				`create index if not exists "posts_rank" on "posts" ("rank");`,
		},
		{
			name:     "destroy column",
			step:     tu.Must(migrations.NewDestroyColumn("posts", "rank")),
			expected: `drop index if exists "posts_rank";alter table "posts" drop column "rank";`,
		},
		{
			name:     "rename column",
			step:     tu.Must(migrations.NewRenameColumn("posts", "title", "headline")),
			expected: `alter table "posts" rename column "title" to "headline";`,
		},
		{
			name:     "destroy table",
			step:     tu.Must(migrations.NewDestroyTable("posts")),
			expected: `drop table if exists "posts";`,
		},
		{
			name:     "make column optional",
			step:     tu.Must(migrations.NewMakeColumnOptional("posts", "title")),
			expected: "",
		},
		{
			name:     "make column required",
			step:     tu.Must(migrations.NewMakeColumnRequired("posts", "title", "untitled")),
			expected: `update "posts" set "title" = 'untitled' where "title" is null;`,
		},
		{
			name:     "add column index",
			step:     tu.Must(migrations.NewAddColumnIndex("posts", "title")),
			expected: `create index if not exists "posts_title" on "posts" ("title");`,
		},
		{
			name:     "remove column index",
			step:     tu.Must(migrations.NewRemoveColumnIndex("posts", "title")),
			expected: `drop index if exists "posts_title";`,
		},
		{
			name:     "raw sql",
			step:     tu.Must(migrations.UnsafeExecuteSQL(`delete from "posts";`)),
			expected: `delete from "posts";`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := EncodeStep(tt.step)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sql)
		})
	}
}

func TestEncodeStepRewriter(t *testing.T) {
	optional := tu.Must(migrations.NewMakeColumnOptional("posts", "title"))

	var received *string

	optional.UnsafeSQL = func(sql string) string {
		received = &sql
		return "select 1;"
	}

	sql, err := EncodeStep(optional)
	require.NoError(t, err)
	assert.Equal(t, "select 1;", sql)
	require.NotNil(t, received)
	assert.Empty(t, *received)

	rename := tu.Must(migrations.NewRenameColumn("posts", "title", "headline"))
	rename.UnsafeSQL = strings.ToUpper

	sql, err = EncodeStep(rename)
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "POSTS" RENAME COLUMN "TITLE" TO "HEADLINE";`, sql)
}

func TestEncodeMigrationSteps(t *testing.T) {
	steps := []migrations.Step{
		tu.Must(migrations.NewCreateTable("comments", tu.StringColumn("body"))),
		tu.Must(migrations.NewAddColumnIndex("comments", "body")),
	}

	sql, err := EncodeMigrationSteps(steps)
	require.NoError(t, err)

	createAt := strings.Index(sql, `create table "comments"`)
	indexAt := strings.Index(sql, `"comments_body"`)
	assert.GreaterOrEqual(t, createAt, 0)
	assert.Greater(t, indexAt, createAt)

	_, err = EncodeMigrationSteps([]migrations.Step{&migrations.RawSQL{SQL: "select 1;"}})
	assert.Error(t, err)
}
