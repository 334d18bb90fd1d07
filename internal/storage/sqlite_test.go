package storage

import (
	"context"
	"path/filepath"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/metrics"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
	tu "github.com/kyleking/schemasync/internal/testutil"
)

func postsSchema(version schema.Version, extra ...schema.ColumnSpec) schema.AppSchema {
	table := postsTable()
	table.Columns = append(table.Columns, extra...)

	return tu.NewTestSchema(version, table)
}

func openSQLite(t *testing.T, path string, opts Options) *SQLiteAdapter {
	t.Helper()

	opts.Logger = logging.Nop()

	adapter, err := NewSQLiteAdapter(SQLiteConfig{Path: path, MaxConnections: 1}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	_, err = adapter.SetUp(context.Background())
	require.NoError(t, err)

	return adapter
}

func seedPosts(t *testing.T, a Adapter) {
	t.Helper()

	require.NoError(t, a.Batch(context.Background(), []Operation{
		Create("posts", tu.NewTestRecord("p1", tu.WithField("title", "Hello"), tu.WithField("is_pinned", true))),
		Create("posts", tu.NewTestRecord("p2", tu.WithField("title", "World"))),
	}))
}

func TestSQLiteSetUp(t *testing.T) {
	ctx := context.Background()

	adapter, cleanup := NewTestSQLite(t, Options{Schema: postsSchema(1)})
	defer cleanup()

	version, err := adapter.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Version(1), version)

	count, err := adapter.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	var index string
	require.NoError(t, adapter.db.QueryRowContext(ctx,
		`select name from sqlite_master where type = 'index' and name = 'posts_is_pinned'`).Scan(&index))
	assert.Equal(t, "posts_is_pinned", index)

	// A second set-up at the same version keeps data
	seedPosts(t, adapter)

	result, err := adapter.SetUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, SetUpNone, result.Action)

	count, err = adapter.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteBatch(t *testing.T) {
	ctx := context.Background()

	adapter, cleanup := NewTestSQLite(t, Options{Schema: postsSchema(1)})
	defer cleanup()

	seedPosts(t, adapter)

	record, err := adapter.Find(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, schema.RawRecord{
		"id":        "p1",
		"_changed":  "",
		"_status":   schema.StatusSynced,
		"title":     "Hello",
		"is_pinned": true,
	}, record)

	record, err = adapter.Find(ctx, "posts", "p2")
	require.NoError(t, err)
	assert.Equal(t, false, record["is_pinned"])

	missing, err := adapter.Find(ctx, "posts", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	updated := tu.NewTestRecord("p2", tu.WithField("title", "Changed"), tu.WithStatus(schema.StatusUpdated))

	require.NoError(t, adapter.Batch(ctx, []Operation{
		Update("posts", updated),
		MarkAsDeleted("posts", "p1"),
	}))

	record, err = adapter.Find(ctx, "posts", "p2")
	require.NoError(t, err)
	assert.Equal(t, "Changed", record["title"])
	assert.Equal(t, schema.StatusUpdated, record[schema.ColumnStatus])

	pinned, err := adapter.Query(ctx, "posts", map[string]any{"is_pinned": true})
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, "p1", pinned[0].ID())

	deleted, err := adapter.GetDeletedRecords(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, deleted)

	require.NoError(t, adapter.DestroyDeletedRecords(ctx, "posts", []string{"p1", "p2"}))

	count, err := adapter.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, adapter.Batch(ctx, []Operation{DestroyPermanently("posts", "p2")}))

	count, err = adapter.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteBatchIsAtomic(t *testing.T) {
	ctx := context.Background()

	adapter, cleanup := NewTestSQLite(t, Options{Schema: postsSchema(1)})
	defer cleanup()

	seedPosts(t, adapter)

	err := adapter.Batch(ctx, []Operation{
		Create("posts", tu.NewTestRecord("p3")),
		Create("posts", tu.NewTestRecord("p1")),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))

	err = adapter.Batch(ctx, []Operation{Create("missing", tu.NewTestRecord("x"))})
	assert.Error(t, err)

	count, err := adapter.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteCreateFillsDefaults(t *testing.T) {
	ctx := context.Background()

	adapter, cleanup := NewTestSQLite(t, Options{Schema: postsSchema(1)})
	defer cleanup()

	require.NoError(t, adapter.Batch(ctx, []Operation{Create("posts", schema.RawRecord{"title": "No id"})}))

	records, err := adapter.Query(ctx, "posts", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID())
	assert.Equal(t, schema.StatusCreated, records[0][schema.ColumnStatus])
	assert.Equal(t, false, records[0]["is_pinned"])
}

func TestSQLiteLocalStorage(t *testing.T) {
	ctx := context.Background()

	adapter, cleanup := NewTestSQLite(t, Options{Schema: postsSchema(1)})
	defer cleanup()

	_, ok, err := adapter.GetLocal(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, adapter.SetLocal(ctx, "key", "one"))
	require.NoError(t, adapter.SetLocal(ctx, "key", "two"))

	value, ok, err := adapter.GetLocal(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", value)

	require.NoError(t, adapter.RemoveLocal(ctx, "key"))

	_, ok, err = adapter.GetLocal(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	v1 := openSQLite(t, path, Options{Schema: postsSchema(1)})
	seedPosts(t, v1)
	require.NoError(t, v1.SetLocal(ctx, "kept", "yes"))
	require.NoError(t, v1.Close())

	reg, err := migrations.NewRegistry(tu.NewTestMigration(2,
		tu.Must(migrations.NewAddColumns("posts",
			tu.NumberColumn("views", tu.Indexed()),
			tu.StringColumn("subtitle", tu.Optional()),
		)),
		tu.Must(migrations.NewMakeColumnRequired("posts", "subtitle", "none")),
		tu.Must(migrations.UnsafeExecuteSQL(`update "posts" set "views" = 7 where "id" = 'p2';`)),
	))
	require.NoError(t, err)

	collector := metrics.NewCollector("")
	v2 := openSQLite(t, path, Options{
		Schema:     postsSchema(2, tu.NumberColumn("views", tu.Indexed()), tu.StringColumn("subtitle")),
		Migrations: reg,
		Metrics:    collector,
	})

	version, err := v2.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Version(2), version)

	p1, err := v2.Find(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, float64(0), p1["views"])
	assert.Equal(t, "none", p1["subtitle"])
	assert.Equal(t, "Hello", p1["title"])

	p2, err := v2.Find(ctx, "posts", "p2")
	require.NoError(t, err)
	assert.Equal(t, float64(7), p2["views"])

	value, ok, err := v2.GetLocal(ctx, "kept")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "yes", value)

	assert.Equal(t, float64(1), promtest.ToFloat64(collector.Migrations.WithLabelValues(BackendSQLite, metrics.OutcomeSuccess)))
	assert.Equal(t, float64(1), promtest.ToFloat64(collector.MigrationSteps.WithLabelValues(BackendSQLite, "add_columns")))
}

func TestSQLiteResetsWhenMigrationsUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	v1 := openSQLite(t, path, Options{Schema: postsSchema(1)})
	seedPosts(t, v1)
	require.NoError(t, v1.Close())

	collector := metrics.NewCollector("")
	v3 := openSQLite(t, path, Options{Schema: postsSchema(3), Metrics: collector})

	version, err := v3.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Version(3), version)

	count, err := v3.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, float64(1), promtest.ToFloat64(collector.Migrations.WithLabelValues(BackendSQLite, metrics.OutcomeUnavailable)))
	require.NoError(t, v3.Close())

	// Opening with an older schema resets as well
	v2 := openSQLite(t, path, Options{Schema: postsSchema(2)})

	version, err = v2.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Version(2), version)
}

func TestSQLiteFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()

	adapter, cleanup := NewTestSQLite(t, Options{Schema: postsSchema(1)})
	defer cleanup()

	seedPosts(t, adapter)

	err := adapter.Migrate(ctx, []migrations.Step{
		tu.Must(migrations.NewAddColumns("posts", tu.StringColumn("subtitle"))),
		tu.Must(migrations.UnsafeExecuteSQL("this is not sql;")),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))

	record, err := adapter.Find(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.NotContains(t, record, "subtitle")

	version, err := adapter.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Version(1), version)

	err = adapter.Migrate(ctx, []migrations.Step{&migrations.DestroyTable{Table: "posts"}})
	assert.True(t, errors.IsType(err, errors.ErrTypeUnknownStep))
}

func TestSQLiteUnsafeLoadRecords(t *testing.T) {
	ctx := context.Background()

	adapter, cleanup := NewTestSQLite(t, Options{Schema: postsSchema(1)})
	defer cleanup()

	records := make([]schema.RawRecord, 0, tu.TestRecordCount)
	for i := range tu.TestRecordCount {
		records = append(records, tu.NewTestRecord(string(rune('a'+i)), tu.WithField("title", "bulk")))
	}

	require.NoError(t, adapter.UnsafeLoadRecords(ctx, map[string][]schema.RawRecord{"posts": records}))

	count, err := adapter.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, tu.TestRecordCount, count)

	var indices int
	require.NoError(t, adapter.db.QueryRowContext(ctx,
		`select count(*) from sqlite_master where type = 'index' and tbl_name = 'posts' and name like 'posts_%'`).Scan(&indices))
	assert.Equal(t, 2, indices)
}

func TestSQLiteRejectsMismatchedRegistry(t *testing.T) {
	reg, err := migrations.NewRegistry(tu.NewTestMigration(2, tu.Must(migrations.NewDestroyTable("posts"))))
	require.NoError(t, err)

	_, err = NewSQLiteAdapter(SQLiteConfig{Path: MemoryPath}, Options{Schema: postsSchema(3), Migrations: reg})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	empty, err := migrations.NewRegistry()
	require.NoError(t, err)

	_, err = NewSQLiteAdapter(SQLiteConfig{Path: MemoryPath}, Options{Schema: postsSchema(3), Migrations: empty})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	adapter, err := NewSQLiteAdapter(SQLiteConfig{Path: MemoryPath}, Options{Schema: postsSchema(1), Migrations: empty})
	require.NoError(t, err)
	require.NoError(t, adapter.Close())
}

func TestSQLiteInMemory(t *testing.T) {
	ctx := context.Background()

	adapter, err := NewSQLiteAdapter(SQLiteConfig{Path: MemoryPath, MaxConnections: 4},
		Options{Schema: postsSchema(1), Logger: logging.Nop()})
	require.NoError(t, err)
	defer adapter.Close()

	result, err := adapter.SetUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, SetUpResult{Action: SetUpCreate, FromVersion: 0, ToVersion: 1}, result)
	seedPosts(t, adapter)

	count, err := adapter.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, MemoryPath, adapter.Path())
}
