package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// MemoryPath opens a private in-memory SQLite database
const MemoryPath = ":memory:"

// SQLiteConfig holds connection settings for the SQLite backend
type SQLiteConfig struct {
	Path           string
	BusyTimeout    time.Duration
	MaxConnections int
}

// SQLiteAdapter implements Adapter on top of SQLite
type SQLiteAdapter struct {
	db     *sql.DB
	path   string
	opts   Options
	logger *logging.Logger
}

var _ Adapter = (*SQLiteAdapter)(nil)

// NewSQLiteAdapter opens the database at cfg.Path. Call SetUp before use.
func NewSQLiteAdapter(cfg SQLiteConfig, opts Options) (*SQLiteAdapter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	dsn := cfg.Path
	if dsn != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to create database directory")
		}

		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}

		dsn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, cfg.BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database")
	}

	// Every connection to :memory: is a separate database
	maxConns := cfg.MaxConnections
	if maxConns < 1 || cfg.Path == MemoryPath {
		maxConns = 1
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to ping database")
	}

	return &SQLiteAdapter{
		db:     db,
		path:   cfg.Path,
		opts:   opts,
		logger: opts.logger(BackendSQLite),
	}, nil
}

// Backend implements Adapter
func (a *SQLiteAdapter) Backend() string { return BackendSQLite }

// Path returns the database path
func (a *SQLiteAdapter) Path() string { return a.path }

// SetUp implements Adapter
func (a *SQLiteAdapter) SetUp(ctx context.Context) (SetUpResult, error) {
	return runSetUp(ctx, a, a.opts, a.logger)
}

// StoredVersion reads the version from the user_version pragma
func (a *SQLiteAdapter) StoredVersion(ctx context.Context) (schema.Version, error) {
	var version int
	if err := a.db.QueryRowContext(ctx, "pragma user_version").Scan(&version); err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeDatabase, "failed to read schema version")
	}

	return schema.Version(version), nil
}

// Migrate runs all steps and the version bump in one transaction
func (a *SQLiteAdapter) Migrate(ctx context.Context, steps []migrations.Step) error {
	script, err := EncodeMigrationSteps(steps)
	if err != nil {
		return err
	}

	a.logger.Debugf("Executing migration script: %s", script)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	if strings.TrimSpace(script) != "" {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return errors.Wrap(err, errors.ErrTypeDatabase, "failed to execute migration")
		}
	}

	if err := setUserVersion(ctx, tx, a.opts.Schema.Version); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit migration")
	}

	for _, step := range steps {
		a.opts.Metrics.RecordStep(BackendSQLite, migrations.KindOf(step))
	}

	return nil
}

// UnsafeResetDatabase drops every table and recreates the current schema
func (a *SQLiteAdapter) UnsafeResetDatabase(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	tables, err := listTables(ctx, tx)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "drop table if exists "+encodeName(table)); err != nil {
			return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to drop table %s", table)
		}
	}

	if _, err := tx.ExecContext(ctx, EncodeSchema(a.opts.Schema)); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to create schema")
	}

	if err := setUserVersion(ctx, tx, a.opts.Schema.Version); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit reset")
	}

	return nil
}

// UnsafeLoadRecords inserts records in bulk with indices dropped for the
// duration of the load. Records are keyed by table.
func (a *SQLiteAdapter) UnsafeLoadRecords(ctx context.Context, records map[string][]schema.RawRecord) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, EncodeDropIndices(a.opts.Schema)); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to drop indices")
	}

	for _, table := range a.opts.Schema.Tables {
		for _, raw := range records[table.Name] {
			if err := insertRecord(ctx, tx, table, prepareRecord(table, raw)); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, EncodeCreateIndices(a.opts.Schema)); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to create indices")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit load")
	}

	return nil
}

// Find implements Adapter. A missing record returns nil without error.
func (a *SQLiteAdapter) Find(ctx context.Context, table, id string) (schema.RawRecord, error) {
	records, err := a.Query(ctx, table, map[string]any{schema.ColumnID: id})
	if err != nil || len(records) == 0 {
		return nil, err
	}

	return records[0], nil
}

// Query returns records whose columns equal every value in where
func (a *SQLiteAdapter) Query(ctx context.Context, table string, where map[string]any) ([]schema.RawRecord, error) {
	query, args := encodeSelect(table, where)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to query %s", table)
	}
	defer rows.Close()

	spec, _ := a.opts.Schema.Table(table)

	records, err := scanRecords(rows)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to read %s", table)
	}

	for i := range records {
		records[i] = normalizeRecord(spec, records[i])
	}

	return records, nil
}

// Count implements Adapter
func (a *SQLiteAdapter) Count(ctx context.Context, table string) (int, error) {
	var count int
	if err := a.db.QueryRowContext(ctx, "select count(*) from "+encodeName(table)).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to count %s", table)
	}

	return count, nil
}

// Batch applies all operations in one transaction
func (a *SQLiteAdapter) Batch(ctx context.Context, operations []Operation) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	for _, op := range operations {
		if err := a.execOperation(ctx, tx, op); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit batch")
	}

	return nil
}

func (a *SQLiteAdapter) execOperation(ctx context.Context, tx *sql.Tx, op Operation) error {
	table, ok := a.opts.Schema.Table(op.Table)
	if !ok {
		return unknownTable(op.Table)
	}

	var err error

	switch op.Type {
	case OpCreate:
		err = insertRecord(ctx, tx, table, prepareRecord(table, op.Record))
	case OpUpdate:
		err = updateRecord(ctx, tx, table, prepareRecord(table, op.Record))
	case OpMarkAsDeleted:
		_, err = tx.ExecContext(ctx,
			"update "+encodeName(table.Name)+` set "_status" = ? where "id" = ?`, schema.StatusDeleted, op.ID)
	case OpDestroyPermanently:
		_, err = tx.ExecContext(ctx, "delete from "+encodeName(table.Name)+` where "id" = ?`, op.ID)
	default:
		return errors.NewValidationError("unknown batch operation %q", op.Type)
	}

	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to %s record in %s", op.Type, op.Table)
	}

	return nil
}

// GetDeletedRecords returns ids of records marked as deleted
func (a *SQLiteAdapter) GetDeletedRecords(ctx context.Context, table string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`select "id" from `+encodeName(table)+` where "_status" = ?`, schema.StatusDeleted)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to query deleted records of %s", table)
	}
	defer rows.Close()

	ids := []string{}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan record id")
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DestroyDeletedRecords permanently removes the given records if they are
// marked as deleted
func (a *SQLiteAdapter) DestroyDeletedRecords(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := []any{schema.StatusDeleted}

	for _, id := range ids {
		args = append(args, id)
	}

	_, err := a.db.ExecContext(ctx,
		"delete from "+encodeName(table)+` where "_status" = ? and "id" in (`+placeholders+")", args...)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to destroy deleted records of %s", table)
	}

	return nil
}

// GetLocal implements LocalStorage
func (a *SQLiteAdapter) GetLocal(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := a.db.QueryRowContext(ctx, `select "value" from "local_storage" where "key" = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to read local key %s", key)
	}

	return value, true, nil
}

// SetLocal implements LocalStorage
func (a *SQLiteAdapter) SetLocal(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx,
		`insert or replace into "local_storage" ("key", "value") values (?, ?)`, key, value)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to write local key %s", key)
	}

	return nil
}

// RemoveLocal implements LocalStorage
func (a *SQLiteAdapter) RemoveLocal(ctx context.Context, key string) error {
	if _, err := a.db.ExecContext(ctx, `delete from "local_storage" where "key" = ?`, key); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to remove local key %s", key)
	}

	return nil
}

// Close closes the database connection
func (a *SQLiteAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}

	return nil
}

func setUserVersion(ctx context.Context, tx *sql.Tx, version schema.Version) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("pragma user_version = %d", version)); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to write schema version")
	}

	return nil
}

func listTables(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`select name from sqlite_master where type = 'table' and name not like 'sqlite_%'`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to list tables")
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan table name")
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func recordColumns(table schema.TableSpec) []string {
	columns := []string{schema.ColumnID, schema.ColumnChanged, schema.ColumnStatus}
	for _, c := range table.Columns {
		columns = append(columns, c.Name)
	}

	return columns
}

func insertRecord(ctx context.Context, tx *sql.Tx, table schema.TableSpec, record schema.RawRecord) error {
	columns := recordColumns(table)
	names := make([]string, len(columns))
	args := make([]any, len(columns))

	for i, c := range columns {
		names[i] = encodeName(c)
		args[i] = sqlArg(record[c])
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := "insert into " + encodeName(table.Name) +
		" (" + strings.Join(names, ", ") + ") values (" + placeholders + ")"

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to insert record into %s", table.Name)
	}

	return nil
}

func updateRecord(ctx context.Context, tx *sql.Tx, table schema.TableSpec, record schema.RawRecord) error {
	columns := recordColumns(table)[1:]
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)

	for i, c := range columns {
		sets[i] = encodeName(c) + " = ?"
		args = append(args, sqlArg(record[c]))
	}

	args = append(args, record.ID())
	query := "update " + encodeName(table.Name) + " set " + strings.Join(sets, ", ") + ` where "id" = ?`

	_, err := tx.ExecContext(ctx, query, args...)

	return err
}

func encodeSelect(table string, where map[string]any) (string, []any) {
	query := "select * from " + encodeName(table)
	if len(where) == 0 {
		return query, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	conditions := make([]string, len(keys))
	args := make([]any, len(keys))

	for i, k := range keys {
		conditions[i] = encodeName(k) + " is ?"
		args[i] = sqlArg(where[k])
	}

	return query + " where " + strings.Join(conditions, " and "), args
}

// sqlArg stores booleans the way SQLite represents them
func sqlArg(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}

		return int64(0)
	}

	return v
}

func scanRecords(rows *sql.Rows) ([]schema.RawRecord, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := []schema.RawRecord{}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(schema.RawRecord, len(columns))

		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				record[c] = string(b)
			} else {
				record[c] = values[i]
			}
		}

		records = append(records, record)
	}

	return records, rows.Err()
}
