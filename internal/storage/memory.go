package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/kyleking/schemasync/internal/docstore"
	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// SchemaVersionKey is the local storage key holding the docstore schema version
const SchemaVersionKey = "_docstore_schema_version"

const (
	localKeyField   = "key"
	localValueField = "value"
)

// storeState is the lifecycle of a MemoryAdapter
type storeState int

const (
	stateOperational storeState = iota
	stateBroken
)

// MemoryAdapter implements Adapter on the in-memory document store. Mutations
// are not transactional: a failed mutation leaves the store broken, and every
// later mutation fails without being attempted.
type MemoryAdapter struct {
	db     *docstore.DB
	opts   Options
	logger *logging.Logger

	mu        sync.Mutex
	state     storeState
	fatalOnce sync.Once
}

var _ Adapter = (*MemoryAdapter)(nil)

// NewMemoryAdapter creates an empty store. Call SetUp before use.
func NewMemoryAdapter(opts Options) (*MemoryAdapter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &MemoryAdapter{
		db:     docstore.NewDB(),
		opts:   opts,
		logger: opts.logger(BackendDocstore),
	}, nil
}

// Backend implements Adapter
func (a *MemoryAdapter) Backend() string { return BackendDocstore }

// IsBroken reports whether a mutation has failed
func (a *MemoryAdapter) IsBroken() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state == stateBroken
}

// mutate runs fn unless the store is broken. A failure from fn breaks the
// store, calls the fatal handler once and is returned to the caller. The
// handler runs without a.mu held so it may call back into the adapter.
func (a *MemoryAdapter) mutate(operation string, fn func() error) error {
	broke, err := a.mutateLocked(operation, fn)
	if !broke {
		return err
	}

	a.fatalOnce.Do(func() {
		if a.opts.OnFatal != nil {
			a.opts.OnFatal(err)
		}
	})

	return err
}

// mutateLocked reports whether this call moved the store to broken
func (a *MemoryAdapter) mutateLocked(operation string, fn func() error) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == stateBroken {
		return false, errors.NewBrokenStoreError(BackendDocstore)
	}

	err := fn()
	if err == nil {
		return false, nil
	}

	a.state = stateBroken
	a.opts.Metrics.RecordBroken(BackendDocstore)
	a.logger.WithField("operation", operation).ErrorWithErr("Store is broken after a failed mutation", err)

	return true, err
}

// SetUp implements Adapter
func (a *MemoryAdapter) SetUp(ctx context.Context) (SetUpResult, error) {
	return runSetUp(ctx, a, a.opts, a.logger)
}

// StoredVersion reads the version from local storage
func (a *MemoryAdapter) StoredVersion(ctx context.Context) (schema.Version, error) {
	value, ok, err := a.GetLocal(ctx, SchemaVersionKey)
	if err != nil || !ok {
		return 0, err
	}

	version, err := strconv.Atoi(value)
	if err != nil {
		a.logger.Warnf("Ignoring malformed schema version %q", value)
		return 0, nil
	}

	return schema.Version(version), nil
}

// Migrate applies steps through the document executor
func (a *MemoryAdapter) Migrate(_ context.Context, steps []migrations.Step) error {
	return a.mutate("migrate", func() error {
		exec := &docstoreExecutor{db: a.db, logger: a.logger}
		if err := migrations.DispatchAll(exec, steps); err != nil {
			return err
		}

		for _, step := range steps {
			a.opts.Metrics.RecordStep(BackendDocstore, migrations.KindOf(step))
		}

		return a.setLocal(SchemaVersionKey, strconv.Itoa(int(a.opts.Schema.Version)))
	})
}

// UnsafeResetDatabase drops every collection and recreates the schema
func (a *MemoryAdapter) UnsafeResetDatabase(_ context.Context) error {
	return a.mutate("reset", func() error {
		a.db.Clear()

		if _, err := a.db.AddCollection(LocalStorageTable, docstore.CollectionOptions{
			Unique: []string{localKeyField},
		}); err != nil {
			return err
		}

		for _, table := range a.opts.Schema.Tables {
			if err := createCollection(a.db, table); err != nil {
				return err
			}
		}

		return a.setLocal(SchemaVersionKey, strconv.Itoa(int(a.opts.Schema.Version)))
	})
}

func (a *MemoryAdapter) collection(table string) (*docstore.Collection, error) {
	c := a.db.GetCollection(table)
	if c == nil {
		return nil, errors.Newf(errors.ErrTypeDatabase, "collection %s does not exist", table)
	}

	return c, nil
}

// Find implements Adapter. A missing record returns nil without error.
func (a *MemoryAdapter) Find(_ context.Context, table, id string) (schema.RawRecord, error) {
	c, err := a.collection(table)
	if err != nil {
		return nil, err
	}

	doc, ok := c.By(schema.ColumnID, id)
	if !ok {
		return nil, nil
	}

	return a.toRecord(table, doc), nil
}

// Query returns records whose fields equal every value in where
func (a *MemoryAdapter) Query(_ context.Context, table string, where map[string]any) ([]schema.RawRecord, error) {
	c, err := a.collection(table)
	if err != nil {
		return nil, err
	}

	records := []schema.RawRecord{}
	for _, doc := range c.Find(docstore.Query(where)) {
		records = append(records, a.toRecord(table, doc))
	}

	return records, nil
}

// Count implements Adapter
func (a *MemoryAdapter) Count(_ context.Context, table string) (int, error) {
	c, err := a.collection(table)
	if err != nil {
		return 0, err
	}

	return c.Count(), nil
}

func (a *MemoryAdapter) toRecord(table string, doc docstore.Document) schema.RawRecord {
	record := schema.RawRecord(doc)
	delete(record, docstore.MetaKey)

	spec, _ := a.opts.Schema.Table(table)

	return normalizeRecord(spec, record)
}

// Batch applies operations in order. A failure part way leaves earlier
// operations applied and breaks the store.
func (a *MemoryAdapter) Batch(_ context.Context, operations []Operation) error {
	return a.mutate("batch", func() error {
		for _, op := range operations {
			if err := a.execOperation(op); err != nil {
				return err
			}
		}

		return nil
	})
}

func (a *MemoryAdapter) execOperation(op Operation) error {
	table, ok := a.opts.Schema.Table(op.Table)
	if !ok {
		return unknownTable(op.Table)
	}

	c, err := a.collection(op.Table)
	if err != nil {
		return err
	}

	switch op.Type {
	case OpCreate:
		_, err = c.Insert(docstore.Document(prepareRecord(table, op.Record)))
		return err
	case OpUpdate:
		record := prepareRecord(table, op.Record)

		existing, found := c.By(schema.ColumnID, record.ID())
		if !found {
			return nil
		}

		doc := docstore.Document(record)
		doc[docstore.MetaKey] = existing.Seq()

		return c.Update(doc)
	case OpMarkAsDeleted:
		existing, found := c.By(schema.ColumnID, op.ID)
		if !found {
			return nil
		}

		existing[schema.ColumnStatus] = schema.StatusDeleted

		return c.Update(existing)
	case OpDestroyPermanently:
		existing, found := c.By(schema.ColumnID, op.ID)
		if !found {
			return nil
		}

		return c.Remove(existing)
	default:
		return errors.NewValidationError("unknown batch operation %q", op.Type)
	}
}

// GetDeletedRecords returns ids of records marked as deleted
func (a *MemoryAdapter) GetDeletedRecords(_ context.Context, table string) ([]string, error) {
	c, err := a.collection(table)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, doc := range c.Find(docstore.Query{schema.ColumnStatus: schema.StatusDeleted}) {
		ids = append(ids, schema.RawRecord(doc).ID())
	}

	return ids, nil
}

// DestroyDeletedRecords permanently removes the given records if they are
// marked as deleted
func (a *MemoryAdapter) DestroyDeletedRecords(_ context.Context, table string, ids []string) error {
	return a.mutate("destroy_deleted", func() error {
		c, err := a.collection(table)
		if err != nil {
			return err
		}

		for _, id := range ids {
			doc, ok := c.By(schema.ColumnID, id)
			if !ok || doc[schema.ColumnStatus] != schema.StatusDeleted {
				continue
			}

			if err := c.Remove(doc); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetLocal implements LocalStorage
func (a *MemoryAdapter) GetLocal(_ context.Context, key string) (string, bool, error) {
	c := a.db.GetCollection(LocalStorageTable)
	if c == nil {
		return "", false, nil
	}

	doc, ok := c.By(localKeyField, key)
	if !ok {
		return "", false, nil
	}

	value, _ := doc[localValueField].(string)

	return value, true, nil
}

// SetLocal implements LocalStorage
func (a *MemoryAdapter) SetLocal(_ context.Context, key, value string) error {
	return a.mutate("set_local", func() error {
		return a.setLocal(key, value)
	})
}

func (a *MemoryAdapter) setLocal(key, value string) error {
	c, err := a.collection(LocalStorageTable)
	if err != nil {
		return err
	}

	if doc, ok := c.By(localKeyField, key); ok {
		doc[localValueField] = value
		return c.Update(doc)
	}

	_, err = c.Insert(docstore.Document{localKeyField: key, localValueField: value})

	return err
}

// RemoveLocal implements LocalStorage
func (a *MemoryAdapter) RemoveLocal(_ context.Context, key string) error {
	return a.mutate("remove_local", func() error {
		c, err := a.collection(LocalStorageTable)
		if err != nil {
			return err
		}

		if doc, ok := c.By(localKeyField, key); ok {
			return c.Remove(doc)
		}

		return nil
	})
}

// Close releases nothing; the data lives only as long as the adapter
func (a *MemoryAdapter) Close() error {
	return nil
}

func createCollection(db *docstore.DB, table schema.TableSpec) error {
	indices := append([]string{schema.ColumnStatus}, table.IndexedColumns()...)

	if _, err := db.AddCollection(table.Name, docstore.CollectionOptions{
		Unique:  []string{schema.ColumnID},
		Indices: indices,
	}); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", table.Name, err)
	}

	return nil
}

// docstoreExecutor applies migration steps to document collections
type docstoreExecutor struct {
	db     *docstore.DB
	logger *logging.Logger
}

func (e *docstoreExecutor) collection(table string) (*docstore.Collection, error) {
	c := e.db.GetCollection(table)
	if c == nil {
		return nil, errors.Newf(errors.ErrTypeDatabase, "collection %s does not exist", table)
	}

	return c, nil
}

func (e *docstoreExecutor) VisitCreateTable(step migrations.CreateTable) error {
	return createCollection(e.db, step.Schema)
}

func (e *docstoreExecutor) VisitAddColumns(step migrations.AddColumns) error {
	c, err := e.collection(step.Table)
	if err != nil {
		return err
	}

	if err := c.FindAndUpdate(nil, func(doc docstore.Document) {
		for _, column := range step.Columns {
			doc[column.Name] = schema.NullValue(column)
		}
	}); err != nil {
		return err
	}

	for _, column := range step.Columns {
		if column.IsIndexed {
			c.EnsureIndex(column.Name)
		}
	}

	return nil
}

func (e *docstoreExecutor) VisitDestroyColumn(step migrations.DestroyColumn) error {
	c, err := e.collection(step.Table)
	if err != nil {
		return err
	}

	c.RemoveIndex(step.Column)

	return c.FindAndUpdate(nil, func(doc docstore.Document) {
		delete(doc, step.Column)
	})
}

func (e *docstoreExecutor) VisitRenameColumn(step migrations.RenameColumn) error {
	c, err := e.collection(step.Table)
	if err != nil {
		return err
	}

	if err := c.FindAndUpdate(nil, func(doc docstore.Document) {
		if v, ok := doc[step.From]; ok {
			doc[step.To] = v
		} else {
			delete(doc, step.To)
		}
	}); err != nil {
		return err
	}

	return c.FindAndUpdate(nil, func(doc docstore.Document) {
		delete(doc, step.From)
	})
}

func (e *docstoreExecutor) VisitDestroyTable(step migrations.DestroyTable) error {
	e.db.RemoveCollection(step.Table)
	return nil
}

func (e *docstoreExecutor) VisitMakeColumnOptional(migrations.MakeColumnOptional) error {
	return nil
}

func (e *docstoreExecutor) VisitMakeColumnRequired(step migrations.MakeColumnRequired) error {
	c, err := e.collection(step.Table)
	if err != nil {
		return err
	}

	return c.FindAndUpdate(func(doc docstore.Document) bool {
		return doc[step.Column] == nil
	}, func(doc docstore.Document) {
		doc[step.Column] = step.DefaultValue
	})
}

func (e *docstoreExecutor) VisitAddColumnIndex(step migrations.AddColumnIndex) error {
	c, err := e.collection(step.Table)
	if err != nil {
		return err
	}

	c.EnsureIndex(step.Column)

	return nil
}

func (e *docstoreExecutor) VisitRemoveColumnIndex(step migrations.RemoveColumnIndex) error {
	c, err := e.collection(step.Table)
	if err != nil {
		return err
	}

	c.RemoveIndex(step.Column)

	return nil
}

// Raw statements target relational stores only
func (e *docstoreExecutor) VisitRawSQL(step migrations.RawSQL) error {
	e.logger.WithField("error_type", string(errors.ErrTypeUnsupportedBackend)).
		Debugf("Skipping raw SQL step: %s", step.SQL)

	return nil
}
