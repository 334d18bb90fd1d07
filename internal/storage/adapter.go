package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/metrics"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// Backend names, also used as metric labels
const (
	BackendSQLite   = "sqlite"
	BackendDocstore = "docstore"
)

// Adapter defines the operations shared by every storage backend
type Adapter interface {
	// Backend returns the backend name
	Backend() string

	// SetUp brings the store to the current schema version, migrating when
	// the required steps are available and resetting otherwise.
	SetUp(ctx context.Context) (SetUpResult, error)
	// StoredVersion returns the schema version recorded in the store, or 0
	// for a store that was never set up.
	StoredVersion(ctx context.Context) (schema.Version, error)
	// Migrate applies steps in order and records the current schema version.
	Migrate(ctx context.Context, steps []migrations.Step) error

	Find(ctx context.Context, table, id string) (schema.RawRecord, error)
	Query(ctx context.Context, table string, where map[string]any) ([]schema.RawRecord, error)
	Count(ctx context.Context, table string) (int, error)
	Batch(ctx context.Context, operations []Operation) error
	GetDeletedRecords(ctx context.Context, table string) ([]string, error)
	DestroyDeletedRecords(ctx context.Context, table string, ids []string) error

	LocalStorage

	// UnsafeResetDatabase drops all data and recreates the current schema
	UnsafeResetDatabase(ctx context.Context) error
	Close() error
}

// LocalStorage is the string key-value store kept next to the records
type LocalStorage interface {
	// GetLocal returns the stored value and whether the key exists
	GetLocal(ctx context.Context, key string) (string, bool, error)
	SetLocal(ctx context.Context, key, value string) error
	RemoveLocal(ctx context.Context, key string) error
}

// OperationType is the kind of a batch operation
type OperationType string

const (
	OpCreate             OperationType = "create"
	OpUpdate             OperationType = "update"
	OpMarkAsDeleted      OperationType = "markAsDeleted"
	OpDestroyPermanently OperationType = "destroyPermanently"
)

// Operation is one entry of a batch. Create and update carry a record, the
// delete variants only an id.
type Operation struct {
	Type   OperationType
	Table  string
	Record schema.RawRecord
	ID     string
}

// Create builds a create operation
func Create(table string, record schema.RawRecord) Operation {
	return Operation{Type: OpCreate, Table: table, Record: record, ID: record.ID()}
}

// Update builds an update operation
func Update(table string, record schema.RawRecord) Operation {
	return Operation{Type: OpUpdate, Table: table, Record: record, ID: record.ID()}
}

// MarkAsDeleted builds an operation setting the record status to deleted
func MarkAsDeleted(table, id string) Operation {
	return Operation{Type: OpMarkAsDeleted, Table: table, ID: id}
}

// DestroyPermanently builds an operation removing the record
func DestroyPermanently(table, id string) Operation {
	return Operation{Type: OpDestroyPermanently, Table: table, ID: id}
}

// LocalStorageTable holds the key-value pairs of LocalStorage
const LocalStorageTable = "local_storage"

// FatalHandler is called once when a store becomes unusable
type FatalHandler func(err error)

// Options configures an adapter
type Options struct {
	Schema     schema.AppSchema
	Migrations *migrations.Registry
	Logger     *logging.Logger
	Metrics    *metrics.Collector
	// OnFatal is invoked the first time the docstore backend breaks
	OnFatal FatalHandler
}

func (o Options) validate() error {
	if !schema.ValidationEnabled || o.Migrations == nil {
		return nil
	}

	if o.Migrations.MaxVersion() != o.Schema.Version {
		return errors.NewValidationError(
			"migrations end at version %d but the schema is at version %d",
			o.Migrations.MaxVersion(), o.Schema.Version)
	}

	return nil
}

func (o Options) logger(backend string) *logging.Logger {
	logger := o.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	return logger.WithField("component", backend)
}

// prepareRecord fills in the hidden and declared columns missing from raw.
// Declared values are sanitized to their column type.
func prepareRecord(table schema.TableSpec, raw schema.RawRecord) schema.RawRecord {
	record := raw.Clone()

	if record.ID() == "" {
		record[schema.ColumnID] = uuid.NewString()
	}

	if _, ok := record[schema.ColumnStatus].(string); !ok {
		record[schema.ColumnStatus] = schema.StatusCreated
	}

	if _, ok := record[schema.ColumnChanged].(string); !ok {
		record[schema.ColumnChanged] = ""
	}

	for _, column := range table.Columns {
		record[column.Name] = schema.SanitizeValue(record[column.Name], column)
	}

	return record
}

// normalizeRecord converts values read back from a backend into the types of
// the declared columns, so both backends return the same record.
func normalizeRecord(table schema.TableSpec, record schema.RawRecord) schema.RawRecord {
	for _, column := range table.Columns {
		v, ok := record[column.Name]
		if !ok || v == nil {
			continue
		}

		switch column.Type {
		case schema.TypeBoolean:
			if _, isBool := v.(bool); !isBool {
				if n, isNum := schema.ToFloat(v); isNum {
					record[column.Name] = n != 0
				}
			}
		case schema.TypeNumber:
			if n, isNum := schema.ToFloat(v); isNum {
				record[column.Name] = n
			}
		}
	}

	return record
}

func unknownTable(table string) error {
	return errors.Newf(errors.ErrTypeDatabase, "table %q is not part of the schema", table)
}
