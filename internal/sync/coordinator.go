package sync

import (
	"context"
	"strconv"
	gosync "sync"

	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/metrics"
	"github.com/kyleking/schemasync/internal/migrations"
	"github.com/kyleking/schemasync/internal/schema"
)

// Local storage keys
const (
	LastPulledAtKey            = "__schemasync_last_pulled_at"
	LastPulledSchemaVersionKey = "__schemasync_last_pulled_schema_version"
)

// LocalStorage is the key-value store holding sync bookkeeping
type LocalStorage interface {
	GetLocal(ctx context.Context, key string) (string, bool, error)
	SetLocal(ctx context.Context, key, value string) error
}

// Options configures a Coordinator
type Options struct {
	SchemaVersion schema.Version
	Migrations    *migrations.Registry
	// MigrationsEnabledAtVersion is the schema version the app had when
	// migration syncs were turned on. Zero disables them.
	MigrationsEnabledAtVersion schema.Version
	Logger                     *logging.Logger
	Metrics                    *metrics.Collector
}

// Coordinator plans and runs sync sessions against one store. Sessions are
// serialized.
type Coordinator struct {
	store  LocalStorage
	opts   Options
	logger *logging.Logger

	session gosync.Mutex
}

// NewCoordinator creates a coordinator for store
func NewCoordinator(store LocalStorage, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Coordinator{
		store:  store,
		opts:   opts,
		logger: logger.WithField("component", "sync"),
	}
}

// GetLastPulledAt returns the server timestamp of the last pull. Missing,
// zero and malformed values all read as absent.
func (c *Coordinator) GetLastPulledAt(ctx context.Context) (int64, bool, error) {
	value, ok, err := c.store.GetLocal(ctx, LastPulledAtKey)
	if err != nil || !ok {
		return 0, false, err
	}

	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ts == 0 {
		return 0, false, nil
	}

	return ts, true, nil
}

// SetLastPulledAt stores the server timestamp of a finished pull. A timestamp
// older than the stored one is logged and stored anyway.
func (c *Coordinator) SetLastPulledAt(ctx context.Context, timestamp int64) error {
	previous, _, err := c.GetLastPulledAt(ctx)
	if err != nil {
		return err
	}

	if timestamp < previous {
		c.logger.WithFields(map[string]interface{}{
			"timestamp": timestamp,
			"previous":  previous,
		}).Error("Pull finished with a server time older than the previous pull, most likely a server bug")
	}

	return c.store.SetLocal(ctx, LastPulledAtKey, strconv.FormatInt(timestamp, 10))
}

// GetLastPulledSchemaVersion returns the schema version of the last pull
func (c *Coordinator) GetLastPulledSchemaVersion(ctx context.Context) (schema.Version, bool, error) {
	value, ok, err := c.store.GetLocal(ctx, LastPulledSchemaVersionKey)
	if err != nil || !ok {
		return 0, false, err
	}

	version, err := strconv.Atoi(value)
	if err != nil || version == 0 {
		return 0, false, nil
	}

	return schema.Version(version), true, nil
}

// SetLastPulledSchemaVersion stores the schema version of a finished pull
func (c *Coordinator) SetLastPulledSchemaVersion(ctx context.Context, version schema.Version) error {
	return c.store.SetLocal(ctx, LastPulledSchemaVersionKey, strconv.Itoa(int(version)))
}

// Plan computes the migration info for a pull made after lastPulledAt (zero
// for the first sync).
func (c *Coordinator) Plan(ctx context.Context, lastPulledAt int64) (*Plan, error) {
	lastPulledSchemaVersion, _, err := c.GetLastPulledSchemaVersion(ctx)
	if err != nil {
		c.opts.Metrics.RecordSyncDiff(metrics.OutcomeFailure)
		return nil, err
	}

	if lastPulledSchemaVersion != 0 && lastPulledAt == 0 {
		c.logger.Error("Last pulled schema version is set, but this is the first sync. " +
			"The backend most likely does not return a correct timestamp")
	}

	plan, err := PlanSync(PlanInput{
		SchemaVersion:              c.opts.SchemaVersion,
		Registry:                   c.opts.Migrations,
		LastPulledAt:               lastPulledAt,
		LastPulledSchemaVersion:    lastPulledSchemaVersion,
		MigrationsEnabledAtVersion: c.opts.MigrationsEnabledAtVersion,
	})
	if err != nil {
		c.opts.Metrics.RecordSyncDiff(metrics.OutcomeFailure)

		if errors.IsType(err, errors.ErrTypeRangeUnavailable) {
			c.logger.ErrorWithErr("Migration sync range is not covered by the registry", err)
		}

		return nil, err
	}

	switch {
	case plan.Migration != nil:
		c.logger.Infof("Performing migration sync from %d to %d", plan.MigrateFrom, plan.SchemaVersion)

		if lastPulledSchemaVersion == 0 {
			c.logger.Warn("Using fallback initial schema version. The migration sync might not contain all necessary migrations")
		}

		c.opts.Metrics.RecordSyncDiff(metrics.OutcomeSuccess)
	case plan.MigrationsEnabled:
		c.opts.Metrics.RecordSyncDiff(metrics.OutcomeNoChanges)
	default:
		c.opts.Metrics.RecordSyncDiff(metrics.OutcomeSkipped)
	}

	return plan, nil
}
