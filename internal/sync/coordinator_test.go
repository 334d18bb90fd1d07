package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/metrics"
	"github.com/kyleking/schemasync/internal/schema"
	tu "github.com/kyleking/schemasync/internal/testutil"
)

func newTestCoordinator(t *testing.T, store LocalStorage, enabledAt int) (*Coordinator, *metrics.Collector) {
	t.Helper()

	collector := metrics.NewCollector("")

	return NewCoordinator(store, Options{
		SchemaVersion:              3,
		Migrations:                 testRegistry(t),
		MigrationsEnabledAtVersion: schema.Version(enabledAt),
		Logger:                     logging.Nop(),
		Metrics:                    collector,
	}), collector
}

func TestLastPulledAt(t *testing.T) {
	ctx := context.Background()
	store := tu.NewMockLocalStorage()
	c, _ := newTestCoordinator(t, store, 0)

	_, ok, err := c.GetLastPulledAt(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetLastPulledAt(ctx, tu.TestLastPulledAt))

	ts, ok, err := c.GetLastPulledAt(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tu.TestLastPulledAt, ts)

	// Going backwards is logged but still stored
	require.NoError(t, c.SetLastPulledAt(ctx, tu.TestLastPulledAt-1))

	ts, _, err = c.GetLastPulledAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, tu.TestLastPulledAt-1, ts)
}

func TestLastPulledAtMalformed(t *testing.T) {
	for _, value := range []string{"", "0", "soon"} {
		t.Run(value, func(t *testing.T) {
			store := tu.NewMockLocalStorage(tu.WithValue(LastPulledAtKey, value))
			c, _ := newTestCoordinator(t, store, 0)

			_, ok, err := c.GetLastPulledAt(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLastPulledSchemaVersion(t *testing.T) {
	ctx := context.Background()
	store := tu.NewMockLocalStorage()
	c, _ := newTestCoordinator(t, store, 0)

	_, ok, err := c.GetLastPulledSchemaVersion(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetLastPulledSchemaVersion(ctx, 2))

	version, ok, err := c.GetLastPulledSchemaVersion(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, schema.Version(2), version)

	value, _ := store.Value(LastPulledSchemaVersionKey)
	assert.Equal(t, "2", value)
}

func TestCoordinatorPlanMetrics(t *testing.T) {
	ctx := context.Background()
	store := tu.NewMockLocalStorage(tu.WithValue(LastPulledSchemaVersionKey, "2"))

	c, collector := newTestCoordinator(t, store, 2)

	plan, err := c.Plan(ctx, tu.TestLastPulledAt)
	require.NoError(t, err)
	require.NotNil(t, plan.Migration)
	assert.Equal(t, float64(1), promtest.ToFloat64(collector.SyncDiffs.WithLabelValues(metrics.OutcomeSuccess)))

	plan, err = c.Plan(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, plan.Migration)
	assert.Equal(t, float64(1), promtest.ToFloat64(collector.SyncDiffs.WithLabelValues(metrics.OutcomeNoChanges)))

	disabled, collector := newTestCoordinator(t, store, 0)
	_, err = disabled.Plan(ctx, tu.TestLastPulledAt)
	require.NoError(t, err)
	assert.Equal(t, float64(1), promtest.ToFloat64(collector.SyncDiffs.WithLabelValues(metrics.OutcomeSkipped)))

	invalid, collector := newTestCoordinator(t, store, 7)
	_, err = invalid.Plan(ctx, tu.TestLastPulledAt)
	require.Error(t, err)
	assert.Equal(t, float64(1), promtest.ToFloat64(collector.SyncDiffs.WithLabelValues(metrics.OutcomeFailure)))
}

func TestSynchronizeFirstSync(t *testing.T) {
	ctx := context.Background()
	store := tu.NewMockLocalStorage()
	c, _ := newTestCoordinator(t, store, 2)

	var received PullRequest

	plan, err := c.Synchronize(ctx, func(_ context.Context, req PullRequest) (PullResponse, error) {
		received = req
		return PullResponse{Timestamp: tu.TestLastPulledAt}, nil
	})
	require.NoError(t, err)
	assert.True(t, plan.IsFirstSync)
	assert.Nil(t, received.LastPulledAt)
	assert.Nil(t, received.Migration)
	assert.Equal(t, schema.Version(3), received.SchemaVersion)

	value, _ := store.Value(LastPulledAtKey)
	assert.Equal(t, strconv.FormatInt(tu.TestLastPulledAt, 10), value)

	value, _ = store.Value(LastPulledSchemaVersionKey)
	assert.Equal(t, "3", value)

	// The next session has nothing to migrate and does not rewrite the version
	plan, err = c.Synchronize(ctx, func(_ context.Context, req PullRequest) (PullResponse, error) {
		received = req
		return PullResponse{Timestamp: tu.TestLastPulledAt + 1}, nil
	})
	require.NoError(t, err)
	assert.False(t, plan.ShouldPersistSchemaVersion)
	require.NotNil(t, received.LastPulledAt)
	assert.Equal(t, tu.TestLastPulledAt, *received.LastPulledAt)
	assert.Nil(t, received.Migration)
}

func TestSynchronizeAfterUpgrade(t *testing.T) {
	ctx := context.Background()
	store := tu.NewMockLocalStorage(
		tu.WithValue(LastPulledAtKey, strconv.FormatInt(tu.TestLastPulledAt, 10)),
		tu.WithValue(LastPulledSchemaVersionKey, "2"),
	)
	c, _ := newTestCoordinator(t, store, 1)

	var payload []byte

	plan, err := c.Synchronize(ctx, func(_ context.Context, req PullRequest) (PullResponse, error) {
		var err error
		payload, err = json.Marshal(req)

		return PullResponse{Timestamp: tu.TestLastPulledAt + 10}, err
	})
	require.NoError(t, err)
	require.NotNil(t, plan.Migration)
	assert.Equal(t, schema.Version(2), plan.MigrateFrom)

	assert.JSONEq(t, `{
		"lastPulledAt": 1700000000000,
		"schemaVersion": 3,
		"migration": {"from": 2, "tables": [], "columns": [{"table": "posts", "columns": ["subtitle"]}]}
	}`, string(payload))

	value, _ := store.Value(LastPulledSchemaVersionKey)
	assert.Equal(t, "3", value)
}

func TestSynchronizePullFailure(t *testing.T) {
	ctx := context.Background()
	store := tu.NewMockLocalStorage()
	c, _ := newTestCoordinator(t, store, 0)

	_, err := c.Synchronize(ctx, func(context.Context, PullRequest) (PullResponse, error) {
		return PullResponse{}, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, ok := store.Value(LastPulledAtKey)
	assert.False(t, ok)
	assert.Equal(t, 0, store.CallCount("set"))
}

func TestSynchronizeStoreFailure(t *testing.T) {
	store := tu.NewMockLocalStorage(tu.WithLocalError("get", assert.AnError))
	c, _ := newTestCoordinator(t, store, 0)

	called := false
	_, err := c.Synchronize(context.Background(), func(context.Context, PullRequest) (PullResponse, error) {
		called = true
		return PullResponse{}, nil
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, called)
}

func TestSynchronizeIsSerialized(t *testing.T) {
	store := tu.NewMockLocalStorage()
	c, _ := newTestCoordinator(t, store, 0)

	var inFlight, maxInFlight, clock atomic.Int64

	tu.RunConcurrent(t, tu.TestWorkerCount, func(int) {
		_, err := c.Synchronize(context.Background(), func(context.Context, PullRequest) (PullResponse, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)

			for {
				seen := maxInFlight.Load()
				if n <= seen || maxInFlight.CompareAndSwap(seen, n) {
					break
				}
			}

			return PullResponse{Timestamp: tu.TestLastPulledAt + clock.Add(1)}, nil
		})
		assert.NoError(t, err)
	})

	assert.Equal(t, int64(1), maxInFlight.Load())

	value, _ := store.Value(LastPulledAtKey)
	assert.Equal(t, strconv.FormatInt(tu.TestLastPulledAt+tu.TestWorkerCount, 10), value)
}

func TestSynchronizePersistFailure(t *testing.T) {
	ctx := context.Background()

	// The first write (last pulled at) succeeds, the schema version write fails
	store := tu.NewMockLocalStorage(tu.WithLocalErrorAfter("set", 1, assert.AnError))
	c, _ := newTestCoordinator(t, store, 0)

	_, err := c.Synchronize(ctx, func(context.Context, PullRequest) (PullResponse, error) {
		return PullResponse{Timestamp: tu.TestLastPulledAt}, nil
	})
	assert.ErrorIs(t, err, assert.AnError)

	value, ok := store.Value(LastPulledAtKey)
	assert.True(t, ok)
	assert.Equal(t, strconv.FormatInt(tu.TestLastPulledAt, 10), value)

	_, ok = store.Value(LastPulledSchemaVersionKey)
	assert.False(t, ok)
	assert.Equal(t, 2, store.CallCount("set"))
}
