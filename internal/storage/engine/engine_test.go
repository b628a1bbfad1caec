package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustersched/logstorage/internal/storage/logmanager"
	"github.com/clustersched/logstorage/internal/storage/logstream"
	"github.com/clustersched/logstorage/internal/storage/schedule"
	"github.com/clustersched/logstorage/internal/storage/stores"
	"github.com/clustersched/logstorage/pkg/domain"
	"github.com/clustersched/logstorage/pkg/schema"
)

func scheduleService(t *testing.T) *schedule.Service {
	t.Helper()
	return schedule.New(nil)
}

func newTestEngine(t *testing.T) (*Engine, *stores.InMemory) {
	t.Helper()
	mem := stores.NewInMemory()
	factory := logmanager.NewDefaultFactory(logstream.DefaultOptions())
	logMgr := logmanager.New(logstream.NewMemoryLog(), factory)
	e := New(logMgr, mem.AsStores(), mem, nil, nil, Options{}, nil)
	require.NoError(t, e.Start(nil))
	return e, mem
}

// newReplayedEngine appends ops directly (bypassing Write, the way a prior
// process's log already would have) then starts a fresh engine over the
// same log, returning the recovered stores.
func newReplayedEngine(t *testing.T, ops []schema.Op) *stores.InMemory {
	t.Helper()
	log := logstream.NewMemoryLog()
	factory := logmanager.NewDefaultFactory(logstream.DefaultOptions())

	writer := logmanager.New(log, factory)
	stream, err := writer.Open()
	require.NoError(t, err)
	_, err = stream.WriteTransaction(ops)
	require.NoError(t, err)

	mem := stores.NewInMemory()
	e := New(logmanager.New(log, factory), mem.AsStores(), mem, nil, nil, Options{}, nil)
	require.NoError(t, e.Start(nil))
	return mem
}

func TestRecordTableCoversRequiredKinds(t *testing.T) {
	want := map[schema.RecordKind]bool{
		schema.KindTransaction: true,
		schema.KindSnapshot:    true,
		schema.KindNoop:        true,
	}
	assert.Len(t, recordTable, len(want))
	for kind := range want {
		_, ok := recordTable[kind]
		assert.True(t, ok, "record table missing %s", kind)
	}
}

func TestOpTableCoversEveryOpKind(t *testing.T) {
	assert.Len(t, opTable, len(schema.AllOpKinds))
	for _, kind := range schema.AllOpKinds {
		_, ok := opTable[kind]
		assert.True(t, ok, "op table missing handler for %s", kind)
	}
}

func TestSaveFrameworkIdPersistsAndSurvivesReplay(t *testing.T) {
	e, mem := newTestEngine(t)
	_, err := Write(e, func(m *Mutations) (struct{}, error) {
		m.SaveFrameworkId("fw-1")
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fw-1", mem.GetSchedulerMetadata().FrameworkId)

	replayed := stores.NewInMemory()
	r := New(nil, replayed.AsStores(), replayed, nil, nil, Options{}, nil)
	require.NoError(t, e.stream.ReadFromBeginning(r.replayRecord))
	assert.Equal(t, "fw-1", replayed.GetSchedulerMetadata().FrameworkId)
}

func TestNestedWriteScopesCoalesceIntoOneTransaction(t *testing.T) {
	e, mem := newTestEngine(t)

	_, err := Write(e, func(outer *Mutations) (struct{}, error) {
		outer.SaveFrameworkId("fw-outer")
		_, innerErr := Write(e, func(inner *Mutations) (struct{}, error) {
			inner.SaveQuota("role-a", domain.ResourceAggregate{NumCpus: 4})
			return struct{}{}, nil
		})
		if innerErr != nil {
			return struct{}{}, innerErr
		}
		outer.SaveQuota("role-b", domain.ResourceAggregate{NumCpus: 8})
		return struct{}{}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "fw-outer", mem.GetSchedulerMetadata().FrameworkId)
	quotas := mem.GetQuotas()
	assert.Contains(t, quotas, "role-a")
	assert.Contains(t, quotas, "role-b")

	records := 0
	require.NoError(t, e.stream.ReadFromBeginning(func(rec schema.Record) error {
		records++
		assert.Equal(t, schema.KindTransaction, rec.Kind)
		var tx schema.Transaction
		require.NoError(t, rec.Decode(&tx))
		assert.Len(t, tx.Ops, 3)
		return nil
	}))
	assert.Equal(t, 1, records, "nested write scopes must append exactly one transaction")
}

func TestRewriteTaskFiltersNoOpChanges(t *testing.T) {
	e, mem := newTestEngine(t)
	cfg := domain.TaskConfig{Job: domain.JobKey{Role: "r", Environment: "e", Name: "n"}, NumCpus: 1}
	mem.SaveTasks([]domain.ScheduledTask{{TaskId: "t1", Status: "RUNNING", Config: cfg}})

	changed, err := Write(e, func(m *Mutations) (bool, error) {
		return m.RewriteTask("t1", cfg), nil
	})
	require.NoError(t, err)
	assert.False(t, changed, "identical config must report no change")

	newCfg := cfg
	newCfg.NumCpus = 2
	changed, err = Write(e, func(m *Mutations) (bool, error) {
		return m.RewriteTask("t1", newCfg), nil
	})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSaveHostAttributesFiltersNoOpChanges(t *testing.T) {
	e, _ := newTestEngine(t)
	slaveId := "slave-1"
	attrs := domain.HostAttributes{Host: "h1", SlaveId: &slaveId, Mode: "NONE"}

	changed, err := Write(e, func(m *Mutations) (bool, error) {
		return m.SaveHostAttributes(attrs), nil
	})
	require.NoError(t, err)
	assert.True(t, changed, "first save of a host record is always a change")

	changed, err = Write(e, func(m *Mutations) (bool, error) {
		return m.SaveHostAttributes(attrs), nil
	})
	require.NoError(t, err)
	assert.False(t, changed, "identical attributes must report no change")
}

func TestReplayBackfillsJobUpdateKey(t *testing.T) {
	jobKey := domain.JobKey{Role: "r", Environment: "e", Name: "n"}
	updateId := "u-1"
	op, err := schema.NewOp(schema.OpSaveJobUpdate, schema.SaveJobUpdateOp{
		Update: domain.JobUpdate{
			Summary: domain.JobUpdateSummary{JobKey: &jobKey, UpdateId: &updateId, State: "ROLLING_FORWARD"},
		},
	})
	require.NoError(t, err)

	mem := newReplayedEngine(t, []schema.Op{op})

	details := mem.GetJobUpdateDetails()
	require.Len(t, details, 1)
	require.NotNil(t, details[0].Update.Summary.Key)
	assert.Equal(t, jobKey, details[0].Update.Summary.Key.Job)
	assert.Equal(t, updateId, details[0].Update.Summary.Key.UpdateId)
}

func TestReplayDropsJobUpdateEventsWithUnresolvableLegacyId(t *testing.T) {
	legacyId := "unknown-legacy-id"
	op, err := schema.NewOp(schema.OpSaveJobUpdateEvent, schema.SaveJobUpdateEventOp{
		Event:          domain.JobUpdateEvent{Status: "ROLLING_FORWARD", TimestampMs: 1},
		LegacyUpdateId: &legacyId,
	})
	require.NoError(t, err)

	mem := newReplayedEngine(t, []schema.Op{op})

	assert.Empty(t, mem.GetJobUpdateDetails(), "event with unresolvable legacy id must be dropped, not fatal")
}

func TestReplayResolvesJobUpdateEventByLegacyId(t *testing.T) {
	jobKey := domain.JobKey{Role: "r", Environment: "e", Name: "n"}
	updateId := "u-1"
	createOp, err := schema.NewOp(schema.OpSaveJobUpdate, schema.SaveJobUpdateOp{
		Update: domain.JobUpdate{
			Summary: domain.JobUpdateSummary{JobKey: &jobKey, UpdateId: &updateId, State: "ROLLING_FORWARD"},
		},
	})
	require.NoError(t, err)

	eventOp, err := schema.NewOp(schema.OpSaveJobUpdateEvent, schema.SaveJobUpdateEventOp{
		Event:          domain.JobUpdateEvent{Status: "ROLLED_FORWARD", TimestampMs: 2},
		LegacyUpdateId: &updateId,
	})
	require.NoError(t, err)

	mem := newReplayedEngine(t, []schema.Op{createOp, eventOp})

	details := mem.GetJobUpdateDetails()
	require.Len(t, details, 1)
	require.Len(t, details[0].UpdateEvents, 1)
	assert.Equal(t, "ROLLED_FORWARD", details[0].UpdateEvents[0].Status)
}

func TestReplayAppliesHostAttributesWithSlaveId(t *testing.T) {
	slaveId := "slave-1"
	op, err := schema.NewOp(schema.OpSaveHostAttributes, schema.SaveHostAttributesOp{
		Attributes: domain.HostAttributes{Host: "h1", SlaveId: &slaveId, Mode: "NONE"},
	})
	require.NoError(t, err)

	mem := newReplayedEngine(t, []schema.Op{op})

	attrs := mem.GetHostAttributes()
	require.Len(t, attrs, 1)
	assert.Equal(t, "h1", attrs[0].Host)
}

func TestReplayDropsHostAttributesWithoutSlaveId(t *testing.T) {
	op, err := schema.NewOp(schema.OpSaveHostAttributes, schema.SaveHostAttributesOp{
		Attributes: domain.HostAttributes{Host: "h1", Mode: "NONE"},
	})
	require.NoError(t, err)

	mem := newReplayedEngine(t, []schema.Op{op})

	assert.Empty(t, mem.GetHostAttributes())
}

func TestSnapshotAppendsAndTruncates(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := Write(e, func(m *Mutations) (struct{}, error) {
		m.SaveFrameworkId("fw-1")
		return struct{}{}, nil
	})
	require.NoError(t, err)

	snap, err := e.Snapshot()
	require.NoError(t, err)
	_ = snap

	seen := 0
	require.NoError(t, e.stream.ReadFromBeginning(func(rec schema.Record) error {
		seen++
		assert.Equal(t, schema.KindSnapshot, rec.Kind)
		return nil
	}))
	assert.Equal(t, 1, seen, "the prior transaction must have been truncated away")
}

func TestWriteReturnsWorkErrorWithoutAppending(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := Write(e, func(m *Mutations) (struct{}, error) {
		m.SaveFrameworkId("fw-should-not-persist")
		return struct{}{}, assertionError("boom")
	})
	require.Error(t, err)

	seen := 0
	require.NoError(t, e.stream.ReadFromBeginning(func(schema.Record) error {
		seen++
		return nil
	}))
	assert.Equal(t, 0, seen, "a work function returning an error must not append anything")
}

func TestPruneTickPrunesOnSchedule(t *testing.T) {
	mem := stores.NewInMemory()
	factory := logmanager.NewDefaultFactory(logstream.DefaultOptions())
	logMgr := logmanager.New(logstream.NewMemoryLog(), factory)
	sched := scheduleService(t)
	e := New(logMgr, mem.AsStores(), mem, sched, nil, Options{
		SnapshotInterval:  time.Hour,
		PruneInterval:     5 * time.Millisecond,
		PrunePerJobRetain: 1,
		PruneThresholdMs:  time.Now().Add(time.Hour).UnixMilli(),
	}, nil)
	require.NoError(t, e.Start(nil))
	defer e.Stop()

	jobKey := domain.JobKey{Role: "r", Environment: "e", Name: "n"}
	for i := 0; i < 3; i++ {
		updateId := fmt.Sprintf("u-%d", i)
		key := domain.JobUpdateKey{Job: jobKey, UpdateId: updateId}
		_, err := Write(e, func(m *Mutations) (struct{}, error) {
			m.SaveJobUpdate(domain.JobUpdate{
				Summary: domain.JobUpdateSummary{
					Key:      &key,
					JobKey:   &jobKey,
					UpdateId: &updateId,
					State:    "ROLLED_FORWARD",
				},
			}, nil)
			m.SaveJobUpdateEvent(key, domain.JobUpdateEvent{Status: "ROLLED_FORWARD", TimestampMs: int64(i) + 1})
			return struct{}{}, nil
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(mem.GetJobUpdateDetails()) <= 1
	}, 200*time.Millisecond, 5*time.Millisecond, "scheduled pruning should have trimmed history down to the retention count")
}

type assertionError string

func (e assertionError) Error() string { return string(e) }
