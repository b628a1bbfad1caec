package engine

import (
	"encoding/json"
	"fmt"

	"github.com/clustersched/logstorage/pkg/domain"
	"github.com/clustersched/logstorage/pkg/schema"
)

// recordTable is built once and covers every record kind the stream
// manager ever hands the replay dispatcher directly — Frame, DeflatedEntry,
// and DeduplicatedSnapshot are consumed internally by the stream manager
// and never reach here.
var recordTable = map[schema.RecordKind]func(*Engine, schema.Record) error{
	schema.KindTransaction: replayTransaction,
	schema.KindSnapshot:    replaySnapshot,
	schema.KindNoop:        replayNoop,
}

// opHandler applies one op's payload during replay, reporting whether it was
// actually applied to a store (false for the deliberate drop cases: host
// attributes without a slave id, update events whose legacy id cannot be
// resolved).
type opHandler func(*Engine, json.RawMessage) (applied bool, err error)

// opTable is built once and must cover every variant schema.AllOpKinds
// defines.
var opTable = map[schema.OpKind]opHandler{
	schema.OpSaveFrameworkId:            replaySaveFrameworkId,
	schema.OpSaveCronJob:                replaySaveCronJob,
	schema.OpRemoveJob:                  replayRemoveJob,
	schema.OpSaveTasks:                  replaySaveTasks,
	schema.OpRewriteTask:                replayRewriteTask,
	schema.OpRemoveTasks:                replayRemoveTasks,
	schema.OpSaveQuota:                  replaySaveQuota,
	schema.OpRemoveQuota:                replayRemoveQuota,
	schema.OpSaveHostAttributes:         replaySaveHostAttributes,
	schema.OpSaveLock:                   replaySaveLock,
	schema.OpRemoveLock:                 replayRemoveLock,
	schema.OpSaveJobUpdate:              replaySaveJobUpdate,
	schema.OpSaveJobUpdateEvent:         replaySaveJobUpdateEvent,
	schema.OpSaveJobInstanceUpdateEvent: replaySaveJobInstanceUpdateEvent,
	schema.OpPruneJobUpdateHistory:      replayPruneJobUpdateHistory,
}

// replayRecord is the entry point ReadFromBeginning feeds every logical
// record to during Start's recovery pass. A record kind absent from
// recordTable is skipped, not fatal — the stream manager already excludes
// the internally-consumed kinds, so anything else here is a genuinely
// unrecognized forward-compatible variant.
func (e *Engine) replayRecord(rec schema.Record) error {
	handler, ok := recordTable[rec.Kind]
	if !ok {
		return nil
	}
	return handler(e, rec)
}

func replayTransaction(e *Engine, rec schema.Record) error {
	var t schema.Transaction
	if err := rec.Decode(&t); err != nil {
		return &ReplayError{Cause: err}
	}
	for _, op := range t.Ops {
		handler, ok := opTable[op.Kind]
		if !ok {
			return &ReplayError{Cause: fmt.Errorf("unhandled op kind %q", op.Kind)}
		}
		applied, err := handler(e, op.Payload)
		if err != nil {
			return &ReplayError{Cause: err}
		}
		if applied {
			e.recoveryApplied++
		} else {
			e.recoveryDropped++
		}
	}
	return nil
}

func replaySnapshot(e *Engine, rec schema.Record) error {
	var snap schema.Snapshot
	if err := rec.Decode(&snap); err != nil {
		return &ReplayError{Cause: err}
	}
	e.snapshots.ApplySnapshot(snap)
	return nil
}

func replayNoop(*Engine, schema.Record) error {
	return nil
}

func decodeOp(payload json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode op payload: %w", err)
	}
	return nil
}

func replaySaveFrameworkId(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveFrameworkIdOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Scheduler.SaveFrameworkId(p.Id)
	return true, nil
}

func replaySaveCronJob(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveCronJobOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Job.SaveAcceptedJob(p.Config)
	return true, nil
}

func replayRemoveJob(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.RemoveJobOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Job.RemoveJob(p.Key)
	return true, nil
}

func replaySaveTasks(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveTasksOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Task.SaveTasks(p.Tasks)
	return true, nil
}

func replayRewriteTask(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.RewriteTaskOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Task.UnsafeModifyInPlace(p.TaskId, p.NewConfig)
	return true, nil
}

func replayRemoveTasks(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.RemoveTasksOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Task.DeleteTasks(p.Ids)
	return true, nil
}

func replaySaveQuota(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveQuotaOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Quota.SaveQuota(p.Role, p.Aggregate)
	return true, nil
}

func replayRemoveQuota(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.RemoveQuotaOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Quota.RemoveQuota(p.Role)
	return true, nil
}

// replaySaveHostAttributes drops the entry outright when slaveId is
// absent: a deliberate exception to replay applying every recorded op.
func replaySaveHostAttributes(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveHostAttributesOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	if p.Attributes.SlaveId == nil {
		return false, nil
	}
	e.stores.Attribute.SaveHostAttributes(p.Attributes)
	return true, nil
}

func replaySaveLock(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveLockOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Lock.SaveLock(p.Lock)
	return true, nil
}

func replayRemoveLock(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.RemoveLockOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.Lock.RemoveLock(p.Key)
	return true, nil
}

// replaySaveJobUpdate backfills summary.key from jobKey+updateId when the
// key itself was never recorded.
func replaySaveJobUpdate(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveJobUpdateOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	summary := &p.Update.Summary
	if summary.Key == nil && summary.JobKey != nil && summary.UpdateId != nil {
		summary.Key = &domain.JobUpdateKey{Job: *summary.JobKey, UpdateId: *summary.UpdateId}
	}
	if summary.Key == nil {
		return false, fmt.Errorf("SaveJobUpdate: no key and nothing to backfill it from")
	}
	e.stores.JobUpdate.SaveJobUpdate(*summary.Key, p.Update)
	return true, nil
}

func replaySaveJobUpdateEvent(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveJobUpdateEventOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	key, ok := resolveUpdateKey(e, p.UpdateKey, p.LegacyUpdateId)
	if !ok {
		return false, nil
	}
	e.stores.JobUpdate.SaveJobUpdateEvent(key, p.Event)
	return true, nil
}

func replaySaveJobInstanceUpdateEvent(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.SaveJobInstanceUpdateEventOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	key, ok := resolveUpdateKey(e, p.UpdateKey, p.LegacyUpdateId)
	if !ok {
		return false, nil
	}
	e.stores.JobUpdate.SaveJobInstanceUpdateEvent(key, p.Event)
	return true, nil
}

func replayPruneJobUpdateHistory(e *Engine, payload json.RawMessage) (bool, error) {
	var p schema.PruneJobUpdateHistoryOp
	if err := decodeOp(payload, &p); err != nil {
		return false, err
	}
	e.stores.JobUpdate.PruneJobUpdateHistory(p.PerJobRetain, p.ThresholdMs)
	return true, nil
}

// resolveUpdateKey prefers an explicit key; failing that it resolves a
// legacy update id via the job-update store, returning ok=false — meaning
// "drop this event silently" — if neither is available or the legacy id is
// unknown.
func resolveUpdateKey(e *Engine, key *domain.JobUpdateKey, legacyId *string) (domain.JobUpdateKey, bool) {
	if key != nil {
		return *key, true
	}
	if legacyId != nil {
		return e.stores.JobUpdate.FetchUpdateKey(*legacyId)
	}
	return domain.JobUpdateKey{}, false
}
