package engine

import (
	"github.com/clustersched/logstorage/internal/storage/events"
	"github.com/clustersched/logstorage/pkg/domain"
	"github.com/clustersched/logstorage/pkg/schema"
)

// Mutations is the mutable store handle passed into a write scope: work
// passed to Write receives one of these, and every method both mutates the
// underlying domain store and — unless the store reports "no change" —
// appends the corresponding Op to the enclosing write scope's buffer. The
// store methods report no errors; if encoding a method's Op fails, the
// method panics with a *StoreError wrapper that Write recovers, so the
// transaction aborts and the error propagates without anything having been
// appended to the log, without requiring every Mutations method to return
// its own error. The store mutation itself has already been applied.
type Mutations struct {
	e *Engine
}

func (m *Mutations) append(op schema.Op, err error) {
	if err != nil {
		panic(&StoreError{Cause: err})
	}
	m.e.coalescer.Append(op)
}

// SaveFrameworkId records the scheduler's driver framework id.
func (m *Mutations) SaveFrameworkId(id string) {
	m.e.stores.Scheduler.SaveFrameworkId(id)
	op, err := schema.NewOp(schema.OpSaveFrameworkId, schema.SaveFrameworkIdOp{Id: id})
	m.append(op, err)
}

// SaveCronJob accepts cfg as a job the scheduler will run on its cron
// schedule.
func (m *Mutations) SaveCronJob(cfg domain.JobConfiguration) {
	m.e.stores.Job.SaveAcceptedJob(cfg)
	op, err := schema.NewOp(schema.OpSaveCronJob, schema.SaveCronJobOp{Config: cfg})
	m.append(op, err)
}

// RemoveJob deletes a previously accepted cron job.
func (m *Mutations) RemoveJob(key domain.JobKey) {
	m.e.stores.Job.RemoveJob(key)
	op, err := schema.NewOp(schema.OpRemoveJob, schema.RemoveJobOp{Key: key})
	m.append(op, err)
}

// SaveTasks persists newly scheduled task instances.
func (m *Mutations) SaveTasks(tasks []domain.ScheduledTask) {
	m.e.stores.Task.SaveTasks(tasks)
	op, err := schema.NewOp(schema.OpSaveTasks, schema.SaveTasksOp{Tasks: tasks})
	m.append(op, err)
}

// RewriteTask replaces taskId's config in place. No op is buffered if the
// store reports the config was unchanged.
func (m *Mutations) RewriteTask(taskId string, cfg domain.TaskConfig) bool {
	changed := m.e.stores.Task.UnsafeModifyInPlace(taskId, cfg)
	if !changed {
		return false
	}
	op, err := schema.NewOp(schema.OpRewriteTask, schema.RewriteTaskOp{TaskId: taskId, NewConfig: cfg})
	m.append(op, err)
	return true
}

// RemoveTasks deletes the named task instances.
func (m *Mutations) RemoveTasks(ids []string) {
	m.e.stores.Task.DeleteTasks(ids)
	op, err := schema.NewOp(schema.OpRemoveTasks, schema.RemoveTasksOp{Ids: ids})
	m.append(op, err)
}

// SaveQuota sets role's resource quota.
func (m *Mutations) SaveQuota(role string, aggregate domain.ResourceAggregate) {
	m.e.stores.Quota.SaveQuota(role, aggregate)
	op, err := schema.NewOp(schema.OpSaveQuota, schema.SaveQuotaOp{Role: role, Aggregate: aggregate})
	m.append(op, err)
}

// RemoveQuota clears role's resource quota.
func (m *Mutations) RemoveQuota(role string) {
	m.e.stores.Quota.RemoveQuota(role)
	op, err := schema.NewOp(schema.OpRemoveQuota, schema.RemoveQuotaOp{Role: role})
	m.append(op, err)
}

// SaveHostAttributes records attrs for its host, posting
// HostAttributesChanged and buffering an op only if the record actually
// changed.
func (m *Mutations) SaveHostAttributes(attrs domain.HostAttributes) bool {
	changed := m.e.stores.Attribute.SaveHostAttributes(attrs)
	if !changed {
		return false
	}
	op, err := schema.NewOp(schema.OpSaveHostAttributes, schema.SaveHostAttributesOp{Attributes: attrs})
	m.append(op, err)
	if m.e.eventSink != nil {
		m.e.eventSink.Post(events.HostAttributesChanged{Attributes: attrs})
	}
	return true
}

// SaveLock records a mutual-exclusion lease over a job.
func (m *Mutations) SaveLock(lock domain.Lock) {
	m.e.stores.Lock.SaveLock(lock)
	op, err := schema.NewOp(schema.OpSaveLock, schema.SaveLockOp{Lock: lock})
	m.append(op, err)
}

// RemoveLock releases a previously held lock.
func (m *Mutations) RemoveLock(key domain.LockKey) {
	m.e.stores.Lock.RemoveLock(key)
	op, err := schema.NewOp(schema.OpRemoveLock, schema.RemoveLockOp{Key: key})
	m.append(op, err)
}

// SaveJobUpdate records or replaces a job update. lockToken, if present, is
// carried on the wire for informational/audit purposes only — the engine
// does not itself enforce lock ownership.
func (m *Mutations) SaveJobUpdate(update domain.JobUpdate, lockToken *string) {
	var key domain.JobUpdateKey
	if update.Summary.Key != nil {
		key = *update.Summary.Key
	}
	m.e.stores.JobUpdate.SaveJobUpdate(key, update)
	op, err := schema.NewOp(schema.OpSaveJobUpdate, schema.SaveJobUpdateOp{Update: update, LockToken: lockToken})
	m.append(op, err)
}

// SaveJobUpdateEvent records a status transition for the update as a
// whole.
func (m *Mutations) SaveJobUpdateEvent(key domain.JobUpdateKey, event domain.JobUpdateEvent) {
	m.e.stores.JobUpdate.SaveJobUpdateEvent(key, event)
	op, err := schema.NewOp(schema.OpSaveJobUpdateEvent, schema.SaveJobUpdateEventOp{Event: event, UpdateKey: &key})
	m.append(op, err)
}

// SaveJobInstanceUpdateEvent records a status transition for one instance
// of an update.
func (m *Mutations) SaveJobInstanceUpdateEvent(key domain.JobUpdateKey, event domain.JobInstanceUpdateEvent) {
	m.e.stores.JobUpdate.SaveJobInstanceUpdateEvent(key, event)
	op, err := schema.NewOp(schema.OpSaveJobInstanceUpdateEvent, schema.SaveJobInstanceUpdateEventOp{Event: event, UpdateKey: &key})
	m.append(op, err)
}

// PruneJobUpdateHistory trims old update history, keeping at most
// perJobRetain updates per job among those whose last event is older than
// thresholdMs.
func (m *Mutations) PruneJobUpdateHistory(perJobRetain int, thresholdMs int64) {
	m.e.stores.JobUpdate.PruneJobUpdateHistory(perJobRetain, thresholdMs)
	op, err := schema.NewOp(schema.OpPruneJobUpdateHistory, schema.PruneJobUpdateHistoryOp{
		PerJobRetain: perJobRetain,
		ThresholdMs:  thresholdMs,
	})
	m.append(op, err)
}
