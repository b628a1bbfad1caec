// Package stores defines the domain stores the storage engine mutates and
// replays against (scheduler / job / task / lock / quota / attribute /
// job-update), plus an in-memory reference implementation of all seven:
// one map per entity as the single source of truth, with no secondary
// indexes, and a single sync.RWMutex guarding every map. The engine
// always calls these while already holding its own engine-wide mutex;
// the in-memory store's own lock exists so the stores remain independently
// safe to use outside that discipline too (e.g. from a read-only status
// command).
package stores

import "github.com/clustersched/logstorage/pkg/domain"

// SchedulerStore holds process-wide scheduler metadata.
type SchedulerStore interface {
	SaveFrameworkId(id string)
	GetSchedulerMetadata() domain.SchedulerMetadata
}

// JobStore holds accepted cron job definitions.
type JobStore interface {
	SaveAcceptedJob(cfg domain.JobConfiguration)
	RemoveJob(key domain.JobKey)
	GetJobs() []domain.JobConfiguration
}

// TaskStore holds scheduled task instances.
type TaskStore interface {
	SaveTasks(tasks []domain.ScheduledTask)
	// UnsafeModifyInPlace rewrites taskId's config if the task exists,
	// reporting whether anything actually changed.
	UnsafeModifyInPlace(taskId string, cfg domain.TaskConfig) bool
	DeleteTasks(ids []string)
	GetTasks() []domain.ScheduledTask
}

// QuotaStore holds per-role resource quotas.
type QuotaStore interface {
	SaveQuota(role string, aggregate domain.ResourceAggregate)
	RemoveQuota(role string)
	GetQuotas() map[string]domain.ResourceAggregate
}

// AttributeStore holds per-host maintenance/attribute records.
type AttributeStore interface {
	// SaveHostAttributes reports whether the stored record actually
	// changed, gating both the op buffer append and the
	// HostAttributesChanged event.
	SaveHostAttributes(attrs domain.HostAttributes) bool
	GetHostAttributes() []domain.HostAttributes
}

// LockStore holds active job locks.
type LockStore interface {
	SaveLock(lock domain.Lock)
	RemoveLock(key domain.LockKey)
	GetLocks() []domain.Lock
}

// JobUpdateStore holds job update records and their event history.
type JobUpdateStore interface {
	SaveJobUpdate(key domain.JobUpdateKey, update domain.JobUpdate)
	SaveJobUpdateEvent(key domain.JobUpdateKey, event domain.JobUpdateEvent)
	SaveJobInstanceUpdateEvent(key domain.JobUpdateKey, event domain.JobInstanceUpdateEvent)
	// FetchUpdateKey resolves a legacy update id to its full key, used by
	// the replay dispatcher's legacy-id backfill rule.
	FetchUpdateKey(legacyUpdateId string) (domain.JobUpdateKey, bool)
	PruneJobUpdateHistory(perJobRetain int, thresholdMs int64)
	GetJobUpdateDetails() []domain.JobUpdateDetails
}

// Stores bundles every domain store the engine routes mutations through.
type Stores struct {
	Scheduler SchedulerStore
	Job       JobStore
	Task      TaskStore
	Quota     QuotaStore
	Attribute AttributeStore
	Lock      LockStore
	JobUpdate JobUpdateStore
}
