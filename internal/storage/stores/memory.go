package stores

import (
	"sort"
	"sync"

	"github.com/clustersched/logstorage/pkg/domain"
	"github.com/clustersched/logstorage/pkg/schema"
)

// InMemory is a reference implementation of every domain store plus the
// snapshot provider contract (CreateSnapshot/ApplySnapshot): one map per
// entity as the single source of truth, all guarded by one RWMutex, with
// CreateSnapshot/ApplySnapshot walking every map under that lock.
type InMemory struct {
	mu sync.RWMutex

	metadata domain.SchedulerMetadata
	jobs     map[domain.JobKey]domain.JobConfiguration
	tasks    map[string]domain.ScheduledTask
	quotas   map[string]domain.ResourceAggregate
	hosts    map[string]domain.HostAttributes
	locks    map[domain.LockKey]domain.Lock
	updates  map[domain.JobUpdateKey]*jobUpdateRecord
}

type jobUpdateRecord struct {
	update         domain.JobUpdate
	updateEvents   []domain.JobUpdateEvent
	instanceEvents []domain.JobInstanceUpdateEvent
}

// NewInMemory builds an empty InMemory store bundle.
func NewInMemory() *InMemory {
	return &InMemory{
		jobs:    make(map[domain.JobKey]domain.JobConfiguration),
		tasks:   make(map[string]domain.ScheduledTask),
		quotas:  make(map[string]domain.ResourceAggregate),
		hosts:   make(map[string]domain.HostAttributes),
		locks:   make(map[domain.LockKey]domain.Lock),
		updates: make(map[domain.JobUpdateKey]*jobUpdateRecord),
	}
}

// AsStores exposes m through the Stores interfaces the engine depends on.
func (m *InMemory) AsStores() Stores {
	return Stores{
		Scheduler: m,
		Job:       m,
		Task:      m,
		Quota:     m,
		Attribute: m,
		Lock:      m,
		JobUpdate: m,
	}
}

// --- SchedulerStore ---

func (m *InMemory) SaveFrameworkId(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata.FrameworkId = id
}

func (m *InMemory) GetSchedulerMetadata() domain.SchedulerMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata
}

// --- JobStore ---

func (m *InMemory) SaveAcceptedJob(cfg domain.JobConfiguration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[cfg.Key] = cfg
}

func (m *InMemory) RemoveJob(key domain.JobKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, key)
}

func (m *InMemory) GetJobs() []domain.JobConfiguration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.JobConfiguration, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return jobKeyLess(out[i].Key, out[k].Key) })
	return out
}

// --- TaskStore ---

func (m *InMemory) SaveTasks(tasks []domain.ScheduledTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		m.tasks[t.TaskId] = t
	}
}

func (m *InMemory) UnsafeModifyInPlace(taskId string, cfg domain.TaskConfig) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskId]
	if !ok {
		return false
	}
	if task.Config == cfg {
		return false
	}
	task.Config = cfg
	m.tasks[taskId] = task
	return true
}

func (m *InMemory) DeleteTasks(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.tasks, id)
	}
}

func (m *InMemory) GetTasks() []domain.ScheduledTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].TaskId < out[k].TaskId })
	return out
}

// --- QuotaStore ---

func (m *InMemory) SaveQuota(role string, aggregate domain.ResourceAggregate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[role] = aggregate
}

func (m *InMemory) RemoveQuota(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotas, role)
}

func (m *InMemory) GetQuotas() map[string]domain.ResourceAggregate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.ResourceAggregate, len(m.quotas))
	for k, v := range m.quotas {
		out[k] = v
	}
	return out
}

// --- AttributeStore ---

func (m *InMemory) SaveHostAttributes(attrs domain.HostAttributes) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.hosts[attrs.Host]
	if ok && hostAttributesEqual(existing, attrs) {
		return false
	}
	m.hosts[attrs.Host] = attrs
	return true
}

func (m *InMemory) GetHostAttributes() []domain.HostAttributes {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.HostAttributes, 0, len(m.hosts))
	for _, h := range m.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Host < out[k].Host })
	return out
}

// --- LockStore ---

func (m *InMemory) SaveLock(lock domain.Lock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[lock.Key] = lock
}

func (m *InMemory) RemoveLock(key domain.LockKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
}

func (m *InMemory) GetLocks() []domain.Lock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Lock, 0, len(m.locks))
	for _, l := range m.locks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, k int) bool { return jobKeyLess(out[i].Key.Job, out[k].Key.Job) })
	return out
}

// --- JobUpdateStore ---

func (m *InMemory) SaveJobUpdate(key domain.JobUpdateKey, update domain.JobUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.updates[key]
	if !ok {
		rec = &jobUpdateRecord{}
		m.updates[key] = rec
	}
	rec.update = update
}

func (m *InMemory) SaveJobUpdateEvent(key domain.JobUpdateKey, event domain.JobUpdateEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.updates[key]
	if !ok {
		rec = &jobUpdateRecord{}
		m.updates[key] = rec
	}
	rec.updateEvents = append(rec.updateEvents, event)
}

func (m *InMemory) SaveJobInstanceUpdateEvent(key domain.JobUpdateKey, event domain.JobInstanceUpdateEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.updates[key]
	if !ok {
		rec = &jobUpdateRecord{}
		m.updates[key] = rec
	}
	rec.instanceEvents = append(rec.instanceEvents, event)
}

func (m *InMemory) FetchUpdateKey(legacyUpdateId string) (domain.JobUpdateKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, rec := range m.updates {
		summary := rec.update.Summary
		if summary.UpdateId != nil && *summary.UpdateId == legacyUpdateId {
			return key, true
		}
		if key.UpdateId == legacyUpdateId {
			return key, true
		}
	}
	return domain.JobUpdateKey{}, false
}

// PruneJobUpdateHistory keeps, per job, the perJobRetain most recently
// modified updates whose last event is older than thresholdMs, discarding
// the rest. "Last modified" is the latest event timestamp recorded against
// the update; an update with no events is never a pruning candidate.
func (m *InMemory) PruneJobUpdateHistory(perJobRetain int, thresholdMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type candidate struct {
		key          domain.JobUpdateKey
		lastModified int64
	}
	byJob := make(map[domain.JobKey][]candidate)
	for key, rec := range m.updates {
		last := lastEventTimestamp(rec)
		if last == 0 || last >= thresholdMs {
			continue
		}
		byJob[key.Job] = append(byJob[key.Job], candidate{key: key, lastModified: last})
	}

	for _, candidates := range byJob {
		sort.Slice(candidates, func(i, k int) bool {
			return candidates[i].lastModified > candidates[k].lastModified
		})
		if len(candidates) <= perJobRetain {
			continue
		}
		for _, stale := range candidates[perJobRetain:] {
			delete(m.updates, stale.key)
		}
	}
}

func lastEventTimestamp(rec *jobUpdateRecord) int64 {
	var last int64
	for _, e := range rec.updateEvents {
		if e.TimestampMs > last {
			last = e.TimestampMs
		}
	}
	return last
}

func (m *InMemory) GetJobUpdateDetails() []domain.JobUpdateDetails {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.JobUpdateDetails, 0, len(m.updates))
	for _, rec := range m.updates {
		out = append(out, domain.JobUpdateDetails{
			Update:         rec.update,
			UpdateEvents:   append([]domain.JobUpdateEvent(nil), rec.updateEvents...),
			InstanceEvents: append([]domain.JobInstanceUpdateEvent(nil), rec.instanceEvents...),
		})
	}
	return out
}

// --- Snapshot provider ---

// CreateSnapshot materializes the full state of every store into a single
// Snapshot value suitable for appending to the log.
func (m *InMemory) CreateSnapshot(timestampMs int64) schema.Snapshot {
	return schema.Snapshot{
		TimestampMs:       timestampMs,
		Tasks:             m.GetTasks(),
		Jobs:              m.GetJobs(),
		Quotas:            m.GetQuotas(),
		HostAttributes:    m.GetHostAttributes(),
		Locks:             m.GetLocks(),
		JobUpdates:        m.GetJobUpdateDetails(),
		SchedulerMetadata: m.GetSchedulerMetadata(),
	}
}

// ApplySnapshot replaces every store's contents wholesale: a Snapshot
// record overwrites prior state rather than merging with it.
func (m *InMemory) ApplySnapshot(snap schema.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metadata = snap.SchedulerMetadata

	m.jobs = make(map[domain.JobKey]domain.JobConfiguration, len(snap.Jobs))
	for _, j := range snap.Jobs {
		m.jobs[j.Key] = j
	}

	m.tasks = make(map[string]domain.ScheduledTask, len(snap.Tasks))
	for _, t := range snap.Tasks {
		m.tasks[t.TaskId] = t
	}

	m.quotas = make(map[string]domain.ResourceAggregate, len(snap.Quotas))
	for role, agg := range snap.Quotas {
		m.quotas[role] = agg
	}

	m.hosts = make(map[string]domain.HostAttributes, len(snap.HostAttributes))
	for _, h := range snap.HostAttributes {
		m.hosts[h.Host] = h
	}

	m.locks = make(map[domain.LockKey]domain.Lock, len(snap.Locks))
	for _, l := range snap.Locks {
		m.locks[l.Key] = l
	}

	m.updates = make(map[domain.JobUpdateKey]*jobUpdateRecord, len(snap.JobUpdates))
	for _, d := range snap.JobUpdates {
		key := d.Update.Summary.Key
		var k domain.JobUpdateKey
		if key != nil {
			k = *key
		}
		m.updates[k] = &jobUpdateRecord{
			update:         d.Update,
			updateEvents:   d.UpdateEvents,
			instanceEvents: d.InstanceEvents,
		}
	}
}

func jobKeyLess(a, b domain.JobKey) bool {
	if a.Role != b.Role {
		return a.Role < b.Role
	}
	if a.Environment != b.Environment {
		return a.Environment < b.Environment
	}
	return a.Name < b.Name
}

func hostAttributesEqual(a, b domain.HostAttributes) bool {
	if a.Mode != b.Mode || len(a.Attributes) != len(b.Attributes) {
		return false
	}
	if (a.SlaveId == nil) != (b.SlaveId == nil) {
		return false
	}
	if a.SlaveId != nil && *a.SlaveId != *b.SlaveId {
		return false
	}
	for i := range a.Attributes {
		if a.Attributes[i].Name != b.Attributes[i].Name {
			return false
		}
		if len(a.Attributes[i].Values) != len(b.Attributes[i].Values) {
			return false
		}
		for j := range a.Attributes[i].Values {
			if a.Attributes[i].Values[j] != b.Attributes[i].Values[j] {
				return false
			}
		}
	}
	return true
}
