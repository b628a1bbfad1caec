// Package domain defines the scheduler entities the storage engine forwards
// to domain stores. The engine never interprets these values; it only
// carries them between the mutation call site, the operation buffer, and the
// wire-encoded log.
package domain

// JobKey identifies a job by its role/environment/name triple.
type JobKey struct {
	Role        string `json:"role"`
	Environment string `json:"environment"`
	Name        string `json:"name"`
}

// TaskConfig is the immutable configuration shared by every instance of a
// job. Its canonical encoding is what the snapshot deduplicator digests.
type TaskConfig struct {
	Job            JobKey  `json:"job"`
	NumCpus        float64 `json:"num_cpus"`
	RamMb          int64   `json:"ram_mb"`
	DiskMb         int64   `json:"disk_mb"`
	ExecutorConfig string  `json:"executor_config"`
}

// JobConfiguration is an accepted cron job definition.
type JobConfiguration struct {
	Key          JobKey     `json:"key"`
	CronSchedule string     `json:"cron_schedule"`
	TaskConfig   TaskConfig `json:"task_config"`
}

// ScheduledTask is one instance of a job assigned to a slave.
type ScheduledTask struct {
	TaskId     string     `json:"task_id"`
	InstanceId int32      `json:"instance_id"`
	Status     string     `json:"status"`
	SlaveHost  string     `json:"slave_host,omitempty"`
	Config     TaskConfig `json:"config"`
}

// ResourceAggregate is a quota allotment.
type ResourceAggregate struct {
	NumCpus float64 `json:"num_cpus"`
	RamMb   int64   `json:"ram_mb"`
	DiskMb  int64   `json:"disk_mb"`
}

// Attribute is a single named host attribute with possibly multiple values.
type Attribute struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// HostAttributes is the maintenance/attribute record for one slave.
type HostAttributes struct {
	Host       string      `json:"host"`
	SlaveId    *string     `json:"slave_id,omitempty"`
	Mode       string      `json:"mode"`
	Attributes []Attribute `json:"attributes"`
}

// LockKey identifies the resource a Lock guards.
type LockKey struct {
	Job JobKey `json:"job"`
}

// Lock is a mutual-exclusion lease held over a job.
type Lock struct {
	Key         LockKey `json:"key"`
	Token       string  `json:"token"`
	User        string  `json:"user"`
	TimestampMs int64   `json:"timestamp_ms"`
	Message     string  `json:"message,omitempty"`
}

// JobUpdateKey identifies one update attempt against a job.
type JobUpdateKey struct {
	Job      JobKey `json:"job"`
	UpdateId string `json:"update_id"`
}

// JobUpdateSummary carries the update's identity. Older writers may have
// left Key unset when JobKey/UpdateId were recorded independently; see
// the SaveJobUpdate replay backfill rule.
type JobUpdateSummary struct {
	Key      *JobUpdateKey `json:"key,omitempty"`
	JobKey   *JobKey       `json:"job_key,omitempty"`
	UpdateId *string       `json:"update_id,omitempty"`
	User     string        `json:"user"`
	State    string        `json:"state"`
}

// JobUpdateInstructions is the desired-state transition the update applies.
type JobUpdateInstructions struct {
	InitialState TaskConfig `json:"initial_state"`
	DesiredState TaskConfig `json:"desired_state"`
	Instances    int32      `json:"instances"`
}

// JobUpdate is a full update record.
type JobUpdate struct {
	Summary      JobUpdateSummary       `json:"summary"`
	Instructions JobUpdateInstructions  `json:"instructions"`
}

// JobUpdateEvent records a status transition for the update as a whole.
type JobUpdateEvent struct {
	Status      string `json:"status"`
	TimestampMs int64  `json:"timestamp_ms"`
	User        string `json:"user,omitempty"`
}

// JobInstanceUpdateEvent records a status transition for one instance.
type JobInstanceUpdateEvent struct {
	InstanceId  int32  `json:"instance_id"`
	Action      string `json:"action"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// SchedulerMetadata is process-wide state unrelated to any single job.
type SchedulerMetadata struct {
	FrameworkId string `json:"framework_id,omitempty"`
}

// JobUpdateDetails bundles an update with the events recorded against it,
// the unit the snapshot carries per update.
type JobUpdateDetails struct {
	Update           JobUpdate                `json:"update"`
	UpdateEvents     []JobUpdateEvent         `json:"update_events,omitempty"`
	InstanceEvents   []JobInstanceUpdateEvent `json:"instance_events,omitempty"`
}
