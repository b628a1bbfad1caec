package schema

import (
	"encoding/json"
	"fmt"

	"github.com/clustersched/logstorage/pkg/domain"
)

// OpKind discriminates the tagged union of mutation kinds recorded inside a
// Transaction. New variants may be added; readers that do not recognize one
// treat the containing Transaction as fatal during replay (op variants are
// not optional the way record kinds are — see the Codec doc comment).
type OpKind string

const (
	OpSaveFrameworkId           OpKind = "SAVE_FRAMEWORK_ID"
	OpSaveCronJob               OpKind = "SAVE_CRON_JOB"
	OpRemoveJob                 OpKind = "REMOVE_JOB"
	OpSaveTasks                 OpKind = "SAVE_TASKS"
	OpRewriteTask               OpKind = "REWRITE_TASK"
	OpRemoveTasks               OpKind = "REMOVE_TASKS"
	OpSaveQuota                 OpKind = "SAVE_QUOTA"
	OpRemoveQuota               OpKind = "REMOVE_QUOTA"
	OpSaveHostAttributes        OpKind = "SAVE_HOST_ATTRIBUTES"
	OpSaveLock                  OpKind = "SAVE_LOCK"
	OpRemoveLock                OpKind = "REMOVE_LOCK"
	OpSaveJobUpdate             OpKind = "SAVE_JOB_UPDATE"
	OpSaveJobUpdateEvent        OpKind = "SAVE_JOB_UPDATE_EVENT"
	OpSaveJobInstanceUpdateEvent OpKind = "SAVE_JOB_INSTANCE_UPDATE_EVENT"
	OpPruneJobUpdateHistory     OpKind = "PRUNE_JOB_UPDATE_HISTORY"
)

// AllOpKinds is the complete set of op variants the wire schema defines.
// The replay dispatcher's op table must cover every entry here (§8,
// "Startup record coverage").
var AllOpKinds = []OpKind{
	OpSaveFrameworkId, OpSaveCronJob, OpRemoveJob, OpSaveTasks, OpRewriteTask,
	OpRemoveTasks, OpSaveQuota, OpRemoveQuota, OpSaveHostAttributes,
	OpSaveLock, OpRemoveLock, OpSaveJobUpdate, OpSaveJobUpdateEvent,
	OpSaveJobInstanceUpdateEvent, OpPruneJobUpdateHistory,
}

// Op is one entry in a Transaction's ordered operation list: a Kind
// discriminator plus its variant-specific payload, a tagged-union envelope
// of Kind string plus json.RawMessage.
type Op struct {
	Kind    OpKind          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewOp marshals payload and wraps it with kind, failing only if payload
// itself cannot be marshaled (never true for the concrete payload structs
// below, which contain no unmarshalable fields).
func NewOp(kind OpKind, payload interface{}) (Op, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Op{}, fmt.Errorf("schema: marshal op %s: %w", kind, err)
	}
	return Op{Kind: kind, Payload: raw}, nil
}

// Decode unmarshals the op's payload into out, which must be a pointer to
// the concrete payload type matching o.Kind.
func (o Op) Decode(out interface{}) error {
	return json.Unmarshal(o.Payload, out)
}

// Op payload types, one per OpKind.

type SaveFrameworkIdOp struct {
	Id string `json:"id"`
}

type SaveCronJobOp struct {
	Config domain.JobConfiguration `json:"config"`
}

type RemoveJobOp struct {
	Key domain.JobKey `json:"key"`
}

type SaveTasksOp struct {
	Tasks []domain.ScheduledTask `json:"tasks"`
}

type RewriteTaskOp struct {
	TaskId    string            `json:"task_id"`
	NewConfig domain.TaskConfig `json:"new_config"`
}

type RemoveTasksOp struct {
	Ids []string `json:"ids"`
}

type SaveQuotaOp struct {
	Role      string                   `json:"role"`
	Aggregate domain.ResourceAggregate `json:"aggregate"`
}

type RemoveQuotaOp struct {
	Role string `json:"role"`
}

type SaveHostAttributesOp struct {
	Attributes domain.HostAttributes `json:"attributes"`
}

type SaveLockOp struct {
	Lock domain.Lock `json:"lock"`
}

type RemoveLockOp struct {
	Key domain.LockKey `json:"key"`
}

type SaveJobUpdateOp struct {
	Update    domain.JobUpdate `json:"update"`
	LockToken *string          `json:"lock_token,omitempty"`
}

type SaveJobUpdateEventOp struct {
	Event          domain.JobUpdateEvent `json:"event"`
	UpdateKey      *domain.JobUpdateKey  `json:"update_key,omitempty"`
	LegacyUpdateId *string               `json:"legacy_update_id,omitempty"`
}

type SaveJobInstanceUpdateEventOp struct {
	Event          domain.JobInstanceUpdateEvent `json:"event"`
	UpdateKey      *domain.JobUpdateKey          `json:"update_key,omitempty"`
	LegacyUpdateId *string                       `json:"legacy_update_id,omitempty"`
}

type PruneJobUpdateHistoryOp struct {
	PerJobRetain int   `json:"per_job_retain"`
	ThresholdMs  int64 `json:"threshold_ms"`
}
