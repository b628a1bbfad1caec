// Package dedup implements the snapshot deduplicator: it factors repeated
// TaskConfig values out of a Snapshot into a content-addressed table,
// grounded in the same "compute a stable digest of the canonical encoding"
// idea the codec/hashing packages already use for frame integrity.
package dedup

import (
	"encoding/json"
	"fmt"

	"github.com/clustersched/logstorage/internal/storage/hashing"
	"github.com/clustersched/logstorage/pkg/domain"
	"github.com/clustersched/logstorage/pkg/schema"
)

// DedupError reports a DeduplicatedSnapshot whose taskConfigRefs reference a
// digest missing from taskConfigs.
type DedupError struct {
	TaskId string
	Digest string
}

func (e *DedupError) Error() string {
	return fmt.Sprintf("dedup: task %s references missing config digest %s", e.TaskId, e.Digest)
}

// digestConfig computes a stable digest of a TaskConfig's canonical
// (deterministically ordered, since struct field order is fixed) JSON
// encoding.
func digestConfig(cfg domain.TaskConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("dedup: encode task config: %w", err)
	}
	return hashing.Digest128(raw), nil
}

// Deduplicate extracts every task's TaskConfig into a digest-keyed table and
// strips it from the per-task record in the returned base snapshot.
func Deduplicate(snap schema.Snapshot) (schema.DeduplicatedSnapshot, error) {
	configs := make(map[string]domain.TaskConfig)
	refs := make(map[string]string, len(snap.Tasks))

	slimTasks := make([]domain.ScheduledTask, len(snap.Tasks))
	for i, task := range snap.Tasks {
		digest, err := digestConfig(task.Config)
		if err != nil {
			return schema.DeduplicatedSnapshot{}, err
		}
		if _, exists := configs[digest]; !exists {
			configs[digest] = task.Config
		}
		refs[task.TaskId] = digest

		slim := task
		slim.Config = domain.TaskConfig{}
		slimTasks[i] = slim
	}

	base := snap
	base.Tasks = slimTasks

	return schema.DeduplicatedSnapshot{
		Base:           base,
		TaskConfigs:    configs,
		TaskConfigRefs: refs,
	}, nil
}

// Reduplicate reverses Deduplicate, restoring each task's Config from the
// digest table. It fails with *DedupError if a ref lacks a backing config,
// preserving the invariant every taskConfigRef value exists as a key in
// taskConfigs.
func Reduplicate(dd schema.DeduplicatedSnapshot) (schema.Snapshot, error) {
	full := dd.Base
	tasks := make([]domain.ScheduledTask, len(full.Tasks))
	for i, task := range full.Tasks {
		digest, ok := dd.TaskConfigRefs[task.TaskId]
		if !ok {
			return schema.Snapshot{}, &DedupError{TaskId: task.TaskId, Digest: ""}
		}
		cfg, ok := dd.TaskConfigs[digest]
		if !ok {
			return schema.Snapshot{}, &DedupError{TaskId: task.TaskId, Digest: digest}
		}
		restored := task
		restored.Config = cfg
		tasks[i] = restored
	}
	full.Tasks = tasks
	return full, nil
}
