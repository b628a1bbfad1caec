package dedup

import (
	"testing"

	"github.com/clustersched/logstorage/pkg/domain"
	"github.com/clustersched/logstorage/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() schema.Snapshot {
	sharedCfg := domain.TaskConfig{
		Job:     domain.JobKey{Role: "www-data", Environment: "prod", Name: "hello"},
		NumCpus: 1.0,
		RamMb:   512,
	}
	return schema.Snapshot{
		TimestampMs: 1000,
		Tasks: []domain.ScheduledTask{
			{TaskId: "t1", InstanceId: 0, Status: "RUNNING", Config: sharedCfg},
			{TaskId: "t2", InstanceId: 1, Status: "RUNNING", Config: sharedCfg},
			{TaskId: "t3", InstanceId: 0, Status: "RUNNING", Config: domain.TaskConfig{
				Job: domain.JobKey{Role: "www-data", Environment: "prod", Name: "other"}, NumCpus: 2.0,
			}},
		},
	}
}

func TestDeduplicateSharesDigestForIdenticalConfigs(t *testing.T) {
	snap := sampleSnapshot()
	dd, err := Deduplicate(snap)
	require.NoError(t, err)

	assert.Equal(t, dd.TaskConfigRefs["t1"], dd.TaskConfigRefs["t2"])
	assert.NotEqual(t, dd.TaskConfigRefs["t1"], dd.TaskConfigRefs["t3"])
	assert.Len(t, dd.TaskConfigs, 2)

	for _, task := range dd.Base.Tasks {
		assert.Equal(t, domain.TaskConfig{}, task.Config, "base snapshot must strip per-task configs")
	}
}

func TestReduplicateRoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	dd, err := Deduplicate(snap)
	require.NoError(t, err)

	restored, err := Reduplicate(dd)
	require.NoError(t, err)
	assert.Equal(t, snap, restored)
}

func TestReduplicateMissingConfigFails(t *testing.T) {
	snap := sampleSnapshot()
	dd, err := Deduplicate(snap)
	require.NoError(t, err)

	for k := range dd.TaskConfigs {
		delete(dd.TaskConfigs, k)
		break
	}

	_, err = Reduplicate(dd)
	require.Error(t, err)
	var de *DedupError
	require.ErrorAs(t, err, &de)
}
