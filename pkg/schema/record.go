package schema

import (
	"encoding/json"
	"fmt"

	"github.com/clustersched/logstorage/pkg/domain"
)

// CurrentSchemaVersion is stamped on every Transaction record. Bump it when
// an op payload's meaning changes in a way that requires readers to branch;
// adding a new op variant does not require a bump (append-only schema, §6).
const CurrentSchemaVersion = 1

// RecordKind discriminates the tagged union of log entries.
type RecordKind string

const (
	KindTransaction          RecordKind = "TRANSACTION"
	KindSnapshot             RecordKind = "SNAPSHOT"
	KindDeduplicatedSnapshot RecordKind = "DEDUPLICATED_SNAPSHOT"
	KindFrameHeader          RecordKind = "FRAME_HEADER"
	KindFrameChunk           RecordKind = "FRAME_CHUNK"
	KindDeflated             RecordKind = "DEFLATED"
	KindNoop                 RecordKind = "NOOP"
)

// Record is a physical or logical log entry: a Kind discriminator plus its
// variant payload. Frame/Deflated/DeduplicatedSnapshot are consumed
// internally by the stream manager and never reach the replay dispatcher's
// record table (§4.8).
type Record struct {
	Kind    RecordKind      `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRecord marshals payload and wraps it with kind.
func NewRecord(kind RecordKind, payload interface{}) (Record, error) {
	if payload == nil {
		return Record{Kind: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("schema: marshal record %s: %w", kind, err)
	}
	return Record{Kind: kind, Payload: raw}, nil
}

// Decode unmarshals the record's payload into out.
func (r Record) Decode(out interface{}) error {
	return json.Unmarshal(r.Payload, out)
}

// Transaction carries the ordered list of ops produced during one outermost
// write scope, stamped with the schema version active when it was written.
type Transaction struct {
	Ops           []Op `json:"ops"`
	SchemaVersion int  `json:"schema_version"`
}

// Snapshot carries the full materialized state of every domain store.
type Snapshot struct {
	TimestampMs       int64                        `json:"timestamp_ms"`
	Tasks             []domain.ScheduledTask       `json:"tasks"`
	Jobs              []domain.JobConfiguration    `json:"jobs"`
	Quotas            map[string]domain.ResourceAggregate `json:"quotas"`
	HostAttributes    []domain.HostAttributes      `json:"host_attributes"`
	Locks             []domain.Lock                `json:"locks"`
	JobUpdates        []domain.JobUpdateDetails    `json:"job_updates"`
	SchedulerMetadata domain.SchedulerMetadata     `json:"scheduler_metadata"`
}

// DeduplicatedSnapshot is a Snapshot whose per-task TaskConfigs have been
// factored through a content-addressed table. Base carries every Snapshot
// field except each task's Config, which is zero-valued and must be looked
// up via TaskConfigRefs/TaskConfigs.
type DeduplicatedSnapshot struct {
	Base           Snapshot                     `json:"base"`
	TaskConfigs    map[string]domain.TaskConfig `json:"task_configs"`
	TaskConfigRefs map[string]string            `json:"task_config_refs"`
}

// FrameHeader precedes ChunkCount FrameChunk records for one oversized
// logical record. Digest is the content digest of the full encoded record,
// hex-encoded (see internal/storage/hashing).
type FrameHeader struct {
	ChunkCount int    `json:"chunk_count"`
	Digest     string `json:"digest"`
}

// FrameChunk carries one piece of an oversized logical record's encoded
// bytes, self-identified by index and digested independently so corruption
// in one chunk is detected without waiting for reassembly.
type FrameChunk struct {
	Index  int    `json:"index"`
	Data   []byte `json:"data"`
	Digest string `json:"digest"`
}

// DeflatedEntry wraps another encoded Record with gzip compression, decoded
// transparently by the stream manager on read.
type DeflatedEntry struct {
	Compressed []byte `json:"compressed"`
}

// Noop is a sentinel every reader must accept and ignore.
type Noop struct{}
