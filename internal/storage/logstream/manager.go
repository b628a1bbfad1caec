package logstream

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/clustersched/logstorage/internal/storage/codec"
	"github.com/clustersched/logstorage/internal/storage/dedup"
	"github.com/clustersched/logstorage/internal/storage/frame"
	"github.com/clustersched/logstorage/pkg/schema"
)

// AppendError reports a failure durably recording a Transaction or Snapshot,
// or truncating the stream's prefix — always an I/O failure from the
// underlying Stream.
type AppendError struct {
	Op    string
	Cause error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("logstream: %s failed: %v", e.Op, e.Cause)
}

func (e *AppendError) Unwrap() error {
	return e.Cause
}

// Options configures how the StreamManager encodes records on the wire.
type Options struct {
	MaxEntrySize         int
	DeflateSnapshots     bool
	DeduplicateSnapshots bool
}

// DefaultOptions returns the manager's built-in configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntrySize:         frame.DefaultMaxEntrySize,
		DeflateSnapshots:     false,
		DeduplicateSnapshots: true,
	}
}

// Manager drives one Stream: it reads forward reassembling frames, writes
// transactions and snapshots, and truncates the prefix before a position.
type Manager struct {
	stream     Stream
	serializer *frame.Serializer
	opts       Options
}

// NewManager builds a StreamManager over an already-open Stream.
func NewManager(stream Stream, opts Options) *Manager {
	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = frame.DefaultMaxEntrySize
	}
	return &Manager{
		stream:     stream,
		serializer: frame.NewSerializer(opts.MaxEntrySize),
		opts:       opts,
	}
}

// ReadFromBeginning streams every logical record forward, transparently
// unwrapping DeflatedEntry and expanding DeduplicatedSnapshot into Snapshot.
// Records whose on-wire Kind the caller's dispatch table does not recognize
// are still yielded — it is the caller's job (the replay dispatcher) to
// treat an unrecognized kind as ignorable, per §4.1/§4.4's
// forward-compatibility contract. Malformed framing or encoding aborts
// immediately with the frame/codec package's own error type.
func (m *Manager) ReadFromBeginning(handler func(schema.Record) error) error {
	d := frame.NewDeserializer()
	return m.stream.ReadAll(func(e Entry) error {
		rec, ok, err := d.Feed(e.Data)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return m.dispatchLogical(rec, handler)
	})
}

// dispatchLogical unwraps DeflatedEntry/DeduplicatedSnapshot wrappers
// before handing the record to handler.
func (m *Manager) dispatchLogical(rec schema.Record, handler func(schema.Record) error) error {
	if rec.Kind == schema.KindDeflated {
		inner, err := inflateRecord(rec)
		if err != nil {
			return err
		}
		return m.dispatchLogical(inner, handler)
	}
	if rec.Kind == schema.KindDeduplicatedSnapshot {
		var dd schema.DeduplicatedSnapshot
		if err := rec.Decode(&dd); err != nil {
			return &codec.CodingError{Cause: err}
		}
		snap, err := dedup.Reduplicate(dd)
		if err != nil {
			return err
		}
		snapRec, err := schema.NewRecord(schema.KindSnapshot, snap)
		if err != nil {
			return err
		}
		return handler(snapRec)
	}
	return handler(rec)
}

// WriteTransaction wraps ops in a Transaction stamped with the current
// schema version, serializes it (optionally deflating), and appends it.
// It returns the position of the first physical entry written, which is
// the position a subsequent TruncateBefore would need to precede in order
// to retain this transaction.
func (m *Manager) WriteTransaction(ops []schema.Op) (Position, error) {
	txn := schema.Transaction{Ops: ops, SchemaVersion: schema.CurrentSchemaVersion}
	rec, err := schema.NewRecord(schema.KindTransaction, txn)
	if err != nil {
		return 0, err
	}
	return m.writeRecord(rec, false)
}

// WriteSnapshot deduplicates (if enabled), serializes (optionally
// deflating), and appends a Snapshot record, returning its position.
func (m *Manager) WriteSnapshot(snap schema.Snapshot) (Position, error) {
	var rec schema.Record
	var err error
	if m.opts.DeduplicateSnapshots {
		dd, derr := dedup.Deduplicate(snap)
		if derr != nil {
			return 0, derr
		}
		rec, err = schema.NewRecord(schema.KindDeduplicatedSnapshot, dd)
	} else {
		rec, err = schema.NewRecord(schema.KindSnapshot, snap)
	}
	if err != nil {
		return 0, err
	}
	return m.writeRecord(rec, true)
}

func (m *Manager) writeRecord(rec schema.Record, allowDeflate bool) (Position, error) {
	toSerialize := rec
	if allowDeflate && m.opts.DeflateSnapshots {
		deflated, err := deflateRecord(rec)
		if err != nil {
			return 0, err
		}
		toSerialize = deflated
	}

	entries, err := m.serializer.Serialize(toSerialize)
	if err != nil {
		return 0, err
	}

	var first Position
	for i, entry := range entries {
		pos, err := m.stream.Append(entry)
		if err != nil {
			return 0, &AppendError{Op: "append", Cause: err}
		}
		if i == 0 {
			first = pos
		}
	}
	return first, nil
}

// TruncateBefore discards the log prefix strictly before pos. Callers must
// only invoke this immediately following WriteSnapshot, so the discarded
// prefix is always covered by the snapshot just written.
func (m *Manager) TruncateBefore(pos Position) error {
	if err := m.stream.TruncateBefore(pos); err != nil {
		return &AppendError{Op: "truncate", Cause: err}
	}
	return nil
}

// Size sums the on-disk length of every physical entry the stream currently
// retains, for the wal_bytes gauge. It reads the whole stream, so callers
// should use it sparingly (e.g. once per snapshot tick) rather than per
// write.
func (m *Manager) Size() (int64, error) {
	var total int64
	err := m.stream.ReadAll(func(e Entry) error {
		total += int64(len(e.Data))
		return nil
	})
	return total, err
}

func deflateRecord(rec schema.Record) (schema.Record, error) {
	encoded, err := codec.Encode(rec)
	if err != nil {
		return schema.Record{}, err
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(encoded); err != nil {
		return schema.Record{}, fmt.Errorf("logstream: deflate: %w", err)
	}
	if err := gw.Close(); err != nil {
		return schema.Record{}, fmt.Errorf("logstream: deflate: %w", err)
	}
	return schema.NewRecord(schema.KindDeflated, schema.DeflatedEntry{Compressed: buf.Bytes()})
}

func inflateRecord(rec schema.Record) (schema.Record, error) {
	var wrapper schema.DeflatedEntry
	if err := rec.Decode(&wrapper); err != nil {
		return schema.Record{}, &codec.CodingError{Cause: err}
	}
	gr, err := gzip.NewReader(bytes.NewReader(wrapper.Compressed))
	if err != nil {
		return schema.Record{}, &codec.CodingError{Cause: err}
	}
	defer gr.Close()
	decompressed, err := io.ReadAll(gr)
	if err != nil {
		return schema.Record{}, &codec.CodingError{Cause: err}
	}
	return codec.Decode(decompressed)
}
