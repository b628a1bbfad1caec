// Package frame implements the entry serializer: it converts one logical
// Record into one or more physical entries, splitting oversized records
// into a header frame plus N data frames tagged with a content hash, and
// reassembles them on the way back in. Framing state during reassembly is
// a small explicit state machine that accumulates chunks until the header's
// declared count is reached.
package frame

import (
	"fmt"

	"github.com/clustersched/logstorage/internal/storage/codec"
	"github.com/clustersched/logstorage/internal/storage/hashing"
	"github.com/clustersched/logstorage/pkg/schema"
)

// DefaultMaxEntrySize is the default maximum size of one physical entry.
const DefaultMaxEntrySize = 1 << 30

// headerOverhead is a conservative estimate of the JSON envelope overhead
// added by wrapping a raw chunk's bytes in a FrameChunk/Record pair; chunk
// payloads are sized to leave this much room so the wrapped entry still
// fits under maxEntrySize.
const headerOverhead = 512

// FramingError reports a violation of frame well-formedness: a header not
// immediately followed by its declared chunk count, or a digest mismatch.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("frame: %s", e.Reason)
}

// Serializer converts logical records to physical entries and back, given a
// maximum entry size.
type Serializer struct {
	MaxEntrySize int
}

// NewSerializer builds a Serializer; maxEntrySize <= 0 selects the default.
func NewSerializer(maxEntrySize int) *Serializer {
	if maxEntrySize <= 0 {
		maxEntrySize = DefaultMaxEntrySize
	}
	return &Serializer{MaxEntrySize: maxEntrySize}
}

// Serialize encodes record and, if it fits within MaxEntrySize, returns it
// as a single physical entry. Otherwise it splits the encoded bytes into a
// FrameHeader entry followed by N FrameChunk entries, each independently
// encoded via codec.Encode.
func (s *Serializer) Serialize(record schema.Record) ([][]byte, error) {
	encoded, err := codec.Encode(record)
	if err != nil {
		return nil, err
	}
	if len(encoded) <= s.MaxEntrySize {
		return [][]byte{encoded}, nil
	}

	// encoding/json base64-encodes []byte fields, so a raw chunk of n bytes
	// costs ceil(n/3)*4 bytes on the wire before the envelope is even
	// added. Size chunks to a multiple of 3 raw bytes so the base64 form
	// has no padding round-up, leaving headerOverhead entirely for the
	// envelope (JSON keys, digest, index).
	chunkSize := ((s.MaxEntrySize - headerOverhead) / 4) * 3
	if chunkSize <= 0 {
		return nil, &FramingError{Reason: "maxEntrySize too small to frame"}
	}

	digest := hashing.Digest128(encoded)
	chunks := chunkBytes(encoded, chunkSize)

	header, err := schema.NewRecord(schema.KindFrameHeader, schema.FrameHeader{
		ChunkCount: len(chunks),
		Digest:     digest,
	})
	if err != nil {
		return nil, err
	}
	headerBytes, err := codec.Encode(header)
	if err != nil {
		return nil, err
	}

	entries := make([][]byte, 0, len(chunks)+1)
	entries = append(entries, headerBytes)
	for i, c := range chunks {
		chunkRecord, err := schema.NewRecord(schema.KindFrameChunk, schema.FrameChunk{
			Index:  i,
			Data:   c,
			Digest: hashing.Digest128(c),
		})
		if err != nil {
			return nil, err
		}
		chunkBytesEncoded, err := codec.Encode(chunkRecord)
		if err != nil {
			return nil, err
		}
		entries = append(entries, chunkBytesEncoded)
	}
	return entries, nil
}

func chunkBytes(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// state tracks whether a Deserializer is idle or mid-reassembly of a
// multi-chunk record.
type state int

const (
	stateIdle state = iota
	stateCollecting
)

// Deserializer reassembles a stream of physical entries back into logical
// records, transparently reassembling multi-chunk frames.
type Deserializer struct {
	st       state
	header   schema.FrameHeader
	received [][]byte
}

// NewDeserializer returns a fresh reassembly state machine.
func NewDeserializer() *Deserializer {
	return &Deserializer{st: stateIdle}
}

// Feed consumes one physical entry. It returns a decoded logical record and
// ok=true when the entry (or the frame it completes) yields one; ok=false
// while still collecting chunks. An out-of-sequence frame or a digest
// mismatch returns a *FramingError; an entry or frame envelope that cannot
// be decoded returns a *codec.CodingError or *CodecDecodeError.
func (d *Deserializer) Feed(entry []byte) (schema.Record, bool, error) {
	rec, err := codec.Decode(entry)
	if err != nil {
		return schema.Record{}, false, err
	}

	switch rec.Kind {
	case schema.KindFrameHeader:
		if d.st == stateCollecting {
			return schema.Record{}, false, &FramingError{Reason: "header received while still collecting a prior frame"}
		}
		var header schema.FrameHeader
		if err := rec.Decode(&header); err != nil {
			return schema.Record{}, false, &CodecDecodeError{err}
		}
		d.st = stateCollecting
		d.header = header
		d.received = make([][]byte, 0, header.ChunkCount)
		return schema.Record{}, false, nil

	case schema.KindFrameChunk:
		if d.st != stateCollecting {
			return schema.Record{}, false, &FramingError{Reason: "chunk received with no preceding header"}
		}
		var chunk schema.FrameChunk
		if err := rec.Decode(&chunk); err != nil {
			return schema.Record{}, false, &CodecDecodeError{err}
		}
		if chunk.Index != len(d.received) {
			return schema.Record{}, false, &FramingError{Reason: fmt.Sprintf("out-of-order chunk: expected index %d, got %d", len(d.received), chunk.Index)}
		}
		if hashing.Digest128(chunk.Data) != chunk.Digest {
			return schema.Record{}, false, &FramingError{Reason: fmt.Sprintf("chunk %d digest mismatch", chunk.Index)}
		}
		d.received = append(d.received, chunk.Data)

		if len(d.received) < d.header.ChunkCount {
			return schema.Record{}, false, nil
		}

		// All chunks in: reassemble, verify total digest, decode, reset.
		full := make([]byte, 0)
		for _, c := range d.received {
			full = append(full, c...)
		}
		if hashing.Digest128(full) != d.header.Digest {
			d.reset()
			return schema.Record{}, false, &FramingError{Reason: "reassembled record digest mismatch"}
		}
		d.reset()

		final, err := codec.Decode(full)
		if err != nil {
			return schema.Record{}, false, err
		}
		return final, true, nil

	default:
		if d.st == stateCollecting {
			return schema.Record{}, false, &FramingError{Reason: "non-frame record received while collecting a frame"}
		}
		return rec, true, nil
	}
}

func (d *Deserializer) reset() {
	d.st = stateIdle
	d.header = schema.FrameHeader{}
	d.received = nil
}

// CodecDecodeError wraps a payload-decode failure encountered while
// reassembling a frame's header or chunk envelope.
type CodecDecodeError struct {
	Cause error
}

func (e *CodecDecodeError) Error() string {
	return fmt.Sprintf("frame: malformed envelope: %v", e.Cause)
}

func (e *CodecDecodeError) Unwrap() error {
	return e.Cause
}
