package frame

import (
	"strings"
	"testing"

	"github.com/clustersched/logstorage/pkg/schema"
	"github.com/stretchr/testify/require"
)

func mkRecord(t *testing.T, payloadSize int) schema.Record {
	t.Helper()
	op, err := schema.NewOp(schema.OpSaveFrameworkId, schema.SaveFrameworkIdOp{Id: strings.Repeat("x", payloadSize)})
	require.NoError(t, err)
	rec, err := schema.NewRecord(schema.KindTransaction, schema.Transaction{
		Ops:           []schema.Op{op},
		SchemaVersion: schema.CurrentSchemaVersion,
	})
	require.NoError(t, err)
	return rec
}

func feedAll(t *testing.T, entries [][]byte) []schema.Record {
	t.Helper()
	d := NewDeserializer()
	var out []schema.Record
	for _, e := range entries {
		rec, ok, err := d.Feed(e)
		require.NoError(t, err)
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

func TestSerializeSmallRecordSingleEntry(t *testing.T) {
	s := NewSerializer(DefaultMaxEntrySize)
	rec := mkRecord(t, 10)

	entries, err := s.Serialize(rec)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	out := feedAll(t, entries)
	require.Len(t, out, 1)
	require.Equal(t, schema.KindTransaction, out[0].Kind)
}

func TestSerializeOversizedRecordSplitsIntoFrames(t *testing.T) {
	s := NewSerializer(2048)
	rec := mkRecord(t, 10000)

	entries, err := s.Serialize(rec)
	require.NoError(t, err)
	require.Greater(t, len(entries), 2, "expected header + multiple chunks")
	for i, e := range entries {
		require.LessOrEqualf(t, len(e), s.MaxEntrySize, "entry %d exceeds MaxEntrySize", i)
	}

	out := feedAll(t, entries)
	require.Len(t, out, 1)

	var gotTxn schema.Transaction
	require.NoError(t, out[0].Decode(&gotTxn))
	var gotOp schema.SaveFrameworkIdOp
	require.NoError(t, gotTxn.Ops[0].Decode(&gotOp))
	require.Len(t, gotOp.Id, 10000)
}

func TestDeserializeDetectsChunkDigestMismatch(t *testing.T) {
	s := NewSerializer(2048)
	rec := mkRecord(t, 10000)
	entries, err := s.Serialize(rec)
	require.NoError(t, err)

	// Corrupt the first base64 character of the second entry's "data"
	// field, which changes the chunk's data without updating its recorded
	// digest.
	corrupted := append([]byte(nil), entries[1]...)
	idx := strings.Index(string(corrupted), `"data":"`)
	require.GreaterOrEqual(t, idx, 0)
	idx += len(`"data":"`)
	if corrupted[idx] == 'A' {
		corrupted[idx] = 'B'
	} else {
		corrupted[idx] = 'A'
	}
	entries[1] = corrupted

	d := NewDeserializer()
	_, _, err = d.Feed(entries[0])
	require.NoError(t, err)
	_, _, err = d.Feed(entries[1])
	require.Error(t, err)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
}

func TestDeserializeDetectsOutOfOrderChunk(t *testing.T) {
	s := NewSerializer(2048)
	rec := mkRecord(t, 10000)
	entries, err := s.Serialize(rec)
	require.NoError(t, err)
	require.Greater(t, len(entries), 3)

	d := NewDeserializer()
	_, _, err = d.Feed(entries[0])
	require.NoError(t, err)
	// Skip entries[1], feed entries[2] (index 1) directly out of order.
	_, _, err = d.Feed(entries[2])
	require.Error(t, err)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
}

func TestNonFrameRecordsPassThroughDirectly(t *testing.T) {
	s := NewSerializer(DefaultMaxEntrySize)
	rec, err := schema.NewRecord(schema.KindNoop, schema.Noop{})
	require.NoError(t, err)
	entries, err := s.Serialize(rec)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	out := feedAll(t, entries)
	require.Len(t, out, 1)
	require.Equal(t, schema.KindNoop, out[0].Kind)
}
