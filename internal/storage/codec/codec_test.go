package codec

import (
	"testing"

	"github.com/clustersched/logstorage/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	op, err := schema.NewOp(schema.OpSaveFrameworkId, schema.SaveFrameworkIdOp{Id: "bob"})
	require.NoError(t, err)

	txn := schema.Transaction{Ops: []schema.Op{op}, SchemaVersion: schema.CurrentSchemaVersion}
	rec, err := schema.NewRecord(schema.KindTransaction, txn)
	require.NoError(t, err)

	encoded, err := Encode(rec)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, schema.KindTransaction, decoded.Kind)

	var gotTxn schema.Transaction
	require.NoError(t, decoded.Decode(&gotTxn))
	require.Len(t, gotTxn.Ops, 1)

	var gotOp schema.SaveFrameworkIdOp
	require.NoError(t, gotTxn.Ops[0].Decode(&gotOp))
	assert.Equal(t, "bob", gotOp.Id)
}

func TestDecodeMalformedIsCodingError(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
	var ce *CodingError
	assert.ErrorAs(t, err, &ce)
}

func TestDecodeMissingKindIsCodingError(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{}}`))
	require.Error(t, err)
	var ce *CodingError
	assert.ErrorAs(t, err, &ce)
}

func TestDecodeUnknownKindSucceeds(t *testing.T) {
	rec, err := Decode([]byte(`{"kind":"SOME_FUTURE_KIND","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, schema.RecordKind("SOME_FUTURE_KIND"), rec.Kind)
}

func TestNoopRoundTrip(t *testing.T) {
	rec, err := schema.NewRecord(schema.KindNoop, schema.Noop{})
	require.NoError(t, err)
	encoded, err := Encode(rec)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, schema.KindNoop, decoded.Kind)
}
