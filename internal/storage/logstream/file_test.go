package logstream

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	log := NewFileLog(path)
	stream, err := log.Open()
	require.NoError(t, err)

	p0, err := stream.Append([]byte("first"))
	require.NoError(t, err)
	p1, err := stream.Append([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, Position(0), p0)
	assert.Equal(t, Position(1), p1)

	var got []Entry
	require.NoError(t, stream.ReadAll(func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "first", string(got[0].Data))
	assert.Equal(t, "second", string(got[1].Data))
}

func TestFileLogSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	stream, err := NewFileLog(path).Open()
	require.NoError(t, err)
	_, err = stream.Append([]byte("a"))
	require.NoError(t, err)
	_, err = stream.Append([]byte("b"))
	require.NoError(t, err)

	reopened, err := NewFileLog(path).Open()
	require.NoError(t, err)

	pos, err := reopened.Append([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, Position(2), pos, "resumed numbering must continue past entries written before reopen")

	var got []string
	require.NoError(t, reopened.ReadAll(func(e Entry) error {
		got = append(got, string(e.Data))
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFileLogTruncateBeforeDiscardsPrefixAndPreservesPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	stream, err := NewFileLog(path).Open()
	require.NoError(t, err)

	for _, s := range []string{"a", "b", "c", "d"} {
		_, err := stream.Append([]byte(s))
		require.NoError(t, err)
	}

	require.NoError(t, stream.TruncateBefore(2))

	var got []Entry
	require.NoError(t, stream.ReadAll(func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, Position(2), got[0].Position)
	assert.Equal(t, "c", string(got[0].Data))
	assert.Equal(t, Position(3), got[1].Position)
	assert.Equal(t, "d", string(got[1].Data))

	pos, err := stream.Append([]byte("e"))
	require.NoError(t, err)
	assert.Equal(t, Position(4), pos, "positions must stay monotonic across a truncation")
}

func TestFileLogTruncateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	stream, err := NewFileLog(path).Open()
	require.NoError(t, err)

	for _, s := range []string{"a", "b", "c"} {
		_, err := stream.Append([]byte(s))
		require.NoError(t, err)
	}
	require.NoError(t, stream.TruncateBefore(1))

	reopened, err := NewFileLog(path).Open()
	require.NoError(t, err)

	var got []string
	require.NoError(t, reopened.ReadAll(func(e Entry) error {
		got = append(got, string(e.Data))
		return nil
	}))
	assert.Equal(t, []string{"b", "c"}, got)

	pos, err := reopened.Append([]byte("d"))
	require.NoError(t, err)
	assert.Equal(t, Position(3), pos)
}

func TestFileLogReadAllOnMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-created.log")
	stream := &fileStream{path: path}

	var got []Entry
	require.NoError(t, stream.ReadAll(func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	assert.Empty(t, got)
}
