package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_WriteRead(t *testing.T) {
	s := openTestStore(t)

	rec := InvocationRecord{
		Seq:          0,
		InvocationID: "inv-1",
		Command:      "git",
		Args:         []string{"clone", "repo"},
		Stdin:        "in",
		Stdout:       "out",
		Stderr:       "err",
		ExitCode:     2,
		Matched:      true,
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.WriteInvocation(rec))

	got, err := s.ReadInvocations()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "git", got[0].Command)
	assert.Equal(t, []string{"clone", "repo"}, got[0].Args)
	assert.Equal(t, 2, got[0].ExitCode)
	assert.True(t, got[0].Matched)
	assert.Equal(t, rec.Timestamp, got[0].Timestamp)
}

func TestStore_WriteIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	rec := InvocationRecord{Seq: 1, InvocationID: "inv-1", Command: "x", Args: []string{}}
	require.NoError(t, s.WriteInvocation(rec))
	require.NoError(t, s.WriteInvocation(rec))

	got, err := s.ReadInvocations()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_SequenceOrder(t *testing.T) {
	s := openTestStore(t)

	for _, seq := range []int64{2, 0, 1} {
		require.NoError(t, s.WriteInvocation(InvocationRecord{
			Seq:          seq,
			InvocationID: "inv",
			Command:      "x",
			Args:         []string{},
		}))
	}

	got, err := s.ReadInvocations()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].Seq)
	assert.Equal(t, int64(1), got[1].Seq)
	assert.Equal(t, int64(2), got[2].Seq)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.WriteInvocation(InvocationRecord{
		Seq: 0, InvocationID: "inv-1", Command: "x", Args: []string{},
	}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.ReadInvocations()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
