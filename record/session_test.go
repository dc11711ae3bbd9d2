package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdmox/cmdmox/ipc"
)

func testInvocation(command string, args ...string) *ipc.Invocation {
	return &ipc.Invocation{
		Command: command,
		Args:    args,
		Env:     map[string]string{"LANG": "C"},
	}
}

func TestSession_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	s := NewSession(path)
	require.NoError(t, s.Start())
	assert.True(t, s.Started())

	require.NoError(t, s.Record(testInvocation("git", "status"),
		&ipc.Response{Stdout: "clean\n", ExitCode: 0}))

	fixture, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, fixture.Version)
	require.Len(t, fixture.Recordings, 1)
	assert.Equal(t, 0, fixture.Recordings[0].Sequence)
	assert.Equal(t, "git", fixture.Recordings[0].Command)
	assert.FileExists(t, path)
}

func TestSession_RecordBeforeStart(t *testing.T) {
	s := NewSession(filepath.Join(t.TempDir(), "f.json"))
	err := s.Record(testInvocation("git"), &ipc.Response{})
	assert.Error(t, err)
}

func TestSession_FinalizeIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	s := NewSession(path)
	require.NoError(t, s.Start())

	first, err := s.Finalize()
	require.NoError(t, err)

	info1, err := os.Stat(path)
	require.NoError(t, err)

	second, err := s.Finalize()
	require.NoError(t, err)
	assert.Same(t, first, second)

	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime(), "file is not rewritten")
}

func TestSession_RecordAfterFinalize(t *testing.T) {
	s := NewSession(filepath.Join(t.TempDir(), "f.json"))
	require.NoError(t, s.Start())
	_, err := s.Finalize()
	require.NoError(t, err)

	assert.Error(t, s.Record(testInvocation("git"), &ipc.Response{}))
	assert.Error(t, s.Start(), "a finalized session cannot restart")
}

func TestSession_CommandFilter(t *testing.T) {
	s := NewSession(filepath.Join(t.TempDir(), "f.json"), WithCommandFilter("git"))
	require.NoError(t, s.Start())

	require.NoError(t, s.Record(testInvocation("git"), &ipc.Response{}))
	require.NoError(t, s.Record(testInvocation("curl"), &ipc.Response{}))

	fixture, err := s.Finalize()
	require.NoError(t, err)
	require.Len(t, fixture.Recordings, 1)
	assert.Equal(t, "git", fixture.Recordings[0].Command)
}

func TestSession_SequencesAreGapFree(t *testing.T) {
	s := NewSession(filepath.Join(t.TempDir(), "f.json"))
	require.NoError(t, s.Start())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(testInvocation("git"), &ipc.Response{}))
	}
	fixture, err := s.Finalize()
	require.NoError(t, err)
	for i, rec := range fixture.Recordings {
		assert.Equal(t, i, rec.Sequence)
	}
}

type upperScrubber struct{}

func (upperScrubber) Scrub(rec RecordedInvocation) RecordedInvocation {
	rec.Stdout = strings.ToUpper(rec.Stdout)
	return rec
}

func TestSession_ScrubberRuns(t *testing.T) {
	s := NewSession(filepath.Join(t.TempDir(), "f.json"), WithScrubber(upperScrubber{}))
	require.NoError(t, s.Start())
	require.NoError(t, s.Record(testInvocation("git"), &ipc.Response{Stdout: "quiet"}))

	fixture, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "QUIET", fixture.Recordings[0].Stdout)
}
