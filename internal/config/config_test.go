package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
ipc_timeout_seconds = 2.5
passthrough_timeout_seconds = 60
max_journal_entries = 500
temp_prefix = "moxci-"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 2500*time.Millisecond, cfg.IPCTimeout)
	assert.Equal(t, time.Minute, cfg.PassthroughTimeout)
	assert.Equal(t, 500, cfg.MaxJournalEntries)
	assert.Equal(t, "moxci-", cfg.TempPrefix)
}

func TestLoad_PartialFile(t *testing.T) {
	path := writeConfig(t, `temp_prefix = "x-"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.IPCTimeout)
	assert.Equal(t, "x-", cfg.TempPrefix)
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, `ipc_timeout_seconds = "nope"`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NegativeValuesRejected(t *testing.T) {
	path := writeConfig(t, `max_journal_entries = -5`)
	_, err := Load(path)
	assert.Error(t, err)
}
