// Package config loads optional controller defaults from a cmdmox.toml
// file in the working directory. Functional options on the controller
// always win over file values; the file only moves defaults out of
// test code.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is looked up in the working directory when no
// explicit path is given.
const DefaultFileName = "cmdmox.toml"

// Config carries the tunables a cmdmox.toml may set.
type Config struct {
	IPCTimeout         time.Duration
	PassthroughTimeout time.Duration
	MaxJournalEntries  int
	TempPrefix         string
}

// fileConfig is the raw TOML shape; durations are float seconds so the
// file stays language-neutral.
type fileConfig struct {
	IPCTimeoutSeconds         float64 `toml:"ipc_timeout_seconds"`
	PassthroughTimeoutSeconds float64 `toml:"passthrough_timeout_seconds"`
	MaxJournalEntries         int     `toml:"max_journal_entries"`
	TempPrefix                string  `toml:"temp_prefix"`
}

// Load reads the config at path, or DefaultFileName when path is
// empty. A missing file is not an error and yields nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := &Config{
		MaxJournalEntries: raw.MaxJournalEntries,
		TempPrefix:        raw.TempPrefix,
	}
	if raw.IPCTimeoutSeconds < 0 || raw.PassthroughTimeoutSeconds < 0 || raw.MaxJournalEntries < 0 {
		return nil, fmt.Errorf("%s: timeouts and bounds must not be negative", path)
	}
	cfg.IPCTimeout = time.Duration(raw.IPCTimeoutSeconds * float64(time.Second))
	cfg.PassthroughTimeout = time.Duration(raw.PassthroughTimeoutSeconds * float64(time.Second))
	return cfg, nil
}
