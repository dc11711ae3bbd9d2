// Package record implements Record Mode: capturing passthrough
// invocations from spy doubles and persisting them as versioned JSON
// fixture files.
//
// A RecordingSession collects (invocation, response) pairs from real
// executions, filters the environment to a safe subset, optionally runs
// a pluggable Scrubber, and writes a v1.0 fixture file. Loaded fixtures
// are validated against the embedded JSON Schema.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaVersion identifies the fixture file format.
const SchemaVersion = "1.0"

// Version can be set by the CLI package at startup to include in
// fixture metadata.
var Version = "dev"

// RecordedInvocation is a single recorded command invocation within a
// fixture.
type RecordedInvocation struct {
	Sequence   int               `json:"sequence"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Stdin      string            `json:"stdin"`
	EnvSubset  map[string]string `json:"env_subset,omitempty"`
	Stdout     string            `json:"stdout"`
	Stderr     string            `json:"stderr"`
	ExitCode   int               `json:"exit_code"`
	Timestamp  string            `json:"timestamp"`
	DurationMS int               `json:"duration_ms"`
}

// FixtureMetadata is captured alongside the recordings.
type FixtureMetadata struct {
	CreatedAt     string `json:"created_at"`
	CmdmoxVersion string `json:"cmdmox_version"`
	Platform      string `json:"platform"`
	GoVersion     string `json:"go_version"`
	TestName      string `json:"test_name,omitempty"`
}

// NewFixtureMetadata auto-populates metadata from the runtime.
func NewFixtureMetadata(testName string) FixtureMetadata {
	return FixtureMetadata{
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		CmdmoxVersion: Version,
		Platform:      runtime.GOOS,
		GoVersion:     runtime.Version(),
		TestName:      testName,
	}
}

// FixtureFile is a complete fixture: metadata, recordings, and the
// scrubbing rules that were applied.
type FixtureFile struct {
	Version        string               `json:"version"`
	Metadata       FixtureMetadata      `json:"metadata"`
	Recordings     []RecordedInvocation `json:"recordings"`
	ScrubbingRules []ScrubbingRule      `json:"scrubbing_rules"`
}

// Save writes the fixture as indented JSON, creating parent directories
// as needed.
func (f *FixtureFile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture directory: %w", err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// Load reads and validates a fixture file.
func Load(path string) (*FixtureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	if err := ValidateFixture(data); err != nil {
		return nil, err
	}
	var fixture FixtureFile
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &fixture, nil
}

const fixtureSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "metadata", "recordings"],
  "properties": {
    "version": {"type": "string"},
    "metadata": {
      "type": "object",
      "required": ["created_at", "cmdmox_version", "platform"],
      "properties": {
        "created_at": {"type": "string"},
        "cmdmox_version": {"type": "string"},
        "platform": {"type": "string"},
        "go_version": {"type": "string"},
        "test_name": {"type": "string"}
      }
    },
    "recordings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["sequence", "command", "args", "exit_code", "timestamp"],
        "properties": {
          "sequence": {"type": "integer", "minimum": 0},
          "command": {"type": "string", "minLength": 1},
          "args": {"type": "array", "items": {"type": "string"}},
          "stdin": {"type": "string"},
          "env_subset": {"type": "object", "additionalProperties": {"type": "string"}},
          "stdout": {"type": "string"},
          "stderr": {"type": "string"},
          "exit_code": {"type": "integer"},
          "timestamp": {"type": "string"},
          "duration_ms": {"type": "integer", "minimum": 0}
        }
      }
    },
    "scrubbing_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pattern", "replacement"],
        "properties": {
          "pattern": {"type": "string"},
          "replacement": {"type": "string"},
          "applied_to": {"type": "array", "items": {"type": "string"}},
          "description": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("fixture.schema.json", fixtureSchema)

// ValidateFixture checks raw JSON against the v1.0 fixture schema.
func ValidateFixture(data []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("fixture is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("fixture failed schema validation: %w", err)
	}
	return nil
}
