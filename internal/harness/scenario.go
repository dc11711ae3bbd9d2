// Package harness provides a conformance harness for the CmdMox
// controller.
//
// Scenarios are YAML files declaring doubles, a sequence of command
// calls, and the expected verification outcome. The harness runs a
// real controller through a full Enter -> Replay -> Verify cycle and
// plays the launcher role itself over the live IPC transport, so every
// scenario exercises matching, journaling, and verification end to end
// without forking processes. Transcripts are compared against golden
// files.
package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DoubleSpec declares one command double.
type DoubleSpec struct {
	Kind     string   `yaml:"kind"` // "stub" | "mock" | "spy"
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	Stdout   string   `yaml:"stdout"`
	Stderr   string   `yaml:"stderr"`
	ExitCode int      `yaml:"exit_code"`
	Times    int      `yaml:"times"`
	Ordered  bool     `yaml:"ordered"`
	Env      map[string]string `yaml:"env"`
}

// CallSpec is one simulated command invocation.
type CallSpec struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Stdin   string            `yaml:"stdin"`
	Env     map[string]string `yaml:"env"`
}

// ExpectSpec is the scenario's expected outcome.
type ExpectSpec struct {
	VerifyFails bool     `yaml:"verify_fails"`
	Contains    []string `yaml:"contains"`
}

// Scenario is a complete conformance scenario.
type Scenario struct {
	Name    string       `yaml:"name"`
	Doubles []DoubleSpec `yaml:"doubles"`
	Calls   []CallSpec   `yaml:"calls"`
	Expect  ExpectSpec   `yaml:"expect"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	for i, d := range s.Doubles {
		switch d.Kind {
		case "stub", "mock", "spy":
		default:
			return nil, fmt.Errorf("scenario %s: double %d has unknown kind %q", path, i, d.Kind)
		}
		if d.Command == "" {
			return nil, fmt.Errorf("scenario %s: double %d is missing a command", path, i)
		}
	}
	return &s, nil
}
