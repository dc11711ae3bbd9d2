// Package testutil provides deterministic helpers for CmdMox's own
// test suites.
package testutil

import (
	"fmt"
	"sync"

	"github.com/cmdmox/cmdmox/ipc"
)

// IDGenerator hands out deterministic invocation IDs ("inv-1",
// "inv-2", ...) so transcripts and golden files are stable across runs.
//
// Thread-safe: all methods lock internally.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewIDGenerator creates a generator with the given prefix.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "inv"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next deterministic ID.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset starts the sequence over.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// NewInvocation builds a minimal invocation the way a launcher would
// report it, with a non-nil env map.
func NewInvocation(command string, args ...string) *ipc.Invocation {
	if args == nil {
		args = []string{}
	}
	return &ipc.Invocation{
		Command: command,
		Args:    args,
		Env:     map[string]string{},
	}
}
