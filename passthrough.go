package cmdmox

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cmdmox/cmdmox/ipc"
)

// passthroughTTL bounds how long a pending passthrough entry survives a
// launcher that never reports back.
const passthroughTTL = 300 * time.Second

type pendingPassthrough struct {
	double     *CommandDouble
	invocation *ipc.Invocation
	deadline   time.Time
}

// passthroughCoordinator tracks in-flight real executions. It is the
// only path by which real-world stdio and exit codes enter the journal,
// which guarantees verification sees the same data for stubbed and
// pass-through doubles alike.
type passthroughCoordinator struct {
	mu      sync.Mutex
	pending map[string]pendingPassthrough
	ttl     time.Duration
}

func newPassthroughCoordinator() *passthroughCoordinator {
	return &passthroughCoordinator{
		pending: make(map[string]pendingPassthrough),
		ttl:     passthroughTTL,
	}
}

// PrepareRequest stores a pending entry and produces the response
// directing the launcher to run the real command. lookupPath is the
// original PATH minus the shim directory, already deduplicated.
func (c *passthroughCoordinator) PrepareRequest(
	double *CommandDouble,
	inv *ipc.Invocation,
	lookupPath string,
	timeout time.Duration,
) *ipc.Response {
	if inv.InvocationID == "" {
		inv.InvocationID = uuid.NewString()
	}

	stored := inv.Clone()
	ttl := max(timeout, c.ttl)

	c.mu.Lock()
	c.pruneExpiredLocked(time.Now())
	c.pending[inv.InvocationID] = pendingPassthrough{
		double:     double,
		invocation: stored,
		deadline:   time.Now().Add(ttl),
	}
	c.mu.Unlock()

	extraEnv := double.expectation.Env()
	return &ipc.Response{
		Env: cloneStringMap(extraEnv),
		Passthrough: &ipc.PassthroughRequest{
			InvocationID:   inv.InvocationID,
			LookupPath:     lookupPath,
			ExtraEnv:       cloneStringMap(extraEnv),
			TimeoutSeconds: timeout.Seconds(),
		},
	}
}

// FinalizeResult pops the pending entry for the launcher's report and
// synthesizes the final response from the observed stdio and exit
// status. The returned invocation carries the real results.
func (c *passthroughCoordinator) FinalizeResult(result *ipc.PassthroughResult) (*CommandDouble, *ipc.Invocation, *ipc.Response, error) {
	c.mu.Lock()
	c.pruneExpiredLocked(time.Now())
	entry, ok := c.pending[result.InvocationID]
	if ok {
		delete(c.pending, result.InvocationID)
	}
	c.mu.Unlock()

	if !ok {
		return nil, nil, nil, &ipc.ProtocolError{
			Msg: fmt.Sprintf("unexpected passthrough result for %s", result.InvocationID),
		}
	}

	resp := &ipc.Response{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
		Env:      cloneStringMap(entry.double.expectation.Env()),
	}
	entry.invocation.Apply(resp)
	return entry.double, entry.invocation, resp, nil
}

// HasPending reports whether an invocation is awaiting its result.
func (c *passthroughCoordinator) HasPending(invocationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneExpiredLocked(time.Now())
	_, ok := c.pending[invocationID]
	return ok
}

// PendingCount returns the number of outstanding passthrough
// invocations.
func (c *passthroughCoordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneExpiredLocked(time.Now())
	return len(c.pending)
}

func (c *passthroughCoordinator) pruneExpiredLocked(now time.Time) {
	for id, entry := range c.pending {
		if !entry.deadline.After(now) {
			delete(c.pending, id)
		}
	}
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
