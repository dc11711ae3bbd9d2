package cmdmox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdmox/cmdmox/internal/testutil"
	"github.com/cmdmox/cmdmox/ipc"
)

func newSpyDouble(t *testing.T, name string) *CommandDouble {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c.Spy(name).Passthrough()
}

func TestCoordinator_PrepareRequest(t *testing.T) {
	coord := newPassthroughCoordinator()
	double := newSpyDouble(t, "echo").WithEnv(map[string]string{"PROBE": "1"})

	inv := testutil.NewInvocation("echo", "hello")
	inv.InvocationID = "id-1"

	resp := coord.PrepareRequest(double, inv, "/usr/bin:/bin", 30*time.Second)

	require.NotNil(t, resp.Passthrough)
	assert.Equal(t, "id-1", resp.Passthrough.InvocationID)
	assert.Equal(t, "/usr/bin:/bin", resp.Passthrough.LookupPath)
	assert.Equal(t, "1", resp.Passthrough.ExtraEnv["PROBE"])
	assert.InDelta(t, 30.0, resp.Passthrough.TimeoutSeconds, 1e-9)
	assert.Equal(t, "1", resp.Env["PROBE"], "expectation env rides on the directive response")
	assert.True(t, coord.HasPending("id-1"))
}

func TestCoordinator_PrepareRequest_AssignsID(t *testing.T) {
	coord := newPassthroughCoordinator()
	double := newSpyDouble(t, "echo")

	inv := testutil.NewInvocation("echo")
	resp := coord.PrepareRequest(double, inv, "", time.Second)

	assert.NotEmpty(t, inv.InvocationID)
	assert.Equal(t, inv.InvocationID, resp.Passthrough.InvocationID)
}

func TestCoordinator_FinalizeResult(t *testing.T) {
	coord := newPassthroughCoordinator()
	double := newSpyDouble(t, "echo")

	inv := testutil.NewInvocation("echo", "hi")
	inv.InvocationID = "id-2"
	coord.PrepareRequest(double, inv, "", time.Second)

	gotDouble, gotInv, resp, err := coord.FinalizeResult(&ipc.PassthroughResult{
		InvocationID: "id-2",
		Stdout:       "hi\n",
		Stderr:       "",
		ExitCode:     0,
	})
	require.NoError(t, err)
	assert.Same(t, double, gotDouble)
	assert.Equal(t, "hi\n", resp.Stdout)
	assert.Equal(t, "hi\n", gotInv.Stdout, "real results attach to the invocation")
	assert.False(t, coord.HasPending("id-2"), "entry is consumed")
}

func TestCoordinator_FinalizeUnknownID(t *testing.T) {
	coord := newPassthroughCoordinator()

	_, _, _, err := coord.FinalizeResult(&ipc.PassthroughResult{InvocationID: "ghost"})
	require.Error(t, err)
	var perr *ipc.ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestCoordinator_ExpiredEntriesAreSwept(t *testing.T) {
	coord := newPassthroughCoordinator()
	coord.ttl = time.Millisecond
	double := newSpyDouble(t, "echo")

	inv := testutil.NewInvocation("echo")
	inv.InvocationID = "id-3"
	coord.PrepareRequest(double, inv, "", time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, coord.PendingCount())
}

func TestCoordinator_StoredInvocationIsIsolated(t *testing.T) {
	coord := newPassthroughCoordinator()
	double := newSpyDouble(t, "echo")

	inv := testutil.NewInvocation("echo", "orig")
	inv.InvocationID = "id-4"
	coord.PrepareRequest(double, inv, "", time.Second)

	// Mutating the launcher-side invocation must not affect the pending
	// copy the coordinator finalizes.
	inv.Args[0] = "mutated"

	_, gotInv, _, err := coord.FinalizeResult(&ipc.PassthroughResult{InvocationID: "id-4"})
	require.NoError(t, err)
	assert.Equal(t, "orig", gotInv.Args[0])
}
