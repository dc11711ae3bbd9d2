package cmdmox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cmdmox/cmdmox/internal/testutil"
)

func entryFor(command string) *JournalEntry {
	return &JournalEntry{Invocation: testutil.NewInvocation(command)}
}

func TestJournal_AppendAndSnapshot(t *testing.T) {
	j := newJournal(0)
	j.Append(entryFor("a"))
	j.Append(entryFor("b"))

	snap := j.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Invocation.Command)
	assert.Equal(t, "b", snap[1].Invocation.Command)
}

func TestJournal_BoundEvictsFIFO(t *testing.T) {
	j := newJournal(2)
	j.Append(entryFor("alpha"))
	j.Append(entryFor("beta"))
	j.Append(entryFor("gamma"))

	snap := j.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "beta", snap[0].Invocation.Command)
	assert.Equal(t, "gamma", snap[1].Invocation.Command)
}

func TestJournal_Clear(t *testing.T) {
	j := newJournal(0)
	j.Append(entryFor("a"))
	j.Clear()
	assert.Zero(t, j.Len())
}

func TestJournal_SnapshotIsCopy(t *testing.T) {
	j := newJournal(0)
	j.Append(entryFor("a"))

	snap := j.Snapshot()
	snap[0] = entryFor("mutated")
	assert.Equal(t, "a", j.Snapshot()[0].Invocation.Command)
}
