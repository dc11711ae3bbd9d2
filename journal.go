package cmdmox

import (
	"sync"

	"github.com/cmdmox/cmdmox/ipc"
)

// JournalEntry couples an observed invocation with the double that
// matched it. Double is nil for unexpected invocations; those are not
// fatal during replay and are reported during verification.
type JournalEntry struct {
	Invocation *ipc.Invocation
	Double     *CommandDouble
}

// Matched reports whether the invocation found an expectation.
func (e *JournalEntry) Matched() bool { return e.Double != nil }

// journal is the bounded ordered record of every replay invocation.
// Appends are serialized so order reflects response-completion order,
// not network arrival. When the bound is exceeded the oldest entries
// are discarded FIFO.
type journal struct {
	mu      sync.Mutex
	entries []*JournalEntry
	max     int // 0 means unbounded
}

func newJournal(max int) *journal {
	return &journal{max: max}
}

func (j *journal) Append(entry *JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	if j.max > 0 && len(j.entries) > j.max {
		overflow := len(j.entries) - j.max
		j.entries = append([]*JournalEntry{}, j.entries[overflow:]...)
	}
}

func (j *journal) Snapshot() []*JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*JournalEntry{}, j.entries...)
}

func (j *journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func (j *journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}
