package cmdmox

import (
	"log/slog"
	"time"
)

// Option configures a controller at construction.
type Option func(*CmdMox)

// WithMaxJournalEntries caps the journal; the oldest entries are
// discarded FIFO once the bound is exceeded. Non-positive values are
// rejected by New.
func WithMaxJournalEntries(n int) Option {
	return func(c *CmdMox) {
		if n <= 0 {
			// Force New's validation to reject the controller.
			c.maxJournalEntries = -1
			return
		}
		c.maxJournalEntries = n
	}
}

// WithIPCTimeout overrides the per-operation transport timeout exported
// to launchers.
func WithIPCTimeout(d time.Duration) Option {
	return func(c *CmdMox) { c.ipcTimeout = d }
}

// WithPassthroughTimeout overrides the real-execution bound for
// passthrough spies.
func WithPassthroughTimeout(d time.Duration) Option {
	return func(c *CmdMox) { c.passthroughTimeout = d }
}

// WithJournalArchive persists finalized invocations to a SQLite
// database at path when Verify runs. Off by default; the core needs no
// on-disk state.
func WithJournalArchive(path string) Option {
	return func(c *CmdMox) { c.archivePath = path }
}

// WithTempPrefix overrides the shim-directory name prefix. Parallel
// test workers get distinct directories regardless; the prefix only
// aids debugging.
func WithTempPrefix(prefix string) Option {
	return func(c *CmdMox) { c.tempPrefix = prefix }
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CmdMox) {
		if logger != nil {
			c.logger = logger
		}
	}
}
