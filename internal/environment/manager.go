// Package environment manages the scoped process-environment mutations
// CmdMox needs for a replay: a uniquely-named temp directory for shims,
// a PATH that resolves to it first, and the exported IPC rendezvous
// variables.
//
// The process environment and PATH are a global singleton, so the
// manager captures the exact mutations it makes and restores them on
// every exit path. Nothing else in the module touches globals.
//
// The manager is not re-entrant. Only one manager may be active in the
// process at a time; nesting returns an error rather than corrupting
// the restore state.
package environment

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cmdmox/cmdmox/ipc"
)

// DefaultPrefix names temp directories when no override is configured.
const DefaultPrefix = "cmdmox-"

// WorkerEnv optionally qualifies temp-directory names so parallel test
// workers never collide on a shim directory.
const WorkerEnv = "CMOX_WORKER_ID"

var (
	activeMu sync.Mutex
	active   *Manager
)

// ActiveManager returns the manager currently holding the process
// environment, or nil.
func ActiveManager() *Manager {
	activeMu.Lock()
	defer activeMu.Unlock()
	return active
}

type savedVar struct {
	value   string
	existed bool
}

// Manager owns one replay environment: temp dir, PATH mutation, and the
// exported IPC variables.
type Manager struct {
	prefix     string
	shimDir    string
	socketPath string
	ipcTimeout time.Duration
	origEnv    map[string]string
	saved      map[string]savedVar
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrefix overrides the temp-directory prefix.
func WithPrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// New creates an unentered manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShimDir returns the temp directory, empty until Enter succeeds.
func (m *Manager) ShimDir() string { return m.shimDir }

// SocketPath returns the logical IPC endpoint path, empty until Enter
// succeeds.
func (m *Manager) SocketPath() string { return m.socketPath }

// IPCTimeout returns the last exported IPC timeout, zero when none was
// exported yet.
func (m *Manager) IPCTimeout() time.Duration { return m.ipcTimeout }

// OriginalEnv returns the environment snapshot taken at Enter. The map
// is the manager's own copy; callers must not mutate it.
func (m *Manager) OriginalEnv() map[string]string { return m.origEnv }

// OriginalPath returns the PATH value from before Enter mutated it.
func (m *Manager) OriginalPath() string {
	if m.origEnv == nil {
		return os.Getenv("PATH")
	}
	return m.origEnv["PATH"]
}

// Entered reports whether the manager currently holds the environment.
func (m *Manager) Entered() bool { return m.origEnv != nil }

// Enter snapshots the process environment, creates the temp directory,
// prepends it to PATH, and exports the transport address.
func (m *Manager) Enter() error {
	activeMu.Lock()
	if active != nil || m.origEnv != nil {
		activeMu.Unlock()
		return errors.New("environment manager cannot be nested")
	}
	active = m
	activeMu.Unlock()

	m.origEnv = snapshotEnv()
	m.saved = make(map[string]savedVar)

	dir, err := os.MkdirTemp("", m.tempPattern())
	if err != nil {
		m.origEnv = nil
		m.saved = nil
		m.release()
		return fmt.Errorf("create shim directory: %w", err)
	}
	m.shimDir = dir

	if alias, ok := shortPathAlias(dir); ok {
		m.shimDir = alias
	}

	m.setTracked("PATH", PrependPath(m.shimDir, m.origEnv["PATH"]))
	if err := m.enterPlatform(); err != nil {
		exitErr := m.Exit()
		return errors.Join(err, exitErr)
	}

	m.socketPath = filepath.Join(m.shimDir, "ipc.sock")
	m.ExportIPC(0)
	return nil
}

// Exit restores exactly the variables Enter (and ExportIPC) changed and
// removes the temp directory. Every cleanup action is attempted even
// when earlier ones fail; the joined error reports them all.
func (m *Manager) Exit() error {
	if m.origEnv == nil {
		return nil
	}

	var cleanupErrs []error

	for key, prior := range m.saved {
		var err error
		if prior.existed {
			err = os.Setenv(key, prior.value)
		} else {
			err = os.Unsetenv(key)
		}
		if err != nil {
			cleanupErrs = append(cleanupErrs, fmt.Errorf("restore %s: %w", key, err))
		}
	}

	if m.shimDir != "" {
		if err := removeAllRobust(m.shimDir); err != nil {
			cleanupErrs = append(cleanupErrs, fmt.Errorf("remove shim directory: %w", err))
		}
	}

	m.origEnv = nil
	m.saved = nil
	m.shimDir = ""
	m.socketPath = ""
	m.ipcTimeout = 0
	m.release()

	if len(cleanupErrs) > 0 {
		err := errors.Join(cleanupErrs...)
		m.logger.Error("environment cleanup encountered errors", "error", err)
		return err
	}
	return nil
}

// ExportIPC publishes the endpoint path and, when positive, the client
// timeout so late-forked launchers observe current values. Callable any
// number of times while entered.
func (m *Manager) ExportIPC(timeout time.Duration) {
	if m.socketPath == "" {
		return
	}
	m.setTracked(ipc.SocketEnv, m.socketPath)
	if timeout > 0 {
		m.ipcTimeout = timeout
	}
	if m.ipcTimeout > 0 {
		m.setTracked(ipc.TimeoutEnv, ipc.FormatTimeout(m.ipcTimeout))
	}
}

// setTracked records the pre-mutation state of key exactly once, then
// sets it.
func (m *Manager) setTracked(key, value string) {
	if _, seen := m.saved[key]; !seen {
		prior, existed := os.LookupEnv(key)
		m.saved[key] = savedVar{value: prior, existed: existed}
	}
	if err := os.Setenv(key, value); err != nil {
		m.logger.Error("setenv failed", "key", key, "error", err)
	}
}

func (m *Manager) tempPattern() string {
	pattern := m.prefix
	if worker := os.Getenv(WorkerEnv); worker != "" {
		pattern += worker + "-"
	}
	pattern += strconv.Itoa(os.Getpid()) + "-"
	return pattern
}

func (m *Manager) release() {
	activeMu.Lock()
	if active == m {
		active = nil
	}
	activeMu.Unlock()
}

func snapshotEnv() map[string]string {
	environ := os.Environ()
	snap := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				snap[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return snap
}
