// Package cmdmox is a test-double framework for external command-line
// programs. A test declares how git, curl, or any other executable
// should behave; the framework intercepts every invocation the code
// under test makes, supplies the scripted behavior, records the
// interaction, and verifies the observed calls against the declared
// expectations. The paradigm is strictly record -> replay -> verify.
//
// ARCHITECTURE:
//
// The controller owns the lifecycle. On Replay it acquires a scoped
// environment (temp dir + PATH mutation), generates one shim entry per
// registered command, and starts the IPC server. Launchers resolved
// from PATH connect back, report their invocation, and block on the
// response. On Verify the journal is checked against expectations and
// every resource is released, on all exit paths including interrupts.
//
// Thread-safety model:
//   - The fluent registration API runs on the test goroutine.
//   - IPC workers call back concurrently; the journal append is
//     serialized so order reflects response-completion order.
//   - Doubles record their invocations under their own lock.
package cmdmox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/cmdmox/cmdmox/internal/config"
	"github.com/cmdmox/cmdmox/internal/environment"
	"github.com/cmdmox/cmdmox/internal/shimgen"
	"github.com/cmdmox/cmdmox/internal/store"
	"github.com/cmdmox/cmdmox/ipc"
	"github.com/cmdmox/cmdmox/record"
)

// Phase is a controller lifecycle state.
type Phase string

const (
	PhaseCreated Phase = "CREATED"
	PhaseRecord  Phase = "RECORD"
	PhaseReplay  Phase = "REPLAY"
	PhaseVerify  Phase = "VERIFY"
)

// CmdMox is the central orchestrator implementing the
// record-replay-verify lifecycle.
type CmdMox struct {
	environment *environment.Manager
	coordinator *passthroughCoordinator
	journal     *journal
	logger      *slog.Logger

	ipcTimeout         time.Duration
	passthroughTimeout time.Duration
	maxJournalEntries  int
	archivePath        string
	tempPrefix         string

	mu        sync.Mutex
	phase     Phase
	server    *ipc.Server
	doubles   []*CommandDouble
	kinds     map[string]DoubleKind
	commands  map[string]struct{}
	ordered   []*Expectation
	recorders []*record.Session
}

// New creates a controller in the CREATED phase. Defaults come from the
// optional cmdmox.toml in the working directory, then from the supplied
// options.
func New(opts ...Option) (*CmdMox, error) {
	c := &CmdMox{
		environment:        environment.New(),
		coordinator:        newPassthroughCoordinator(),
		logger:             slog.Default(),
		ipcTimeout:         ipc.DefaultTimeout,
		passthroughTimeout: ipc.DefaultPassthroughTimeout,
		phase:              PhaseCreated,
		kinds:              make(map[string]DoubleKind),
		commands:           make(map[string]struct{}),
	}

	fileCfg, err := config.Load("")
	if err != nil {
		return nil, &ConfigurationError{Msg: err.Error()}
	}
	applyFileConfig(c, fileCfg)

	for _, opt := range opts {
		opt(c)
	}

	if c.maxJournalEntries < 0 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("max journal entries must be positive, got %d", c.maxJournalEntries)}
	}
	if c.ipcTimeout <= 0 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("IPC timeout must be positive, got %v", c.ipcTimeout)}
	}
	if c.passthroughTimeout <= 0 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("passthrough timeout must be positive, got %v", c.passthroughTimeout)}
	}
	if c.tempPrefix != "" {
		c.environment = environment.New(environment.WithPrefix(c.tempPrefix))
	}

	c.journal = newJournal(c.maxJournalEntries)
	return c, nil
}

func applyFileConfig(c *CmdMox, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.IPCTimeout > 0 {
		c.ipcTimeout = cfg.IPCTimeout
	}
	if cfg.PassthroughTimeout > 0 {
		c.passthroughTimeout = cfg.PassthroughTimeout
	}
	if cfg.MaxJournalEntries > 0 {
		c.maxJournalEntries = cfg.MaxJournalEntries
	}
	if cfg.TempPrefix != "" {
		c.tempPrefix = cfg.TempPrefix
	}
}

// Phase returns the current lifecycle phase.
func (c *CmdMox) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Journal returns a snapshot of the invocation journal.
func (c *CmdMox) Journal() []*JournalEntry {
	return c.journal.Snapshot()
}

// Enter transitions CREATED -> RECORD. No side effects touch the host
// environment until Replay.
func (c *CmdMox) Enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseCreated {
		return &LifecycleError{Action: "enter", Current: c.phase, Wanted: PhaseCreated}
	}
	c.phase = PhaseRecord
	return nil
}

// Stub declares a behavioral replacement that is never required to be
// called.
func (c *CmdMox) Stub(name string) *CommandDouble { return c.newDouble(name, KindStub) }

// Mock declares a command that must be called exactly as configured.
func (c *CmdMox) Mock(name string) *CommandDouble { return c.newDouble(name, KindMock) }

// Spy declares a command whose calls are recorded for later assertions
// and may pass through to the real executable.
func (c *CmdMox) Spy(name string) *CommandDouble { return c.newDouble(name, KindSpy) }

// newDouble registers a fresh double. Declaration order is preserved:
// it breaks ties when several expectations match one invocation. A name
// may not be registered under two different kinds.
func (c *CmdMox) newDouble(name string, kind DoubleKind) *CommandDouble {
	d := newDouble(name, c, kind)

	if err := shimgen.ValidateCommandName(name); err != nil {
		d.configErr = &ConfigurationError{Msg: err.Error()}
		return d
	}

	c.mu.Lock()
	if prior, seen := c.kinds[name]; seen && prior != kind {
		c.mu.Unlock()
		d.configErr = &ConfigurationError{
			Msg: fmt.Sprintf("%q already registered as %s; cannot register as %s", name, prior, kind),
		}
		return d
	}
	c.kinds[name] = kind
	c.doubles = append(c.doubles, d)
	c.commands[name] = struct{}{}
	replaying := c.phase == PhaseReplay
	shimDir := c.environment.ShimDir()
	c.mu.Unlock()

	// Late registration during replay creates the shim immediately so
	// the double works without restarting the IPC server. Healthy
	// entries are untouched, broken ones repaired.
	if replaying && shimDir != "" {
		if _, err := shimgen.CreateShims(shimDir, []string{name}, c.environment.OriginalPath()); err != nil {
			d.configErr = &ConfigurationError{Msg: err.Error()}
		}
	}
	return d
}

func (c *CmdMox) noteOrdered(exp *Expectation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.ordered {
		if e == exp {
			return
		}
	}
	c.ordered = append(c.ordered, exp)
}

func (c *CmdMox) dropOrdered(exp *Expectation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.ordered {
		if e == exp {
			c.ordered = append(c.ordered[:i], c.ordered[i+1:]...)
			return
		}
	}
}

func (c *CmdMox) noteRecorder(session *record.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorders = append(c.recorders, session)
}

// Replay transitions RECORD -> REPLAY: acquire the environment,
// generate shims for every registered command, start the transport.
// Calling Replay while already in REPLAY is a no-op. If any startup
// step fails — including interrupt signals — the partial state is torn
// down before the error propagates.
func (c *CmdMox) Replay() error {
	c.mu.Lock()
	if c.phase == PhaseReplay {
		c.mu.Unlock()
		return nil
	}
	if c.phase != PhaseRecord {
		phase := c.phase
		c.mu.Unlock()
		return &LifecycleError{Action: "replay", Current: phase, Wanted: PhaseRecord}
	}
	for _, d := range c.doubles {
		if d.configErr != nil {
			c.mu.Unlock()
			return d.configErr
		}
	}
	commands := make([]string, 0, len(c.commands))
	for name := range c.commands {
		commands = append(commands, name)
	}
	c.mu.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := c.startReplay(ctx, commands); err != nil {
		c.teardown()
		return err
	}

	c.mu.Lock()
	c.phase = PhaseReplay
	c.mu.Unlock()
	return nil
}

func (c *CmdMox) startReplay(ctx context.Context, commands []string) error {
	c.journal.Clear()

	if err := c.environment.Enter(); err != nil {
		return err
	}
	if err := interrupted(ctx); err != nil {
		return err
	}

	shimDir := c.environment.ShimDir()
	socketPath := c.environment.SocketPath()
	if shimDir == "" || socketPath == "" {
		return &MissingEnvironmentError{Missing: []string{"shim_dir", "socket_path"}}
	}

	if _, err := shimgen.CreateShims(shimDir, commands, c.environment.OriginalPath()); err != nil {
		return err
	}
	if err := interrupted(ctx); err != nil {
		return err
	}

	server, err := ipc.NewServer(socketPath, c.ipcTimeout, c.handleInvocation, c.handlePassthroughResult)
	if err != nil {
		return err
	}

	// Export current endpoint and timeout before accepting connections
	// so late-forked launchers observe live values.
	c.environment.ExportIPC(server.Timeout())
	if err := server.Start(); err != nil {
		return err
	}
	if err := interrupted(ctx); err != nil {
		server.Stop()
		return err
	}

	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	c.logger.Debug("replay started", "shim_dir", shimDir, "commands", len(commands))
	return nil
}

func interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("replay interrupted: %w", ctx.Err())
	default:
		return nil
	}
}

// Verify transitions REPLAY -> VERIFY: run the verifiers over the
// frozen journal, finalize attached recording sessions, then release
// the environment. Teardown runs on every path; a verification failure
// is returned as a single aggregated error.
func (c *CmdMox) Verify() error {
	c.mu.Lock()
	if c.phase != PhaseReplay {
		phase := c.phase
		c.mu.Unlock()
		return &LifecycleError{Action: "verify", Current: phase, Wanted: PhaseReplay}
	}
	doubles := append([]*CommandDouble{}, c.doubles...)
	ordered := append([]*Expectation{}, c.ordered...)
	recorders := append([]*record.Session{}, c.recorders...)
	c.mu.Unlock()

	failures := runVerifiers(c.journal.Snapshot(), doubles, ordered)

	var cleanupErrs []error
	for _, session := range recorders {
		if _, err := session.Finalize(); err != nil {
			cleanupErrs = append(cleanupErrs, fmt.Errorf("finalize recording session: %w", err))
		}
	}
	if err := c.archiveJournal(); err != nil {
		cleanupErrs = append(cleanupErrs, err)
	}

	c.teardown()

	c.mu.Lock()
	c.phase = PhaseVerify
	c.mu.Unlock()

	if len(failures) > 0 {
		return &VerificationError{Failures: failures}
	}
	return errors.Join(cleanupErrs...)
}

// Close is the deferred safety net: it verifies when the controller is
// still replaying and otherwise just releases resources. When the test
// body itself failed, its error should take precedence over whatever
// Close returns.
func (c *CmdMox) Close() error {
	if c.Phase() == PhaseReplay {
		return c.Verify()
	}
	c.teardown()
	return nil
}

// teardown stops the server and restores the environment. Every step
// runs even when earlier ones fail.
func (c *CmdMox) teardown() {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.mu.Unlock()

	if server != nil {
		server.Stop()
	}
	if c.environment.Entered() {
		if err := c.environment.Exit(); err != nil {
			c.logger.Error("environment teardown failed", "error", err)
		}
	}
}

// archiveJournal persists finalized invocations to the optional SQLite
// archive for post-mortem inspection.
func (c *CmdMox) archiveJournal() error {
	if c.archivePath == "" {
		return nil
	}
	archive, err := store.Open(c.archivePath)
	if err != nil {
		return fmt.Errorf("open journal archive: %w", err)
	}
	defer archive.Close()

	for seq, entry := range c.journal.Snapshot() {
		rec := store.InvocationRecord{
			Seq:          int64(seq),
			InvocationID: entry.Invocation.InvocationID,
			Command:      entry.Invocation.Command,
			Args:         entry.Invocation.Args,
			Stdin:        entry.Invocation.Stdin,
			Stdout:       entry.Invocation.Stdout,
			Stderr:       entry.Invocation.Stderr,
			ExitCode:     entry.Invocation.ExitCode,
			Matched:      entry.Matched(),
			Timestamp:    entry.Invocation.Timestamp,
		}
		if err := archive.WriteInvocation(rec); err != nil {
			return fmt.Errorf("archive journal entry %d: %w", seq, err)
		}
	}
	return nil
}

// handleInvocation is the IPC server callback for invocation messages.
// It matches the invocation to an expectation, generates the response,
// and appends the finalized invocation to the journal. Unmatched
// invocations are journaled as unexpected and answered neutrally;
// verification reports them.
func (c *CmdMox) handleInvocation(inv *ipc.Invocation) (*ipc.Response, error) {
	double := c.matchDouble(inv)

	if double == nil {
		c.logger.Debug("unexpected invocation", "command", inv.Command, "args", inv.Args)
		c.journal.Append(&JournalEntry{Invocation: inv})
		return &ipc.Response{}, nil
	}

	if double.IsPassthrough() {
		lookupPath := environment.RemoveFromPath(
			c.environment.OriginalPath(), c.environment.ShimDir(),
		)
		return c.coordinator.PrepareRequest(double, inv, lookupPath, c.passthroughTimeout), nil
	}

	resp := c.respondFor(double, inv)
	inv.Apply(resp)
	if double.isRecording() {
		double.recordInvocation(inv)
	}
	c.journal.Append(&JournalEntry{Invocation: inv, Double: double})
	return resp, nil
}

// respondFor produces the double's configured behavior. Expectation env
// overrides are applied to the invocation's recorded env for the
// handler's benefit and carried through to the response, expectation
// winning on conflict. A handler failure becomes a failure response so
// the journal records the breakage.
func (c *CmdMox) respondFor(double *CommandDouble, inv *ipc.Invocation) *ipc.Response {
	expEnv := double.expectation.Env()

	var resp *ipc.Response
	if double.handler != nil {
		scoped := inv.Clone()
		for k, v := range expEnv {
			scoped.Env[k] = v
		}
		var err error
		resp, err = double.handler.Run(scoped)
		if err != nil {
			c.logger.Debug("handler failed", "command", inv.Command, "error", err)
			resp = &ipc.Response{Stderr: err.Error(), ExitCode: 1}
		} else if resp == nil {
			resp = &ipc.Response{}
		} else {
			resp = resp.Clone()
		}
	} else {
		resp = double.response.Clone()
	}

	if len(expEnv) > 0 {
		if resp.Env == nil {
			resp.Env = make(map[string]string, len(expEnv))
		}
		for k, v := range expEnv {
			resp.Env[k] = v
		}
	}
	return resp
}

// handlePassthroughResult finalizes a real execution: the coordinator
// synthesizes the response from the observed stdio, the double records
// the call, and the journal gets the entry carrying real results.
func (c *CmdMox) handlePassthroughResult(result *ipc.PassthroughResult) (*ipc.Response, error) {
	double, inv, resp, err := c.coordinator.FinalizeResult(result)
	if err != nil {
		return nil, err
	}
	if double.isRecording() {
		double.recordInvocation(inv)
	}
	if double.recorder != nil {
		if err := double.recorder.Record(inv, resp); err != nil {
			c.logger.Warn("recording session rejected invocation", "command", inv.Command, "error", err)
		}
	}
	c.journal.Append(&JournalEntry{Invocation: inv, Double: double})
	return resp, nil
}

// matchDouble finds the expectation an invocation satisfies.
// Unfulfilled candidates are preferred in declaration order; fulfilled
// ones still match so over-calls surface as count failures rather than
// unexpected commands.
func (c *CmdMox) matchDouble(inv *ipc.Invocation) *CommandDouble {
	c.mu.Lock()
	candidates := make([]*CommandDouble, 0, 2)
	for _, d := range c.doubles {
		if d.name == inv.Command {
			candidates = append(candidates, d)
		}
	}
	c.mu.Unlock()

	for _, d := range candidates {
		if !d.fulfilled() && d.Matches(inv) {
			return d
		}
	}
	for _, d := range candidates {
		if d.Matches(inv) {
			return d
		}
	}
	return nil
}

// fulfilled reports whether a double's count capacity is used up.
// Stubs and spies without an explicit Times have unlimited capacity.
func (d *CommandDouble) fulfilled() bool {
	if !d.expectation.countSet && d.kind != KindMock {
		return false
	}
	return d.CallCount() >= d.expectation.Count()
}
