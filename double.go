package cmdmox

import (
	"fmt"
	"sync"

	"github.com/cmdmox/cmdmox/ipc"
	"github.com/cmdmox/cmdmox/record"
)

// DoubleKind discriminates the verification semantics of a
// CommandDouble. The tag is explicit: the verifier switches on it, and
// no behavior hangs off inheritance.
type DoubleKind string

const (
	// KindStub is a behavioral replacement that is never required to be
	// called.
	KindStub DoubleKind = "stub"
	// KindMock must be called exactly as declared.
	KindMock DoubleKind = "mock"
	// KindSpy records calls, may pass through to the real command, and
	// supports after-the-fact assertions.
	KindSpy DoubleKind = "spy"
)

// Handler produces a dynamic response for an invocation. Handlers run
// in the controller process with full access to test state.
type Handler interface {
	Run(inv *ipc.Invocation) (*ipc.Response, error)
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(inv *ipc.Invocation) (*ipc.Response, error)

// Run implements Handler.
func (f HandlerFunc) Run(inv *ipc.Invocation) (*ipc.Response, error) { return f(inv) }

// CommandDouble is the configuration for a stubbed, mocked, or spied
// command. One double carries exactly one expectation; declaring the
// same command again creates another double, and declaration order
// breaks matching ties.
type CommandDouble struct {
	name        string
	kind        DoubleKind
	controller  *CmdMox
	expectation *Expectation
	response    *ipc.Response
	handler     Handler
	passthrough bool
	recorder    *record.Session

	mu          sync.Mutex
	invocations []*ipc.Invocation

	// configErr holds the first fluent misconfiguration; surfaced when
	// replay starts so chained calls stay ergonomic.
	configErr error
}

func newDouble(name string, controller *CmdMox, kind DoubleKind) *CommandDouble {
	return &CommandDouble{
		name:        name,
		kind:        kind,
		controller:  controller,
		expectation: newExpectation(name),
		response:    &ipc.Response{},
	}
}

// Name returns the command name.
func (d *CommandDouble) Name() string { return d.name }

// Kind returns the double's verification tag.
func (d *CommandDouble) Kind() DoubleKind { return d.kind }

// Expectation exposes the underlying expectation, mainly for
// diagnostics and tests.
func (d *CommandDouble) Expectation() *Expectation { return d.expectation }

// Returns sets the static response and clears any handler.
func (d *CommandDouble) Returns(stdout, stderr string, exitCode int) *CommandDouble {
	d.response = &ipc.Response{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}
	d.handler = nil
	return d
}

// Runs installs a dynamic handler generating the response per call.
func (d *CommandDouble) Runs(handler Handler) *CommandDouble {
	d.handler = handler
	return d
}

// RunsFunc is sugar for Runs(HandlerFunc(fn)).
func (d *CommandDouble) RunsFunc(fn func(inv *ipc.Invocation) (*ipc.Response, error)) *CommandDouble {
	return d.Runs(HandlerFunc(fn))
}

// WithArgs requires the exact ordered argument list.
func (d *CommandDouble) WithArgs(args ...string) *CommandDouble {
	d.expectation.args = append([]string{}, args...)
	return d
}

// WithMatchingArgs validates each argv element with one comparator.
func (d *CommandDouble) WithMatchingArgs(matchers ...Comparator) *CommandDouble {
	d.expectation.matchArgs = append([]Comparator{}, matchers...)
	return d
}

// WithStdin expects stdin to equal data exactly.
func (d *CommandDouble) WithStdin(data string) *CommandDouble {
	d.expectation.stdin = &stdinMatcher{exact: data}
	return d
}

// WithStdinMatching expects stdin to satisfy the comparator.
func (d *CommandDouble) WithStdinMatching(c Comparator) *CommandDouble {
	d.expectation.stdin = &stdinMatcher{comparator: c}
	return d
}

// WithEnv declares env overrides applied when the response is generated
// and required as a subset of the invocation env when matching.
// Conflicts with caller-supplied env resolve in favor of the
// expectation.
func (d *CommandDouble) WithEnv(mapping map[string]string) *CommandDouble {
	env := make(map[string]string, len(mapping))
	for k, v := range mapping {
		env[k] = v
	}
	d.expectation.env = env
	return d
}

// Times requires the command be invoked exactly count times.
func (d *CommandDouble) Times(count int) *CommandDouble {
	if count <= 0 {
		d.setConfigErr(fmt.Sprintf("times(%d): count must be positive", count))
		return d
	}
	d.expectation.count = count
	d.expectation.countSet = true
	return d
}

// TimesCalled is an alias for Times matching the fluent DSL.
func (d *CommandDouble) TimesCalled(count int) *CommandDouble { return d.Times(count) }

// InOrder marks this expectation as ordered relative to other ordered
// expectations.
func (d *CommandDouble) InOrder() *CommandDouble {
	d.expectation.ordered = true
	d.controller.noteOrdered(d.expectation)
	return d
}

// AnyOrder allows this expectation to be satisfied at any position.
func (d *CommandDouble) AnyOrder() *CommandDouble {
	d.expectation.ordered = false
	d.controller.dropOrdered(d.expectation)
	return d
}

// Passthrough marks a spy for real execution: the launcher runs the
// actual binary while the controller still observes the interaction.
func (d *CommandDouble) Passthrough() *CommandDouble {
	if d.kind != KindSpy {
		d.setConfigErr("passthrough() is only valid for spies")
		return d
	}
	d.passthrough = true
	return d
}

// IsPassthrough reports whether real execution is enabled.
func (d *CommandDouble) IsPassthrough() bool { return d.passthrough }

// Record attaches a recording session persisting every passthrough
// (invocation, response) pair to a fixture file at path. Only valid on
// a passthrough spy.
func (d *CommandDouble) Record(path string, opts ...record.SessionOption) *CommandDouble {
	if d.kind != KindSpy || !d.passthrough {
		d.setConfigErr("record() requires a passthrough spy")
		return d
	}
	session := record.NewSession(path, opts...)
	if err := session.Start(); err != nil {
		d.setConfigErr(err.Error())
		return d
	}
	d.recorder = session
	d.controller.noteRecorder(session)
	return d
}

func (d *CommandDouble) setConfigErr(msg string) {
	if d.configErr == nil {
		d.configErr = &ConfigurationError{Msg: d.name + ": " + msg}
	}
}

// Matches reports whether invocation satisfies this double's
// expectation.
func (d *CommandDouble) Matches(inv *ipc.Invocation) bool {
	return d.expectation.Matches(inv)
}

// isExpected reports whether verification requires this double to have
// been called: mocks always, others only with an explicit Times.
func (d *CommandDouble) isExpected() bool {
	return d.kind == KindMock || d.expectation.countSet
}

// isRecording reports whether invocations are retained on the double:
// mocks and spies always, stubs only with an explicit Times.
func (d *CommandDouble) isRecording() bool {
	return d.kind == KindMock || d.kind == KindSpy || d.expectation.countSet
}

func (d *CommandDouble) recordInvocation(inv *ipc.Invocation) {
	d.mu.Lock()
	d.invocations = append(d.invocations, inv)
	d.mu.Unlock()
}

// CallCount returns how many times the double matched an invocation.
// A stub without an explicit Times retains no invocations and reports 0.
func (d *CommandDouble) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.invocations)
}

// Invocations returns a snapshot of the recorded invocations.
func (d *CommandDouble) Invocations() []*ipc.Invocation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*ipc.Invocation{}, d.invocations...)
}

// AssertCalled fails when the spy was never invoked.
func (d *CommandDouble) AssertCalled() error {
	if err := d.requireSpy("AssertCalled"); err != nil {
		return err
	}
	if d.CallCount() == 0 {
		return fmt.Errorf("expected %q to be called at least once but it was never called", d.name)
	}
	return nil
}

// AssertNotCalled fails when the spy was invoked.
func (d *CommandDouble) AssertNotCalled() error {
	if err := d.requireSpy("AssertNotCalled"); err != nil {
		return err
	}
	invocations := d.Invocations()
	if len(invocations) > 0 {
		last := invocations[len(invocations)-1]
		return fmt.Errorf("expected %q to be uncalled but it was called %d time(s); last args=%q, stdin=%q",
			d.name, len(invocations), last.Args, last.Stdin)
	}
	return nil
}

// CalledWith constrains AssertCalledWith beyond the argument list.
type CalledWith struct {
	Stdin *string
	Env   map[string]string
}

// AssertCalledWith checks the most recent call used the given args and,
// when provided, stdin and env.
func (d *CommandDouble) AssertCalledWith(args []string, with *CalledWith) error {
	if err := d.requireSpy("AssertCalledWith"); err != nil {
		return err
	}
	invocations := d.Invocations()
	if len(invocations) == 0 {
		return fmt.Errorf("expected %q to be called but it was never called", d.name)
	}
	last := invocations[len(invocations)-1]
	if !equalArgs(last.Args, args) {
		return fmt.Errorf("%q called with args %q, expected %q", d.name, last.Args, args)
	}
	if with == nil {
		return nil
	}
	if with.Stdin != nil && last.Stdin != *with.Stdin {
		return fmt.Errorf("%q called with stdin %q, expected %q", d.name, last.Stdin, *with.Stdin)
	}
	for key, want := range with.Env {
		if actual := last.Env[key]; actual != want {
			wantRepr, actualRepr := want, actual
			if ipc.IsSensitiveEnvKey(key) {
				wantRepr, actualRepr = ipc.Redacted, ipc.Redacted
			}
			return fmt.Errorf("%q called with env[%q]=%q, expected %q", d.name, key, actualRepr, wantRepr)
		}
	}
	return nil
}

func (d *CommandDouble) requireSpy(method string) error {
	if d.kind != KindSpy {
		return fmt.Errorf("%s() is only valid for spies", method)
	}
	return nil
}

// String returns a debugging representation.
func (d *CommandDouble) String() string {
	return fmt.Sprintf("CommandDouble(name=%q, kind=%q)", d.name, d.kind)
}
