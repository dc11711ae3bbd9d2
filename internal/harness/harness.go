package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cmdmox/cmdmox"
	"github.com/cmdmox/cmdmox/internal/shimgen"
	"github.com/cmdmox/cmdmox/ipc"
)

// CallResult is the behavior one simulated launcher observed.
type CallResult struct {
	Command  string
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Result is the outcome of running a scenario.
type Result struct {
	Scenario  *Scenario
	Calls     []CallResult
	VerifyErr error
}

// Transcript renders the result deterministically for golden-file
// comparison.
func (r *Result) Transcript() string {
	var b strings.Builder
	for _, call := range r.Calls {
		quoted := make([]string, len(call.Args))
		for i, a := range call.Args {
			quoted[i] = fmt.Sprintf("'%s'", a)
		}
		fmt.Fprintf(&b, "%s(%s) -> exit %d stdout=%q stderr=%q\n",
			call.Command, strings.Join(quoted, ", "), call.ExitCode, call.Stdout, call.Stderr)
	}
	if r.VerifyErr == nil {
		b.WriteString("verify: ok\n")
	} else {
		fmt.Fprintf(&b, "verify: %s\n", r.VerifyErr.Error())
	}
	return b.String()
}

// Run executes a scenario against a real controller and transport. The
// harness plays the launcher role: each call is sent as an invocation
// message over the live IPC endpoint and the reply is applied exactly
// as a launcher would.
func Run(scenario *Scenario) (*Result, error) {
	restore, err := installStubLauncher()
	if err != nil {
		return nil, err
	}
	defer restore()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := cmdmox.New(cmdmox.WithLogger(quiet))
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}
	if err := c.Enter(); err != nil {
		return nil, fmt.Errorf("enter: %w", err)
	}

	registerDoubles(c, scenario.Doubles)

	if err := c.Replay(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	result := &Result{Scenario: scenario}
	for _, call := range scenario.Calls {
		outcome, err := playLauncher(call)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("call %s: %w", call.Command, err)
		}
		result.Calls = append(result.Calls, outcome)
	}

	result.VerifyErr = c.Verify()
	return result, nil
}

func registerDoubles(c *cmdmox.CmdMox, specs []DoubleSpec) {
	for _, spec := range specs {
		var d *cmdmox.CommandDouble
		switch spec.Kind {
		case "mock":
			d = c.Mock(spec.Command)
		case "spy":
			d = c.Spy(spec.Command)
		default:
			d = c.Stub(spec.Command)
		}
		d.Returns(spec.Stdout, spec.Stderr, spec.ExitCode)
		if spec.Args != nil {
			d.WithArgs(spec.Args...)
		}
		if spec.Env != nil {
			d.WithEnv(spec.Env)
		}
		if spec.Times > 0 {
			d.Times(spec.Times)
		}
		if spec.Ordered {
			d.InOrder()
		}
	}
}

// playLauncher performs one invocation round trip the way the real
// launcher does: snapshot env, send, apply the reply.
func playLauncher(call CallSpec) (CallResult, error) {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range call.Env {
		env[k] = v
	}
	args := call.Args
	if args == nil {
		args = []string{}
	}

	timeout, err := ipc.TimeoutFromEnv()
	if err != nil {
		return CallResult{}, err
	}
	resp, err := ipc.InvokeServer(&ipc.Invocation{
		Command:      call.Command,
		Args:         args,
		Stdin:        call.Stdin,
		Env:          env,
		InvocationID: uuid.NewString(),
	}, timeout, ipc.DefaultRetryConfig())
	if err != nil {
		return CallResult{}, err
	}

	return CallResult{
		Command:  call.Command,
		Args:     args,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
	}, nil
}

// installStubLauncher creates a throwaway launcher target so shim
// generation succeeds without a built cmdmox-shim binary.
func installStubLauncher() (restore func(), err error) {
	dir, err := os.MkdirTemp("", "cmdmox-harness-")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, shimgen.LauncherName)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	prev := shimgen.LauncherPath
	shimgen.LauncherPath = path
	return func() {
		shimgen.LauncherPath = prev
		os.RemoveAll(dir)
	}, nil
}
