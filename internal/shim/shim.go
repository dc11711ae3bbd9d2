// Package shim implements the universal command launcher.
//
// A launcher process is single-shot: it identifies itself from argv[0],
// reports one invocation to the controller over IPC, applies the
// returned behavior, and exits. It has no knowledge of matching,
// ordering, or verification — it is a pure executor of the server's
// instructions. For passthrough it additionally runs the real command
// and reports the observed stdio and exit status back before applying
// the follow-up response.
package shim

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/cmdmox/cmdmox/ipc"
)

// Options carries the launcher's process-level inputs so tests can run
// it without forking.
type Options struct {
	// Argv0 is how the OS invoked us; the command identity comes from
	// its basename.
	Argv0 string
	// Args are the forwarded command arguments (argv[1:]).
	Args []string
	// Stdin is nil when stdin is an interactive terminal; the launcher
	// then sends an empty string instead of blocking on a console.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Retry overrides the connection retry policy; zero value means
	// defaults.
	Retry ipc.RetryConfig
}

// Run executes the launcher protocol and returns the process exit code.
func Run(opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Retry == (ipc.RetryConfig{}) {
		opts.Retry = ipc.DefaultRetryConfig()
	}

	if _, err := ipc.SocketFromEnv(); err != nil {
		fmt.Fprintln(opts.Stderr, "IPC socket not specified")
		return 1
	}
	timeout, err := ipc.TimeoutFromEnv()
	if err != nil {
		fmt.Fprintf(opts.Stderr, "IPC error: %v\n", err)
		return 1
	}

	inv := &ipc.Invocation{
		Command:      CommandIdentity(opts.Argv0),
		Args:         NormalizeArgs(opts.Args),
		Stdin:        readStdin(opts.Stdin),
		Env:          snapshotEnviron(),
		InvocationID: uuid.NewString(),
	}

	resp, err := ipc.InvokeServer(inv, timeout, opts.Retry)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "IPC error: %v\n", err)
		return 1
	}

	if resp.Passthrough != nil {
		result := executePassthrough(inv, resp.Passthrough)
		resp, err = ipc.ReportPassthroughResult(result, timeout, opts.Retry)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "IPC error: %v\n", err)
			return 1
		}
	}

	return applyResponse(resp, opts.Stdout, opts.Stderr)
}

// applyResponse merges env overrides into the process environment (so
// subsequent commands in this process inherit them cumulatively),
// writes the scripted stdio, and yields the exit code.
func applyResponse(resp *ipc.Response, stdout, stderr io.Writer) int {
	for key, value := range resp.Env {
		os.Setenv(key, value)
	}
	io.WriteString(stdout, resp.Stdout)
	io.WriteString(stderr, resp.Stderr)
	return resp.ExitCode
}

// CommandIdentity recovers the command name from argv[0]: the basename,
// with the launcher extension stripped on Windows.
func CommandIdentity(argv0 string) string {
	name := filepath.Base(argv0)
	if runtime.GOOS == "windows" {
		lower := strings.ToLower(name)
		for _, ext := range []string{".cmd", ".bat", ".exe"} {
			if strings.HasSuffix(lower, ext) {
				return name[:len(name)-len(ext)]
			}
		}
	}
	return name
}

// NormalizeArgs undoes one batch-escape layer on Windows, where the
// generated .cmd launcher doubled carets on the way through cmd.exe.
func NormalizeArgs(args []string) []string {
	if runtime.GOOS != "windows" {
		if args == nil {
			return []string{}
		}
		return args
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = collapseCarets(a)
	}
	return out
}

// collapseCarets replaces every ^^ run pairwise with single carets.
func collapseCarets(s string) string {
	return strings.ReplaceAll(s, "^^", "^")
}

// readStdin drains the reader to EOF as UTF-8. A nil reader means stdin
// is a terminal; the guard avoids hanging an interactive console.
func readStdin(r io.Reader) string {
	if r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(data), "�")
}

// StdinIfPiped returns os.Stdin when it is not a terminal, nil when it
// is. The launcher must never block reading an interactive console.
func StdinIfPiped() io.Reader {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	return os.Stdin
}

func snapshotEnviron() map[string]string {
	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}
