package shim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/cmdmox/cmdmox/internal/environment"
	"github.com/cmdmox/cmdmox/ipc"
)

// Exit codes for passthrough failures, matching shell conventions.
const (
	exitTimeout       = 124
	exitNotExecutable = 126
	exitNotFound      = 127
)

// executePassthrough resolves and runs the real command as instructed
// by the directive. Failures are encoded as a result (the controller
// journals them); this function never aborts the launcher.
func executePassthrough(inv *ipc.Invocation, directive *ipc.PassthroughRequest) *ipc.PassthroughResult {
	resp := runRealCommand(inv, directive)
	return &ipc.PassthroughResult{
		InvocationID: directive.InvocationID,
		Stdout:       resp.Stdout,
		Stderr:       resp.Stderr,
		ExitCode:     resp.ExitCode,
	}
}

func runRealCommand(inv *ipc.Invocation, directive *ipc.PassthroughRequest) *ipc.Response {
	searchPath := environment.MergeSearchPath(
		inv.Env["PATH"], directive.LookupPath, shimDirFromEnv(),
	)

	target, failure := resolveTarget(inv.Command, searchPath)
	if failure != nil {
		return failure
	}

	env := buildExecutionEnv(inv.Env, searchPath, directive.ExtraEnv)

	ctx, cancel := context.WithTimeout(context.Background(), directive.Timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, target, inv.Args...)
	cmd.Env = env
	cmd.Stdin = strings.NewReader(inv.Stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ipc.Response{
			Stdout:   stdout.String(),
			Stderr:   fmt.Sprintf("%s: timed out after %s", inv.Command, directive.Timeout()),
			ExitCode: exitTimeout,
		}
	}
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return &ipc.Response{
				Stderr:   fmt.Sprintf("%s: %v", inv.Command, err),
				ExitCode: exitNotExecutable,
			}
		}
	}

	return &ipc.Response{
		Stdout:   strings.ToValidUTF8(stdout.String(), "�"),
		Stderr:   strings.ToValidUTF8(stderr.String(), "�"),
		ExitCode: exitCode,
	}
}

// resolveTarget finds the real executable: an explicit per-command
// override wins, otherwise the merged search path is consulted. The
// failure response distinguishes not-found (127) from found-but-not-
// executable (126).
func resolveTarget(command, searchPath string) (string, *ipc.Response) {
	if override := os.Getenv(ipc.RealCommandEnvPrefix + command); override != "" {
		return validateOverride(command, override)
	}

	found, foundNonExec := lookPathIn(command, searchPath)
	if found != "" {
		return found, nil
	}
	if foundNonExec {
		return "", &ipc.Response{
			Stderr:   fmt.Sprintf("%s: not executable", command),
			ExitCode: exitNotExecutable,
		}
	}
	return "", &ipc.Response{
		Stderr:   fmt.Sprintf("%s: not found", command),
		ExitCode: exitNotFound,
	}
}

func validateOverride(command, override string) (string, *ipc.Response) {
	path := override
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &ipc.Response{
			Stderr:   fmt.Sprintf("%s: not found", command),
			ExitCode: exitNotFound,
		}
	}
	if !info.Mode().IsRegular() {
		return "", &ipc.Response{
			Stderr:   fmt.Sprintf("%s: invalid executable path", command),
			ExitCode: exitNotExecutable,
		}
	}
	if !isExecutable(info) {
		return "", &ipc.Response{
			Stderr:   fmt.Sprintf("%s: not executable", command),
			ExitCode: exitNotExecutable,
		}
	}
	return path, nil
}

// lookPathIn searches the path list for an executable regular file
// named command. Also reports whether a matching non-executable file
// was seen, so callers can exit 126 instead of 127.
func lookPathIn(command, pathList string) (found string, foundNonExec bool) {
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}
		for _, candidate := range candidateNames(command) {
			path := filepath.Join(dir, candidate)
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if isExecutable(info) {
				return path, foundNonExec
			}
			foundNonExec = true
		}
	}
	return "", foundNonExec
}

// candidateNames expands a bare command into the filenames PATH lookup
// would try: the name itself on POSIX, plus PATHEXT variants on
// Windows.
func candidateNames(command string) []string {
	if runtime.GOOS != "windows" {
		return []string{command}
	}
	exts := strings.Split(os.Getenv("PATHEXT"), ";")
	if len(exts) == 0 {
		exts = []string{".COM", ".EXE", ".BAT", ".CMD"}
	}
	names := []string{command}
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext != "" {
			names = append(names, command+strings.ToLower(ext))
		}
	}
	return names
}

func isExecutable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// buildExecutionEnv layers the expectation's extra env over the
// captured invocation env (expectation wins on conflict) and pins PATH
// to the filtered search path.
func buildExecutionEnv(invEnv map[string]string, searchPath string, extraEnv map[string]string) []string {
	merged := make(map[string]string, len(invEnv)+len(extraEnv)+1)
	for k, v := range invEnv {
		merged[k] = v
	}
	merged["PATH"] = searchPath
	for k, v := range extraEnv {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	environ := make([]string, 0, len(keys))
	for _, k := range keys {
		environ = append(environ, k+"="+merged[k])
	}
	return environ
}

// shimDirFromEnv returns the shim directory recorded in the exported
// socket path, if any. It must never appear on the passthrough search
// path or the real lookup would recurse into the shim.
func shimDirFromEnv() string {
	socketPath, err := ipc.SocketFromEnv()
	if err != nil {
		return ""
	}
	return filepath.Dir(socketPath)
}
