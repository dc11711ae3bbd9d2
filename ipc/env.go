package ipc

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

// Environment variables published to launchers. These form the launcher
// contract: a shim resolves its server endpoint and timeouts exclusively
// from these values, never from controller state.
const (
	// SocketEnv holds the logical endpoint path. On POSIX it is the Unix
	// socket path itself; on Windows the same value is hashed into a
	// named-pipe name (see PipeName).
	SocketEnv = "CMOX_IPC_SOCKET"

	// TimeoutEnv holds the client-side per-operation timeout in seconds
	// as a positive finite float.
	TimeoutEnv = "CMOX_IPC_TIMEOUT"

	// RealCommandEnvPrefix prefixes per-command overrides pointing a
	// passthrough spy at an explicit real binary, e.g.
	// CMOX_REAL_COMMAND_git=/usr/bin/git.
	RealCommandEnvPrefix = "CMOX_REAL_COMMAND_"

	// PlatformOverrideEnv advisorily overrides the detected platform.
	// Testing aid only.
	PlatformOverrideEnv = "CMOX_PLATFORM_OVERRIDE"
)

// DefaultTimeout applies when TimeoutEnv is unset.
const DefaultTimeout = 5 * time.Second

// FormatTimeout renders a timeout for TimeoutEnv.
func FormatTimeout(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'g', -1, 64)
}

// ParseTimeout converts a TimeoutEnv value into a duration. The value
// must be a positive finite number of seconds.
func ParseTimeout(raw string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid IPC timeout %q: %w", raw, err)
	}
	if secs <= 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
		return 0, fmt.Errorf("invalid IPC timeout %q: must be a positive finite number", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// TimeoutFromEnv returns the configured client timeout, falling back to
// DefaultTimeout when the variable is unset.
func TimeoutFromEnv() (time.Duration, error) {
	raw, ok := os.LookupEnv(TimeoutEnv)
	if !ok || raw == "" {
		return DefaultTimeout, nil
	}
	return ParseTimeout(raw)
}

// SocketFromEnv returns the logical endpoint path exported by the
// controller, or an error when no replay environment is active.
func SocketFromEnv() (string, error) {
	path, ok := os.LookupEnv(SocketEnv)
	if !ok || path == "" {
		return "", fmt.Errorf("%s is not set", SocketEnv)
	}
	return path, nil
}
