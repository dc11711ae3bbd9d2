package cmdmox

import (
	"os"
	"runtime"
	"strings"

	"github.com/cmdmox/cmdmox/ipc"
)

// Platform support lives in one place so test suites and the CLI react
// consistently. The advisory override lets a suite emulate another
// platform without spawning a different OS.

// UnsupportedReason returns a human-readable reason when the current
// platform cannot run CmdMox, or "" when it can. The
// CMOX_PLATFORM_OVERRIDE variable takes precedence over the detected
// platform.
func UnsupportedReason() string {
	return unsupportedReason(currentPlatform())
}

// Supported reports whether the current platform can run CmdMox.
func Supported() bool {
	return UnsupportedReason() == ""
}

func currentPlatform() string {
	if override := os.Getenv(ipc.PlatformOverrideEnv); override != "" {
		return strings.ToLower(strings.TrimSpace(override))
	}
	return runtime.GOOS
}

func unsupportedReason(platform string) string {
	// Plan 9 has no Unix sockets or named pipes in the form the
	// transport needs. Everything else Go supports is fine: Windows
	// uses the named-pipe endpoint, the rest Unix sockets.
	if strings.HasPrefix(platform, "plan9") {
		return "cmdmox does not support Plan 9"
	}
	return ""
}
