package shimgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FormatBatchLauncher renders the .cmd contents for a Windows shim
// entry. CRLF line endings regardless of host, cmd metacharacters in
// the launcher path escaped, and all arguments forwarded quoted via %*.
func FormatBatchLauncher(launcherPath string) string {
	escaped := escapeBatchPath(launcherPath)
	return "@echo off\r\n" +
		"setlocal ENABLEDELAYEDEXPANSION\r\n" +
		"\"" + escaped + "\" %*\r\n"
}

// escapeBatchPath escapes the characters cmd.exe would otherwise
// interpret inside the generated launcher line.
func escapeBatchPath(path string) string {
	path = strings.ReplaceAll(path, "%", "%%")
	path = strings.ReplaceAll(path, "^", "^^")
	return strings.ReplaceAll(path, `"`, `""`)
}

// createWindowsShim writes dir/name.cmd invoking the launcher.
// Anything occupying the name that is not a regular file is an error;
// an existing file is rewritten so regeneration repairs stale entries.
func createWindowsShim(dir, name, launcher string) (string, error) {
	entry := filepath.Join(dir, name+".cmd")

	if info, err := os.Lstat(entry); err == nil && !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s already exists and is not a file", entry)
	}

	if err := os.WriteFile(entry, []byte(FormatBatchLauncher(launcher)), 0o755); err != nil {
		return "", fmt.Errorf("create shim %s: %w", entry, err)
	}
	return entry, nil
}
