// Package shimgen populates a shim directory with one launcher entry
// per registered command.
//
// Every entry resolves to the single universal launcher binary
// (cmdmox-shim): a symlink named exactly as the command on POSIX, a
// small .cmd batch launcher on Windows. The launcher recovers the
// command identity from its argv[0], so the entries themselves carry no
// configuration.
//
// Generation is idempotent: healthy entries are left untouched, broken
// or missing ones are repaired, and anything else occupying an entry's
// name is an error.
package shimgen

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// LauncherName is the universal launcher binary the entries point at.
const LauncherName = "cmdmox-shim"

// LauncherPath overrides launcher discovery. Tests point this at a stub
// executable; production leaves it empty and the launcher is found next
// to the current executable or on the original PATH.
var LauncherPath string

// CreateShims creates launcher entries for commands inside dir and
// returns the created paths keyed by command name.
//
// lookupPath is searched for the launcher binary when it does not sit
// next to the current executable (it is the original PATH, so an
// installed cmdmox-shim is found even while the shim dir shadows it).
func CreateShims(dir string, commands []string, lookupPath string) (map[string]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	if err := validateCommandSet(commands); err != nil {
		return nil, err
	}

	launcher, err := resolveLauncher(lookupPath)
	if err != nil {
		return nil, err
	}

	created := make(map[string]string, len(commands))
	for _, name := range commands {
		var entry string
		var err error
		if runtime.GOOS == "windows" {
			entry, err = createWindowsShim(dir, name, launcher)
		} else {
			entry, err = createPosixSymlink(dir, name, launcher)
		}
		if err != nil {
			return nil, err
		}
		created[name] = entry
	}
	return created, nil
}

// validateCommandSet rejects unsafe names and duplicates that differ
// only by case; on case-insensitive filesystems those would collide.
func validateCommandSet(commands []string) error {
	seen := make(map[string]string, len(commands))
	for _, name := range commands {
		if err := ValidateCommandName(name); err != nil {
			return err
		}
		folded := strings.ToLower(name)
		if prior, dup := seen[folded]; dup && prior != name {
			return fmt.Errorf("conflicting command names %q and %q differ only by case", prior, name)
		}
		seen[folded] = name
	}
	return nil
}

// ValidateCommandName rejects names that cannot safely become a
// filesystem entry on PATH.
func ValidateCommandName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("invalid command name: empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid command name: %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("invalid command name %q: path separators are not allowed", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("invalid command name %q: NUL byte", name)
	}
	return nil
}

// createPosixSymlink links dir/name at the launcher. A healthy link is
// kept, a broken or stale one replaced, and a non-symlink collision is
// an error.
func createPosixSymlink(dir, name, launcher string) (string, error) {
	link := filepath.Join(dir, name)

	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return "", fmt.Errorf("%s already exists and is not a symlink", link)
		}
		if target, err := os.Readlink(link); err == nil && target == launcher {
			if _, err := os.Stat(link); err == nil {
				return link, nil
			}
		}
		if err := os.Remove(link); err != nil {
			return "", fmt.Errorf("replace shim %s: %w", link, err)
		}
	}

	if err := os.Symlink(launcher, link); err != nil {
		return "", fmt.Errorf("create shim %s: %w", link, err)
	}
	return link, nil
}

// resolveLauncher locates the universal launcher binary and ensures it
// is executable.
func resolveLauncher(lookupPath string) (string, error) {
	path := LauncherPath
	if path == "" {
		path = discoverLauncher(lookupPath)
	}
	if path == "" {
		return "", fmt.Errorf("launcher binary %s not found", LauncherName)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("launcher binary not found: %s", path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		if err := os.Chmod(path, info.Mode().Perm()|0o111); err != nil {
			return "", fmt.Errorf("cannot make launcher executable: %s: %w", path, err)
		}
	}
	return path, nil
}

// discoverLauncher looks next to the current executable first, then on
// the supplied lookup path.
func discoverLauncher(lookupPath string) string {
	name := LauncherName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	for _, entry := range filepath.SplitList(lookupPath) {
		if entry == "" {
			continue
		}
		candidate := filepath.Join(entry, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
