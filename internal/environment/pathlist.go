package environment

import (
	"os"
	"runtime"
	"strings"
)

// hostCaseInsensitive reports whether PATH entries compare
// case-insensitively on this host.
func hostCaseInsensitive() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// PrependPath returns list with dir first. Entries are trimmed of
// whitespace, empties dropped, pre-existing occurrences of dir removed,
// and duplicates collapsed with host case semantics.
func PrependPath(dir, list string) string {
	return prependPath(dir, list, hostCaseInsensitive())
}

// RemoveFromPath returns list without dir, deduplicated. This is how
// the passthrough lookup path is built: the original PATH minus the
// shim directory.
func RemoveFromPath(list, dir string) string {
	return strings.Join(splitPathList(list, dir, hostCaseInsensitive()), string(os.PathListSeparator))
}

// MergeSearchPath combines the launcher's own PATH with the lookup path
// supplied by the controller, filtering the shim directory and
// duplicates. Entries from envPath keep priority over lookupPath.
func MergeSearchPath(envPath, lookupPath, excludeDir string) string {
	ci := hostCaseInsensitive()
	merged := append(
		splitPathList(envPath, excludeDir, ci),
		splitPathList(lookupPath, excludeDir, ci)...,
	)
	return strings.Join(dedupe(merged, ci), string(os.PathListSeparator))
}

func prependPath(dir, list string, caseInsensitive bool) string {
	entries := append([]string{dir}, splitPathList(list, dir, caseInsensitive)...)
	return strings.Join(dedupe(entries, caseInsensitive), string(os.PathListSeparator))
}

// splitPathList splits, trims, drops empties and any entry equal to
// exclude, and collapses duplicates while preserving order.
func splitPathList(list, exclude string, caseInsensitive bool) []string {
	var out []string
	for _, entry := range strings.Split(list, string(os.PathListSeparator)) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if exclude != "" && entriesEqual(entry, exclude, caseInsensitive) {
			continue
		}
		out = append(out, entry)
	}
	return dedupe(out, caseInsensitive)
}

func dedupe(entries []string, caseInsensitive bool) []string {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, entry := range entries {
		key := entry
		if caseInsensitive {
			key = strings.ToLower(entry)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func entriesEqual(a, b string, caseInsensitive bool) bool {
	if caseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}
