//go:build windows

package environment

import (
	"strings"

	"golang.org/x/sys/windows"
)

// shortPathThreshold is where temp-dir paths start threatening MAX_PATH
// once shim names and the socket file are appended.
const shortPathThreshold = 240

// enterPlatform ensures .CMD is in the executable-extension search list
// so generated batch launchers resolve without an explicit extension.
func (m *Manager) enterPlatform() error {
	pathext := m.origEnv["PATHEXT"]
	if pathext == "" {
		m.setTracked("PATHEXT", ".COM;.EXE;.BAT;.CMD")
		return nil
	}
	for _, ext := range strings.Split(pathext, ";") {
		if strings.EqualFold(strings.TrimSpace(ext), ".CMD") {
			return nil
		}
	}
	m.setTracked("PATHEXT", pathext+";.CMD")
	return nil
}

// shortPathAlias requests the 8.3 alias for long temp paths so shim and
// socket paths stay inside the platform limit.
func shortPathAlias(path string) (string, bool) {
	if len(path) < shortPathThreshold {
		return "", false
	}
	long, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return "", false
	}
	buf := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetShortPathName(long, &buf[0], uint32(len(buf)))
	if err != nil || n == 0 || int(n) > len(buf) {
		return "", false
	}
	return windows.UTF16ToString(buf[:n]), true
}
