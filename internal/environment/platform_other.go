//go:build !windows

package environment

// enterPlatform has nothing to do on POSIX hosts.
func (m *Manager) enterPlatform() error { return nil }

// shortPathAlias only exists on Windows; POSIX paths never need it.
func shortPathAlias(string) (string, bool) { return "", false }
