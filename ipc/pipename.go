package ipc

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// PipeName derives the Windows named-pipe name for a logical socket
// path. The derivation is deterministic so a launcher that only knows
// the exported socket path reaches the same pipe the server opened.
func PipeName(socketPath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(socketPath)))
	return `\\.\pipe\cmdmox-` + hex.EncodeToString(sum[:8])
}
