package ipc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipeName_Deterministic(t *testing.T) {
	a := PipeName("/tmp/cmdmox-x/ipc.sock")
	b := PipeName("/tmp/cmdmox-x/ipc.sock")
	assert.Equal(t, a, b)
}

func TestPipeName_Shape(t *testing.T) {
	name := PipeName("/tmp/cmdmox-x/ipc.sock")
	assert.True(t, strings.HasPrefix(name, `\\.\pipe\cmdmox-`), name)
	assert.Len(t, name, len(`\\.\pipe\cmdmox-`)+16)
}

func TestPipeName_DistinctPaths(t *testing.T) {
	assert.NotEqual(t, PipeName("/a/ipc.sock"), PipeName("/b/ipc.sock"))
}
