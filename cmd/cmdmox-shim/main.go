// Command cmdmox-shim is the universal launcher every shim entry
// resolves to. It recovers the command identity from argv[0], reports
// the invocation to the controller over IPC, and applies the returned
// behavior. It must stay free of controller logic: a launcher is a pure
// executor of the server's instructions.
package main

import (
	"os"

	"github.com/cmdmox/cmdmox/internal/shim"
)

func main() {
	os.Exit(shim.Run(shim.Options{
		Argv0: os.Args[0],
		Args:  os.Args[1:],
		Stdin: shim.StdinIfPiped(),
	}))
}
