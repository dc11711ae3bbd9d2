package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cmdmox/cmdmox"
	"github.com/cmdmox/cmdmox/ipc"
)

// NewDoctorCommand reports the launcher environment contract as seen
// from the current process. Useful when a shim exits with "IPC socket
// not specified" and the test author wants to see what the launcher
// would have observed.
func NewDoctorCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Inspect the exported launcher environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "platform: %s", runtime.GOOS)
			if reason := cmdmox.UnsupportedReason(); reason != "" {
				fmt.Fprintf(out, " (unsupported: %s)", reason)
			}
			fmt.Fprintln(out)

			socket, err := ipc.SocketFromEnv()
			if err != nil {
				fmt.Fprintf(out, "%s: not set (no replay active)\n", ipc.SocketEnv)
			} else {
				fmt.Fprintf(out, "%s: %s\n", ipc.SocketEnv, socket)
				if runtime.GOOS == "windows" {
					fmt.Fprintf(out, "pipe name: %s\n", ipc.PipeName(socket))
				}
			}

			timeout, err := ipc.TimeoutFromEnv()
			if err != nil {
				fmt.Fprintf(out, "%s: invalid (%v)\n", ipc.TimeoutEnv, err)
			} else {
				fmt.Fprintf(out, "%s: %s\n", ipc.TimeoutEnv, timeout)
			}

			if opts.Verbose {
				prefix := ipc.RealCommandEnvPrefix
				for _, kv := range os.Environ() {
					if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
						fmt.Fprintf(out, "override: %s\n", kv)
					}
				}
			}
			return nil
		},
	}
}
