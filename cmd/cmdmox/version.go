package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmdmox/cmdmox/record"
)

// Version is stamped by the build; record.Version mirrors it so fixture
// metadata carries the same value.
var Version = "dev"

// NewVersionCommand prints the CLI version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cmdmox version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "cmdmox "+Version)
		},
	}
}

func init() {
	record.Version = Version
}
