package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cmdmox/cmdmox/record"
)

// NewFixtureCommand groups fixture-file operations.
func NewFixtureCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Inspect Record Mode fixture files",
	}
	cmd.AddCommand(newFixtureValidateCommand())
	cmd.AddCommand(newFixtureShowCommand(opts))
	return cmd
}

func newFixtureValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <fixture.json>",
		Short: "Validate a fixture against the v1.0 schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := record.ValidateFixture(data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
			return nil
		},
	}
}

func newFixtureShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <fixture.json>",
		Short: "Summarize a fixture's recordings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := record.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if opts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(fixture)
			}

			fmt.Fprintf(out, "fixture %s (version %s)\n", args[0], fixture.Version)
			fmt.Fprintf(out, "recorded %s on %s with cmdmox %s\n",
				fixture.Metadata.CreatedAt, fixture.Metadata.Platform, fixture.Metadata.CmdmoxVersion)
			for _, rec := range fixture.Recordings {
				fmt.Fprintf(out, "  [%d] %s %v -> exit %d\n",
					rec.Sequence, rec.Command, rec.Args, rec.ExitCode)
				if opts.Verbose {
					fmt.Fprintf(out, "      stdout: %q\n", rec.Stdout)
					fmt.Fprintf(out, "      stderr: %q\n", rec.Stderr)
				}
			}
			return nil
		},
	}
}
