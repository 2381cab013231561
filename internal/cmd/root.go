// Package cmd wires voxterm's CLI surface with cobra.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command with every subcommand voxterm
// exposes.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "voxterm",
		Short:         "Voice-dictation overlay for interactive coding CLIs",
		Long:          "voxterm wraps a child CLI (Codex, Claude Code, or any interactive program) under a pseudo-terminal, transcribes speech locally with a Whisper model, and injects the transcript as if typed, while drawing a status HUD in a reserved region at the bottom of the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newDevicesCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
