package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"voxterm/internal/voice"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(cmd.OutOrStdout())
		},
	}
}

func listDevices(out io.Writer) error {
	names, err := voice.ListCaptureDevices()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "no capture devices found")
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return nil
}
