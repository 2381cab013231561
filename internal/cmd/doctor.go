package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"voxterm/internal/termstyle"
	"voxterm/internal/voice"
)

func newDoctorCmd() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check stdin, audio device availability, and model presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctorChecks(cmd.OutOrStdout(), modelPath)
		},
	}

	cmd.Flags().StringVar(&modelPath, "model-path", "", "path to the GGML Whisper model file to check")
	return cmd
}

// runDoctorChecks prints one line per startup dependency and returns an
// error if any hard requirement is missing. Shared between the doctor
// subcommand and run's --doctor flag.
func runDoctorChecks(out io.Writer, modelPath string) error {
	ok := true

	if _, err := os.Stdin.Stat(); err == nil {
		fmt.Fprintln(out, termstyle.GreenDot()+" stdin available")
	} else {
		ok = false
		fmt.Fprintln(out, termstyle.RedX()+" stdin unavailable: "+err.Error())
	}

	if names, err := voice.ListCaptureDevices(); err != nil {
		ok = false
		fmt.Fprintln(out, termstyle.RedX()+" audio: "+err.Error())
	} else if len(names) == 0 {
		ok = false
		fmt.Fprintln(out, termstyle.YellowDot()+" audio: no capture devices found")
	} else {
		fmt.Fprintf(out, "%s audio: %d capture device(s) found\n", termstyle.GreenDot(), len(names))
	}

	if modelPath == "" {
		fmt.Fprintln(out, termstyle.YellowDot()+" model: no --model-path given, native STT unavailable until configured")
	} else if _, err := os.Stat(modelPath); err != nil {
		ok = false
		fmt.Fprintln(out, termstyle.RedX()+" model: "+err.Error())
	} else {
		fmt.Fprintln(out, termstyle.GreenDot()+" model: "+modelPath)
	}

	if !ok {
		return fmt.Errorf("doctor found one or more problems")
	}
	return nil
}
