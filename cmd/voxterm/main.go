// Command voxterm wraps an interactive CLI under a pseudo-terminal and
// overlays a voice-dictation HUD at the bottom of the screen.
package main

import (
	"fmt"
	"os"

	"voxterm/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
