package cmd

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"voxterm/internal/voice"
)

const micMeterDuration = 3 * time.Second

// runMicMeter samples ambient input level for a few seconds and prints the
// observed floor/peak plus a suggested VAD threshold, so users can tune
// sensitivity without trial-and-error captures.
func runMicMeter(out io.Writer, deviceName string) error {
	var (
		mu    sync.Mutex
		min   = math.Inf(1)
		max   = math.Inf(-1)
		count int
	)

	rec, err := voice.NewRecorder(deviceName, func(samples []int16) {
		db := voice.RMSLevelDB(samples)
		mu.Lock()
		if db < min {
			min = db
		}
		if db > max {
			max = db
		}
		count++
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	defer rec.Close()

	if err := rec.Start(); err != nil {
		return err
	}

	fmt.Fprintf(out, "sampling ambient level for %s...\n", micMeterDuration)
	time.Sleep(micMeterDuration)

	mu.Lock()
	defer mu.Unlock()
	if count == 0 {
		return fmt.Errorf("no audio frames received from the input device")
	}

	// Halfway between the ambient floor and peak, clamped to a usable
	// dictation range.
	suggested := (min + max) / 2
	if suggested > -30 {
		suggested = -30
	}
	if suggested < -70 {
		suggested = -70
	}

	fmt.Fprintf(out, "ambient floor: %.1f dB\n", min)
	fmt.Fprintf(out, "ambient peak:  %.1f dB\n", max)
	fmt.Fprintf(out, "suggested --vad-threshold-db: %.0f\n", suggested)
	return nil
}
