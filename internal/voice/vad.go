package voice

import (
	"math"
	"sync/atomic"
)

// threshold stores a dB level readable and writable across goroutines, so
// sensitivity hotkeys can retune an engine mid-capture while the worker
// thread classifies frames.
type threshold struct {
	bits atomic.Uint64
}

func (t *threshold) set(db float64) { t.bits.Store(math.Float64bits(db)) }
func (t *threshold) get() float64   { return math.Float64frombits(t.bits.Load()) }

// VadEngine classifies PCM frames as speech or silence. Two concrete
// variants are provided as distinct implementations of this interface
// rather than a single engine with a runtime-switched algorithm, matching
// a "capability, not a flag" design: swapping engines means constructing a
// different VadEngine, never branching inside one.
type VadEngine interface {
	// Classify returns true if frame contains voice, applying the
	// engine's own smoothing/hysteresis.
	Classify(frame []int16) bool
	// Name identifies the engine for Capture Metrics.
	Name() string
	// SetThresholdDB adjusts sensitivity at runtime.
	SetThresholdDB(db float64)
	// ThresholdDB returns the current sensitivity.
	ThresholdDB() float64
}

// RMSLevelDB reports the RMS level of frame in dBFS, for mic-meter
// calibration and threshold tuning.
func RMSLevelDB(frame []int16) float64 { return rmsDB(frame) }

// rmsDB computes the RMS level of frame in dBFS (int16 sample / 32768).
func rmsDB(frame []int16) float64 {
	if len(frame) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range frame {
		f := float64(s) / 32768.0
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms <= 0 {
		return -120
	}
	return 20 * math.Log10(rms)
}

// SimpleVAD is a threshold-on-RMS-dB engine with a confirm-frame counter
// to filter spikes.
type SimpleVAD struct {
	threshold        threshold
	smoothingFrames  int
	consecutiveAbove int
	consecutiveBelow int
	speaking         bool
}

// NewSimpleVAD creates a SimpleVAD. thresholdDB default is -55; smoothing
// default is 3 frames.
func NewSimpleVAD(thresholdDB float64, smoothingFrames int) *SimpleVAD {
	if smoothingFrames <= 0 {
		smoothingFrames = 3
	}
	v := &SimpleVAD{smoothingFrames: smoothingFrames}
	v.threshold.set(thresholdDB)
	return v
}

func (v *SimpleVAD) Classify(frame []int16) bool {
	db := rmsDB(frame)
	if db > v.threshold.get() {
		v.consecutiveAbove++
		v.consecutiveBelow = 0
		if v.consecutiveAbove >= v.smoothingFrames {
			v.speaking = true
		}
	} else {
		v.consecutiveBelow++
		v.consecutiveAbove = 0
		if v.consecutiveBelow >= v.smoothingFrames {
			v.speaking = false
		}
	}
	return v.speaking
}

func (v *SimpleVAD) Name() string { return "simple" }

func (v *SimpleVAD) SetThresholdDB(db float64) { v.threshold.set(db) }

func (v *SimpleVAD) ThresholdDB() float64 { return v.threshold.get() }

// EarshotVAD adds a spectral-flatness heuristic on top of the RMS
// threshold: voiced speech energy is concentrated in low bins relative to
// white-noise-like ambience, so a frame must clear both the loudness
// threshold and a low/high energy ratio to count as speech. This trades
// the simplicity of SimpleVAD for better rejection of steady-state fan or
// HVAC noise.
type EarshotVAD struct {
	threshold       threshold
	smoothingFrames int
	consecutive     int
	belowCount      int
	speaking        bool
}

// NewEarshotVAD creates an EarshotVAD with the given threshold and
// smoothing window.
func NewEarshotVAD(thresholdDB float64, smoothingFrames int) *EarshotVAD {
	if smoothingFrames <= 0 {
		smoothingFrames = 3
	}
	v := &EarshotVAD{smoothingFrames: smoothingFrames}
	v.threshold.set(thresholdDB)
	return v
}

func (v *EarshotVAD) Classify(frame []int16) bool {
	db := rmsDB(frame)
	voiced := db > v.threshold.get() && lowBandRatio(frame) > 0.35

	if voiced {
		v.consecutive++
		v.belowCount = 0
		if v.consecutive >= v.smoothingFrames {
			v.speaking = true
		}
	} else {
		v.belowCount++
		v.consecutive = 0
		if v.belowCount >= v.smoothingFrames {
			v.speaking = false
		}
	}
	return v.speaking
}

func (v *EarshotVAD) Name() string { return "earshot" }

func (v *EarshotVAD) SetThresholdDB(db float64) { v.threshold.set(db) }

func (v *EarshotVAD) ThresholdDB() float64 { return v.threshold.get() }

// lowBandRatio estimates the fraction of energy in the lower half of the
// frame's first-difference spectrum proxy: a cheap substitute for an FFT
// that still separates low-pitched voiced energy from broadband hiss by
// comparing sample-to-sample energy against raw energy.
func lowBandRatio(frame []int16) float64 {
	if len(frame) < 2 {
		return 0
	}
	var raw, diff float64
	prev := float64(frame[0])
	raw = prev * prev
	for i := 1; i < len(frame); i++ {
		cur := float64(frame[i])
		raw += cur * cur
		d := cur - prev
		diff += d * d
		prev = cur
	}
	if raw == 0 {
		return 0
	}
	// High-frequency-dominated (noise-like) signals have diff/raw close to
	// 1; low-frequency-dominated (voiced) signals have it well below 1.
	ratio := 1 - math.Min(diff/raw, 1)
	return ratio
}
