// Package cliconfig resolves the working config directory (a
// .voxterm-dir.txt marker found by walking up from the CWD, with a
// ~/.voxterm fallback) and holds the flat Options struct covering the
// full runtime configuration surface.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"voxterm/internal/voxerr"
)

const markerFile = ".voxterm-dir.txt"

// IsVoxtermDir reports whether dir contains a valid marker file.
func IsVoxtermDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, markerFile))
	return err == nil && !info.IsDir()
}

// WriteMarker creates the marker file in dir.
func WriteMarker(dir string) error {
	return os.WriteFile(filepath.Join(dir, markerFile), []byte("1\n"), 0o644)
}

// ResolveDir finds the voxterm config directory: VOXTERM_DIR env var,
// else walk up from CWD, else ~/.voxterm (created on demand).
func ResolveDir() (string, error) {
	if dir := os.Getenv("VOXTERM_DIR"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("VOXTERM_DIR: %w", err)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err == nil {
		dir := cwd
		for {
			if IsVoxtermDir(dir) {
				return dir, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	global := filepath.Join(home, ".voxterm")
	if !IsVoxtermDir(global) {
		if err := os.MkdirAll(global, 0o755); err != nil {
			return "", err
		}
		if err := WriteMarker(global); err != nil {
			return "", err
		}
	}
	return global, nil
}

// SendMode is the user's injection preference.
type SendMode string

const (
	SendModeAuto   SendMode = "auto"
	SendModeInsert SendMode = "insert"
)

// VoiceIntent controls whether a transcript is macro-expanded.
type VoiceIntent string

const (
	IntentCommand   VoiceIntent = "command"
	IntentDictation VoiceIntent = "dictation"
)

// VadEngineName selects a VadEngine implementation by name.
type VadEngineName string

const (
	VadEarshot VadEngineName = "earshot"
	VadSimple  VadEngineName = "simple"
)

// Options is the full CLI-visible configuration surface.
type Options struct {
	// Backend selection.
	BackendCommand string
	BackendArgs    []string
	LoginBootstrap bool

	// Voice behavior.
	AutoVoice        bool
	AutoVoiceIdleMs  int64
	TranscriptIdleMs int64
	SendMode         SendMode
	VoiceIntent      VoiceIntent

	// Capture tuning.
	SampleRate         int
	MaxCaptureMs       int
	SilenceTailMs      int
	MinSpeechMs        int
	LookbackMs         int
	BufferMs           int
	ChannelCapacity    int
	VadThresholdDB     float64
	VadFrameMs         int
	VadSmoothingFrames int
	VadEngine          VadEngineName
	SttTimeoutMs       int64

	// STT.
	SttModelName     string
	SttModelPath     string
	Language         string
	BeamSize         int
	Temperature      float64
	FallbackDisabled bool
	FallbackScript   string

	// Audio.
	InputDeviceName string
	ListDevices     bool
	MicMeter        bool

	// Diagnostics.
	Doctor      bool
	LogsEnabled bool
	LogContent  bool
	TimingLogs  bool

	// Resolved paths, not CLI flags directly.
	ConfigDir     string
	TraceLogPath  string
	PromptLogPath string
	MacroPath     string
	WorkingDir    string
	TermOverride  string
}

// Default returns an Options populated with the documented defaults.
func Default() Options {
	return Options{
		AutoVoice:          false,
		AutoVoiceIdleMs:    1200,
		TranscriptIdleMs:   250,
		SendMode:           SendModeAuto,
		VoiceIntent:        IntentDictation,
		SampleRate:         16000,
		MaxCaptureMs:       30000,
		SilenceTailMs:      1000,
		MinSpeechMs:        300,
		LookbackMs:         500,
		BufferMs:           30000,
		ChannelCapacity:    100,
		VadThresholdDB:     -55,
		VadFrameMs:         20,
		VadSmoothingFrames: 3,
		VadEngine:          VadEarshot,
		SttTimeoutMs:       60000,
		BeamSize:           5,
		Temperature:        0,
		LogsEnabled:        true,
	}
}

// Validate rejects out-of-range numerics, an unreadable model path, and
// control characters in the device name.
func (o *Options) Validate() error {
	if o.MaxCaptureMs <= 0 || o.MaxCaptureMs > 60000 {
		return voxerr.New(voxerr.KindConfigInvalid, "max capture duration out of range (0, 60000]ms", nil)
	}
	if o.SilenceTailMs <= 0 {
		return voxerr.New(voxerr.KindConfigInvalid, "silence tail ms must be positive", nil)
	}
	if o.SampleRate != 16000 {
		// Whisper consumes 16kHz mono; the capture pipeline resamples
		// whatever the device delivers down to exactly this rate.
		return voxerr.New(voxerr.KindConfigInvalid, "sample rate must be 16000", nil)
	}
	if o.VadEngine != VadEarshot && o.VadEngine != VadSimple {
		return voxerr.New(voxerr.KindConfigInvalid, fmt.Sprintf("unknown vad engine %q", o.VadEngine), nil)
	}
	if o.SendMode != SendModeAuto && o.SendMode != SendModeInsert {
		return voxerr.New(voxerr.KindConfigInvalid, fmt.Sprintf("unknown send mode %q", o.SendMode), nil)
	}
	if o.VoiceIntent != IntentCommand && o.VoiceIntent != IntentDictation {
		return voxerr.New(voxerr.KindConfigInvalid, fmt.Sprintf("unknown voice intent %q", o.VoiceIntent), nil)
	}
	for _, r := range o.InputDeviceName {
		if r < 0x20 || r == 0x7f {
			return voxerr.New(voxerr.KindConfigInvalid, "control characters not allowed in device name", nil)
		}
	}
	if !o.FallbackDisabled || o.SttModelPath != "" {
		if o.SttModelPath != "" {
			if _, err := os.Stat(o.SttModelPath); err != nil {
				return voxerr.New(voxerr.KindConfigInvalid, "model path unreadable", err)
			}
		}
	}
	return nil
}

// Environment variables consumed at startup, resolved with ApplyEnv.
const (
	EnvWorkingDir  = "VOXTERM_WORKDIR"
	EnvModelDir    = "VOXTERM_MODEL_DIR"
	EnvTraceLog    = "VOXTERM_TRACE_LOG"
	EnvPromptLog   = "VOXTERM_PROMPT_LOG"
	EnvLogsEnabled = "VOXTERM_LOGS"
	EnvNoColor     = "VOXTERM_NO_COLOR"
)

// ApplyEnv overlays the environment variables above onto o. Whenever one
// of them is set, it overwrites the working directory, trace log path,
// prompt log path or logs-enabled field, whatever value o already holds;
// the model path is filled from the model directory only while it is still
// empty.
func ApplyEnv(o *Options) {
	if v := os.Getenv(EnvWorkingDir); v != "" {
		o.WorkingDir = v
	}
	if v := os.Getenv(EnvModelDir); v != "" && o.SttModelPath == "" {
		o.SttModelPath = filepath.Join(v, o.SttModelName)
	}
	if v := os.Getenv(EnvTraceLog); v != "" {
		o.TraceLogPath = v
	}
	if v := os.Getenv(EnvPromptLog); v != "" {
		o.PromptLogPath = v
	}
	if v := os.Getenv(EnvLogsEnabled); v != "" {
		o.LogsEnabled = v != "0" && v != "false"
	}
}

// NoColorRequested reports whether VOXTERM_NO_COLOR asks for ANSI styling
// to be disabled, for callers that set up internal/termstyle.
func NoColorRequested() bool {
	v := os.Getenv(EnvNoColor)
	return v != "" && v != "0" && v != "false"
}
