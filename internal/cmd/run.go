package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"voxterm/internal/cliconfig"
	"voxterm/internal/macro"
	"voxterm/internal/overlay"
	"voxterm/internal/promptdetect"
	"voxterm/internal/ptysession"
	"voxterm/internal/termguard"
	"voxterm/internal/termstyle"
	"voxterm/internal/tracelog"
	"voxterm/internal/voice"
	"voxterm/internal/voxerr"
	"voxterm/internal/writer"
)

func newRunCmd() *cobra.Command {
	cfg := cliconfig.Default()
	var userPatternStr string

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run the voice overlay around a child CLI",
		Long:  "Spawns <command> under a pseudo-terminal, forwards its output unchanged, and overlays a voice-dictation HUD in a reserved region at the bottom of the terminal.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliconfig.ApplyEnv(&cfg)
			if dir, err := cliconfig.ResolveDir(); err == nil {
				cfg.ConfigDir = dir
				if cfg.TraceLogPath == "" {
					cfg.TraceLogPath = filepath.Join(dir, "trace.jsonl")
				}
				if cfg.MacroPath == "" {
					cfg.MacroPath = filepath.Join(dir, "macros.yaml")
				}
			}
			if cliconfig.NoColorRequested() {
				termstyle.SetEnabled(false)
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			// Diagnostic modes run and exit before any backend is needed.
			switch {
			case cfg.ListDevices:
				return listDevices(cmd.OutOrStdout())
			case cfg.Doctor:
				return runDoctorChecks(cmd.OutOrStdout(), cfg.SttModelPath)
			case cfg.MicMeter:
				return runMicMeter(cmd.OutOrStdout(), cfg.InputDeviceName)
			}

			if len(args) < 1 {
				return voxerr.New(voxerr.KindConfigInvalid, "no backend command given", nil)
			}
			cfg.BackendCommand = args[0]
			cfg.BackendArgs = args[1:]

			var userPattern *regexp.Regexp
			if userPatternStr != "" {
				re, err := regexp.Compile(userPatternStr)
				if err != nil {
					return voxerr.New(voxerr.KindConfigInvalid, "invalid --prompt-regex", err)
				}
				userPattern = re
			}

			if cfg.LoginBootstrap {
				if err := runLoginBootstrap(cfg.BackendCommand); err != nil {
					return err
				}
			}

			return runOverlay(cfg, userPattern)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&cfg.LoginBootstrap, "login", cfg.LoginBootstrap, "run the backend's login bootstrap before attaching")
	flags.BoolVar(&cfg.AutoVoice, "auto-voice", cfg.AutoVoice, "start capture automatically whenever the child is ready for input")
	flags.Int64Var(&cfg.AutoVoiceIdleMs, "auto-voice-idle-ms", cfg.AutoVoiceIdleMs, "idle window before falling back to auto-voice without a learned prompt")
	flags.Int64Var(&cfg.TranscriptIdleMs, "transcript-idle-ms", cfg.TranscriptIdleMs, "flush the queue head after this many idle ms with no prompt detected")
	flags.StringVar((*string)(&cfg.SendMode), "send-mode", string(cfg.SendMode), "auto|insert")
	flags.StringVar((*string)(&cfg.VoiceIntent), "voice-intent", string(cfg.VoiceIntent), "command|dictation")

	flags.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "pipeline sample rate in Hz")
	flags.IntVar(&cfg.MaxCaptureMs, "max-capture-ms", cfg.MaxCaptureMs, "hard ceiling on one capture, max 60000")
	flags.IntVar(&cfg.SilenceTailMs, "silence-tail-ms", cfg.SilenceTailMs, "trailing silence required to stop a capture")
	flags.IntVar(&cfg.MinSpeechMs, "min-speech-ms", cfg.MinSpeechMs, "minimum accumulated speech before a silence stop is honored")
	flags.IntVar(&cfg.LookbackMs, "lookback-ms", cfg.LookbackMs, "pre-speech audio retained so the first syllable isn't cut off")
	flags.IntVar(&cfg.BufferMs, "buffer-ms", cfg.BufferMs, "capture buffer budget before drop-oldest trimming")
	flags.IntVar(&cfg.ChannelCapacity, "channel-capacity", cfg.ChannelCapacity, "bounded frame queue capacity between capture and VAD")
	flags.Float64Var(&cfg.VadThresholdDB, "vad-threshold-db", cfg.VadThresholdDB, "VAD sensitivity in dBFS")
	flags.IntVar(&cfg.VadFrameMs, "vad-frame-ms", cfg.VadFrameMs, "frame duration in ms")
	flags.IntVar(&cfg.VadSmoothingFrames, "vad-smoothing-frames", cfg.VadSmoothingFrames, "consecutive frames required before a VAD decision flips")
	flags.StringVar((*string)(&cfg.VadEngine), "vad-engine", string(cfg.VadEngine), "earshot|simple")
	flags.Int64Var(&cfg.SttTimeoutMs, "stt-timeout-ms", cfg.SttTimeoutMs, "abort a transcription after this many ms")

	flags.StringVar(&cfg.SttModelName, "model", cfg.SttModelName, "named Whisper model (resolved under VOXTERM_MODEL_DIR)")
	flags.StringVar(&cfg.SttModelPath, "model-path", cfg.SttModelPath, "explicit path to a GGML Whisper model file")
	flags.StringVar(&cfg.Language, "language", cfg.Language, "STT language, or \"auto\"")
	flags.IntVar(&cfg.BeamSize, "beam-size", cfg.BeamSize, "Whisper beam search width")
	flags.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Whisper decoding temperature")
	flags.BoolVar(&cfg.FallbackDisabled, "no-fallback", cfg.FallbackDisabled, "disable the secondary STT fallback script")
	flags.StringVar(&cfg.FallbackScript, "fallback-script", cfg.FallbackScript, "path to the secondary STT fallback script")

	flags.StringVar(&cfg.InputDeviceName, "input-device", cfg.InputDeviceName, "named audio input device, empty for system default")
	flags.BoolVar(&cfg.ListDevices, "list-devices", cfg.ListDevices, "list audio input devices and exit")
	flags.BoolVar(&cfg.MicMeter, "mic-meter", cfg.MicMeter, "calibrate mic sensitivity and exit")

	flags.BoolVar(&cfg.Doctor, "doctor", cfg.Doctor, "run startup diagnostics and exit")
	flags.BoolVar(&cfg.LogsEnabled, "logs", cfg.LogsEnabled, "enable the trace log")
	flags.BoolVar(&cfg.LogContent, "log-content", cfg.LogContent, "include transcript text in trace log records")
	flags.BoolVar(&cfg.TimingLogs, "timing-logs", cfg.TimingLogs, "emit per-stage timing records to the trace log")

	flags.StringVar(&userPatternStr, "prompt-regex", "", "user-supplied regex overriding prompt auto-learning")
	flags.StringVar(&cfg.TermOverride, "term", cfg.TermOverride, "TERM value to export to the child, defaults to the caller's TERM")
	flags.StringVar(&cfg.WorkingDir, "workdir", cfg.WorkingDir, "working directory for the child process")

	return cmd
}

// runLoginBootstrap runs the backend's own login flow attached to the
// real terminal, before any raw-mode or PTY plumbing gets in its way.
func runLoginBootstrap(backend string) error {
	login := exec.Command(backend, "login")
	login.Stdin = os.Stdin
	login.Stdout = os.Stdout
	login.Stderr = os.Stderr
	if err := login.Run(); err != nil {
		return voxerr.New(voxerr.KindConfigInvalid, "backend login bootstrap failed", err)
	}
	return nil
}

// runOverlay constructs the full runtime (PTY session, writer, prompt
// tracker, recorder, transcriber, guard) and runs the orchestrator's
// event loop to completion.
func runOverlay(cfg cliconfig.Options, userPattern *regexp.Regexp) error {
	log := tracelog.Open(cfg.LogsEnabled, cfg.TraceLogPath)
	defer log.Close()

	fd := int(os.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return voxerr.New(voxerr.KindConfigInvalid, "not a terminal", err)
	}
	const minRows = 4
	if rows < minRows {
		return voxerr.New(voxerr.KindConfigInvalid, fmt.Sprintf("terminal too small (need at least %d rows, have %d)", minRows, rows), nil)
	}

	macros, err := macro.Load(cfg.MacroPath)
	if err != nil {
		return voxerr.New(voxerr.KindConfigInvalid, "invalid macro file", err)
	}

	termEnv := cfg.TermOverride
	if termEnv == "" {
		termEnv = os.Getenv("TERM")
	}
	if termEnv == "" {
		termEnv = "xterm-256color"
	}
	env := map[string]string{"TERM": termEnv}

	cwd := cfg.WorkingDir
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	hudRows := 1
	sess, err := ptysession.Spawn(cfg.BackendCommand, cfg.BackendArgs, env, cwd, ptysession.WinSize{
		Cols: uint16(cols), Rows: uint16(rows - hudRows),
	})
	if err != nil {
		return err
	}

	w := writer.New(os.Stdout, 64)
	go w.Run()

	tracker := promptdetect.New(userPattern, cfg.AutoVoiceIdleMs)
	if cfg.PromptLogPath != "" {
		if pf, perr := os.OpenFile(cfg.PromptLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); perr == nil {
			tracker.SetPromptLog(pf)
			defer pf.Close()
		}
	}

	var transcriber *voice.Transcriber
	if cfg.SttModelPath != "" {
		if abs, aerr := filepath.Abs(cfg.SttModelPath); aerr == nil {
			cfg.SttModelPath = abs
		}
		transcriber = voice.NewTranscriber(cfg.SttModelPath)
	}

	var fallback *voice.Fallback
	if cfg.FallbackScript != "" {
		fb, ferr := voice.NewFallback(cfg.FallbackScript, "")
		if ferr == nil {
			fallback = fb
		} else {
			log.Error(voxerr.KindFallbackUnavailable.String(), ferr.Error())
		}
	}

	recorder, err := voice.NewRecorder(cfg.InputDeviceName, nil)
	if err != nil {
		sess.Shutdown(2 * time.Second)
		w.Shutdown()
		w.Wait()
		return err
	}
	if err := recorder.Start(); err != nil {
		recorder.Close()
		sess.Shutdown(2 * time.Second)
		w.Shutdown()
		w.Wait()
		return err
	}
	defer recorder.Close()

	orch := overlay.New(cfg, sess, w, tracker, macros, log, recorder, transcriber, fallback)

	guard, err := termguard.Open(fd, os.Stdout, orch.HandleResize, w.ClearHUDNow)
	if err != nil {
		return err
	}
	defer guard.Recover()

	return orch.Run(os.Stdin, cols, rows)
}
