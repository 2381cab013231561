package voice

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"voxterm/internal/voxerr"
)

// FallbackTimeout bounds the external STT script invocation.
var FallbackTimeout = 30 * time.Second

// Fallback invokes an external script as the secondary transcription
// path: it is given the path to a WAV file and is expected to print the
// transcript to stdout. Used only when the native path is unavailable or
// fails and fallback has not been explicitly disabled.
type Fallback struct {
	scriptPath string
	extraArgs  string
}

// NewFallback returns a Fallback bound to scriptPath, or an error if the
// script cannot be found on PATH or as an absolute/relative path.
func NewFallback(scriptPath, extraArgs string) (*Fallback, error) {
	if scriptPath == "" {
		return nil, voxerr.New(voxerr.KindFallbackUnavailable, "No fallback transcriber configured", nil)
	}
	if _, err := exec.LookPath(scriptPath); err != nil {
		if _, statErr := os.Stat(scriptPath); statErr != nil {
			return nil, voxerr.New(voxerr.KindFallbackUnavailable, "Fallback script not found", err)
		}
	}
	return &Fallback{scriptPath: scriptPath, extraArgs: extraArgs}, nil
}

// Transcribe writes samples to a temp WAV file and runs the fallback
// script over it, returning its trimmed stdout as the transcript text.
func (f *Fallback) Transcribe(samples []int16) (string, error) {
	wavPath, err := writeTempWAV(samples)
	if err != nil {
		return "", voxerr.New(voxerr.KindSttRuntimeError, "Fallback transcription failed (see log)", err)
	}
	defer os.Remove(wavPath)

	argv, err := shlex.Split(f.extraArgs)
	if err != nil {
		return "", voxerr.New(voxerr.KindFallbackUnavailable, "Invalid fallback arguments", err)
	}
	argv = append(argv, wavPath)

	ctx, cancel := context.WithTimeout(context.Background(), FallbackTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.scriptPath, argv...)
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", voxerr.New(voxerr.KindSttTimeout, "Fallback transcription timed out", ctx.Err())
	}
	if err != nil {
		return "", voxerr.New(voxerr.KindSttRuntimeError, "Fallback transcription failed (see log)", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func writeTempWAV(samples []int16) (string, error) {
	f, err := os.CreateTemp("", "voxterm-capture-*.wav")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(encodeWAV(samples, PipelineSampleRate)); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
