package voice

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"voxterm/internal/voxerr"
)

// TranscribeParams controls one Transcribe call.
type TranscribeParams struct {
	Language    string // "auto" permitted
	BeamSize    int
	Temperature float64
	TimeoutMs   int64
}

// Transcriber runs a Whisper model over a PCM buffer and returns text.
// The model is loaded once and shared across captures; each Transcribe
// call builds its own whisper context from it, because a context is not
// thread-safe and a timed-out Process call keeps running after Transcribe
// has returned — a per-call context keeps that orphaned inference from
// racing the next capture's.
type Transcriber struct {
	mu      sync.Mutex
	loadErr error
	loaded  bool
	model   whisper.Model

	modelPath string
}

// NewTranscriber defers model loading until the first Transcribe call, so
// a misconfigured model path surfaces as SttModelLoadFailed on first use
// rather than at construction.
func NewTranscriber(modelPath string) *Transcriber {
	return &Transcriber{modelPath: modelPath}
}

func (t *Transcriber) ensureLoaded() (whisper.Model, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded {
		return t.model, t.loadErr
	}
	t.loaded = true

	model, err := whisper.New(t.modelPath)
	if err != nil {
		t.loadErr = voxerr.New(voxerr.KindSttModelLoadFailed, "Failed to load speech model", err)
		return nil, t.loadErr
	}
	t.model = model
	return t.model, nil
}

// Transcribe runs inference over samples (mono int16 at PipelineSampleRate)
// and returns the trimmed text. An empty trimmed result is the caller's
// signal to treat this as NoSpeech rather than a Transcript.
func (t *Transcriber) Transcribe(ctx context.Context, samples []int16, params TranscribeParams) (string, error) {
	model, err := t.ensureLoaded()
	if err != nil {
		return "", err
	}

	// Fresh context per inference; see the Transcriber doc comment. The
	// model itself is safe to share.
	wctx, err := model.NewContext()
	if err != nil {
		return "", voxerr.New(voxerr.KindSttModelLoadFailed, "Failed to initialize speech model", err)
	}

	timeout := time.Duration(params.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if params.Language != "" {
		if err := wctx.SetLanguage(params.Language); err != nil {
			return "", voxerr.New(voxerr.KindConfigInvalid, "Unsupported STT language", err)
		}
	}
	if params.BeamSize > 0 {
		wctx.SetBeamSize(params.BeamSize)
	}
	wctx.SetTemperature(float32(params.Temperature))

	pcm := int16ToFloat32(samples)

	done := make(chan error, 1)
	go func() {
		restore := silenceStderr()
		defer restore()
		done <- wctx.Process(pcm, nil, nil, nil)
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", voxerr.New(voxerr.KindSttRuntimeError, "Speech recognition failed (see log)", err)
		}
	case <-cctx.Done():
		// The orphaned Process call keeps running against wctx alone; it
		// holds no state a later Transcribe touches.
		return "", voxerr.New(voxerr.KindSttTimeout, "Speech recognition timed out", cctx.Err())
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", voxerr.New(voxerr.KindSttRuntimeError, "Speech recognition failed (see log)", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// silenceStderr redirects fd 2 to /dev/null for the duration of the native
// Whisper call, which writes its own progress/debug chatter straight to
// stderr with no API to silence it. The original fd is duplicated aside
// and restored by the returned func; both the saved duplicate and the
// /dev/null handle are always closed, even if restoration is never called
// because an earlier step failed.
func silenceStderr() func() {
	saved, err := syscall.Dup(int(os.Stderr.Fd()))
	if err != nil {
		return func() {}
	}
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		syscall.Close(saved)
		return func() {}
	}
	if err := syscall.Dup2(int(devnull.Fd()), int(os.Stderr.Fd())); err != nil {
		devnull.Close()
		syscall.Close(saved)
		return func() {}
	}
	return func() {
		syscall.Dup2(saved, int(os.Stderr.Fd()))
		syscall.Close(saved)
		devnull.Close()
	}
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
