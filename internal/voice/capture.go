package voice

import (
	"sync/atomic"
	"time"
)

// StopReason identifies why a capture terminated.
type StopReason string

const (
	StopSilence     StopReason = "silence"
	StopMaxDuration StopReason = "max_duration"
	StopManual      StopReason = "manual"
	StopError       StopReason = "error"
)

// Metrics is the Capture Metrics record emitted once per capture.
type Metrics struct {
	CaptureMs     int64
	SpeechMs      int64
	SilenceMs     int64
	Frames        int
	FramesDropped int
	StopReason    StopReason
	VadEngine     string
}

// CaptureConfig holds the capture tuning surface: frame shaping, lookback,
// stop thresholds, the buffer budget, and the backpressure abort rate.
type CaptureConfig struct {
	FrameMs              int
	LookbackMs           int
	SilenceTailMs        int
	MinSpeechMsBeforeStt int
	MaxCaptureMs         int
	BufferMs             int // capture buffer budget; 0 means MaxCaptureMs
	ChannelCapacity      int
	MaxFrameDropRate     float64 // fraction of frames dropped before aborting with StopError
}

// DefaultCaptureConfig returns the documented defaults.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		FrameMs:              20,
		LookbackMs:           500,
		SilenceTailMs:        1000,
		MinSpeechMsBeforeStt: 300,
		MaxCaptureMs:         30000,
		BufferMs:             30000,
		ChannelCapacity:      100,
		MaxFrameDropRate:     0.25,
	}
}

// captureState is the Pre-speech/Speaking/Stopping machine: an explicit
// state enum instead of a scattering of booleans.
type captureState int

const (
	statePreSpeech captureState = iota
	stateSpeaking
	stateStopping
)

// Worker runs one capture to completion on a dedicated goroutine, never
// blocking the caller.
type Worker struct {
	cfg CaptureConfig
	vad VadEngine

	frames chan Frame
	stopCh chan struct{}

	lookback     *CaptureBuffer
	buf          *CaptureBuffer
	frameCount   int
	nextSeq      atomic.Uint64
	lastSeq      uint64
	dropped      atomic.Int64
	state        captureState
	startedAt    time.Time
	silenceSince time.Time
	speechMs     int64
	silenceMs    int64
}

// NewWorker creates a Worker bound to vad and cfg.
func NewWorker(vad VadEngine, cfg CaptureConfig) *Worker {
	bufMs := cfg.BufferMs
	if bufMs <= 0 {
		bufMs = cfg.MaxCaptureMs
	}
	return &Worker{
		cfg:      cfg,
		vad:      vad,
		frames:   make(chan Frame, cfg.ChannelCapacity),
		stopCh:   make(chan struct{}),
		lookback: NewCaptureBuffer(PipelineSampleRate, cfg.LookbackMs),
		buf:      NewCaptureBuffer(PipelineSampleRate, bufMs),
	}
}

// PushFrame stamps samples with the next sequence number and enqueues the
// Frame from the Recorder's device thread. If the queue is full, the
// oldest frame is dropped and FramesDropped increments; sequence numbers
// stay monotonic across drops, so the consumer can tell a gap from
// reordering.
func (w *Worker) PushFrame(samples []int16) {
	f := Frame{Seq: w.nextSeq.Add(1), Samples: samples}
	select {
	case w.frames <- f:
	default:
		select {
		case <-w.frames:
		default:
		}
		select {
		case w.frames <- f:
		default:
		}
		w.dropped.Add(1)
	}
}

// Stop requests a manual stop; idempotent.
func (w *Worker) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// Run drives the capture state machine to completion and returns the
// concatenated PCM buffer plus metrics. Intended to run on its own
// goroutine; never blocks the caller that spawned it.
func (w *Worker) Run() ([]int16, Metrics) {
	w.startedAt = time.Now()
	frameDur := time.Duration(w.cfg.FrameMs) * time.Millisecond
	maxDur := time.Duration(w.cfg.MaxCaptureMs) * time.Millisecond
	deadline := time.NewTimer(maxDur)
	defer deadline.Stop()

	maxStop := func() ([]int16, Metrics) {
		if w.state == statePreSpeech {
			// Empty stop: no speech frame was ever observed.
			return w.finish(StopSilence)
		}
		return w.finish(StopMaxDuration)
	}

	for {
		select {
		case <-w.stopCh:
			if w.state == statePreSpeech {
				return w.finish(StopSilence)
			}
			return w.finish(StopManual)
		case <-deadline.C:
			// Fires even if the device stopped delivering frames.
			return maxStop()
		case f, ok := <-w.frames:
			if !ok {
				return w.finish(StopError)
			}
			if f.Seq <= w.lastSeq {
				// The SPSC queue preserves production order; a non-increasing
				// sequence number means the stream is corrupt.
				return w.finish(StopError)
			}
			w.lastSeq = f.Seq
			w.frameCount++
			speech := w.vad.Classify(f.Samples)
			w.step(f.Samples, speech, frameDur)

			if dropRate := w.dropRate(); dropRate > w.cfg.MaxFrameDropRate && w.frameCount > 20 {
				return w.finish(StopError)
			}
			if time.Since(w.startedAt) >= maxDur {
				return maxStop()
			}
			if w.state == stateStopping {
				return w.finish(StopSilence)
			}
		}
	}
}

func (w *Worker) step(samples []int16, speech bool, frameDur time.Duration) {
	switch w.state {
	case statePreSpeech:
		w.lookback.Append(samples)
		if speech {
			w.state = stateSpeaking
			w.buf.Append(w.lookback.Samples())
			w.buf.Append(samples)
			w.speechMs += frameDur.Milliseconds()
			w.silenceSince = time.Time{}
		}
	case stateSpeaking:
		w.buf.Append(samples)
		if speech {
			w.speechMs += frameDur.Milliseconds()
			w.silenceSince = time.Time{}
		} else {
			w.silenceMs += frameDur.Milliseconds()
			if w.silenceSince.IsZero() {
				w.silenceSince = time.Now()
			}
			tailMs := time.Since(w.silenceSince).Milliseconds()
			if tailMs >= int64(w.cfg.SilenceTailMs) && w.speechMs >= int64(w.cfg.MinSpeechMsBeforeStt) {
				w.state = stateStopping
			}
		}
	}
}

func (w *Worker) dropRate() float64 {
	dropped := int(w.dropped.Load())
	total := w.frameCount + dropped
	if total == 0 {
		return 0
	}
	return float64(dropped) / float64(total)
}

func (w *Worker) finish(reason StopReason) ([]int16, Metrics) {
	m := Metrics{
		CaptureMs:     time.Since(w.startedAt).Milliseconds(),
		SpeechMs:      w.speechMs,
		SilenceMs:     w.silenceMs,
		Frames:        w.frameCount,
		FramesDropped: int(w.dropped.Load()),
		StopReason:    reason,
		VadEngine:     w.vad.Name(),
	}
	return w.buf.Samples(), m
}
