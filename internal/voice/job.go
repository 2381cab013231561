// Package voice implements the audio capture and speech-to-text pipeline:
// Recorder, VadEngine, capture Worker, Transcriber, and the Job that
// wraps one capture+transcribe cycle behind a poll-based message
// interface.
package voice

import (
	"context"
	"time"

	"voxterm/internal/tracelog"
	"voxterm/internal/voxerr"
)

// MessageKind identifies the variant held by a Message.
type MessageKind int

const (
	MsgStarted MessageKind = iota
	// MsgCaptureComplete marks the Listening->Transcribing transition: the
	// capture buffer is finalized and STT is about to run. Not a terminal
	// message; exactly one terminal message (Transcript, Empty, or Error)
	// still follows.
	MsgCaptureComplete
	MsgTranscript
	MsgEmpty
	MsgError
)

// Message is the tagged union a Voice Job emits; exactly one terminal
// message (Transcript, Empty, or Error) is ever produced per job.
type Message struct {
	Kind      MessageKind
	Text      string
	Pipeline  Pipeline
	Metrics   Metrics
	SttMs     int64
	ErrKind   voxerr.Kind
	ErrDetail string
}

// Pipeline identifies which transcription path produced a Transcript.
type Pipeline string

const (
	PipelineNative   Pipeline = "native"
	PipelineFallback Pipeline = "fallback"
)

// Job isolates one capture+transcribe cycle. Exactly one Job may be
// active at a time; starting a second while one is running is the
// caller's responsibility to reject.
type Job struct {
	worker      *Worker
	transcriber *Transcriber
	fallback    *Fallback
	log         *tracelog.Logger

	out chan Message
}

// Start spawns the capture+transcribe worker and returns immediately; the
// worker runs on its own goroutine. recorder must already be started by
// the caller (ownership of the single shared audio stream belongs to the
// orchestrator, not to each Job).
func Start(vad VadEngine, cfg CaptureConfig, pushFrames func(push func([]int16)), transcriber *Transcriber, fallback *Fallback, sttParams TranscribeParams, log *tracelog.Logger) *Job {
	w := NewWorker(vad, cfg)
	j := &Job{
		worker:      w,
		transcriber: transcriber,
		fallback:    fallback,
		log:         log,
		out:         make(chan Message, 4),
	}
	j.out <- Message{Kind: MsgStarted}

	if pushFrames != nil {
		pushFrames(w.PushFrame)
	}

	go j.run(sttParams)
	return j
}

func (j *Job) run(params TranscribeParams) {
	samples, metrics := j.worker.Run()
	j.out <- Message{Kind: MsgCaptureComplete, Metrics: metrics}

	if metrics.StopReason == StopError {
		j.log.Error(voxerr.KindCaptureBackpressureExceeded.String(), "sustained frame drops exceeded the abort rate")
		j.emitError(voxerr.KindCaptureBackpressureExceeded, "Voice capture failed (see log)")
		j.logMetrics(metrics, 0, "")
		return
	}
	if len(samples) == 0 {
		j.out <- Message{Kind: MsgEmpty, Metrics: metrics}
		j.logMetrics(metrics, 0, "")
		return
	}

	sttStart := time.Now()
	text, usedFallback, err := j.transcribe(samples, params)
	sttMs := time.Since(sttStart).Milliseconds()

	pipeline := PipelineNative
	if usedFallback {
		pipeline = PipelineFallback
	}

	if err != nil {
		var kind voxerr.Kind = voxerr.KindSttRuntimeError
		status := "Voice capture failed (see log)"
		if ve, ok := err.(*voxerr.Error); ok {
			kind = ve.Kind
			status = voxerr.StatusOf(err)
		}
		j.log.Error(kind.String(), err.Error())
		j.emitError(kind, status)
		j.logMetrics(metrics, sttMs, string(pipeline))
		return
	}

	if text == "" {
		j.out <- Message{Kind: MsgEmpty, Metrics: metrics}
		j.logMetrics(metrics, sttMs, string(pipeline))
		return
	}

	j.logMetrics(metrics, sttMs, string(pipeline))
	j.out <- Message{Kind: MsgTranscript, Text: text, Pipeline: pipeline, Metrics: metrics, SttMs: sttMs}
}

// logMetrics emits the single voice_metrics record for this capture.
func (j *Job) logMetrics(m Metrics, sttMs int64, pipeline string) {
	j.log.VoiceMetrics(tracelog.VoiceMetricsRecord{
		CaptureMs:     m.CaptureMs,
		SpeechMs:      m.SpeechMs,
		SilenceMs:     m.SilenceMs,
		Frames:        m.Frames,
		FramesDropped: m.FramesDropped,
		StopReason:    string(m.StopReason),
		VadEngine:     m.VadEngine,
		SttMs:         sttMs,
		Pipeline:      pipeline,
	})
}

func (j *Job) transcribe(samples []int16, params TranscribeParams) (text string, usedFallback bool, err error) {
	if j.transcriber != nil {
		text, err = j.transcriber.Transcribe(context.Background(), samples, params)
		if err == nil {
			return text, false, nil
		}
		// Native unavailable or failed for any reason (model load, timeout,
		// runtime error): fall through to the fallback path below unless
		// it's unconfigured.
	}
	if j.fallback == nil {
		return "", false, voxerr.New(voxerr.KindFallbackUnavailable, "No transcriber available", err)
	}
	reason := "native transcriber not configured"
	if err != nil {
		reason = "native transcription failed: " + err.Error()
	}
	j.log.Error(voxerr.KindSttRuntimeError.String(), "invoking fallback: "+reason)
	text, ferr := j.fallback.Transcribe(samples)
	if ferr != nil {
		return "", true, ferr
	}
	return text, true, nil
}

func (j *Job) emitError(kind voxerr.Kind, status string) {
	j.out <- Message{Kind: MsgError, ErrKind: kind, ErrDetail: status}
}

// Poll returns the next message without blocking, or nil if none is
// pending.
func (j *Job) Poll() *Message {
	select {
	case m := <-j.out:
		return &m
	default:
		return nil
	}
}

// Stop requests a manual stop; idempotent.
func (j *Job) Stop() { j.worker.Stop() }
