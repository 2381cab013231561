// Package tracelog writes newline-delimited trace records describing voice
// pipeline timing and outcomes, for offline tuning of VAD thresholds and
// STT latency budgets. Most records are JSON; the voice_metrics and timing
// families are pipe-delimited key=value lines so they can be grepped and
// cut without a JSON parser.
package tracelog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger appends trace records to a file. A nil or disabled Logger is
// safe to call methods on; they become no-ops.
type Logger struct {
	mu sync.Mutex
	w  *os.File
}

// Open creates a Logger that appends to path. If enabled is false or the
// file cannot be opened, returns a no-op Logger.
func Open(enabled bool, path string) *Logger {
	if !enabled || path == "" {
		return &Logger{}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Logger{}
	}
	return &Logger{w: f}
}

// Nop returns a disabled Logger.
func Nop() *Logger { return &Logger{} }

func (l *Logger) Close() error {
	if l.w == nil {
		return nil
	}
	return l.w.Close()
}

type entry struct {
	Timestamp string `json:"ts"`
	Event     string `json:"event"`
}

func newEntry(event string) entry {
	return entry{Timestamp: time.Now().UTC().Format(time.RFC3339Nano), Event: event}
}

// VoiceMetricsRecord is the per-capture metrics payload: one record is
// emitted per capture, whatever the outcome.
type VoiceMetricsRecord struct {
	CaptureMs     int64
	SpeechMs      int64
	SilenceMs     int64
	Frames        int
	FramesDropped int
	StopReason    string
	VadEngine     string
	SttMs         int64
	Pipeline      string // "native", "fallback", or "" when STT never ran
}

// VoiceMetrics writes the voice_metrics family line:
//
//	voice_metrics|capture_ms=..|speech_ms=..|silence_ms=..|frames=..|frames_dropped=..|stop_reason=..|vad_engine=..|stt_ms=..|pipeline=..
func (l *Logger) VoiceMetrics(r VoiceMetricsRecord) {
	l.line(strings.Join([]string{
		"voice_metrics",
		fmt.Sprintf("capture_ms=%d", r.CaptureMs),
		fmt.Sprintf("speech_ms=%d", r.SpeechMs),
		fmt.Sprintf("silence_ms=%d", r.SilenceMs),
		fmt.Sprintf("frames=%d", r.Frames),
		fmt.Sprintf("frames_dropped=%d", r.FramesDropped),
		"stop_reason=" + r.StopReason,
		"vad_engine=" + r.VadEngine,
		fmt.Sprintf("stt_ms=%d", r.SttMs),
		"pipeline=" + r.Pipeline,
	}, "|"))
}

// Timing writes one timing family line for a named pipeline phase:
//
//	timing|phase=..|duration_ms=..
func (l *Logger) Timing(phase string, durationMs int64) {
	l.line(fmt.Sprintf("timing|phase=%s|duration_ms=%d", phase, durationMs))
}

// Transcript logs the transcript text itself. Callers gate this on the
// content-in-logs toggle; the Logger never sees text unless that opt-in
// was made.
func (l *Logger) Transcript(text, pipeline string) {
	l.log(struct {
		entry
		Text     string `json:"text"`
		Pipeline string `json:"pipeline"`
	}{
		entry:    newEntry("transcript"),
		Text:     text,
		Pipeline: pipeline,
	})
}

// Error logs a non-fatal error observed by a subsystem, tagged with the
// voxerr.Kind string so traces can be grouped by failure category.
func (l *Logger) Error(kind, detail string) {
	l.log(struct {
		entry
		Kind   string `json:"kind"`
		Detail string `json:"detail,omitempty"`
	}{
		entry:  newEntry("error"),
		Kind:   kind,
		Detail: detail,
	})
}

func (l *Logger) log(v any) {
	if l.w == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(data)
}

func (l *Logger) line(s string) {
	if l.w == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.WriteString(s + "\n")
}
