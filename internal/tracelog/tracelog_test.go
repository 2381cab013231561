package tracelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	l := Open(true, path)
	if l.w == nil {
		t.Fatalf("expected a live logger for %s", path)
	}
	return l, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestVoiceMetricsPipeDelimitedFormat(t *testing.T) {
	l, path := openTestLogger(t)
	l.VoiceMetrics(VoiceMetricsRecord{
		CaptureMs:     1230,
		SpeechMs:      900,
		SilenceMs:     330,
		Frames:        61,
		FramesDropped: 2,
		StopReason:    "silence",
		VadEngine:     "earshot",
		SttMs:         450,
		Pipeline:      "native",
	})
	l.Close()

	got := strings.TrimSpace(readLog(t, path))
	want := "voice_metrics|capture_ms=1230|speech_ms=900|silence_ms=330|frames=61|frames_dropped=2|stop_reason=silence|vad_engine=earshot|stt_ms=450|pipeline=native"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTimingFormat(t *testing.T) {
	l, path := openTestLogger(t)
	l.Timing("stt", 812)
	l.Close()

	got := strings.TrimSpace(readLog(t, path))
	if got != "timing|phase=stt|duration_ms=812" {
		t.Fatalf("got %q", got)
	}
}

func TestErrorRecordIsJSON(t *testing.T) {
	l, path := openTestLogger(t)
	l.Error("stt_timeout", "whisper took too long")
	l.Close()

	got := readLog(t, path)
	if !strings.Contains(got, `"event":"error"`) || !strings.Contains(got, `"kind":"stt_timeout"`) {
		t.Fatalf("got %q", got)
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	l := Open(false, filepath.Join(t.TempDir(), "never.jsonl"))
	l.VoiceMetrics(VoiceMetricsRecord{})
	l.Timing("x", 1)
	l.Error("k", "d")
	if err := l.Close(); err != nil {
		t.Fatalf("Close on disabled logger: %v", err)
	}
}

func TestNopLoggerSafe(t *testing.T) {
	l := Nop()
	l.VoiceMetrics(VoiceMetricsRecord{})
	l.Transcript("hi", "native")
	l.Close()
}
