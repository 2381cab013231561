package hud

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestRenderWidthExact(t *testing.T) {
	for _, cols := range []int{1, 10, 39, 40, 70, 80, 120} {
		out := Render("L", "center text that might be long enough to truncate eventually", "R", cols)
		if w := runewidth.StringWidth(out); w != cols {
			t.Fatalf("cols=%d: Render width = %d, want %d (out=%q)", cols, w, cols, out)
		}
	}
}

func TestRenderDegenerateSingleCell(t *testing.T) {
	out := Render("left", "center", "right", 1)
	if runewidth.StringWidth(out) != 1 {
		t.Fatalf("want width 1, got %q", out)
	}
}

func TestRenderZeroCols(t *testing.T) {
	if out := Render("a", "b", "c", 0); out != "" {
		t.Fatalf("want empty string for 0 cols, got %q", out)
	}
}

func TestSanitizeStripsControlBytes(t *testing.T) {
	in := "hello\x1b[31mworld\x07"
	out := sanitize(in)
	if strings.ContainsAny(out, "\x1b\x07") {
		t.Fatalf("sanitize left control bytes: %q", out)
	}
	if out != "helloworld" {
		t.Fatalf("got %q", out)
	}
}

func TestFormatOrdering(t *testing.T) {
	s := StatusLine{
		Mode:          ModeListening,
		Pipeline:      "whisper",
		SensitivityDB: -12.5,
		DurationMs:    1500,
		Message:       "No speech detected",
		Shortcuts:     "ctrl+r record",
	}
	got := Format(s)
	want := "Listening | whisper | -12.5dB | 1.5s | No speech detected | ctrl+r record"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatIdleOmitsSensitivity(t *testing.T) {
	s := StatusLine{Mode: ModeIdle}
	got := Format(s)
	if strings.Contains(got, "dB") {
		t.Fatalf("idle status should not include sensitivity: %q", got)
	}
	if got != "Idle" {
		t.Fatalf("got %q", got)
	}
}

func TestLineWidthExactAtEveryBreakpoint(t *testing.T) {
	s := StatusLine{
		Mode:          ModeListening,
		Pipeline:      "whisper",
		SensitivityDB: -55,
		DurationMs:    1200,
		Message:       "No speech detected",
		Shortcuts:     "M-r rec",
	}
	for _, cols := range []int{1, 20, 39, 40, 69, 70, 80, 200} {
		out := Line(s, cols)
		if w := runewidth.StringWidth(out); w != cols {
			t.Fatalf("cols=%d: Line width = %d (out=%q)", cols, w, out)
		}
	}
}

func TestLineKeepsModeLabelAtNarrowWidths(t *testing.T) {
	s := StatusLine{Mode: ModeListening}
	out := Line(s, 20) // below the first breakpoint with a left segment
	if !strings.Contains(out, "Listening") {
		t.Fatalf("mode label dropped at narrow width: %q", out)
	}
}

func TestSanitizeAndFitIdempotent(t *testing.T) {
	in := "Listening | whisper | -55dB"
	if s := sanitize(in); s != sanitize(s) {
		t.Fatalf("sanitize not idempotent on %q", in)
	}
	once := fitWidth(in, 40)
	if twice := fitWidth(once, 40); twice != once {
		t.Fatalf("fitWidth not idempotent: %q vs %q", once, twice)
	}
}

func TestFormatDurationSubSecond(t *testing.T) {
	if got := formatDuration(250); got != "250ms" {
		t.Fatalf("got %q", got)
	}
	if got := formatDuration(2300); got != "2.3s" {
		t.Fatalf("got %q", got)
	}
}
