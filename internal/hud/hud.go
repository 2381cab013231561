// Package hud renders the reserved status-line region at the bottom of the
// terminal from a StatusLine value, using fixed-width segmented layout
// primitives instead of ad hoc string concatenation.
package hud

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Mode identifies the overlay's top-level state for HUD display purposes.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeListening    Mode = "listening"
	ModeTranscribing Mode = "transcribing"
	ModeInjecting    Mode = "injecting"
)

// StatusLine is the pure-data snapshot the orchestrator recomputes each
// tick. The Writer alone turns it into bytes; nothing else formats HUD
// output directly.
type StatusLine struct {
	Mode          Mode
	Pipeline      string // e.g. "whisper", "fallback:script.sh"
	SensitivityDB float64
	DurationMs    int64
	Message       string // transient status/error notice, HUD-safe text only
	Shortcuts     string
	Dirty         bool
}

// Breakpoint maps a minimum terminal width to the segment widths used at
// that width and above. Breakpoints must be sorted ascending by MinCols.
type Breakpoint struct {
	MinCols    int
	LeftWidth  int
	RightWidth int
}

// DefaultBreakpoints mirrors common terminal widths: a narrow layout that
// drops the right segment entirely, and a full layout once there's room.
var DefaultBreakpoints = []Breakpoint{
	{MinCols: 0, LeftWidth: 0, RightWidth: 0},
	{MinCols: 40, LeftWidth: 18, RightWidth: 0},
	{MinCols: 70, LeftWidth: 24, RightWidth: 16},
}

func pickBreakpoint(cols int) Breakpoint {
	bp := DefaultBreakpoints[0]
	for _, b := range DefaultBreakpoints {
		if cols >= b.MinCols {
			bp = b
		}
	}
	return bp
}

// Render lays out left/center/right segments into exactly cols display
// columns (never more), sanitizing control characters out of free text and
// truncating by display width rather than byte or rune count.
func Render(left, center, right string, cols int) string {
	if cols <= 0 {
		return ""
	}
	bp := pickBreakpoint(cols)

	left = sanitize(left)
	center = sanitize(center)
	right = sanitize(right)

	leftW := bp.LeftWidth
	rightW := bp.RightWidth
	if leftW+rightW >= cols {
		// Degenerate width: keep only what fits, drop right first.
		rightW = 0
		if leftW > cols {
			leftW = cols
		}
	}
	centerW := cols - leftW - rightW
	if centerW < 0 {
		centerW = 0
	}

	var b strings.Builder
	b.WriteString(fitWidth(left, leftW))
	b.WriteString(fitWidth(center, centerW))
	b.WriteString(fitWidth(right, rightW))
	return b.String()
}

// Fit sanitizes s and truncates or pads it to exactly w display columns,
// for single-segment lines (overlay bodies, auxiliary HUD rows) that skip
// the breakpoint layout.
func Fit(s string, w int) string {
	return fitWidth(sanitize(s), w)
}

// fitWidth truncates or space-pads s to exactly w display columns.
func fitWidth(s string, w int) string {
	if w <= 0 {
		return ""
	}
	sw := runewidth.StringWidth(s)
	if sw > w {
		return runewidth.Truncate(s, w, "")
	}
	return s + strings.Repeat(" ", w-sw)
}

// sanitize strips control characters from free text. A CSI sequence (SGR
// included) is removed whole, ESC through its final byte, so no parameter
// text such as "[31m" is left behind.
func sanitize(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '\x1b' {
			if i+1 < len(rs) && rs[i+1] == '[' {
				i += 2
				for i < len(rs) && (rs[i] < 0x40 || rs[i] > 0x7e) {
					i++
				}
			}
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Format turns a StatusLine into one flat label text;
// mode/pipeline/sensitivity/duration are concatenated in a fixed order so
// the result is deterministic and easy to test.
func Format(s StatusLine) string {
	parts := append([]string{modeLabel(s.Mode)}, liveParts(s)...)
	if s.Shortcuts != "" {
		parts = append(parts, s.Shortcuts)
	}
	return strings.Join(parts, " | ")
}

// liveParts collects the value fields that change while a capture runs.
func liveParts(s StatusLine) []string {
	var parts []string
	if s.Pipeline != "" {
		parts = append(parts, s.Pipeline)
	}
	if s.Mode == ModeListening || s.Mode == ModeTranscribing {
		parts = append(parts, formatSensitivity(s.SensitivityDB))
	}
	if s.DurationMs > 0 {
		parts = append(parts, formatDuration(s.DurationMs))
	}
	if s.Message != "" {
		parts = append(parts, s.Message)
	}
	return parts
}

// Line renders a StatusLine into exactly cols display columns using the
// breakpoint layout: mode in the left segment, live values and message in
// the center, shortcuts on the right. Narrow widths that drop the left
// segment fold the mode label back into the center so it never vanishes.
func Line(s StatusLine, cols int) string {
	bp := pickBreakpoint(cols)
	if bp.LeftWidth == 0 {
		return Render("", Format(s), "", cols)
	}
	right := ""
	if bp.RightWidth > 0 {
		right = s.Shortcuts
	}
	return Render(modeLabel(s.Mode), strings.Join(liveParts(s), " | "), right, cols)
}

func modeLabel(m Mode) string {
	switch m {
	case ModeListening:
		return "Listening"
	case ModeTranscribing:
		return "Transcribing"
	case ModeInjecting:
		return "Injecting"
	default:
		return "Idle"
	}
}

func formatSensitivity(db float64) string {
	if db >= 0 {
		return "+" + trimFloat(db) + "dB"
	}
	return trimFloat(db) + "dB"
}

func trimFloat(f float64) string {
	s := strings.TrimRight(strings.TrimRight(padFloat(f), "0"), ".")
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

func padFloat(f float64) string {
	neg := f < 0
	if neg {
		f = -f
	}
	whole := int64(f)
	frac := int64((f - float64(whole)) * 10)
	s := strconv.FormatInt(whole, 10) + "." + strconv.FormatInt(frac, 10)
	if neg {
		s = "-" + s
	}
	return s
}

func formatDuration(ms int64) string {
	if ms < 1000 {
		return strconv.FormatInt(ms, 10) + "ms"
	}
	sec := ms / 1000
	return strconv.FormatInt(sec, 10) + "." + strconv.FormatInt((ms%1000)/100, 10) + "s"
}
