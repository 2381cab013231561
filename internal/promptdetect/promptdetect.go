// Package promptdetect infers whether the child CLI is ready for input by
// watching its PTY output stream, via a headless virtual terminal used
// purely as an ANSI-to-text parser (never as a render source).
package promptdetect

import (
	"io"
	"regexp"
	"time"

	"github.com/vito/midterm"
)

// Event is emitted by Tracker.Feed when the ready state changes.
type Event int

const (
	// EventNone means no state transition occurred.
	EventNone Event = iota
	// EventReady means the tracker matched a prompt pattern for the first
	// time since the last non-whitespace output.
	EventReady
	// EventIdleReady means no output has arrived for the idle window and
	// no pattern has matched; used as an auto-voice fallback trigger.
	EventIdleReady
)

const (
	tailWidth = 4096
	tailRows  = 2

	// learnIdleWindow is how long output must be quiet before the current
	// line tail is snapshotted as the learned prompt pattern. Interactive
	// CLIs repaint in bursts well under this, so a 200ms gap reliably
	// separates "still drawing" from "sitting at a prompt".
	learnIdleWindow = 200 * time.Millisecond
)

// Tracker maintains Prompt Tracker State as described by the data model:
// current_line_tail, last_completed_line, learned_pattern, user_pattern,
// last_output_at, known_ready.
type Tracker struct {
	vt *midterm.Terminal

	userPattern    *regexp.Regexp
	learnedPattern *regexp.Regexp

	currentLineTail   string
	lastCompletedLine string

	lastOutputAt time.Time
	knownReady   bool

	idleReadyFired bool
	idleReadyMs    int64

	promptLog io.Writer

	lastFedByte byte

	now func() time.Time
}

// New creates a Tracker. idleReadyMs is auto_voice_idle_ms (default 1200).
// userPattern may be nil, meaning no explicit user regex is configured.
func New(userPattern *regexp.Regexp, idleReadyMs int64) *Tracker {
	return &Tracker{
		vt:          midterm.NewTerminal(tailRows, tailWidth),
		userPattern: userPattern,
		idleReadyMs: idleReadyMs,
		now:         time.Now,
	}
}

// SetUserPattern installs or clears the user-supplied regex, which always
// takes priority over a learned pattern.
func (t *Tracker) SetUserPattern(re *regexp.Regexp) {
	t.userPattern = re
}

// SetPromptLog installs an optional sink that receives one line of the
// stripped tail around each prompt decision (match, learn, idle).
func (t *Tracker) SetPromptLog(w io.Writer) {
	t.promptLog = w
}

func (t *Tracker) logDecision(decision string) {
	if t.promptLog == nil {
		return
	}
	io.WriteString(t.promptLog, decision+"|"+t.currentLineTail+"\n")
}

// Feed processes one chunk of raw PTY output bytes and returns the
// transition event, if any.
func (t *Tracker) Feed(data []byte) Event {
	if len(data) == 0 {
		return EventNone
	}
	t.vt.Write(normalizeLF(data, &t.lastFedByte))
	t.lastOutputAt = t.now()
	t.idleReadyFired = false

	t.refreshLines()

	if isAllWhitespace(data) {
		return EventNone
	}

	// Any non-whitespace output clears a prior Ready until the next match.
	wasReady := t.knownReady
	t.knownReady = false

	pattern := t.activePattern()
	if pattern != nil && pattern.MatchString(t.currentLineTail) {
		t.knownReady = true
		if !wasReady {
			t.logDecision("ready")
			return EventReady
		}
		return EventNone
	}

	// With no pattern yet, the learning-mode snapshot happens on
	// CheckIdle, since it requires an idle window with no further output.

	return EventNone
}

// CheckIdle is called periodically (timer tick) to detect idle windows for
// prompt learning and IdleReady fallback emission. now is the current time.
func (t *Tracker) CheckIdle(now time.Time) Event {
	if t.lastOutputAt.IsZero() {
		return EventNone
	}
	idleFor := now.Sub(t.lastOutputAt)

	if t.learnedPattern == nil && t.userPattern == nil && t.currentLineTail != "" && idleFor >= learnIdleWindow {
		t.learnedPattern = regexp.MustCompile(regexp.QuoteMeta(t.currentLineTail))
		t.logDecision("learned")
		// The snapshot is the tail itself, so it matches trivially: the
		// child is ready for input the moment the pattern is learned.
		if !t.knownReady {
			t.knownReady = true
			return EventReady
		}
	}

	if !t.knownReady && !t.idleReadyFired && idleFor >= time.Duration(t.idleReadyMs)*time.Millisecond {
		t.idleReadyFired = true
		t.logDecision("idle_ready")
		return EventIdleReady
	}
	return EventNone
}

// Ready reports the current known_ready flag.
func (t *Tracker) Ready() bool { return t.knownReady }

// CurrentLineTail returns the text since the last newline in the PTY
// output, with ANSI stripped.
func (t *Tracker) CurrentLineTail() string { return t.currentLineTail }

// LastCompletedLine returns the most recently finished line.
func (t *Tracker) LastCompletedLine() string { return t.lastCompletedLine }

func (t *Tracker) activePattern() *regexp.Regexp {
	if t.userPattern != nil {
		return t.userPattern
	}
	return t.learnedPattern
}

func (t *Tracker) refreshLines() {
	content := t.vt.Content
	if len(content) == 0 {
		return
	}
	// The current line lives at the cursor row, which is the bottom row
	// only once enough output has scrolled the two-row window.
	row := t.vt.Cursor.Y
	if row >= len(content) {
		row = len(content) - 1
	}
	if row < 0 {
		row = 0
	}
	t.currentLineTail = trimRightRunes(content[row])
	if row > 0 {
		t.lastCompletedLine = trimRightRunes(content[row-1])
	}
}

// normalizeLF rewrites bare LF into CRLF for the headless parser, keeping
// column tracking deterministic across chunk boundaries. prev carries the
// final byte of the previous chunk so a CRLF split across two Feeds is not
// double-converted.
func normalizeLF(data []byte, prev *byte) []byte {
	out := make([]byte, 0, len(data)+8)
	last := *prev
	for _, b := range data {
		if b == '\n' && last != '\r' {
			out = append(out, '\r')
		}
		out = append(out, b)
		last = b
	}
	*prev = last
	return out
}

func trimRightRunes(line []rune) string {
	end := len(line)
	for end > 0 && line[end-1] == ' ' {
		end--
	}
	return string(line[:end])
}

func isAllWhitespace(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return false
		}
	}
	return true
}
