// Package writer implements the single-writer discipline for the real
// terminal: it is the only component that emits bytes to the user, and it
// interleaves child PTY output with the status HUD and modal overlays
// without tearing the child's screen.
package writer

import (
	"io"
	"strconv"
	"sync"
	"time"

	"voxterm/internal/hud"
)

// OverlayKind identifies a modal overlay drawn above the HUD region.
type OverlayKind int

const (
	OverlayNone OverlayKind = iota
	OverlayHelp
	OverlaySettings
	OverlayThemePicker
)

// quietInterval is the minimum gap since the last PTY byte before the HUD
// and overlay are repainted, to avoid tearing during output bursts.
const quietInterval = 30 * time.Millisecond

// message is the sealed set of inputs the Writer processes in arrival
// order on its dedicated goroutine.
type message struct {
	kind  msgKind
	bytes []byte
	state hud.StatusLine
	ov    OverlayKind
	lines []string // overlay body lines, for OverlayOpen
	mouse bool
}

type msgKind int

const (
	msgPtyOutput msgKind = iota
	msgStatusUpdate
	msgOverlayOpen
	msgOverlayClose
	msgMouseEnable
	msgResize
	msgShutdown
)

// Writer owns the only sink to the real terminal.
type Writer struct {
	out  io.Writer
	in   chan message
	done chan struct{}

	// Geometry is written by the orchestrator via Resize and read by the
	// drain goroutine; everything else below it is owned by Run alone.
	mu      sync.Mutex
	cols    int
	rows    int
	hudRows int // 1 for minimal HUD, N for full HUD

	status       hud.StatusLine
	lastPtyByte  time.Time
	overlay      OverlayKind
	overlayLines []string
	mouseOn      bool
}

// New creates a Writer bound to out with the given queue capacity.
func New(out io.Writer, capacity int) *Writer {
	if capacity <= 0 {
		capacity = 64
	}
	return &Writer{
		out:     out,
		in:      make(chan message, capacity),
		done:    make(chan struct{}),
		hudRows: 1,
	}
}

// Run drains the message queue until Shutdown; call in its own goroutine.
// A repaint tick catches HUD updates deferred during PTY output bursts.
func (w *Writer) Run() {
	defer close(w.done)
	tick := time.NewTicker(quietInterval)
	defer tick.Stop()
	for {
		select {
		case m := <-w.in:
			switch m.kind {
			case msgPtyOutput:
				w.handlePtyOutput(m.bytes)
			case msgStatusUpdate:
				w.status = m.state
				w.maybeRepaint()
			case msgOverlayOpen:
				w.overlay = m.ov
				w.overlayLines = m.lines
				w.paintOverlay()
			case msgOverlayClose:
				w.withSavedCursor(w.clearOverlayRows)
				w.overlay = OverlayNone
				w.overlayLines = nil
			case msgMouseEnable:
				w.setMouse(m.mouse)
			case msgResize:
				w.withSavedCursor(w.clearHUDRows)
				w.status.Dirty = true
				w.maybeRepaint()
			case msgShutdown:
				w.withSavedCursor(w.clearHUDRows)
				return
			}
		case <-tick.C:
			w.maybeRepaint()
		}
	}
}

// Resize records the new terminal size; the reserved-region clear and
// repaint happen on the drain goroutine, in order with any PTY output
// already queued.
func (w *Writer) Resize(cols, rows, hudRows int) {
	w.mu.Lock()
	w.cols = cols
	w.rows = rows
	w.hudRows = hudRows
	w.mu.Unlock()
	w.send(message{kind: msgResize})
}

// PtyOutput enqueues raw child output to be forwarded verbatim.
func (w *Writer) PtyOutput(b []byte) {
	cp := append([]byte(nil), b...)
	w.send(message{kind: msgPtyOutput, bytes: cp})
}

// StatusUpdate enqueues a new Status Line State snapshot.
func (w *Writer) StatusUpdate(s hud.StatusLine) {
	w.send(message{kind: msgStatusUpdate, state: s})
}

// OverlayOpen enqueues a modal overlay to be drawn above the HUD rows.
func (w *Writer) OverlayOpen(kind OverlayKind, lines []string) {
	w.send(message{kind: msgOverlayOpen, ov: kind, lines: lines})
}

// OverlayClose enqueues removal of the current modal overlay.
func (w *Writer) OverlayClose() {
	w.send(message{kind: msgOverlayClose})
}

// MouseEnable enqueues mouse reporting on/off. The Writer emits whichever
// state is requested, independent of whether an overlay is open.
func (w *Writer) MouseEnable(on bool) {
	w.send(message{kind: msgMouseEnable, mouse: on})
}

// Shutdown enqueues the terminal shutdown message; the Writer drains the
// queue up to this point, clears the HUD region, and returns from Run.
func (w *Writer) Shutdown() {
	w.send(message{kind: msgShutdown})
}

// Wait blocks until Run has returned.
func (w *Writer) Wait() { <-w.done }

// send never deadlocks: once Run has returned, further messages are
// discarded instead of blocking their sender forever.
func (w *Writer) send(m message) {
	select {
	case w.in <- m:
	case <-w.done:
	}
}

// ChildRows returns the number of rows available to the child CLI at the
// current size: total rows minus the reserved HUD rows.
func (w *Writer) ChildRows() int {
	_, rows, hudRows := w.geometry()
	r := rows - hudRows
	if r < 0 {
		return 0
	}
	return r
}

func (w *Writer) geometry() (cols, rows, hudRows int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cols, w.rows, w.hudRows
}

// handlePtyOutput forwards child bytes untouched. If a modal overlay is
// painted over the child's region, its rows are cleared first (bracketed
// by cursor save/restore so the child's own cursor is unaffected); the
// overlay is repainted on the next quiet tick.
func (w *Writer) handlePtyOutput(b []byte) {
	if w.overlay != OverlayNone {
		w.withSavedCursor(w.clearOverlayRows)
	}
	w.out.Write(b)
	w.lastPtyByte = time.Now()
	w.status.Dirty = true
}

// maybeRepaint redraws the HUD (and any open overlay) if the HUD is dirty
// and the stream has been quiet long enough that the repaint cannot tear a
// burst of child output.
func (w *Writer) maybeRepaint() {
	if !w.status.Dirty {
		return
	}
	if !w.lastPtyByte.IsZero() && time.Since(w.lastPtyByte) < quietInterval {
		return
	}
	w.withSavedCursor(func() {
		w.paintHUDRows()
		if w.overlay != OverlayNone {
			w.paintOverlayRows()
		}
	})
	w.status.Dirty = false
}

func (w *Writer) paintHUDRows() {
	cols, rows, hudRows := w.geometry()
	if cols <= 0 || hudRows <= 0 {
		return
	}
	startRow := rows - hudRows + 1
	for i := 0; i < hudRows; i++ {
		var text string
		switch i {
		case 0:
			text = hud.Line(w.status, cols)
		case 1:
			text = hud.Fit(w.status.Shortcuts, cols)
		case 2:
			text = hud.Fit(w.status.Message, cols)
		}
		writeAbsolute(w.out, startRow+i, 1, "\x1b[2K"+text)
	}
}

func (w *Writer) clearHUDRows() {
	cols, rows, hudRows := w.geometry()
	if cols <= 0 || hudRows <= 0 {
		return
	}
	startRow := rows - hudRows + 1
	for i := 0; i < hudRows; i++ {
		writeAbsolute(w.out, startRow+i, 1, "\x1b[2K")
	}
}

// ClearHUDNow clears the reserved HUD rows immediately, writing straight
// to the terminal instead of going through the message queue. It exists
// for termguard's panic-recovery path: Run's goroutine cannot be trusted
// to still be draining messages by the time a panic unwinds, so the HUD
// clear required on every exit path needs a route that doesn't depend on
// it.
func (w *Writer) ClearHUDNow() {
	w.clearHUDRows()
}

func (w *Writer) paintOverlay() {
	w.withSavedCursor(w.paintOverlayRows)
}

// overlayStartRow anchors the overlay directly above the HUD region; the
// child owns the rows above it, so the overlay never scrolls or emits a
// newline that would advance the cursor into the child region.
func (w *Writer) overlayStartRow() int {
	_, rows, hudRows := w.geometry()
	start := rows - hudRows - len(w.overlayLines) + 1
	if start < 1 {
		start = 1
	}
	return start
}

func (w *Writer) paintOverlayRows() {
	cols, _, _ := w.geometry()
	if cols <= 0 {
		return
	}
	start := w.overlayStartRow()
	for i, line := range w.overlayLines {
		writeAbsolute(w.out, start+i, 1, "\x1b[2K"+hud.Fit(line, cols))
	}
}

func (w *Writer) clearOverlayRows() {
	start := w.overlayStartRow()
	for i := range w.overlayLines {
		writeAbsolute(w.out, start+i, 1, "\x1b[2K")
	}
}

func (w *Writer) setMouse(on bool) {
	if on == w.mouseOn {
		return
	}
	w.mouseOn = on
	if on {
		w.out.Write([]byte("\x1b[?1000h\x1b[?1006h"))
	} else {
		w.out.Write([]byte("\x1b[?1000l\x1b[?1006l"))
	}
}

// withSavedCursor brackets absolute-positioned drawing with DECSC/DECRC so
// the child's cursor position is untouched by HUD and overlay painting.
func (w *Writer) withSavedCursor(draw func()) {
	w.out.Write([]byte("\x1b7"))
	draw()
	w.out.Write([]byte("\x1b8"))
}

func writeAbsolute(out io.Writer, row, col int, s string) {
	io.WriteString(out, csiCursorTo(row, col)+s)
}

func csiCursorTo(row, col int) string {
	return "\x1b[" + strconv.Itoa(row) + ";" + strconv.Itoa(col) + "H"
}
