package overlay

import (
	"bytes"
	"testing"
	"time"

	"voxterm/internal/cliconfig"
	"voxterm/internal/hud"
	"voxterm/internal/macro"
	"voxterm/internal/promptdetect"
	"voxterm/internal/ptysession"
	"voxterm/internal/tracelog"
	"voxterm/internal/transcript"
	"voxterm/internal/voice"
	"voxterm/internal/writer"
)

func newTestWriter() *writer.Writer {
	w := writer.New(&bytes.Buffer{}, 64)
	w.Resize(80, 24, hudRowsMinimal)
	return w
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	macros, err := macro.Load("")
	if err != nil {
		t.Fatalf("macro.Load: %v", err)
	}
	sess, err := ptysession.Spawn("cat", nil, nil, "", ptysession.WinSize{Cols: 80, Rows: 23})
	if err != nil {
		t.Fatalf("ptysession.Spawn: %v", err)
	}
	t.Cleanup(func() { sess.Shutdown(time.Second) })

	recorder, err := voice.NewRecorder("", nil)
	if err != nil {
		t.Skipf("no audio capture device available: %v", err)
	}
	t.Cleanup(recorder.Close)

	o := New(cliconfig.Default(), sess, newTestWriter(), promptdetect.New(nil, 1200), macros, tracelog.Nop(), recorder, nil, nil)
	return o
}

func TestContainsEnter(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want bool
	}{
		{"cr", []byte("hello\r"), true},
		{"lf", []byte("hello\n"), true},
		{"none", []byte("hello"), false},
		{"empty", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := containsEnter(c.in); got != c.want {
				t.Fatalf("containsEnter(%q) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestAutoVoiceLabel(t *testing.T) {
	if got := autoVoiceLabel(true); got != "Auto-voice on" {
		t.Fatalf("got %q", got)
	}
	if got := autoVoiceLabel(false); got != "Auto-voice off" {
		t.Fatalf("got %q", got)
	}
}

func TestStateHudMode(t *testing.T) {
	cases := []struct {
		state State
		want  hud.Mode
	}{
		{StateIdle, hud.ModeIdle},
		{StateListening, hud.ModeListening},
		{StateTranscribing, hud.ModeTranscribing},
		{StateInjecting, hud.ModeInjecting},
	}
	for _, c := range cases {
		if got := c.state.hudMode(); got != c.want {
			t.Fatalf("State(%d).hudMode() = %v, want %v", c.state, got, c.want)
		}
	}
}

func TestHelpLinesMentionsQuitAndInterrupt(t *testing.T) {
	lines := helpLines()
	joined := ""
	for _, l := range lines {
		joined += l + "\n"
	}
	if !bytes.Contains([]byte(joined), []byte("Ctrl+C")) {
		t.Fatalf("help lines missing Ctrl+C note: %v", lines)
	}
}

func TestSettingsLinesReflectCurrentConfig(t *testing.T) {
	o := &Orchestrator{
		sendMode:    cliconfig.SendModeInsert,
		voiceIntent: cliconfig.IntentCommand,
		vadEngine:   cliconfig.VadSimple,
	}
	lines := o.settingsLines()
	want := []string{"send mode:    insert", "voice intent: command", "vad engine:   simple"}
	for _, w := range want {
		found := false
		for _, l := range lines {
			if l == w {
				found = true
			}
		}
		if !found {
			t.Fatalf("settingsLines() = %v, missing %q", lines, w)
		}
	}
}

func TestThemeLinesMarksCurrentSelection(t *testing.T) {
	o := &Orchestrator{themeIdx: 1}
	lines := o.themeLines()
	if lines[0] != "Theme (Up/Down, Enter to close)" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[2] != "> mono" {
		t.Fatalf("expected selection marker on mono, got %q", lines[2])
	}
	if lines[1] != "  default" {
		t.Fatalf("expected no marker on default, got %q", lines[1])
	}
}

func TestAdjustSensitivity(t *testing.T) {
	o := &Orchestrator{writer: newTestWriter(), sensitivityDB: -55}
	o.adjustSensitivity(3)
	if o.sensitivityDB != -52 {
		t.Fatalf("sensitivityDB = %v, want -52", o.sensitivityDB)
	}
	o.adjustSensitivity(-1)
	if o.sensitivityDB != -53 {
		t.Fatalf("sensitivityDB = %v, want -53", o.sensitivityDB)
	}
}

func TestHandleHotkeySendModeToggle(t *testing.T) {
	o := &Orchestrator{writer: newTestWriter(), sendMode: cliconfig.SendModeAuto}
	o.handleHotkey(HotkeySendModeToggle)
	if o.sendMode != cliconfig.SendModeInsert {
		t.Fatalf("sendMode = %v, want insert", o.sendMode)
	}
	o.handleHotkey(HotkeySendModeToggle)
	if o.sendMode != cliconfig.SendModeAuto {
		t.Fatalf("sendMode = %v, want auto", o.sendMode)
	}
}

func TestHandleHotkeyAutoVoiceToggle(t *testing.T) {
	o := &Orchestrator{writer: newTestWriter()}
	o.handleHotkey(HotkeyAutoVoiceToggle)
	if !o.autoVoice {
		t.Fatalf("autoVoice = false, want true")
	}
	o.handleHotkey(HotkeyAutoVoiceToggle)
	if o.autoVoice {
		t.Fatalf("autoVoice = true, want false")
	}
}

func TestOpenAndCloseOverlay(t *testing.T) {
	o := &Orchestrator{writer: newTestWriter()}
	o.openOverlay(writer.OverlayHelp, helpLines())
	if o.overlayKind != writer.OverlayHelp {
		t.Fatalf("overlayKind = %v, want OverlayHelp", o.overlayKind)
	}
	o.closeOverlay()
	if o.overlayKind != writer.OverlayNone {
		t.Fatalf("overlayKind = %v, want OverlayNone after close", o.overlayKind)
	}
}

func TestHandleModalInputClosesOnEnterOrEsc(t *testing.T) {
	o := &Orchestrator{writer: newTestWriter()}
	o.openOverlay(writer.OverlaySettings, []string{"x"})
	o.handleModalInput(Event{Kind: EventPassthrough, Bytes: []byte{'\r'}})
	if o.overlayKind != writer.OverlayNone {
		t.Fatalf("overlay still open after Enter")
	}
	o.openOverlay(writer.OverlaySettings, []string{"x"})
	o.handleModalInput(Event{Kind: EventPassthrough, Bytes: []byte{0x1b}})
	if o.overlayKind != writer.OverlayNone {
		t.Fatalf("overlay still open after Esc")
	}
}

func TestHandleModalInputThemeCycling(t *testing.T) {
	o := &Orchestrator{writer: newTestWriter()}
	o.openOverlay(writer.OverlayThemePicker, o.themeLines())
	o.handleModalInput(Event{Kind: EventPassthrough, Bytes: []byte{0x1b, '[', 'B'}})
	if o.themeIdx != 1 {
		t.Fatalf("themeIdx = %d, want 1 after down arrow", o.themeIdx)
	}
	o.handleModalInput(Event{Kind: EventPassthrough, Bytes: []byte{0x1b, '[', 'A'}})
	if o.themeIdx != 0 {
		t.Fatalf("themeIdx = %d, want 0 after up arrow", o.themeIdx)
	}
}

func TestEnqueueTranscriptLeavesDictationTextUnchanged(t *testing.T) {
	macros, err := macro.Load("")
	if err != nil {
		t.Fatalf("macro.Load: %v", err)
	}
	o := &Orchestrator{
		writer:      newTestWriter(),
		tracker:     promptdetect.New(nil, 1200),
		queue:       transcript.New(5),
		macros:      macros,
		voiceIntent: cliconfig.IntentDictation,
	}
	o.enqueueTranscript("hello there", voice.PipelineNative)
	if o.queue.Len() != 1 {
		t.Fatalf("queue.Len() = %d, want 1", o.queue.Len())
	}
	if got := o.queue.Peek().Text; got != "hello there" {
		t.Fatalf("queued text = %q, want unchanged dictation text", got)
	}
	if o.state != StateInjecting {
		t.Fatalf("state = %v, want StateInjecting (tracker not ready)", o.state)
	}
}

// TestEnqueueTranscriptFixesSendModeAtQueueTime guards against toggling the
// live send-mode preference after a transcript is queued from changing how
// that already-queued entry gets injected: send mode is fixed at arrival,
// not at injection.
func TestEnqueueTranscriptFixesSendModeAtQueueTime(t *testing.T) {
	macros, err := macro.Load("")
	if err != nil {
		t.Fatalf("macro.Load: %v", err)
	}
	o := &Orchestrator{
		writer:      newTestWriter(),
		tracker:     promptdetect.New(nil, 1200),
		queue:       transcript.New(5),
		macros:      macros,
		voiceIntent: cliconfig.IntentDictation,
		sendMode:    cliconfig.SendModeInsert,
	}
	o.enqueueTranscript("first", voice.PipelineNative)

	o.sendMode = cliconfig.SendModeAuto // toggled after queueing

	if got := o.queue.Peek().SendMode; got != transcript.SendModeInsert {
		t.Fatalf("queued entry SendMode = %v, want %v (fixed at push time)", got, transcript.SendModeInsert)
	}
}

func TestTryInjectPopsOnSuccessfulWrite(t *testing.T) {
	o := newTestOrchestrator(t)
	o.queue = transcript.New(5)
	o.queue.Push("go to the store", transcript.SendModeAuto, "native")
	o.sendMode = cliconfig.SendModeAuto
	o.state = StateInjecting

	o.tryInject()

	if o.queue.Len() != 0 {
		t.Fatalf("queue.Len() = %d, want 0 after successful inject", o.queue.Len())
	}
	if o.state != StateIdle {
		t.Fatalf("state = %v, want StateIdle once queue drains", o.state)
	}
}

func TestTryInjectOnEmptyQueueReturnsToIdle(t *testing.T) {
	o := newTestOrchestrator(t)
	o.queue = transcript.New(5)
	o.state = StateInjecting

	o.tryInject()

	if o.state != StateIdle {
		t.Fatalf("state = %v, want StateIdle on empty queue", o.state)
	}
}

func TestOnVoiceMessageCaptureCompleteTransitionsToTranscribing(t *testing.T) {
	o := newTestOrchestrator(t)
	o.state = StateListening

	o.onVoiceMessage(voice.Message{Kind: voice.MsgCaptureComplete})

	if o.state != StateTranscribing {
		t.Fatalf("state = %v, want StateTranscribing", o.state)
	}
}

func TestOnVoiceMessageEmptyResetsToIdle(t *testing.T) {
	o := newTestOrchestrator(t)
	o.state = StateTranscribing
	o.activeJob = nil

	o.onVoiceMessage(voice.Message{Kind: voice.MsgEmpty})

	if o.state != StateIdle {
		t.Fatalf("state = %v, want StateIdle after MsgEmpty", o.state)
	}
	if o.activeJob != nil {
		t.Fatalf("activeJob not cleared")
	}
}

func TestOnVoiceMessageErrorResetsToIdleAndSetsMessage(t *testing.T) {
	o := newTestOrchestrator(t)
	o.state = StateTranscribing

	o.onVoiceMessage(voice.Message{Kind: voice.MsgError, ErrDetail: "boom"})

	if o.state != StateIdle {
		t.Fatalf("state = %v, want StateIdle after MsgError", o.state)
	}
}

func TestOnVoiceMessageTranscriptEnqueuesWithReportedPipeline(t *testing.T) {
	o := newTestOrchestrator(t)
	o.queue = transcript.New(5)
	o.state = StateTranscribing

	o.onVoiceMessage(voice.Message{Kind: voice.MsgTranscript, Text: "ship it", Pipeline: voice.PipelineFallback})

	e := o.queue.Peek()
	if e == nil {
		t.Fatalf("expected one queued entry")
	}
	if e.Engine != string(voice.PipelineFallback) {
		t.Fatalf("Engine = %q, want %q", e.Engine, voice.PipelineFallback)
	}
}

// startStandaloneJob starts a Voice Job whose frame source is never wired
// to a real audio device, so it can stand in for "a capture already in
// progress" without touching hardware.
func startStandaloneJob(o *Orchestrator) *voice.Job {
	return voice.Start(o.newVadEngine(), o.captureConfig(), nil, nil, nil, o.sttParams(), tracelog.Nop())
}

func TestOnPromptReadyDoesNotStartAutoVoiceWhileAJobIsActive(t *testing.T) {
	o := newTestOrchestrator(t)
	o.autoVoice = true
	o.queue = transcript.New(5)
	o.state = StateListening
	job := startStandaloneJob(o)
	o.activeJob = job
	t.Cleanup(job.Stop)

	o.onPromptReady()

	if o.activeJob != job {
		t.Fatalf("a second job was started while one was already active")
	}
}

func TestOnIdleReadyDoesNotStartAutoVoiceWhenDisabled(t *testing.T) {
	o := newTestOrchestrator(t)
	o.autoVoice = false
	o.queue = transcript.New(5)
	o.state = StateIdle

	o.onIdleReady()

	if o.activeJob != nil {
		t.Fatalf("a job was started despite auto-voice being disabled")
	}
}

func TestStartCaptureRejectsSecondConcurrentJob(t *testing.T) {
	o := newTestOrchestrator(t)
	o.queue = transcript.New(5)
	first := startStandaloneJob(o)
	o.activeJob = first
	t.Cleanup(first.Stop)

	o.startCapture()

	if o.activeJob != first {
		t.Fatalf("a second concurrent job was started")
	}
}

func TestCycleHUDTogglesRowsAndResizesChild(t *testing.T) {
	o := newTestOrchestrator(t)
	o.cols, o.rows = 80, 24
	o.writer.Resize(80, 24, hudRowsMinimal)

	if o.hudRows != hudRowsMinimal {
		t.Fatalf("hudRows = %d, want hudRowsMinimal", o.hudRows)
	}
	o.cycleHUD()
	if o.hudRows != hudRowsFull {
		t.Fatalf("hudRows = %d, want hudRowsFull", o.hudRows)
	}
	if got := o.writer.ChildRows(); got != 24-hudRowsFull {
		t.Fatalf("ChildRows() = %d, want %d", got, 24-hudRowsFull)
	}
	o.cycleHUD()
	if o.hudRows != hudRowsMinimal {
		t.Fatalf("hudRows = %d, want hudRowsMinimal again", o.hudRows)
	}
	if got := o.writer.ChildRows(); got != 24-hudRowsMinimal {
		t.Fatalf("ChildRows() = %d, want %d", got, 24-hudRowsMinimal)
	}
}
