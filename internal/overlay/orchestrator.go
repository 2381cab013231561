package overlay

import (
	"io"
	"time"

	"voxterm/internal/cliconfig"
	"voxterm/internal/hud"
	"voxterm/internal/macro"
	"voxterm/internal/promptdetect"
	"voxterm/internal/ptysession"
	"voxterm/internal/tracelog"
	"voxterm/internal/transcript"
	"voxterm/internal/voice"
	"voxterm/internal/voxerr"
	"voxterm/internal/writer"
)

// State is the overlay's top-level state machine:
// Idle -> Listening -> Transcribing -> Injecting -> Idle.
type State int

const (
	StateIdle State = iota
	StateListening
	StateTranscribing
	StateInjecting
)

func (s State) hudMode() hud.Mode {
	switch s {
	case StateListening:
		return hud.ModeListening
	case StateTranscribing:
		return hud.ModeTranscribing
	case StateInjecting:
		return hud.ModeInjecting
	default:
		return hud.ModeIdle
	}
}

const (
	tickInterval   = 50 * time.Millisecond
	hudRowsMinimal = 1
	hudRowsFull    = 3
)

var themeNames = []string{"default", "mono", "high-contrast"}

// Orchestrator owns the application state machine and every channel to
// the other components. All mutable state lives on its event-loop
// goroutine; the other components only ever see it through messages.
type Orchestrator struct {
	cfg     cliconfig.Options
	pty     *ptysession.Session
	writer  *writer.Writer
	tracker *promptdetect.Tracker
	queue   *transcript.Queue
	macros  *macro.Set
	log     *tracelog.Logger

	recorder    *voice.Recorder
	transcriber *voice.Transcriber
	fallback    *voice.Fallback

	state         State
	sendMode      cliconfig.SendMode
	voiceIntent   cliconfig.VoiceIntent
	autoVoice     bool
	sensitivityDB float64
	vadEngine     cliconfig.VadEngineName

	activeJob          *voice.Job
	activeVad          voice.VadEngine
	listeningStartedAt time.Time
	lastEvicted        int
	lastPtyAt          time.Time

	overlayKind writer.OverlayKind
	themeIdx    int
	hudRows     int
	cols, rows  int

	resizeCh chan resizeEvent
	quitCh   chan struct{}
	quitOnce bool
}

type resizeEvent struct{ cols, rows int }

// New builds an Orchestrator. w must already be running (Run called on
// its own goroutine by the caller, per the Writer's documented contract).
func New(cfg cliconfig.Options, pty *ptysession.Session, w *writer.Writer, tracker *promptdetect.Tracker, macros *macro.Set, log *tracelog.Logger, recorder *voice.Recorder, transcriber *voice.Transcriber, fallback *voice.Fallback) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		pty:           pty,
		writer:        w,
		tracker:       tracker,
		queue:         transcript.New(transcript.DefaultCapacity),
		macros:        macros,
		log:           log,
		recorder:      recorder,
		transcriber:   transcriber,
		fallback:      fallback,
		sendMode:      cfg.SendMode,
		voiceIntent:   cfg.VoiceIntent,
		autoVoice:     cfg.AutoVoice,
		sensitivityDB: cfg.VadThresholdDB,
		vadEngine:     cfg.VadEngine,
		hudRows:       hudRowsMinimal,
		resizeCh:      make(chan resizeEvent, 4),
		quitCh:        make(chan struct{}),
	}
}

// HandleResize is the termguard.ResizeHandler this Orchestrator exposes;
// it never blocks the signal-watching goroutine that calls it.
func (o *Orchestrator) HandleResize(cols, rows int) {
	select {
	case o.resizeCh <- resizeEvent{cols, rows}:
	default:
	}
}

// Run drives the event loop until a quit hotkey fires or the child exits.
// It owns the PTY reader and stdin reader goroutines for its lifetime.
func (o *Orchestrator) Run(stdin io.Reader, initialCols, initialRows int) error {
	o.cols, o.rows = initialCols, initialRows
	o.writer.Resize(o.cols, o.rows, o.hudRows)
	if err := o.pty.Resize(ptysession.WinSize{Cols: uint16(o.cols), Rows: uint16(o.writer.ChildRows())}); err != nil {
		o.log.Error(voxerr.KindPtyIoError.String(), "initial resize failed")
	}

	ptyChunks := make(chan []byte, 16)
	go o.readPTYLoop(ptyChunks)

	inputEvents := make(chan Event, 32)
	go o.readInputLoop(stdin, inputEvents)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	o.pushStatus("")

	for {
		select {
		case chunk, ok := <-ptyChunks:
			if !ok {
				return o.shutdown()
			}
			o.handlePtyChunk(chunk)
		case ev, ok := <-inputEvents:
			if !ok {
				return o.shutdown()
			}
			o.handleInputEvent(ev)
		case rs := <-o.resizeCh:
			o.handleResize(rs.cols, rs.rows)
		case <-ticker.C:
			o.handleTick()
		case <-o.quitCh:
			return o.shutdown()
		}
	}
}

func (o *Orchestrator) readPTYLoop(out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := o.pty.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			out <- cp
		}
		if err != nil {
			return
		}
	}
}

func (o *Orchestrator) readInputLoop(stdin io.Reader, out chan<- Event) {
	defer close(out)
	var p Parser
	buf := make([]byte, 256)
	for {
		n, err := stdin.Read(buf)
		if n > 0 {
			for _, ev := range p.Feed(buf[:n]) {
				out <- ev
			}
		}
		if err != nil {
			return
		}
	}
}

func (o *Orchestrator) handlePtyChunk(b []byte) {
	o.writer.PtyOutput(b)
	o.lastPtyAt = time.Now()
	switch o.tracker.Feed(b) {
	case promptdetect.EventReady:
		o.onPromptReady()
	}
}

func (o *Orchestrator) handleInputEvent(ev Event) {
	if ev.Kind == EventInterrupt {
		o.writeToChild([]byte{0x03})
		return
	}
	if o.overlayKind != writer.OverlayNone {
		o.handleModalInput(ev)
		return
	}
	if ev.Kind == EventHotkey {
		o.handleHotkey(ev.Hotkey)
		return
	}
	o.handlePassthrough(ev.Bytes)
}

func (o *Orchestrator) handlePassthrough(b []byte) {
	if o.state == StateListening && o.sendMode == cliconfig.SendModeInsert && containsEnter(b) {
		o.stopCaptureManual()
		return
	}
	o.writeToChild(b)
}

func containsEnter(b []byte) bool {
	for _, c := range b {
		if c == '\r' || c == '\n' {
			return true
		}
	}
	return false
}

func (o *Orchestrator) handleHotkey(hk Hotkey) {
	switch hk {
	case HotkeyRecord:
		o.toggleRecord()
	case HotkeyAutoVoiceToggle:
		o.autoVoice = !o.autoVoice
		o.pushStatus(autoVoiceLabel(o.autoVoice))
	case HotkeySendModeToggle:
		if o.sendMode == cliconfig.SendModeAuto {
			o.sendMode = cliconfig.SendModeInsert
		} else {
			o.sendMode = cliconfig.SendModeAuto
		}
		o.pushStatus("Send mode: " + string(o.sendMode))
	case HotkeyThemePicker:
		o.openOverlay(writer.OverlayThemePicker, o.themeLines())
	case HotkeyHelp:
		o.openOverlay(writer.OverlayHelp, helpLines())
	case HotkeySettings:
		o.openOverlay(writer.OverlaySettings, o.settingsLines())
	case HotkeySensitivityUp:
		o.adjustSensitivity(1)
	case HotkeySensitivityDown:
		o.adjustSensitivity(-1)
	case HotkeyHUDCycle:
		o.cycleHUD()
	case HotkeyQuit:
		o.requestQuit()
	}
}

func autoVoiceLabel(on bool) string {
	if on {
		return "Auto-voice on"
	}
	return "Auto-voice off"
}

func (o *Orchestrator) adjustSensitivity(stepDB float64) {
	o.sensitivityDB += stepDB
	if o.activeVad != nil {
		o.activeVad.SetThresholdDB(o.sensitivityDB)
	}
	o.pushStatus("")
}

func (o *Orchestrator) cycleHUD() {
	if o.hudRows == hudRowsMinimal {
		o.hudRows = hudRowsFull
	} else {
		o.hudRows = hudRowsMinimal
	}
	o.writer.Resize(o.cols, o.rows, o.hudRows)
	o.pty.Resize(ptysession.WinSize{Cols: uint16(o.cols), Rows: uint16(o.writer.ChildRows())})
}

func (o *Orchestrator) openOverlay(kind writer.OverlayKind, lines []string) {
	o.overlayKind = kind
	o.writer.OverlayOpen(kind, lines)
	o.writer.MouseEnable(true)
}

func (o *Orchestrator) closeOverlay() {
	if o.overlayKind == writer.OverlayNone {
		return
	}
	o.overlayKind = writer.OverlayNone
	o.writer.OverlayClose()
	o.writer.MouseEnable(false)
}

func (o *Orchestrator) handleModalInput(ev Event) {
	if ev.Kind == EventHotkey {
		if ev.Hotkey == HotkeyHelp || ev.Hotkey == HotkeySettings || ev.Hotkey == HotkeyThemePicker || ev.Hotkey == HotkeyQuit {
			o.closeOverlay()
			if ev.Hotkey == HotkeyQuit {
				o.requestQuit()
			}
		}
		return
	}
	for _, b := range ev.Bytes {
		switch b {
		case '\r', '\n', 0x1b:
			o.closeOverlay()
			return
		}
	}
	if o.overlayKind == writer.OverlayThemePicker && len(ev.Bytes) >= 3 && ev.Bytes[0] == 0x1b && ev.Bytes[1] == '[' {
		switch ev.Bytes[2] {
		case 'A':
			o.themeIdx = (o.themeIdx - 1 + len(themeNames)) % len(themeNames)
			o.writer.OverlayOpen(o.overlayKind, o.themeLines())
		case 'B':
			o.themeIdx = (o.themeIdx + 1) % len(themeNames)
			o.writer.OverlayOpen(o.overlayKind, o.themeLines())
		}
	}
}

func (o *Orchestrator) handleResize(cols, rows int) {
	o.cols, o.rows = cols, rows
	o.writer.Resize(cols, rows, o.hudRows)
	if err := o.pty.Resize(ptysession.WinSize{Cols: uint16(cols), Rows: uint16(o.writer.ChildRows())}); err != nil {
		o.log.Error(voxerr.KindPtyIoError.String(), "resize failed")
	}
}

func (o *Orchestrator) handleTick() {
	now := time.Now()
	switch o.tracker.CheckIdle(now) {
	case promptdetect.EventReady:
		o.onPromptReady()
	case promptdetect.EventIdleReady:
		o.onIdleReady()
	}

	if o.queue.Len() > 0 && !o.lastPtyAt.IsZero() {
		idleMs := now.Sub(o.lastPtyAt).Milliseconds()
		if idleMs >= o.cfg.TranscriptIdleMs {
			o.tryInject()
		}
	}

	if evicted := o.queue.Evicted(); evicted > o.lastEvicted {
		o.lastEvicted = evicted
		o.pushStatus("Transcript queue full (oldest dropped)")
	}

	// onVoiceMessage clears activeJob on a terminal message, so the
	// condition re-checks each iteration.
	for o.activeJob != nil {
		m := o.activeJob.Poll()
		if m == nil {
			break
		}
		o.onVoiceMessage(*m)
	}

	if o.state == StateListening || o.state == StateTranscribing {
		o.pushStatus("")
	}
}

func (o *Orchestrator) onPromptReady() {
	o.tryInject()
	if o.autoVoice && o.activeJob == nil && o.state == StateIdle {
		o.startCapture()
	}
}

func (o *Orchestrator) onIdleReady() {
	if o.autoVoice && o.activeJob == nil && o.state == StateIdle {
		o.startCapture()
	}
}

func (o *Orchestrator) toggleRecord() {
	switch o.state {
	case StateIdle:
		o.startCapture()
	case StateListening:
		o.stopCaptureManual()
	}
}

func (o *Orchestrator) newVadEngine() voice.VadEngine {
	if o.vadEngine == cliconfig.VadSimple {
		return voice.NewSimpleVAD(o.sensitivityDB, o.cfg.VadSmoothingFrames)
	}
	return voice.NewEarshotVAD(o.sensitivityDB, o.cfg.VadSmoothingFrames)
}

func (o *Orchestrator) captureConfig() voice.CaptureConfig {
	return voice.CaptureConfig{
		FrameMs:              o.cfg.VadFrameMs,
		LookbackMs:           o.cfg.LookbackMs,
		SilenceTailMs:        o.cfg.SilenceTailMs,
		MinSpeechMsBeforeStt: o.cfg.MinSpeechMs,
		MaxCaptureMs:         o.cfg.MaxCaptureMs,
		BufferMs:             o.cfg.BufferMs,
		ChannelCapacity:      o.cfg.ChannelCapacity,
		MaxFrameDropRate:     0.25,
	}
}

func (o *Orchestrator) sttParams() voice.TranscribeParams {
	return voice.TranscribeParams{
		Language:    o.cfg.Language,
		BeamSize:    o.cfg.BeamSize,
		Temperature: o.cfg.Temperature,
		TimeoutMs:   o.cfg.SttTimeoutMs,
	}
}

// startCapture rejects a second concurrent voice job; at most one may be
// active at a time.
func (o *Orchestrator) startCapture() {
	if o.activeJob != nil {
		return
	}
	var fb *voice.Fallback
	if !o.cfg.FallbackDisabled {
		fb = o.fallback
	}
	vad := o.newVadEngine()
	o.activeVad = vad
	o.activeJob = voice.Start(vad, o.captureConfig(), func(push func([]int16)) {
		o.recorder.SetSink(push)
	}, o.transcriber, fb, o.sttParams(), o.log)
	o.state = StateListening
	o.listeningStartedAt = time.Now()
	o.pushStatus("")
}

func (o *Orchestrator) stopCaptureManual() {
	if o.activeJob != nil {
		o.activeJob.Stop()
	}
}

func (o *Orchestrator) onVoiceMessage(m voice.Message) {
	switch m.Kind {
	case voice.MsgStarted:
		// State already transitioned to Listening in startCapture.
	case voice.MsgCaptureComplete:
		o.state = StateTranscribing
		o.pushStatus("")
	case voice.MsgTranscript:
		o.recorder.SetSink(nil)
		o.activeJob = nil
		o.activeVad = nil
		if o.cfg.TimingLogs {
			o.log.Timing("capture", m.Metrics.CaptureMs)
			o.log.Timing("stt", m.SttMs)
		}
		if o.cfg.LogContent {
			o.log.Transcript(m.Text, string(m.Pipeline))
		}
		o.enqueueTranscript(m.Text, m.Pipeline)
	case voice.MsgEmpty:
		o.recorder.SetSink(nil)
		o.activeJob = nil
		o.activeVad = nil
		o.state = StateIdle
		o.pushStatus("No speech detected")
	case voice.MsgError:
		o.recorder.SetSink(nil)
		o.activeJob = nil
		o.activeVad = nil
		o.state = StateIdle
		o.pushStatus(m.ErrDetail)
	}
}

func (o *Orchestrator) enqueueTranscript(text string, pipeline voice.Pipeline) {
	if o.voiceIntent == cliconfig.IntentCommand {
		text = o.macros.Expand(text)
	}
	mode := transcript.SendModeInsert
	if o.sendMode == cliconfig.SendModeAuto {
		mode = transcript.SendModeAuto
	}
	o.queue.Push(text, mode, string(pipeline))
	o.state = StateInjecting
	if o.tracker.Ready() {
		o.tryInject()
	} else {
		o.pushStatus("")
	}
}

func (o *Orchestrator) tryInject() {
	e := o.queue.Peek()
	if e == nil {
		if o.state == StateInjecting {
			o.state = StateIdle
		}
		return
	}
	payload := []byte(e.Text)
	if e.SendMode == transcript.SendModeAuto {
		payload = append(payload, '\n')
	}
	if !o.writeToChild(payload) {
		return
	}
	o.queue.Pop()
	if o.queue.Len() == 0 {
		o.state = StateIdle
	}
	o.pushStatus("")
}

// writeToChild funnels bytes through the PTY session's writer: one retry
// for a transient failure, then the session is treated as gone.
func (o *Orchestrator) writeToChild(b []byte) bool {
	if _, err := o.pty.Write(b); err != nil {
		if _, err2 := o.pty.Write(b); err2 != nil {
			o.log.Error(voxerr.KindTranscriptInjectionFailed.String(), "child gone")
			o.pushStatus("Child process gone")
			o.requestQuit()
			return false
		}
	}
	return true
}

func (o *Orchestrator) requestQuit() {
	if o.quitOnce {
		return
	}
	o.quitOnce = true
	close(o.quitCh)
}

func (o *Orchestrator) pushStatus(message string) {
	durationMs := int64(0)
	if o.state == StateListening || o.state == StateTranscribing {
		durationMs = time.Since(o.listeningStartedAt).Milliseconds()
	}
	pipeline := "whisper"
	if o.transcriber == nil {
		pipeline = "fallback"
	}
	shortcuts := "M-r rec  M-h help"
	if o.hudRows > hudRowsMinimal {
		shortcuts = "M-r rec  M-v auto  M-m mode  M-h help  M-q quit"
	}
	o.writer.StatusUpdate(hud.StatusLine{
		Mode:          o.state.hudMode(),
		Pipeline:      pipeline,
		SensitivityDB: o.sensitivityDB,
		DurationMs:    durationMs,
		Message:       message,
		Shortcuts:     shortcuts,
		Dirty:         true,
	})
}

func (o *Orchestrator) shutdown() error {
	o.closeOverlay()
	if o.activeJob != nil {
		o.activeJob.Stop()
	}
	o.writer.Shutdown()
	o.writer.Wait()
	o.pty.Shutdown(3 * time.Second)
	return nil
}

func helpLines() []string {
	return []string{
		"voxterm - voice overlay for your coding CLI",
		"Alt+R record/stop  Alt+V auto-voice  Alt+M send mode  Alt+-/+ sensitivity",
		"Alt+T theme  Alt+S settings  Alt+H help  Alt+Tab HUD size  Alt+Q quit",
		"Ctrl+C always forwarded to the child as an interrupt",
	}
}

func (o *Orchestrator) settingsLines() []string {
	return []string{
		"Settings (Enter/Esc to close)",
		"send mode:    " + string(o.sendMode),
		"voice intent: " + string(o.voiceIntent),
		"vad engine:   " + string(o.vadEngine),
	}
}

func (o *Orchestrator) themeLines() []string {
	lines := []string{"Theme (Up/Down, Enter to close)"}
	for i, name := range themeNames {
		marker := "  "
		if i == o.themeIdx {
			marker = "> "
		}
		lines = append(lines, marker+name)
	}
	return lines
}
