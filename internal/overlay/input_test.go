package overlay

import (
	"bytes"
	"testing"
)

func TestFeedPassesOrdinaryBytesThrough(t *testing.T) {
	var p Parser
	evs := p.Feed([]byte("hello"))
	if len(evs) != 1 || evs[0].Kind != EventPassthrough || !bytes.Equal(evs[0].Bytes, []byte("hello")) {
		t.Fatalf("want single passthrough event, got %+v", evs)
	}
}

func TestFeedRecognizesMetaHotkey(t *testing.T) {
	var p Parser
	evs := p.Feed([]byte{esc, 'r'})
	if len(evs) != 1 || evs[0].Kind != EventHotkey || evs[0].Hotkey != HotkeyRecord {
		t.Fatalf("want HotkeyRecord, got %+v", evs)
	}
}

func TestFeedSplitsPassthroughAroundHotkey(t *testing.T) {
	var p Parser
	evs := p.Feed([]byte{'a', 'b', esc, 'q', 'c', 'd'})
	if len(evs) != 3 {
		t.Fatalf("want 3 events, got %d: %+v", len(evs), evs)
	}
	if evs[0].Kind != EventPassthrough || !bytes.Equal(evs[0].Bytes, []byte("ab")) {
		t.Fatalf("want leading passthrough 'ab', got %+v", evs[0])
	}
	if evs[1].Kind != EventHotkey || evs[1].Hotkey != HotkeyQuit {
		t.Fatalf("want HotkeyQuit, got %+v", evs[1])
	}
	if evs[2].Kind != EventPassthrough || !bytes.Equal(evs[2].Bytes, []byte("cd")) {
		t.Fatalf("want trailing passthrough 'cd', got %+v", evs[2])
	}
}

func TestFeedEscAloneNotMatchingIsPassthrough(t *testing.T) {
	var p Parser
	evs := p.Feed([]byte{esc, '[', 'A'}) // arrow-up CSI, not a hotkey
	if len(evs) != 1 || evs[0].Kind != EventPassthrough || !bytes.Equal(evs[0].Bytes, []byte{esc, '[', 'A'}) {
		t.Fatalf("want CSI sequence forwarded verbatim, got %+v", evs)
	}
}

func TestFeedCtrlCIsInterrupt(t *testing.T) {
	var p Parser
	evs := p.Feed([]byte{'a', ctrlC, 'b'})
	if len(evs) != 3 {
		t.Fatalf("want 3 events, got %+v", evs)
	}
	if evs[1].Kind != EventInterrupt {
		t.Fatalf("want EventInterrupt, got %+v", evs[1])
	}
}

func TestFeedBuffersTrailingEscAcrossReads(t *testing.T) {
	var p Parser
	evs := p.Feed([]byte{'a', esc})
	if len(evs) != 1 || !bytes.Equal(evs[0].Bytes, []byte("a")) {
		t.Fatalf("want only leading byte flushed, got %+v", evs)
	}
	if !p.pendingEsc {
		t.Fatalf("expected pendingEsc to be set across the read boundary")
	}
	evs = p.Feed([]byte{'v'})
	if len(evs) != 1 || evs[0].Kind != EventHotkey || evs[0].Hotkey != HotkeyAutoVoiceToggle {
		t.Fatalf("want HotkeyAutoVoiceToggle completed across reads, got %+v", evs)
	}
}

func TestFeedBareEscNotFollowedByHotkeyPassesThrough(t *testing.T) {
	var p Parser
	p.Feed([]byte{esc})
	evs := p.Feed([]byte{'z'})
	if len(evs) != 1 || evs[0].Kind != EventPassthrough || !bytes.Equal(evs[0].Bytes, []byte{esc, 'z'}) {
		t.Fatalf("want ESC+'z' forwarded as passthrough, got %+v", evs)
	}
}
