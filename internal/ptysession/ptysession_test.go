package ptysession

import (
	"testing"
	"time"
)

func TestSpawnReadsChildOutputToEOF(t *testing.T) {
	s, err := Spawn("echo", []string{"hello"}, nil, "", WinSize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Shutdown(time.Second)

	var out []byte
	buf := make([]byte, 256)
	for {
		n, err := s.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	if got := string(out); !containsStr(got, "hello") {
		t.Fatalf("child output %q missing echoed text", got)
	}
	if s.Alive() {
		t.Fatalf("Alive() should be false after the reader hit EOF")
	}
}

func TestSpawnFailureReturnsError(t *testing.T) {
	_, err := Spawn("/nonexistent/definitely-not-a-binary", nil, nil, "", WinSize{Cols: 80, Rows: 24})
	if err == nil {
		t.Fatalf("expected spawn failure for missing binary")
	}
}

func TestSpawnAppliesEnvOverride(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "printf '%s' \"$TERM\""}, map[string]string{"TERM": "vox-test-term"}, "", WinSize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Shutdown(time.Second)

	var out []byte
	buf := make([]byte, 256)
	for {
		n, rerr := s.Read(buf)
		out = append(out, buf[:n]...)
		if rerr != nil {
			break
		}
	}
	if !containsStr(string(out), "vox-test-term") {
		t.Fatalf("child TERM not overridden, got %q", out)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	s, err := Spawn("cat", nil, nil, "", WinSize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	s.Shutdown(200 * time.Millisecond)
	s.Shutdown(200 * time.Millisecond)

	if s.Alive() {
		t.Fatalf("Alive() should be false after Shutdown")
	}
}

func TestResizeOnLiveSession(t *testing.T) {
	s, err := Spawn("cat", nil, nil, "", WinSize{Cols: 100, Rows: 30})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Shutdown(time.Second)

	if err := s.Resize(WinSize{Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
}

func containsStr(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
