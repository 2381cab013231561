// Package ptysession spawns and supervises a child process under a
// pseudo-terminal, forwarding raw bytes in both directions without
// corrupting the child's own ANSI rendering.
package ptysession

import (
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"

	"voxterm/internal/voxerr"
)

// WinSize is the PTY window size in character cells.
type WinSize struct {
	Rows uint16
	Cols uint16
}

// Session owns the PTY master FD and child process for its lifetime; writes
// made through Write are serialized. The master FD has exactly one owner.
type Session struct {
	ptm *os.File
	cmd *exec.Cmd

	writeMu sync.Mutex
	alive   atomic.Bool

	shutdownOnce sync.Once

	csi      csiScanner
	rbuf     []byte
	leftover []byte
}

// Spawn allocates a PTY, execs cmd under it, and returns a live Session.
func Spawn(command string, args []string, env map[string]string, cwd string, initial WinSize) (*Session, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = cwd
	if len(env) > 0 {
		base := os.Environ()
		merged := make([]string, 0, len(base)+len(env))
		overridden := make(map[string]bool, len(env))
		for _, e := range base {
			key := e
			for i, c := range e {
				if c == '=' {
					key = e[:i]
					break
				}
			}
			if _, ok := env[key]; !ok {
				merged = append(merged, e)
			} else {
				overridden[key] = true
			}
		}
		for k, v := range env {
			merged = append(merged, k+"="+v)
		}
		cmd.Env = merged
	}

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: initial.Rows, Cols: initial.Cols})
	if err != nil {
		return nil, voxerr.New(voxerr.KindPtySpawnFailed, "Failed to start child process", err)
	}

	s := &Session{ptm: ptm, cmd: cmd, rbuf: make([]byte, 4096)}
	s.alive.Store(true)
	return s, nil
}

// Read reads the next chunk of output from the child. DSR/DA1 terminal
// queries are answered on the master and removed; every other byte is
// returned exactly as the child wrote it, never stripped or rewritten, so
// callers can forward it verbatim to the Writer.
func (s *Session) Read(buf []byte) (int, error) {
	if len(s.leftover) > 0 {
		n := copy(buf, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}
	for {
		n, err := s.ptm.Read(s.rbuf)
		var fwd []byte
		if n > 0 {
			fwd = s.csi.scan(s.rbuf[:n], s.ptm)
		}
		if err != nil {
			s.alive.Store(false)
			m := copy(buf, fwd)
			return m, err
		}
		if len(fwd) == 0 {
			// The whole chunk was an answered query or a held prefix.
			continue
		}
		m := copy(buf, fwd)
		if m < len(fwd) {
			s.leftover = append(s.leftover[:0], fwd[m:]...)
		}
		return m, nil
	}
}

// Writer returns the master file itself. Writes made directly on it do not
// take the mutex that serializes Write.
func (s *Session) Writer() *os.File {
	return s.ptm
}

// Write injects bytes into the child's stdin, serialized against other
// writers of this Session.
func (s *Session) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.ptm.Write(p)
	if err != nil {
		return n, voxerr.New(voxerr.KindPtyIoError, "Transcript injection failed", err)
	}
	return n, nil
}

// Alive reports whether the child process is still believed to be running.
func (s *Session) Alive() bool { return s.alive.Load() }

// Resize applies a new window size to the PTY and forwards SIGWINCH to the
// child's process group, so shells that have forked their own foreground
// job see the new geometry too. The child is its own session leader
// (pty.StartWithSize sets setsid), so its pid doubles as the pgid.
func (s *Session) Resize(w WinSize) error {
	if err := pty.Setsize(s.ptm, &pty.Winsize{Rows: w.Rows, Cols: w.Cols}); err != nil {
		return voxerr.New(voxerr.KindPtyIoError, "Resize failed", err)
	}
	if s.cmd.Process != nil {
		syscall.Kill(-s.cmd.Process.Pid, syscall.SIGWINCH)
	}
	return nil
}

// Shutdown attempts a graceful close: a best-effort "exit\n" write followed
// by a bounded wait, then escalates to SIGTERM and finally SIGKILL. Closes
// the master FD and reaps the child. Idempotent.
func (s *Session) Shutdown(grace time.Duration) {
	s.shutdownOnce.Do(func() {
		s.alive.Store(false)

		done := make(chan struct{})
		go func() {
			s.cmd.Wait()
			close(done)
		}()

		s.writeMu.Lock()
		s.ptm.Write([]byte("exit\n"))
		s.writeMu.Unlock()

		select {
		case <-done:
			s.ptm.Close()
			return
		case <-time.After(grace):
		}

		if s.cmd.Process != nil {
			s.cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-done:
		case <-time.After(grace):
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			<-done
		}
		s.ptm.Close()
	})
}
