// Package termguard owns the one piece of process-wide mutable state this
// program touches: the controlling terminal's mode. A single Guard value
// is built once at startup and is responsible for restoring that state on
// every exit path, including panics, instead of relying on an inline
// raw-mode/defer-restore pair scattered through the event loop.
package termguard

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"
)

// ResizeHandler receives resize notifications once raw mode is active.
type ResizeHandler func(cols, rows int)

// Guard enables raw mode on Open and restores the terminal on Close. Close
// is idempotent and safe to call from a deferred panic-recovery path.
type Guard struct {
	fd        int
	state     *term.State
	sigCh     chan os.Signal
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	out       *os.File
	clearHUD  func()
}

// Open switches fd (typically os.Stdin's fd) to raw mode, saving the prior
// state, and starts a SIGWINCH watcher that calls onResize with the new
// terminal size. out is where mouse-reporting and cursor-visibility
// sequences are written on Close. clearHUD, if non-nil, is invoked on every
// exit path Close handles, including the panic path driven by Recover, so
// the reserved HUD region is always cleared and not only on the normal
// writer.Shutdown route a panic skips entirely.
func Open(fd int, out *os.File, onResize ResizeHandler, clearHUD func()) (*Guard, error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("set raw mode: %w", err)
	}

	g := &Guard{
		fd:       fd,
		state:    state,
		sigCh:    make(chan os.Signal, 1),
		stop:     make(chan struct{}),
		out:      out,
		clearHUD: clearHUD,
	}
	signal.Notify(g.sigCh, syscall.SIGWINCH)

	if onResize != nil {
		g.wg.Add(1)
		go g.watchResize(onResize)
	}
	return g, nil
}

func (g *Guard) watchResize(onResize ResizeHandler) {
	defer g.wg.Done()
	for {
		select {
		case <-g.stop:
			return
		case <-g.sigCh:
			cols, rows, err := term.GetSize(g.fd)
			if err != nil {
				continue
			}
			onResize(cols, rows)
		}
	}
}

// Close disables mouse reporting, restores the original terminal state,
// and shows the cursor again. Safe to call multiple times and from a
// recover() path after a panic.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		close(g.stop)
		signal.Stop(g.sigCh)
		if g.clearHUD != nil {
			g.clearHUD()
		}
		if g.out != nil {
			g.out.Write([]byte("\x1b[?1000l\x1b[?1006l"))
			g.out.Write([]byte("\x1b[?25h\x1b[0m\r\n"))
		}
		if g.state != nil {
			term.Restore(g.fd, g.state)
		}
		g.wg.Wait()
	})
}

// Recover installs a panic-safe restoration path. Call as:
//
//	defer guard.Recover()
//
// at the top of the function that owns the Guard. It restores the
// terminal, then re-panics so the original failure is still reported.
func (g *Guard) Recover() {
	r := recover()
	g.Close()
	if r != nil {
		panic(r)
	}
}
