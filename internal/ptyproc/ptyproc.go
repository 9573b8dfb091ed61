// Package ptyproc manages PTY-backed child processes: spawning a
// login shell or a one-shot command, resizing the PTY, non-blocking
// I/O driven from the compositor's frame loop, and a staged
// SIGHUP-then-SIGKILL teardown that gives shells a chance to flush
// their history.
package ptyproc

import (
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/karlb/termstack/internal/shell"
)

// TeardownGrace is how long Close waits after SIGHUP before
// escalating to SIGKILL.
const TeardownGrace = 500 * time.Millisecond

const teardownPollInterval = 10 * time.Millisecond

// Process is a PTY-backed child process.
type Process struct {
	master *os.File
	cmd    *exec.Cmd
	cols   uint16
	rows   uint16
	exited atomic.Bool
}

// Spawn starts shell as a login shell attached to a new PTY of the
// given size. The process inherits the caller's environment plus
// TERM=xterm-256color, matching an interactive terminal session.
func Spawn(shellPath string, cols, rows uint16) (*Process, error) {
	args := []string{"-l"}
	if shell.IsFishPath(shellPath) {
		args = append(args, "-C", shell.FishInitScript)
	}

	cmd := exec.Command(shellPath, args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("spawn shell %s: %w", shellPath, err)
	}

	return &Process{master: master, cmd: cmd, cols: cols, rows: rows}, nil
}

// SpawnCommand runs command via `$SHELL -c command` in workingDir with
// a fully replaced environment (env_clear semantics: only env is
// passed through, nothing is inherited from the compositor process).
// SHELL falls back to /bin/sh when env has none.
func SpawnCommand(command, workingDir string, env map[string]string, cols, rows uint16) (*Process, error) {
	shellPath := env["SHELL"]
	if shellPath == "" {
		shellPath = "/bin/sh"
	}

	args := []string{"-c", command}
	if shell.IsFishPath(shellPath) {
		args = []string{"-C", shell.FishInitScript, "-c", command}
	}

	cmd := exec.Command(shellPath, args...)
	cmd.Dir = workingDir
	cmd.Env = make([]string, 0, len(env))
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("spawn command %q: %w", command, err)
	}

	return &Process{master: master, cmd: cmd, cols: cols, rows: rows}, nil
}

// Resize updates the PTY window size, which makes the kernel send
// SIGWINCH to the terminal's foreground process group when the size
// changes, and also sends SIGWINCH directly to the child process.
func (p *Process) Resize(cols, rows uint16) error {
	if err := pty.Setsize(p.master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	p.cols, p.rows = cols, rows

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGWINCH)
	}
	return nil
}

// Size returns the current PTY window size (cols, rows).
func (p *Process) Size() (cols, rows uint16) {
	return p.cols, p.rows
}

// Poll reads any data currently available without blocking, returning
// (0, nil) when nothing is ready. It is meant to be called once per
// frame from the compositor's main loop.
func (p *Process) Poll(buf []byte) (int, error) {
	if err := p.master.SetReadDeadline(time.Now()); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, err := p.master.Read(buf)
	if err != nil {
		if os.IsTimeout(err) {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

// Write sends data to the PTY without blocking. It returns the number
// of bytes actually written; callers must buffer and retry the
// remainder on a partial write.
func (p *Process) Write(data []byte) (int, error) {
	if err := p.master.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}
	n, err := p.master.Write(data)
	if err != nil && os.IsTimeout(err) {
		return n, nil
	}
	return n, err
}

// Fd returns the master fd, for integration with external poll loops.
func (p *Process) Fd() int {
	return int(p.master.Fd())
}

// IsRunning reports whether the child process is still alive, reaping
// it with a non-blocking wait if it has exited.
func (p *Process) IsRunning() bool {
	if p.exited.Load() {
		return false
	}
	if p.cmd.Process == nil {
		return false
	}

	var status unix.WaitStatus
	pid, err := unix.Wait4(p.cmd.Process.Pid, &status, unix.WNOHANG, nil)
	if err != nil || pid == p.cmd.Process.Pid {
		p.exited.Store(true)
		return false
	}
	return true
}

// Close tears the process down: SIGHUP, a short grace period polling
// for exit, then SIGKILL if it is still alive.
func (p *Process) Close() error {
	defer p.master.Close()

	if p.exited.Load() || p.cmd.Process == nil {
		return nil
	}

	_ = p.cmd.Process.Signal(syscall.SIGHUP)

	deadline := time.Now().Add(TeardownGrace)
	for time.Now().Before(deadline) {
		if !p.IsRunning() {
			return nil
		}
		time.Sleep(teardownPollInterval)
	}

	if p.IsRunning() {
		_ = p.cmd.Process.Kill()
		_, _ = p.cmd.Process.Wait()
		p.exited.Store(true)
	}
	return nil
}
