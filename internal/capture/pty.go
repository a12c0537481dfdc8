package capture

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// PTY wraps a command running under a pseudo-terminal.
type PTY struct {
	cmd    *exec.Cmd
	pty    *os.File
	mu     sync.Mutex
	closed bool
}

// StartPTY starts cmd under a new pseudo-terminal.
func StartPTY(cmd *exec.Cmd) (*PTY, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	return &PTY{
		cmd: cmd,
		pty: ptmx,
	}, nil
}

// Read reads output produced by the command.
func (p *PTY) Read(buf []byte) (int, error) {
	return p.pty.Read(buf)
}

// Write sends input to the command.
func (p *PTY) Write(data []byte) (int, error) {
	return p.pty.Write(data)
}

// Resize resizes the pseudo-terminal.
func (p *PTY) Resize(rows, cols uint16) error {
	return pty.Setsize(p.pty, &pty.Winsize{
		Rows: rows,
		Cols: cols,
	})
}

// Close terminates the process group and closes the pseudo-terminal.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.cmd.Process != nil {
		syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
	}

	return p.pty.Close()
}

// Wait waits for the command to exit.
func (p *PTY) Wait() error {
	return p.cmd.Wait()
}

// PID returns the process ID of the command.
func (p *PTY) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
