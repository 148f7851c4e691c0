//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// exitSignal asks the daemon to exit with SIGTERM.
type exitSignal struct{}

func newExitSignal() (*exitSignal, error) {
	return &exitSignal{}, nil
}

func (s *exitSignal) args() []string {
	return nil
}

func (s *exitSignal) raise(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}

func (s *exitSignal) close() {}

func hideWindow(cmd *exec.Cmd) {}
