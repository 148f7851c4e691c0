//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"
)

// exitSignal is the named event openvpn waits on when started with
// "--service <event> 0". Setting it makes the daemon exit gracefully.
type exitSignal struct {
	name   string
	handle windows.Handle
	once   sync.Once
}

func newExitSignal() (*exitSignal, error) {
	name := "ovpngui_exit_" + uuid.NewString()
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateEvent(nil, 1, 0, namep)
	if err != nil {
		return nil, fmt.Errorf("process: cannot create exit event: %w", err)
	}
	return &exitSignal{name: name, handle: handle}, nil
}

func (s *exitSignal) args() []string {
	return []string{"--service", s.name, "0"}
}

func (s *exitSignal) raise(proc *os.Process) error {
	return windows.SetEvent(s.handle)
}

func (s *exitSignal) close() {
	s.once.Do(func() {
		windows.CloseHandle(s.handle)
	})
}

func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}
