// Package process starts and stops the openvpn daemons we supervise.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/networkio"
)

var (
	// ErrNoConfig is returned when launching a profile without a config file.
	ErrNoConfig = errors.New("process: profile has no config file")

	// ErrBinaryNotFound is returned when we cannot find the openvpn binary.
	ErrBinaryNotFound = errors.New("process: openvpn binary not found")
)

// defaultBinary is the name we look up in PATH.
const defaultBinary = "openvpn"

// Launcher starts openvpn daemons with the management interface enabled.
// The zero value is invalid; use [NewLauncher].
type Launcher struct {
	// binary is the openvpn binary; when empty we search PATH.
	binary string

	// logger is the logger to use.
	logger model.Logger
}

// NewLauncher creates a [Launcher] running binary.
func NewLauncher(binary string, logger model.Logger) *Launcher {
	return &Launcher{
		binary: binary,
		logger: logger,
	}
}

// Launch starts the daemon of profile and returns it along with the address
// of its management interface.
func (l *Launcher) Launch(ctx context.Context, profile *model.Profile) (model.Process, string, error) {
	if profile.Config == "" {
		return nil, "", ErrNoConfig
	}
	binary, err := l.lookupBinary()
	if err != nil {
		return nil, "", err
	}

	address := profile.Management
	if address == "" {
		port, err := FreePort()
		if err != nil {
			return nil, "", err
		}
		address = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	}

	var pwFile string
	if profile.ManagementPassword != "" {
		if pwFile, err = writePasswordFile(profile.ManagementPassword); err != nil {
			return nil, "", err
		}
	}

	signal, err := newExitSignal()
	if err != nil {
		removeFile(pwFile)
		return nil, "", err
	}

	args, err := Args(profile.Config, address, pwFile)
	if err != nil {
		signal.close()
		removeFile(pwFile)
		return nil, "", err
	}
	args = append(args, signal.args()...)

	cmd := exec.Command(binary, args...)
	cmd.Dir = filepath.Dir(profile.Config)
	cmd.Stdout = &lineLogger{logger: l.logger, prefix: profile.Name}
	cmd.Stderr = cmd.Stdout
	hideWindow(cmd)

	l.logger.Infof("process: starting %s", cmd.String())
	if err := cmd.Start(); err != nil {
		signal.close()
		removeFile(pwFile)
		return nil, "", fmt.Errorf("process: cannot start openvpn: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		done:   make(chan struct{}),
		logger: l.logger,
		signal: signal,
	}
	go p.wait(pwFile)
	return p, address, nil
}

// lookupBinary returns the configured binary or searches PATH.
func (l *Launcher) lookupBinary() (string, error) {
	if l.binary != "" {
		return l.binary, nil
	}
	path, err := exec.LookPath(defaultBinary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, err.Error())
	}
	return path, nil
}

// Args returns the openvpn command line for config with the management
// interface listening at address, optionally protected by pwFile.
func Args(config, address, pwFile string) ([]string, error) {
	network, target, err := networkio.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	args := []string{"--config", filepath.Base(config), "--management"}
	switch network {
	case "tcp":
		host, port, _ := net.SplitHostPort(target)
		args = append(args, host, port)
	default:
		args = append(args, target, "unix")
	}
	if pwFile != "" {
		args = append(args, pwFile)
	}
	return append(args,
		"--management-query-passwords",
		"--management-hold",
		"--auth-retry", "interact",
		"--management-forget-disconnect",
	), nil
}

// FreePort returns a local TCP port nobody is listening on.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("process: cannot find a free port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// writePasswordFile saves the management password where only we can read it.
func writePasswordFile(password string) (string, error) {
	fp, err := os.CreateTemp("", "ovpngui-mgmt-*")
	if err != nil {
		return "", fmt.Errorf("process: cannot create password file: %w", err)
	}
	defer fp.Close()
	if _, err := fp.WriteString(password + "\n"); err != nil {
		removeFile(fp.Name())
		return "", fmt.Errorf("process: cannot write password file: %w", err)
	}
	return fp.Name(), nil
}

func removeFile(path string) {
	if path != "" {
		os.Remove(path)
	}
}

// Process is a running openvpn daemon.
type Process struct {
	cmd    *exec.Cmd
	done   chan struct{}
	logger model.Logger
	signal *exitSignal

	// err is the exit error, valid once done is closed.
	err error

	mu      sync.Mutex
	stopped bool
}

var _ model.Process = &Process{}

func (p *Process) wait(pwFile string) {
	err := p.cmd.Wait()
	removeFile(pwFile)
	p.signal.close()
	p.err = err
	if err != nil {
		p.logger.Infof("process: openvpn %d exited: %s", p.cmd.Process.Pid, err.Error())
	} else {
		p.logger.Infof("process: openvpn %d exited", p.cmd.Process.Pid)
	}
	close(p.done)
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Stop asks the daemon to exit gracefully. Calling Stop more than once or
// after the daemon exited is a no-op.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.exited() {
		return nil
	}
	p.stopped = true
	return p.signal.raise(p.cmd.Process)
}

// Kill terminates the daemon.
func (p *Process) Kill() error {
	if p.exited() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Done is closed when the daemon has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns how the daemon exited. It is only valid once Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// lineLogger logs what the daemon prints, one line at a time.
type lineLogger struct {
	mu     sync.Mutex
	buf    []byte
	logger model.Logger
	prefix string
}

func (w *lineLogger) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, data...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:idx], "\r")
		w.logger.Debugf("process: %s: %s", w.prefix, line)
		w.buf = w.buf[idx+1:]
	}
	return len(data), nil
}
