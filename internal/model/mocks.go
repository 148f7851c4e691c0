package model

import (
	"fmt"
	"strings"
	"sync"
)

// TestLogger is a [Logger] that records every emitted line. It is safe
// to share among goroutines.
type TestLogger struct {
	mu    sync.Mutex
	lines []string
}

var _ Logger = &TestLogger{}

// NewTestLogger returns an empty [TestLogger].
func NewTestLogger() *TestLogger {
	return &TestLogger{
		lines: make([]string, 0),
	}
}

func (tl *TestLogger) append(msg string) {
	tl.mu.Lock()
	tl.lines = append(tl.lines, msg)
	tl.mu.Unlock()
}

func (tl *TestLogger) Debug(msg string) {
	tl.append(msg)
}
func (tl *TestLogger) Debugf(format string, v ...any) {
	tl.append(fmt.Sprintf(format, v...))
}
func (tl *TestLogger) Info(msg string) {
	tl.append(msg)
}
func (tl *TestLogger) Infof(format string, v ...any) {
	tl.append(fmt.Sprintf(format, v...))
}
func (tl *TestLogger) Warn(msg string) {
	tl.append(msg)
}
func (tl *TestLogger) Warnf(format string, v ...any) {
	tl.append(fmt.Sprintf(format, v...))
}

// Lines returns a copy of the recorded lines.
func (tl *TestLogger) Lines() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string{}, tl.lines...)
}

// Contains returns whether any recorded line contains substr.
func (tl *TestLogger) Contains(substr string) bool {
	for _, line := range tl.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
