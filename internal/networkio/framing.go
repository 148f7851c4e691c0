package networkio

import (
	"bytes"
	"strings"
)

const (
	// lineDelimiter terminates protocol lines.
	lineDelimiter = '\n'

	// passwordDelimiter terminates the management password prompt.
	passwordDelimiter = ':'

	// maxBufferedSize bounds the bytes waiting for a delimiter.
	maxBufferedSize = 64 << 10
)

// Framer turns the byte stream coming from the management interface into
// protocol lines. The zero value is ready to use and splits on newlines.
//
// Partial lines are retained across calls to [Framer.Feed]. A line is only
// removed from the buffer once its delimiter has been seen. When more than
// 64 KiB are waiting for a delimiter they are discarded.
type Framer struct {
	// buf holds bytes not yet forming a complete line.
	buf []byte

	// dropped counts the bytes discarded since the last call to takeDropped.
	dropped int

	// expectPassword switches the delimiter for the next token.
	expectPassword bool
}

// NewFramer returns a [Framer] splitting on newlines.
func NewFramer() *Framer {
	return &Framer{}
}

// ExpectPassword makes the next token end at ':' rather than at '\n'. We
// use this when we know a management password, because the daemon then
// greets us with "ENTER PASSWORD:" and no newline. The framer reverts to
// newline framing once that token has been yielded.
func (f *Framer) ExpectPassword() {
	f.expectPassword = true
}

// Feed appends data and returns the complete lines it could extract, with
// the delimiter and any trailing '\r' removed. Feeding zero bytes is valid
// and only returns lines that may still be buffered.
func (f *Framer) Feed(data []byte) []string {
	f.buf = append(f.buf, data...)
	var lines []string
	for {
		delim := byte(lineDelimiter)
		if f.expectPassword {
			delim = passwordDelimiter
		}

		// peek before consuming: a line without delimiter stays buffered
		idx := bytes.IndexByte(f.buf, delim)
		if idx < 0 {
			break
		}
		line := string(f.buf[:idx])
		f.buf = f.buf[idx+1:]

		if f.expectPassword {
			f.expectPassword = false
			line = strings.TrimSpace(line)
		} else {
			line = strings.TrimSuffix(line, "\r")
		}
		lines = append(lines, line)
	}
	if len(f.buf) > maxBufferedSize {
		f.dropped += len(f.buf)
		f.buf = nil
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// buffered returns the number of bytes waiting for a delimiter.
func (f *Framer) buffered() int {
	return len(f.buf)
}

// takeDropped returns and clears the count of discarded bytes.
func (f *Framer) takeDropped() int {
	n := f.dropped
	f.dropped = 0
	return n
}
