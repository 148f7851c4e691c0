// Package cmdqueue serializes the commands sent to a management interface.
//
// At most one command is in flight: the next command is written only once
// the current one has seen its terminal reply (SUCCESS:, ERROR: or END).
package cmdqueue

import (
	"errors"
	"strings"

	"github.com/ovpngui/ovpngui/internal/model"
)

// Kind tells how many terminal replies a command expects.
type Kind int

const (
	// Regular commands are removed on their first terminal reply.
	Regular = Kind(iota)

	// Combined commands ("log all on", "echo all on") answer with a history
	// dump and a status line, each ending in a terminal reply. They are
	// demoted to [Regular] on the first terminal reply and removed on the second.
	Combined
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Combined:
		return "combined"
	default:
		return "invalid"
	}
}

// ReplyKind classifies a reply line.
type ReplyKind int

const (
	// ReplySuccess is a "SUCCESS:" line.
	ReplySuccess = ReplyKind(iota)

	// ReplyError is an "ERROR:" line.
	ReplyError

	// ReplyLine is any other line belonging to a multi-line reply.
	ReplyLine
)

// Reply is what a [Handler] receives.
type Reply struct {
	// Kind is the kind of reply.
	Kind ReplyKind

	// Text is the payload after "SUCCESS:"/"ERROR:" or the whole line.
	Text string
}

// Handler receives the replies to a command.
type Handler func(reply Reply)

// ErrEmptyCommand is returned when enqueueing an empty command.
var ErrEmptyCommand = errors.New("cmdqueue: empty command")

// command is a queued command.
type command struct {
	text    string
	handler Handler
	kind    Kind
}

// Queue is the FIFO of commands of a single connection. The zero value is
// invalid; use [New]. A Queue is owned by the connection event loop and is
// not safe for concurrent use.
type Queue struct {
	commands []*command
	logger   model.Logger
	send     func(string) error
}

// New returns an empty [Queue] writing commands with send.
func New(send func(string) error, logger model.Logger) *Queue {
	return &Queue{
		commands: []*command{},
		logger:   logger,
		send:     send,
	}
}

// Enqueue appends a command. When the queue was empty the command is sent
// immediately, otherwise it waits for the commands before it to complete.
// The handler may be nil.
func (q *Queue) Enqueue(text string, handler Handler, kind Kind) error {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return ErrEmptyCommand
	}
	q.commands = append(q.commands, &command{
		text:    text + "\n",
		handler: handler,
		kind:    kind,
	})
	if len(q.commands) == 1 {
		return q.transmitHead()
	}
	return nil
}

// OnReply feeds a reply line to the head command. It returns false when no
// command is waiting for a reply.
func (q *Queue) OnReply(line string) bool {
	if len(q.commands) == 0 {
		return false
	}
	head := q.commands[0]
	switch {
	case strings.HasPrefix(line, "SUCCESS:"):
		q.deliver(head, Reply{Kind: ReplySuccess, Text: payload(line, "SUCCESS:")})
		q.unqueue(head)

	case strings.HasPrefix(line, "ERROR:"):
		q.deliver(head, Reply{Kind: ReplyError, Text: payload(line, "ERROR:")})
		q.unqueue(head)

	case line == "END":
		q.unqueue(head)

	default:
		q.deliver(head, Reply{Kind: ReplyLine, Text: line})
	}
	return true
}

// OnPseudoReply handles replies that the daemon formats as notifications
// (e.g. ">PKCS11ID-COUNT:"): they are the single terminal reply of the
// head command. It returns false when no command is waiting.
func (q *Queue) OnPseudoReply(text string) bool {
	if len(q.commands) == 0 {
		return false
	}
	head := q.commands[0]
	q.deliver(head, Reply{Kind: ReplySuccess, Text: text})
	q.unqueue(head)
	return true
}

// Len returns the number of queued commands, including the one in flight.
func (q *Queue) Len() int {
	return len(q.commands)
}

// Head returns the command in flight.
func (q *Queue) Head() (string, bool) {
	if len(q.commands) == 0 {
		return "", false
	}
	return strings.TrimSuffix(q.commands[0].text, "\n"), true
}

// Reset drops all the queued commands without calling their handlers.
func (q *Queue) Reset() {
	q.commands = []*command{}
}

func (q *Queue) deliver(cmd *command, reply Reply) {
	if cmd.handler != nil {
		cmd.handler(reply)
	}
}

// unqueue completes a terminal reply of the head command.
func (q *Queue) unqueue(head *command) {
	if len(q.commands) == 0 || q.commands[0] != head {
		// the handler has reset the queue
		return
	}
	if head.kind == Combined {
		head.kind = Regular
		return
	}
	q.commands[0] = nil
	q.commands = q.commands[1:]
	if len(q.commands) > 0 {
		if err := q.transmitHead(); err != nil {
			q.logger.Warnf("cmdqueue: cannot send %s: %s", verb(q.commands[0].text), err.Error())
		}
	}
}

func (q *Queue) transmitHead() error {
	return q.send(q.commands[0].text)
}

// payload strips the prefix and the single space that usually follows it.
func payload(line, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(line, prefix), " ")
}

// verb returns the first word of a command, which is safe to log.
func verb(text string) string {
	if idx := strings.IndexAny(text, " \n"); idx >= 0 {
		return text[:idx]
	}
	return text
}
