// Package echo parses the messages a server pushes through >ECHO: and
// deduplicates them before they reach the user.
package echo

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMalformed indicates an >ECHO: payload we cannot parse.
	ErrMalformed = errors.New("echo: malformed payload")

	// ErrUnknownCommand indicates an echo command we do not support.
	ErrUnknownCommand = errors.New("echo: unknown command")
)

// Kind is the kind of an echo command.
type Kind int

const (
	// KindMsg appends a line to the pending message.
	KindMsg = Kind(iota)

	// KindMsgN appends text without a line break.
	KindMsgN

	// KindMsgWindow shows the pending message in a window.
	KindMsgWindow

	// KindMsgNotify shows the pending message as a notification.
	KindMsgNotify

	// KindSetenv sets a variable for the connect and disconnect scripts.
	KindSetenv

	// KindForgetPasswords drops the saved passwords of the profile.
	KindForgetPasswords

	// KindSavePasswords enables saving passwords for the profile.
	KindSavePasswords
)

var kinds = map[string]Kind{
	"msg":              KindMsg,
	"msg-n":            KindMsgN,
	"msg-window":       KindMsgWindow,
	"msg-notify":       KindMsgNotify,
	"setenv":           KindSetenv,
	"forget-passwords": KindForgetPasswords,
	"save-passwords":   KindSavePasswords,
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	for name, kind := range kinds {
		if kind == k {
			return name
		}
	}
	return "invalid"
}

// Event is a parsed >ECHO: payload.
type Event struct {
	// Timestamp is when the daemon received the command.
	Timestamp time.Time

	// Kind is the command kind.
	Kind Kind

	// Text is the decoded argument of msg, msg-n, msg-window and msg-notify.
	Text string

	// Name and Value are the arguments of setenv.
	Name, Value string
}

// Parse parses "<timestamp>,<command> [args]".
func Parse(payload string) (*Event, error) {
	ts, command, found := strings.Cut(payload, ",")
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, payload)
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, ts)
	}
	name, args, _ := strings.Cut(command, " ")
	kind, found := kinds[name]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	ev := &Event{Timestamp: time.Unix(secs, 0), Kind: kind}
	switch kind {
	case KindMsg, KindMsgN, KindMsgWindow, KindMsgNotify:
		text, err := url.PathUnescape(args)
		if err != nil {
			// keep the raw text rather than losing the message
			text = args
		}
		ev.Text = text
	case KindSetenv:
		ev.Name, ev.Value, _ = strings.Cut(strings.TrimSpace(args), " ")
		if ev.Name == "" {
			return nil, fmt.Errorf("%w: setenv without a name", ErrMalformed)
		}
	}
	return ev, nil
}

// Message is a complete message to show to the user.
type Message struct {
	// Title is the message title.
	Title string

	// Text is the message body.
	Text string

	// Notify is true for msg-notify and false for msg-window.
	Notify bool
}

// Builder accumulates msg and msg-n text until a msg-window or msg-notify
// command flushes it. The zero value is ready to use.
type Builder struct {
	sb strings.Builder
}

// Add processes a message event. It returns a [Message] when ev is a
// msg-window or msg-notify command and nil otherwise.
func (b *Builder) Add(ev *Event) *Message {
	switch ev.Kind {
	case KindMsg:
		b.sb.WriteString(ev.Text)
		b.sb.WriteString("\n")
	case KindMsgN:
		b.sb.WriteString(ev.Text)
	case KindMsgWindow, KindMsgNotify:
		msg := &Message{
			Title:  ev.Text,
			Text:   strings.TrimSuffix(b.sb.String(), "\n"),
			Notify: ev.Kind == KindMsgNotify,
		}
		b.sb.Reset()
		return msg
	}
	return nil
}

// Reset drops the pending text.
func (b *Builder) Reset() {
	b.sb.Reset()
}
