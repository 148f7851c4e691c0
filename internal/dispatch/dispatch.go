// Package dispatch routes management interface lines either to the command
// queue (replies) or to real-time notification handlers (">TYPE:payload").
package dispatch

import (
	"strings"

	"github.com/ovpngui/ovpngui/internal/cmdqueue"
	"github.com/ovpngui/ovpngui/internal/model"
)

// passwordPrompt is what the daemon sends before a management password.
const passwordPrompt = "ENTER PASSWORD"

// Handler handles a real-time notification.
type Handler interface {
	HandleNotification(payload string)
}

// HandlerFunc adapts a func to a [Handler].
type HandlerFunc func(payload string)

// HandleNotification implements Handler.
func (fx HandlerFunc) HandleNotification(payload string) {
	fx(payload)
}

// route maps a prefix to a notification type.
type route struct {
	prefix string
	nt     model.NotificationType

	// pseudoReply marks notifications that are really the reply to the
	// command in flight.
	pseudoReply bool
}

// routes is matched in order against the line without the leading '>'.
var routes = []route{
	{prefix: "LOG:", nt: model.NotificationLog},
	{prefix: "STATE:", nt: model.NotificationState},
	{prefix: "HOLD:", nt: model.NotificationHold},
	{prefix: "PASSWORD:", nt: model.NotificationPassword},
	{prefix: "INFOMSG:", nt: model.NotificationInfoMsg},
	{prefix: "INFO:", nt: model.NotificationReady},
	{prefix: "ECHO:", nt: model.NotificationEcho},
	{prefix: "BYTECOUNT:", nt: model.NotificationByteCount},
	{prefix: "PROXY:", nt: model.NotificationProxy},
	{prefix: "NEED-OK:", nt: model.NotificationNeedOK},
	{prefix: "NEED-STR:", nt: model.NotificationNeedStr},
	{prefix: "PKCS11ID-COUNT:", nt: model.NotificationPkcs11IDCount, pseudoReply: true},
	{prefix: "PKCS11ID-ENTRY:", nt: model.NotificationPkcs11IDEntry, pseudoReply: true},
}

// match finds the route of a notification line and returns its payload. It
// returns false for lines not starting with '>' and for unknown types.
func match(line string) (route, string, bool) {
	if !strings.HasPrefix(line, ">") {
		return route{}, "", false
	}
	body := line[1:]
	for _, r := range routes {
		if strings.HasPrefix(body, r.prefix) {
			return r, body[len(r.prefix):], true
		}
	}
	return route{}, "", false
}

// Dispatcher routes the lines of a single connection. The zero value is
// invalid; use [New]. Like the queue it wraps, it is owned by the
// connection event loop.
type Dispatcher struct {
	handlers map[model.NotificationType]Handler
	logger   model.Logger
	queue    *cmdqueue.Queue

	// onPassword is invoked once when the management password prompt shows up.
	onPassword func()
}

// New creates a [Dispatcher] delivering replies to queue.
func New(queue *cmdqueue.Queue, logger model.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[model.NotificationType]Handler),
		logger:   logger,
		queue:    queue,
	}
}

// Register sets the handler for a notification type, replacing any previous one.
func (d *Dispatcher) Register(nt model.NotificationType, h Handler) {
	d.handlers[nt] = h
}

// ExpectPassword arms fx to run when the daemon asks for the management
// password. The callback runs at most once.
func (d *Dispatcher) ExpectPassword(fx func()) {
	d.onPassword = fx
}

// Dispatch routes a complete line. Unknown notifications and replies nobody
// is waiting for are logged and dropped.
func (d *Dispatcher) Dispatch(line string) {
	if d.onPassword != nil && strings.HasPrefix(line, passwordPrompt) {
		fx := d.onPassword
		d.onPassword = nil
		fx()
		return
	}

	if !strings.HasPrefix(line, ">") {
		if !d.queue.OnReply(line) {
			d.logger.Debugf("dispatch: dropping unsolicited reply: %s", line)
		}
		return
	}

	r, payload, ok := match(line)
	if !ok {
		d.logger.Infof("dispatch: unknown notification: %s", line)
		return
	}
	if r.pseudoReply {
		if !d.queue.OnPseudoReply(payload) {
			d.logger.Debugf("dispatch: dropping unsolicited %s", r.nt)
		}
		return
	}
	h, found := d.handlers[r.nt]
	if !found {
		d.logger.Debugf("dispatch: no handler for %s", r.nt)
		return
	}
	h.HandleNotification(payload)
}
