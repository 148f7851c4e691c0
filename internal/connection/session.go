package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ovpngui/ovpngui/internal/cmdqueue"
	"github.com/ovpngui/ovpngui/internal/dispatch"
	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/networkio"
	"github.com/ovpngui/ovpngui/internal/workers"
)

// ErrNotConnected is returned when writing a command without a transport.
var ErrNotConnected = errors.New("connection: management transport is gone")

// commandsBufferSize is the capacity of the channels between the event loop
// and the network workers.
const commandsBufferSize = 64

// session is the state bound to one management transport.
type session struct {
	// manager controls the network workers; nil when not using a real transport.
	manager *workers.Manager

	queue      *cmdqueue.Queue
	dispatcher *dispatch.Dispatcher
}

// close stops the network workers and waits for them.
func (s *session) close() {
	if s.manager == nil {
		return
	}
	s.manager.StartShutdown()
	s.manager.WaitWorkersShutdown()
}

// dialResult is the outcome of reaching the management interface.
type dialResult struct {
	conn net.Conn
	err  error
}

// startDial tries to reach the management interface in the background until
// the management timeout expires.
func (c *Connection) startDial() {
	ctx, cancel := context.WithTimeout(c.ctx, c.config.ManagementTimeout())
	results := make(chan dialResult, 1)
	c.dialCancel = cancel
	c.dialDone = results

	go func(address string) {
		for {
			conn, err := c.dialer.DialContext(ctx, address)
			if err == nil {
				results <- dialResult{conn: conn}
				return
			}
			c.logger.Debugf("%s: dial %s: %s", c.profile.Name, address, err.Error())
			select {
			case <-ctx.Done():
				results <- dialResult{err: err}
				return
			case <-time.After(dialRetryInterval):
			}
		}
	}(c.mgmtAddr)
}

// stopDial abandons a pending dial, closing a late connection.
func (c *Connection) stopDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.dialDone != nil {
		go func(results <-chan dialResult) {
			if res := <-results; res.conn != nil {
				res.conn.Close()
			}
		}(c.dialDone)
		c.dialDone = nil
	}
}

// onDialed runs when the dial completes.
func (c *Connection) onDialed(res dialResult) {
	c.dialCancel()
	c.dialCancel = nil
	if res.err != nil {
		c.logger.Warnf("%s: cannot reach the management interface at %s: %s",
			c.profile.Name, c.mgmtAddr, res.err.Error())
		c.setState(model.StateTimedOut)
		c.terminate()
		return
	}
	c.logger.Infof("%s: management interface at %s", c.profile.Name, c.mgmtAddr)
	c.openSession(res.conn)
}

// openSession starts the network workers over conn.
//
// This function TAKES OWNERSHIP of the conn.
func (c *Connection) openSession(conn net.Conn) {
	manager := workers.NewManager(c.logger)
	commandsDown := make(chan string, commandsBufferSize)
	linesUp := make(chan string, commandsBufferSize)

	write := func(text string) error {
		select {
		case commandsDown <- text:
			return nil
		case <-manager.ShouldShutdown():
			return ErrNotConnected
		}
	}

	s := c.newSession(func(text string) error {
		c.logger.Debugf("%s: > %s", c.profile.Name, redact(text))
		return write(text)
	})
	s.manager = manager

	framer := networkio.NewFramer()
	if password := c.profile.ManagementPassword; password != "" {
		framer.ExpectPassword()
		s.dispatcher.ExpectPassword(func() {
			c.logger.Debugf("%s: > [management password]", c.profile.Name)
			if err := write(password + "\n"); err != nil {
				c.logger.Warnf("%s: cannot send the management password: %s", c.profile.Name, err.Error())
			}
		})
	}

	svc := &networkio.Service{
		CommandsDown: commandsDown,
		LinesUp:      linesUp,
		Framer:       framer,
	}
	svc.StartWorkers(c.logger, manager, conn)

	c.session = s
	c.linesUp = linesUp
}

// newSession creates the queue and the dispatcher writing with send.
func (c *Connection) newSession(send func(string) error) *session {
	queue := cmdqueue.New(send, c.logger)
	d := dispatch.New(queue, c.logger)
	d.Register(model.NotificationReady, dispatch.HandlerFunc(c.onReady))
	d.Register(model.NotificationHold, dispatch.HandlerFunc(c.onHold))
	d.Register(model.NotificationState, dispatch.HandlerFunc(c.onState))
	d.Register(model.NotificationLog, dispatch.HandlerFunc(c.onLog))
	d.Register(model.NotificationEcho, dispatch.HandlerFunc(c.onEcho))
	d.Register(model.NotificationByteCount, dispatch.HandlerFunc(c.onByteCount))
	d.Register(model.NotificationPassword, dispatch.HandlerFunc(c.onPassword))
	d.Register(model.NotificationProxy, dispatch.HandlerFunc(c.onProxy))
	d.Register(model.NotificationNeedOK, dispatch.HandlerFunc(c.onNeedOK))
	d.Register(model.NotificationNeedStr, dispatch.HandlerFunc(c.onNeedStr))
	d.Register(model.NotificationInfoMsg, dispatch.HandlerFunc(c.onInfoMsg))
	return &session{queue: queue, dispatcher: d}
}

// closeSession tears down the management transport.
func (c *Connection) closeSession() {
	if c.session == nil {
		return
	}
	c.session.queue.Reset()
	c.session.close()
	c.session = nil
	c.linesUp = nil
}

// handleLine processes a line from the management interface.
func (c *Connection) handleLine(line string) {
	if c.session == nil {
		return
	}
	c.logger.Debugf("%s: < %s", c.profile.Name, line)
	c.session.dispatcher.Dispatch(line)
}

// enqueue queues a command if the transport is up.
func (c *Connection) enqueue(text string, handler cmdqueue.Handler, kind cmdqueue.Kind) {
	if c.session == nil {
		c.logger.Debugf("%s: not connected, dropping %s", c.profile.Name, redact(text))
		return
	}
	if err := c.session.queue.Enqueue(text, handler, kind); err != nil {
		c.logger.Warnf("%s: cannot send %s: %s", c.profile.Name, redact(text), err.Error())
	}
}

// onTransportLost runs when the management transport is closed.
func (c *Connection) onTransportLost() {
	c.logger.Infof("%s: management interface closed", c.profile.Name)
	c.closeSession()
	if c.processAlive() {
		switch c.state {
		case model.StateDisconnecting, model.StateSuspending, model.StateTimedOut:
			// already waiting for the exit
		default:
			c.terminate()
		}
		return
	}
	c.onStop()
}

// redactedVerbs are the commands whose arguments are secrets.
var redactedVerbs = []string{"username", "password", "needstr", "cr-response"}

// redact returns a version of a command that is safe to log.
func redact(text string) string {
	text = strings.TrimRight(text, "\n")
	verb, _, found := strings.Cut(text, " ")
	if !found {
		return text
	}
	for _, v := range redactedVerbs {
		if v == verb {
			return fmt.Sprintf("%s [redacted]", verb)
		}
	}
	return text
}
