// Package connection implements the state machine supervising one openvpn
// daemon through its management interface.
//
// Each [Connection] runs a single event loop ([Connection.Run]) owning all
// the connection state: the command queue, the dispatcher, the counters and
// the pending dynamic challenge. Other goroutines only talk to the loop
// through channels.
package connection

import (
	"context"
	"errors"
	"net"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ovpngui/ovpngui/internal/echo"
	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/networkio"
	"github.com/ovpngui/ovpngui/internal/optional"
)

var (
	// ErrBusy is returned when connecting a connection that is not idle.
	ErrBusy = errors.New("connection: busy")

	// ErrClosed is returned when the event loop is not running anymore.
	ErrClosed = errors.New("connection: closed")

	// ErrNoLauncher is returned when connecting a profile that needs a
	// daemon without a [Launcher].
	ErrNoLauncher = errors.New("connection: no launcher")
)

const (
	// statusLogSize bounds the number of >LOG: lines we keep.
	statusLogSize = 256

	// dialRetryInterval is the delay between attempts to reach the
	// management interface of a starting daemon.
	dialRetryInterval = 500 * time.Millisecond
)

// request is a function to run on the event loop.
type request struct {
	fx func()

	// interrupt marks requests that cancel a pending prompt.
	interrupt bool
}

// waiter is blocked in [Connection.Wait].
type waiter struct {
	states []model.ConnectionState
	ch     chan model.ConnectionState
}

// Connection supervises one openvpn daemon. The zero value is invalid;
// use [New].
type Connection struct {
	// immutable
	profile  *model.Profile
	config   *model.Config
	logger   model.Logger
	launcher Launcher
	dialer   Dialer
	prompter Prompter
	notifier Notifier
	scripts  ScriptRunner
	store    Store
	requests chan *request
	closed   chan any

	// ctx is the context of Run.
	ctx context.Context

	// the following fields are owned by the event loop

	state          model.ConnectionState
	detail         string
	attempt        string
	failedAuth     int
	failedPsw      int
	ipv4           string
	ipv6           string
	bytesIn        uint64
	bytesOut       uint64
	connectedSince time.Time
	connectHookRan bool
	savePasswords  bool

	// dynamicCR is the dynamic challenge to answer on the next Auth request.
	dynamicCR optional.Value[string]

	env         map[string]string
	echoBuilder echo.Builder
	echoHistory *echo.History
	statusLog   []string
	waiters     []*waiter
	deferred    []func()

	session    *session
	linesUp    <-chan string
	mgmtAddr   string
	dialDone   chan dialResult
	dialCancel context.CancelFunc
	process    model.Process
	procDone   <-chan struct{}
	watchdog   *time.Timer
	watchdogC  <-chan time.Time
}

// Option is an option you can pass to [New].
type Option func(c *Connection)

// WithLauncher configures how we start the daemon.
func WithLauncher(launcher Launcher) Option {
	return func(c *Connection) {
		c.launcher = launcher
	}
}

// WithDialer configures how we reach the management interface.
func WithDialer(dialer Dialer) Option {
	return func(c *Connection) {
		c.dialer = dialer
	}
}

// WithPrompter configures how we ask for credentials.
func WithPrompter(prompter Prompter) Option {
	return func(c *Connection) {
		c.prompter = prompter
	}
}

// WithNotifier configures how we show notices and messages.
func WithNotifier(notifier Notifier) Option {
	return func(c *Connection) {
		c.notifier = notifier
	}
}

// WithScripts configures how we run the connect and disconnect scripts.
func WithScripts(scripts ScriptRunner) Option {
	return func(c *Connection) {
		c.scripts = scripts
	}
}

// WithStore configures where we save credentials and echo history.
func WithStore(store Store) Option {
	return func(c *Connection) {
		c.store = store
	}
}

// New creates a disconnected [Connection] for the given profile.
func New(profile *model.Profile, config *model.Config, options ...Option) *Connection {
	logger := config.Logger()
	c := &Connection{
		profile:  profile,
		config:   config,
		logger:   logger,
		dialer:   networkio.NewDialer(logger, &net.Dialer{}),
		prompter: cancelPrompter{},
		notifier: &logNotifier{logger},
		scripts:  nullScripts{},
		store:    nullStore{},
		requests: make(chan *request),
		closed:   make(chan any),
		ctx:      context.Background(),
		state:    model.StateDisconnected,
		env:      make(map[string]string),
	}
	for _, opt := range options {
		opt(c)
	}
	c.echoHistory = echo.NewHistory(c.store.EchoHistory(profile.Name))
	return c
}

// Name returns the profile name.
func (c *Connection) Name() string {
	return c.profile.Name
}

// Profile returns the profile.
func (c *Connection) Profile() *model.Profile {
	return c.profile
}

// Run runs the event loop until ctx is done. On return the daemon we
// launched is killed. Run must be called once.
func (c *Connection) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.closed)
	defer c.cleanup()

	c.logger.Debugf("%s: event loop started", c.profile.Name)

	for {
		select {
		case req := <-c.requests:
			req.fx()

		case line, ok := <-c.linesUp:
			if !ok {
				c.linesUp = nil
				c.onTransportLost()
				break
			}
			c.handleLine(line)

		case res := <-c.dialDone:
			c.dialDone = nil
			c.onDialed(res)

		case <-c.procDone:
			c.procDone = nil
			c.onProcessExit()

		case <-c.watchdogC:
			c.watchdogC = nil
			c.onWatchdog()

		case <-ctx.Done():
			c.logger.Debugf("%s: event loop done", c.profile.Name)
			return nil
		}
		c.runDeferred()
	}
}

// runDeferred runs the requests that arrived while a prompt was pending.
func (c *Connection) runDeferred() {
	for len(c.deferred) > 0 {
		fx := c.deferred[0]
		c.deferred = c.deferred[1:]
		fx()
	}
}

// do runs fx on the event loop and waits for it to complete.
func (c *Connection) do(ctx context.Context, interrupt bool, fx func()) error {
	done := make(chan any)
	req := &request{
		fx: func() {
			fx()
			close(done)
		},
		interrupt: interrupt,
	}
	select {
	case c.requests <- req:
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect starts a connection attempt. It fails with [ErrBusy] unless the
// connection is disconnected or suspended.
func (c *Connection) Connect(ctx context.Context) error {
	var err error
	if e := c.do(ctx, false, func() { err = c.connect() }); e != nil {
		return e
	}
	return err
}

// Disconnect asks the daemon to exit. It does not wait for the daemon to
// exit; use [Connection.Wait] for that.
func (c *Connection) Disconnect(ctx context.Context) error {
	return c.do(ctx, true, c.disconnect)
}

// Restart asks the daemon to reconnect.
func (c *Connection) Restart(ctx context.Context) error {
	return c.do(ctx, true, c.restart)
}

// Suspend stops the daemon because the system is going to sleep.
func (c *Connection) Suspend(ctx context.Context) error {
	return c.do(ctx, true, c.suspend)
}

// Resume reconnects a suspended connection or aborts a suspend in progress.
func (c *Connection) Resume(ctx context.Context) error {
	return c.do(ctx, false, c.resume)
}

// Status returns a snapshot of the connection.
func (c *Connection) Status(ctx context.Context) (model.Status, error) {
	var st model.Status
	err := c.do(ctx, false, func() { st = c.status() })
	return st, err
}

// StatusLog returns the most recent >LOG: lines.
func (c *Connection) StatusLog(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, false, func() { out = slices.Clone(c.statusLog) })
	return out, err
}

// Wait blocks until the connection enters one of the given states and
// returns that state.
func (c *Connection) Wait(ctx context.Context, states ...model.ConnectionState) (model.ConnectionState, error) {
	w := &waiter{states: states, ch: make(chan model.ConnectionState, 1)}
	err := c.do(ctx, false, func() {
		if slices.Contains(states, c.state) {
			w.ch <- c.state
			return
		}
		c.waiters = append(c.waiters, w)
	})
	if err != nil {
		return model.StateDisconnected, err
	}
	select {
	case st := <-w.ch:
		return st, nil
	case <-c.closed:
		return model.StateDisconnected, ErrClosed
	case <-ctx.Done():
		return model.StateDisconnected, ctx.Err()
	}
}

func (c *Connection) status() model.Status {
	return model.Status{
		Name:               c.profile.Name,
		State:              c.state,
		Detail:             c.detail,
		Attempt:            c.attempt,
		IPv4:               c.ipv4,
		IPv6:               c.ipv6,
		BytesIn:            c.bytesIn,
		BytesOut:           c.bytesOut,
		ConnectedSince:     c.connectedSince,
		FailedAuthAttempts: c.failedAuth,
		FailedPswAttempts:  c.failedPsw,
	}
}

// setState moves to a new state and wakes up the matching waiters.
func (c *Connection) setState(state model.ConnectionState) {
	if c.state == state {
		return
	}
	c.logger.Infof("%s: [@] %s -> %s", c.profile.Name, c.state, state)
	c.state = state
	waiters := c.waiters[:0]
	for _, w := range c.waiters {
		if slices.Contains(w.states, state) {
			w.ch <- state
			continue
		}
		waiters = append(waiters, w)
	}
	c.waiters = waiters
}

// connect starts a connection attempt.
func (c *Connection) connect() error {
	var next model.ConnectionState
	switch c.state {
	case model.StateDisconnected:
		next = model.StateConnecting
	case model.StateSuspended:
		next = model.StateResuming
	default:
		return ErrBusy
	}
	if c.profile.Launched() && c.launcher == nil {
		return ErrNoLauncher
	}

	c.attempt = uuid.NewString()
	c.resetAttempt()
	c.setState(next)
	c.logger.Infof("%s: starting attempt %s", c.profile.Name, c.attempt)

	address := c.profile.Management
	if c.profile.Launched() {
		proc, addr, err := c.launcher.Launch(c.ctx, c.profile)
		if err != nil {
			c.logger.Warnf("%s: cannot launch openvpn: %s", c.profile.Name, err.Error())
			c.onStop()
			return err
		}
		c.process = proc
		c.procDone = proc.Done()
		address = addr
	}
	c.mgmtAddr = address
	c.startDial()
	return nil
}

// resetAttempt clears what a new attempt must not inherit.
func (c *Connection) resetAttempt() {
	c.failedAuth = 0
	c.failedPsw = 0
	c.ipv4 = ""
	c.ipv6 = ""
	c.bytesIn = 0
	c.bytesOut = 0
	c.detail = ""
	c.connectedSince = time.Time{}
	c.dynamicCR = optional.None[string]()
	c.savePasswords = c.profile.SavePasswords
	c.env = make(map[string]string)
	c.echoBuilder.Reset()
}

// scriptEnv returns the environment of the connect and disconnect scripts.
func (c *Connection) scriptEnv() map[string]string {
	env := make(map[string]string, len(c.env)+3)
	for k, v := range c.env {
		env[k] = v
	}
	env["OVPN_PROFILE"] = c.profile.Name
	env["OVPN_IPV4"] = c.ipv4
	env["OVPN_IPV6"] = c.ipv6
	return env
}

// runConnectHook runs the connect script of this attempt.
func (c *Connection) runConnectHook() {
	c.connectHookRan = true
	c.scripts.RunConnect(c.ctx, c.profile, c.scriptEnv())
}

// runDisconnectHook runs the disconnect script once the connect one ran.
func (c *Connection) runDisconnectHook() {
	if !c.connectHookRan {
		return
	}
	c.connectHookRan = false
	c.scripts.RunDisconnect(c.ctx, c.profile, c.scriptEnv())
}
