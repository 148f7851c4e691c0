package connection

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ovpngui/ovpngui/internal/challenge"
	"github.com/ovpngui/ovpngui/internal/cmdqueue"
	"github.com/ovpngui/ovpngui/internal/echo"
	"github.com/ovpngui/ovpngui/internal/model"
)

// ErrBadProxy indicates a proxy setting we cannot use.
var ErrBadProxy = errors.New("connection: bad proxy setting")

// onReady subscribes to the notifications we need. The hold is released
// by onHold once the daemon reports it.
func (c *Connection) onReady(payload string) {
	c.logger.Debugf("%s: %s", c.profile.Name, payload)
	c.enqueue("state on", nil, cmdqueue.Regular)
	c.enqueue("log all on", c.onLogReply, cmdqueue.Combined)
	c.enqueue("echo all on", c.onEchoReply, cmdqueue.Combined)
	c.enqueue("bytecount 5", nil, cmdqueue.Regular)
}

// onHold releases the hold unless we are stopping the daemon.
func (c *Connection) onHold(payload string) {
	switch c.state {
	case model.StateDisconnecting, model.StateSuspending:
		c.logger.Debugf("%s: keeping the hold: %s", c.profile.Name, payload)
		return
	}
	c.enqueue("hold release", nil, cmdqueue.Regular)
}

// onState handles "<ts>,<state>,<reason>,<ipv4>,<remote>,<rport>,<local>,<lport>,<ipv6>".
func (c *Connection) onState(payload string) {
	fields := strings.Split(payload, ",")
	if len(fields) < 3 {
		c.logger.Warnf("%s: malformed state: %s", c.profile.Name, payload)
		return
	}
	name, reason := fields[1], fields[2]
	c.detail = name

	switch name {
	case "CONNECTED":
		c.onConnected(fields)

	case "RECONNECTING":
		c.onReconnecting(reason)

	case "ASSIGN_IP":
		c.ipv4 = stateField(fields, 3)

	default:
		c.logger.Debugf("%s: daemon state %s %s", c.profile.Name, name, reason)
	}
}

func stateField(fields []string, idx int) string {
	if idx < len(fields) {
		return fields[idx]
	}
	return ""
}

// onConnected handles STATE CONNECTED.
func (c *Connection) onConnected(fields []string) {
	prior := c.state
	if !prior.IsConnecting() {
		c.logger.Debugf("%s: ignoring CONNECTED in state %s", c.profile.Name, prior)
		return
	}
	c.ipv4 = stateField(fields, 3)
	c.ipv6 = stateField(fields, 8)
	c.failedAuth = 0
	c.failedPsw = 0
	c.connectedSince = time.Now()
	c.setState(model.StateConnected)

	// a reconnect keeps the hook of the first connect
	if prior == model.StateConnecting || prior == model.StateResuming {
		c.runConnectHook()
	}
	if !c.config.Silent() {
		c.notifier.Notify(c.profile.Name, Notice{
			Kind: NoticeConnected,
			Text: fmt.Sprintf("connected, assigned %s", c.ipv4),
		})
	}
}

// onReconnecting handles STATE RECONNECTING.
func (c *Connection) onReconnecting(reason string) {
	// a failure while a dynamic challenge is pending is part of the round trip
	if c.dynamicCR.IsNone() {
		switch reason {
		case "auth-failure":
			c.failedAuth++
		case "private-key-password-failure":
			c.failedPsw++
		}
	}
	switch c.state {
	case model.StateDisconnecting, model.StateSuspending, model.StateDisconnected, model.StateSuspended:
		return
	}
	c.setState(model.StateReconnecting)
}

// onLog records a "<ts>,<flags>,<message>" log line.
func (c *Connection) onLog(payload string) {
	c.logger.Debugf("%s: log: %s", c.profile.Name, payload)
	c.statusLog = append(c.statusLog, payload)
	if len(c.statusLog) > statusLogSize {
		c.statusLog = c.statusLog[len(c.statusLog)-statusLogSize:]
	}
}

// onLogReply receives the log history streamed by "log all on".
func (c *Connection) onLogReply(reply cmdqueue.Reply) {
	if reply.Kind == cmdqueue.ReplyLine {
		c.onLog(reply.Text)
	}
}

// onByteCount handles "<in>,<out>".
func (c *Connection) onByteCount(payload string) {
	in, out, found := strings.Cut(payload, ",")
	if !found {
		c.logger.Warnf("%s: malformed bytecount: %s", c.profile.Name, payload)
		return
	}
	bytesIn, err1 := strconv.ParseUint(in, 10, 64)
	bytesOut, err2 := strconv.ParseUint(out, 10, 64)
	if err1 != nil || err2 != nil {
		c.logger.Warnf("%s: malformed bytecount: %s", c.profile.Name, payload)
		return
	}
	c.bytesIn, c.bytesOut = bytesIn, bytesOut
}

// onEcho handles a server pushed echo command.
func (c *Connection) onEcho(payload string) {
	ev, err := echo.Parse(payload)
	if err != nil {
		c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
		return
	}
	switch ev.Kind {
	case echo.KindSetenv:
		c.env[ev.Name] = ev.Value

	case echo.KindForgetPasswords:
		c.savePasswords = false
		if err := c.store.ForgetPasswords(c.profile.Name); err != nil {
			c.logger.Warnf("%s: cannot forget passwords: %s", c.profile.Name, err.Error())
		}

	case echo.KindSavePasswords:
		c.savePasswords = true

	default:
		if msg := c.echoBuilder.Add(ev); msg != nil {
			c.showMessage(msg, ev.Timestamp)
		}
	}
}

// onEchoReply receives the echo history streamed by "echo all on".
func (c *Connection) onEchoReply(reply cmdqueue.Reply) {
	if reply.Kind == cmdqueue.ReplyLine {
		c.onEcho(reply.Text)
	}
}

// showMessage shows msg unless it was shown recently.
func (c *Connection) showMessage(msg *echo.Message, ts time.Time) {
	fp := echo.NewFingerprint(msg, ts)
	if c.echoHistory.Muted(fp, c.config.MuteInterval()) {
		c.logger.Debugf("%s: muting repeated message %q", c.profile.Name, msg.Title)
		return
	}
	c.notifier.ShowMessage(c.profile.Name, msg)
	c.echoHistory.Record(fp)
	if interval := c.config.MuteInterval(); interval > 0 {
		c.echoHistory.Prune(ts.Add(-interval))
	}
	if err := c.store.SaveEchoHistory(c.profile.Name, c.echoHistory.Entries()); err != nil {
		c.logger.Warnf("%s: cannot save echo history: %s", c.profile.Name, err.Error())
	}
}

// onProxy answers ">PROXY:<n>,<protocol>,<host>" with the profile setting.
func (c *Connection) onProxy(payload string) {
	cmd, err := ProxyCommand(c.profile.Proxy)
	if err != nil {
		c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
		cmd = "proxy NONE"
	}
	c.enqueue(cmd, nil, cmdqueue.Regular)
}

// ProxyCommand returns the command answering a proxy request given a
// proxy setting: "", "none", "http://host:port" or "socks://host:port".
func ProxyCommand(setting string) (string, error) {
	if setting == "" || strings.EqualFold(setting, "none") {
		return "proxy NONE", nil
	}
	u, err := url.Parse(setting)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadProxy, err.Error())
	}
	var kind string
	switch strings.ToLower(u.Scheme) {
	case "http":
		kind = "HTTP"
	case "socks", "socks5":
		kind = "SOCKS"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrBadProxy, u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return "", fmt.Errorf("%w: %q needs host and port", ErrBadProxy, setting)
	}
	return fmt.Sprintf("proxy %s %s %s", kind, u.Hostname(), u.Port()), nil
}

// onInfoMsg handles web based authentication and CR_TEXT challenges.
func (c *Connection) onInfoMsg(payload string) {
	switch {
	case strings.HasPrefix(payload, "OPEN_URL:"):
		c.notifier.OpenURL(c.profile.Name, strings.TrimPrefix(payload, "OPEN_URL:"))

	case strings.HasPrefix(payload, "WEB_AUTH:"):
		rest := strings.TrimPrefix(payload, "WEB_AUTH:")
		if _, u, found := strings.Cut(rest, ":"); found && strings.Contains(u, "://") {
			rest = u
		}
		c.notifier.OpenURL(c.profile.Name, rest)

	case strings.HasPrefix(payload, "CR_TEXT:"):
		param, err := challenge.ParseCRText(payload)
		if err != nil {
			c.logger.Warnf("%s: %s", c.profile.Name, err.Error())
			return
		}
		resp, err := c.awaitPrompt(&PromptRequest{Kind: PromptCRText, ID: param.ID, Challenge: param})
		if err != nil {
			c.onPromptCancelled(err)
			return
		}
		c.enqueue(challenge.CRResponseCommand(resp.Response), nil, cmdqueue.Regular)

	default:
		c.logger.Debugf("%s: info: %s", c.profile.Name, payload)
	}
}
