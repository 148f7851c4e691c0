package connection

import (
	"time"

	"github.com/ovpngui/ovpngui/internal/cmdqueue"
	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/optional"
)

// disconnect handles a user disconnect.
func (c *Connection) disconnect() {
	switch c.state {
	case model.StateDisconnected, model.StateSuspended, model.StateDisconnecting:
		return
	}
	c.stop()
}

// restart asks the daemon to reconnect with SIGHUP.
func (c *Connection) restart() {
	switch c.state {
	case model.StateConnected, model.StateConnecting, model.StateReconnecting, model.StateResuming:
	default:
		return
	}
	if c.session == nil {
		return
	}
	c.enqueue("signal SIGHUP", nil, cmdqueue.Regular)
	c.setState(model.StateReconnecting)
}

// suspend stops the daemon before the system sleeps.
func (c *Connection) suspend() {
	switch c.state {
	case model.StateDisconnected, model.StateSuspended, model.StateSuspending:
		return
	case model.StateDisconnecting:
		// the daemon is already exiting
		c.setState(model.StateSuspending)
		return
	}
	c.setState(model.StateSuspending)
	c.runDisconnectHook()
	c.terminate()
}

// resume reconnects after the system woke up.
func (c *Connection) resume() {
	switch c.state {
	case model.StateSuspended:
		if err := c.connect(); err != nil {
			c.logger.Warnf("%s: cannot resume: %s", c.profile.Name, err.Error())
		}
	case model.StateSuspending:
		// we never reached suspended: abort the stale attempt
		c.setState(model.StateDisconnecting)
	}
}

// stop asks the daemon to exit.
func (c *Connection) stop() {
	if c.state != model.StateSuspending {
		c.setState(model.StateDisconnecting)
	}
	c.runDisconnectHook()
	c.terminate()
}

// terminate asks the daemon to exit without changing state and arms the
// watchdog. Without a daemon or a transport we are done already.
func (c *Connection) terminate() {
	if c.session != nil {
		c.enqueue("signal SIGTERM", nil, cmdqueue.Regular)
	}
	if c.processAlive() {
		if err := c.process.Stop(); err != nil {
			c.logger.Warnf("%s: cannot stop openvpn: %s", c.profile.Name, err.Error())
		}
	}
	if !c.processAlive() && c.session == nil {
		c.onStop()
		return
	}
	c.armWatchdog()
}

// processAlive returns whether we launched a daemon that did not exit yet.
func (c *Connection) processAlive() bool {
	if c.process == nil {
		return false
	}
	select {
	case <-c.process.Done():
		return false
	default:
		return true
	}
}

func (c *Connection) armWatchdog() {
	if c.watchdog != nil {
		return
	}
	c.watchdog = time.NewTimer(c.config.StopTimeout())
	c.watchdogC = c.watchdog.C
}

func (c *Connection) disarmWatchdog() {
	if c.watchdog == nil {
		return
	}
	c.watchdog.Stop()
	c.watchdog = nil
	c.watchdogC = nil
}

// onWatchdog runs when the daemon did not exit in time.
func (c *Connection) onWatchdog() {
	c.watchdog = nil
	c.watchdogC = nil
	if c.state.IsIdle() {
		return
	}
	c.logger.Warnf("%s: openvpn did not exit in %s", c.profile.Name, c.config.StopTimeout())
	if c.processAlive() {
		if err := c.process.Kill(); err != nil {
			c.logger.Warnf("%s: cannot kill openvpn: %s", c.profile.Name, err.Error())
		}
		return
	}
	c.closeSession()
	c.onStop()
}

// onProcessExit runs when the daemon we launched exits.
func (c *Connection) onProcessExit() {
	c.logger.Infof("%s: openvpn exited", c.profile.Name)
	c.onStop()
}

// onStop runs when the daemon is gone. The prior state tells whether we
// asked for it, whether the daemon died, or whether it never connected.
func (c *Connection) onStop() {
	switch prior := c.state; prior {
	case model.StateConnected:
		c.setState(model.StateDisconnected)
		c.notifier.Notify(c.profile.Name, Notice{
			Kind: NoticeTerminated,
			Text: "openvpn terminated unexpectedly",
		})
		c.runDisconnectHook()
		c.resetCounters()

	case model.StateConnecting, model.StateResuming, model.StateReconnecting, model.StateTimedOut:
		c.notifier.Notify(c.profile.Name, failureNotice(prior))
		c.setState(model.StateDisconnecting)
		c.setState(model.StateDisconnected)
		c.resetCounters()

	case model.StateDisconnecting:
		c.setState(model.StateDisconnected)
		c.resetCounters()

	case model.StateSuspending:
		c.setState(model.StateSuspended)
	}
	c.cleanup()
}

func failureNotice(prior model.ConnectionState) Notice {
	switch prior {
	case model.StateReconnecting:
		return Notice{Kind: NoticeReconnectFailed, Text: "openvpn exited while reconnecting"}
	case model.StateTimedOut:
		return Notice{Kind: NoticeTimedOut, Text: "the management interface was not reachable in time"}
	default:
		return Notice{Kind: NoticeConnectFailed, Text: "openvpn exited before connecting"}
	}
}

// resetCounters clears the counters of a finished attempt.
func (c *Connection) resetCounters() {
	c.failedAuth = 0
	c.failedPsw = 0
	c.bytesIn = 0
	c.bytesOut = 0
	c.ipv4 = ""
	c.ipv6 = ""
	c.connectedSince = time.Time{}
}

// cleanup releases everything bound to the attempt. It is idempotent.
func (c *Connection) cleanup() {
	c.closeSession()
	c.stopDial()
	c.disarmWatchdog()
	if c.processAlive() {
		c.logger.Infof("%s: killing openvpn", c.profile.Name)
		if err := c.process.Kill(); err != nil {
			c.logger.Warnf("%s: cannot kill openvpn: %s", c.profile.Name, err.Error())
		}
	}
	c.process = nil
	c.procDone = nil
	c.mgmtAddr = ""
	c.dynamicCR = optional.None[string]()
	c.echoBuilder.Reset()
}
