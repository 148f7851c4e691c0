// Package model holds the types shared by the ovpngui packages: profiles,
// connection states, management notifications and the logger.
package model

// Logger is what every package logs through. [github.com/apex/log] satisfies
// it, and so does [TestLogger].
type Logger interface {
	Debug(msg string)
	Debugf(format string, v ...any)
	Info(msg string)
	Infof(format string, v ...any)
	Warn(msg string)
	Warnf(format string, v ...any)
}
