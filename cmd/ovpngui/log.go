package main

import (
	"fmt"
	"io"
	"time"

	"github.com/apex/log"
)

var startTime = time.Now()

// logHandler prints the elapsed time and level of each entry.
type logHandler struct {
	io.Writer
}

func (h *logHandler) HandleLog(e *log.Entry) (err error) {
	var s string
	if e.Level == log.DebugLevel {
		s = e.Message
	} else if e.Level == log.ErrorLevel {
		s = fmt.Sprintf("[%14.6f] <!err> %s", time.Since(startTime).Seconds(), e.Message)
	} else {
		s = fmt.Sprintf("[%14.6f] <%s> %s", time.Since(startTime).Seconds(), e.Level, e.Message)
	}
	if len(e.Fields) > 0 {
		s += fmt.Sprintf(": %+v", e.Fields)
	}
	s += "\n"
	_, err = h.Writer.Write([]byte(s))
	return
}

// verbosityLevel maps the 1 to 5 verbosity flag to a log level.
func verbosityLevel(verbosity uint16) log.Level {
	switch verbosity {
	case 1:
		return log.FatalLevel
	case 2:
		return log.ErrorLevel
	case 3:
		return log.WarnLevel
	case 4:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}
