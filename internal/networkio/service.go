package networkio

import (
	"net"

	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/runtimex"
	"github.com/ovpngui/ovpngui/internal/workers"
)

var (
	serviceName = "networkio"

	// readBufferSize bounds a single read from the management interface.
	readBufferSize = 4096
)

// Service is the network I/O service of a management connection. Make sure
// you initialize the channels before invoking [Service.StartWorkers].
type Service struct {
	// CommandsDown moves serialized commands down to the network.
	CommandsDown chan string

	// LinesUp moves complete protocol lines up from the network. The
	// service closes this channel when the connection is gone.
	LinesUp chan string

	// Framer splits the incoming byte stream. When nil we use a new one.
	Framer *Framer
}

// StartWorkers starts the network I/O workers.
//
// This function TAKES OWNERSHIP of the conn.
func (svc *Service) StartWorkers(
	logger model.Logger,
	manager *workers.Manager,
	conn net.Conn,
) {
	runtimex.Assert(svc.CommandsDown != nil, "CommandsDown is nil")
	runtimex.Assert(svc.LinesUp != nil, "LinesUp is nil")
	framer := svc.Framer
	if framer == nil {
		framer = NewFramer()
	}
	ws := &workersState{
		conn:         conn,
		framer:       framer,
		logger:       logger,
		manager:      manager,
		commandsDown: svc.CommandsDown,
		linesUp:      svc.LinesUp,
	}
	manager.StartWorker(ws.moveUpWorker) // TAKES conn ownership
	manager.StartWorker(ws.moveDownWorker)
}

// workersState contains the service workers state
type workersState struct {
	// conn is the connection to use
	conn net.Conn

	// framer turns bytes into lines; only moveUpWorker touches it
	framer *Framer

	// logger is the logger to use
	logger model.Logger

	// manager controls the workers lifecycle
	manager *workers.Manager

	// commandsDown is the channel for reading outgoing commands
	commandsDown <-chan string

	// linesUp is the channel for writing incoming lines
	linesUp chan<- string
}

// moveUpWorker moves lines up the stack.
func (ws *workersState) moveUpWorker() {
	workerName := serviceName + ": moveUpWorker"

	defer func() {
		// tell the connection that the transport is gone
		close(ws.linesUp)

		// make sure the manager knows we're done
		ws.manager.OnWorkerDone(workerName)

		// tear down everything else because a worker exited
		ws.manager.StartShutdown()

		// we OWN the connection
		ws.conn.Close()
	}()

	ws.logger.Debugf("%s: started", workerName)

	buffer := make([]byte, readBufferSize)
	for {
		// POSSIBLY BLOCK on the connection to read more bytes
		count, err := ws.conn.Read(buffer)

		lines := ws.framer.Feed(buffer[:count])
		if dropped := ws.framer.takeDropped(); dropped > 0 {
			ws.logger.Warnf("%s: discarded %d bytes without a line delimiter", workerName, dropped)
		}
		for _, line := range lines {
			// POSSIBLY BLOCK on the channel to deliver the line
			select {
			case ws.linesUp <- line:
			case <-ws.manager.ShouldShutdown():
				return
			}
		}

		if err != nil {
			ws.logger.Debugf("%s: Read: %s", workerName, err.Error())
			return
		}
		if count == 0 {
			// the peer is gone: do not spin
			ws.logger.Debugf("%s: Read: zero bytes", workerName)
			return
		}
	}
}

// moveDownWorker moves commands down the stack.
func (ws *workersState) moveDownWorker() {
	workerName := serviceName + ": moveDownWorker"

	defer func() {
		ws.manager.OnWorkerDone(workerName)
		ws.manager.StartShutdown()

		// unblock moveUpWorker if it is reading
		ws.conn.Close()
	}()

	ws.logger.Debugf("%s: started", workerName)

	for {
		select {
		case cmd := <-ws.commandsDown:
			// POSSIBLY BLOCK on the connection to write the command
			if _, err := ws.conn.Write([]byte(cmd)); err != nil {
				ws.logger.Infof("%s: Write: %s", workerName, err.Error())
				return
			}

		case <-ws.manager.ShouldShutdown():
			return
		}
	}
}
