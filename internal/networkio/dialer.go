package networkio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ovpngui/ovpngui/internal/model"
)

// ErrBadAddress is returned for management addresses we cannot parse.
var ErrBadAddress = errors.New("networkio: bad management address")

// Dialer dials management interfaces. The zero value of this structure is
// invalid; please, use the [NewDialer] constructor.
type Dialer struct {
	// dialer is the underlying [model.Dialer] we use for sockets.
	dialer model.Dialer

	// logger is the [Logger] with which we log.
	logger model.Logger
}

// NewDialer creates a new [Dialer] instance.
func NewDialer(logger model.Logger, dialer model.Dialer) *Dialer {
	return &Dialer{
		dialer: dialer,
		logger: logger,
	}
}

// DialContext connects to a management interface. The address is either
// "host:port", "tcp://host:port", "unix:///path/to/socket" or a Windows
// named pipe path ("\\.\pipe\name"). The returned conn has close once semantics.
func (d *Dialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	network, target, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	var conn net.Conn
	switch network {
	case "pipe":
		conn, err = dialPipe(ctx, target)
	default:
		conn, err = d.dialer.DialContext(ctx, network, target)
	}
	if err != nil {
		d.logger.Debugf("networkio: dial %s failed: %s", address, err.Error())
		return nil, err
	}
	return newCloseOnceConn(conn), nil
}

// ParseAddress splits a management address into network and target.
func ParseAddress(address string) (network, target string, err error) {
	switch {
	case address == "":
		return "", "", fmt.Errorf("%w: empty", ErrBadAddress)

	case strings.HasPrefix(address, `\\.\pipe\`):
		return "pipe", address, nil

	case strings.HasPrefix(address, "unix://"):
		target = strings.TrimPrefix(address, "unix://")
		if target == "" {
			return "", "", fmt.Errorf("%w: %s", ErrBadAddress, address)
		}
		return "unix", target, nil

	case strings.HasPrefix(address, "tcp://"):
		address = strings.TrimPrefix(address, "tcp://")
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrBadAddress, err.Error())
	}
	return "tcp", address, nil
}
