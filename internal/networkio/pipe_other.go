//go:build !windows

package networkio

import (
	"context"
	"errors"
	"net"
)

// ErrPipeUnsupported indicates that named pipes only exist on Windows.
var ErrPipeUnsupported = errors.New("networkio: named pipes are not supported on this platform")

func dialPipe(ctx context.Context, path string) (net.Conn, error) {
	return nil, ErrPipeUnsupported
}
