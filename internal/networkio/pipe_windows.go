//go:build windows

package networkio

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// dialPipe connects to the named pipe exposed by a daemon started with
// "--management \\.\pipe\name unix".
func dialPipe(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}
