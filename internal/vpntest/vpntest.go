// Package vpntest provides utilities for ovpngui testing.
package vpntest

import (
	"context"
	"net"
	"time"
)

// Addr allows mocking net.Addr.
type Addr struct {
	MockString  func() string
	MockNetwork func() string
}

var _ net.Addr = &Addr{}

// String implements net.Addr
func (a *Addr) String() string {
	return a.MockString()
}

// Network implements net.Addr
func (a *Addr) Network() string {
	return a.MockNetwork()
}

// Conn allows mocking net.Conn. Unset mocks behave as no-ops.
type Conn struct {
	MockRead             func(b []byte) (int, error)
	MockWrite            func(b []byte) (int, error)
	MockClose            func() error
	MockLocalAddr        func() net.Addr
	MockRemoteAddr       func() net.Addr
	MockSetDeadline      func(t time.Time) error
	MockSetReadDeadline  func(t time.Time) error
	MockSetWriteDeadline func(t time.Time) error
}

var _ net.Conn = &Conn{}

// Read implements net.Conn
func (c *Conn) Read(b []byte) (int, error) {
	return c.MockRead(b)
}

// Write implements net.Conn
func (c *Conn) Write(b []byte) (int, error) {
	return c.MockWrite(b)
}

// Close implements net.Conn
func (c *Conn) Close() error {
	if c.MockClose == nil {
		return nil
	}
	return c.MockClose()
}

// LocalAddr implements net.Conn
func (c *Conn) LocalAddr() net.Addr {
	return c.MockLocalAddr()
}

// RemoteAddr implements net.Conn
func (c *Conn) RemoteAddr() net.Addr {
	return c.MockRemoteAddr()
}

// SetDeadline implements net.Conn
func (c *Conn) SetDeadline(t time.Time) error {
	if c.MockSetDeadline == nil {
		return nil
	}
	return c.MockSetDeadline(t)
}

// SetReadDeadline implements net.Conn
func (c *Conn) SetReadDeadline(t time.Time) error {
	if c.MockSetReadDeadline == nil {
		return nil
	}
	return c.MockSetReadDeadline(t)
}

// SetWriteDeadline implements net.Conn
func (c *Conn) SetWriteDeadline(t time.Time) error {
	if c.MockSetWriteDeadline == nil {
		return nil
	}
	return c.MockSetWriteDeadline(t)
}

// Dialer is a mockable dialer.
type Dialer struct {
	MockDialContext func(ctx context.Context, network, address string) (net.Conn, error)
}

// DialContext calls MockDialContext.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.MockDialContext(ctx, network, address)
}
