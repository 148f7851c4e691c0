// Package supervisor owns the connections of all the configured profiles.
package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ovpngui/ovpngui/internal/connection"
	"github.com/ovpngui/ovpngui/internal/model"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownProfile is returned for a profile name we do not know.
var ErrUnknownProfile = errors.New("supervisor: unknown profile")

// Supervisor runs one [connection.Connection] per profile. The zero value is
// invalid; use [New].
type Supervisor struct {
	conns  map[string]*connection.Connection
	names  []string
	logger model.Logger
}

// New creates a [Supervisor] for profiles. The options apply to every
// connection.
func New(profiles []*model.Profile, config *model.Config, options ...connection.Option) *Supervisor {
	s := &Supervisor{
		conns:  make(map[string]*connection.Connection, len(profiles)),
		logger: config.Logger(),
	}
	for _, p := range profiles {
		s.conns[p.Name] = connection.New(p, config, options...)
		s.names = append(s.names, p.Name)
	}
	return s
}

// Names returns the profile names in configuration order.
func (s *Supervisor) Names() []string {
	return append([]string{}, s.names...)
}

// Run runs the event loops of all the connections until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.names {
		conn := s.conns[name]
		g.Go(func() error {
			return conn.Run(ctx)
		})
	}
	return g.Wait()
}

func (s *Supervisor) lookup(name string) (*connection.Connection, error) {
	conn, found := s.conns[name]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return conn, nil
}

// Connect connects the named profile.
func (s *Supervisor) Connect(ctx context.Context, name string) error {
	conn, err := s.lookup(name)
	if err != nil {
		return err
	}
	return conn.Connect(ctx)
}

// Disconnect disconnects the named profile without waiting.
func (s *Supervisor) Disconnect(ctx context.Context, name string) error {
	conn, err := s.lookup(name)
	if err != nil {
		return err
	}
	return conn.Disconnect(ctx)
}

// Restart reconnects the named profile.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	conn, err := s.lookup(name)
	if err != nil {
		return err
	}
	return conn.Restart(ctx)
}

// ConnectAll connects the given profiles or, when none is given, the
// profiles marked for auto connect.
func (s *Supervisor) ConnectAll(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		for _, name := range s.names {
			if s.conns[name].Profile().AutoConnect {
				names = append(names, name)
			}
		}
	}
	conns := make([]*connection.Connection, 0, len(names))
	for _, name := range names {
		conn, err := s.lookup(name)
		if err != nil {
			return err
		}
		conns = append(conns, conn)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			s.logger.Infof("supervisor: connecting %s", conn.Name())
			if err := conn.Connect(ctx); err != nil {
				return fmt.Errorf("%s: %w", conn.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// DisconnectAll disconnects every connection and waits until they are all
// disconnected or suspended.
func (s *Supervisor) DisconnectAll(ctx context.Context) error {
	return s.each(ctx, func(ctx context.Context, conn *connection.Connection) error {
		if err := conn.Disconnect(ctx); err != nil {
			return err
		}
		_, err := conn.Wait(ctx, model.StateDisconnected, model.StateSuspended)
		return err
	})
}

// Suspend stops every connection before the system sleeps and waits until
// they are all suspended or disconnected.
func (s *Supervisor) Suspend(ctx context.Context) error {
	return s.each(ctx, func(ctx context.Context, conn *connection.Connection) error {
		if err := conn.Suspend(ctx); err != nil {
			return err
		}
		_, err := conn.Wait(ctx, model.StateSuspended, model.StateDisconnected)
		return err
	})
}

// Resume reconnects the suspended connections after the system woke up.
func (s *Supervisor) Resume(ctx context.Context) error {
	return s.each(ctx, func(ctx context.Context, conn *connection.Connection) error {
		return conn.Resume(ctx)
	})
}

// WaitIdle blocks until every connection is disconnected or suspended.
func (s *Supervisor) WaitIdle(ctx context.Context) error {
	return s.each(ctx, func(ctx context.Context, conn *connection.Connection) error {
		_, err := conn.Wait(ctx, model.StateDisconnected, model.StateSuspended)
		return err
	})
}

// Status returns the status of every connection in configuration order.
func (s *Supervisor) Status(ctx context.Context) ([]model.Status, error) {
	out := make([]model.Status, 0, len(s.names))
	for _, name := range s.names {
		st, err := s.conns[name].Status(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// each runs fx on every connection concurrently.
func (s *Supervisor) each(ctx context.Context, fx func(ctx context.Context, conn *connection.Connection) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.names {
		conn := s.conns[name]
		g.Go(func() error {
			if err := fx(ctx, conn); err != nil {
				return fmt.Errorf("%s: %w", conn.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
