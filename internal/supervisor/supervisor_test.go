package supervisor

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ovpngui/ovpngui/internal/connection"
	"github.com/ovpngui/ovpngui/internal/model"
)

// fakeProcess exits when stopped.
type fakeProcess struct {
	done chan struct{}
	once sync.Once
}

func (p *fakeProcess) Stop() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *fakeProcess) Kill() error {
	return p.Stop()
}

func (p *fakeProcess) Done() <-chan struct{} {
	return p.done
}

// fakeLauncher starts a fakeProcess per launch.
type fakeLauncher struct{}

func (fakeLauncher) Launch(ctx context.Context, profile *model.Profile) (model.Process, string, error) {
	return &fakeProcess{done: make(chan struct{})}, "127.0.0.1:7505", nil
}

// blockingDialer never reaches the daemon.
type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	profiles := []*model.Profile{
		{Name: "office", Config: "office.ovpn", AutoConnect: true},
		{Name: "lab", Config: "lab.ovpn"},
	}
	config := model.NewConfig(model.WithLogger(model.NewTestLogger()))
	s := New(profiles, config,
		connection.WithLauncher(fakeLauncher{}),
		connection.WithDialer(blockingDialer{}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Error(err)
		}
	})
	return s
}

func states(t *testing.T, s *Supervisor) []model.ConnectionState {
	t.Helper()
	status, err := s.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var out []model.ConnectionState
	for _, st := range status {
		out = append(out, st.State)
	}
	return out
}

func TestSupervisor(t *testing.T) {
	t.Run("auto connect profiles are connected", func(t *testing.T) {
		s := newSupervisor(t)
		if err := s.ConnectAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		want := []model.ConnectionState{model.StateConnecting, model.StateDisconnected}
		if diff := cmp.Diff(want, states(t, s)); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("disconnect all waits for every connection", func(t *testing.T) {
		s := newSupervisor(t)
		if err := s.ConnectAll(context.Background(), "office", "lab"); err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.DisconnectAll(ctx); err != nil {
			t.Fatal(err)
		}
		want := []model.ConnectionState{model.StateDisconnected, model.StateDisconnected}
		if diff := cmp.Diff(want, states(t, s)); diff != "" {
			t.Error(diff)
		}
		if err := s.WaitIdle(ctx); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("suspend and resume", func(t *testing.T) {
		s := newSupervisor(t)
		if err := s.Connect(context.Background(), "office"); err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Suspend(ctx); err != nil {
			t.Fatal(err)
		}
		want := []model.ConnectionState{model.StateSuspended, model.StateDisconnected}
		if diff := cmp.Diff(want, states(t, s)); diff != "" {
			t.Error(diff)
		}
		if err := s.Resume(ctx); err != nil {
			t.Fatal(err)
		}
		want = []model.ConnectionState{model.StateResuming, model.StateDisconnected}
		if diff := cmp.Diff(want, states(t, s)); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("unknown profiles are reported", func(t *testing.T) {
		s := newSupervisor(t)
		ctx := context.Background()
		if err := s.Connect(ctx, "nope"); !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("Connect: %v", err)
		}
		if err := s.Disconnect(ctx, "nope"); !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("Disconnect: %v", err)
		}
		if err := s.Restart(ctx, "nope"); !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("Restart: %v", err)
		}
		if err := s.ConnectAll(ctx, "nope"); !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("ConnectAll: %v", err)
		}
	})

	t.Run("connecting twice fails", func(t *testing.T) {
		s := newSupervisor(t)
		ctx := context.Background()
		if err := s.Connect(ctx, "lab"); err != nil {
			t.Fatal(err)
		}
		if err := s.Connect(ctx, "lab"); !errors.Is(err, connection.ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
	})

	t.Run("names keep the configuration order", func(t *testing.T) {
		s := newSupervisor(t)
		if diff := cmp.Diff([]string{"office", "lab"}, s.Names()); diff != "" {
			t.Error(diff)
		}
	})
}
