package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ovpngui/ovpngui/internal/model"
)

const sampleConfig = `
openvpn_path: /usr/sbin/openvpn
config_dir: /etc/ovpngui
mute_interval: 12h
stop_timeout: 5s
silent_connection: true
profiles:
  - name: office
    config: office.ovpn
    auto_connect: true
    save_passwords: true
  - name: lab
    management: tcp://127.0.0.1:7505
    proxy: http://proxy.local:3128
`

func TestManager(t *testing.T) {
	t.Run("a missing file is created with defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", "config.yaml")
		m := NewManager(path)
		if err := m.Load(); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("the default config was not written: %s", err.Error())
		}
		if m.Get().StopTimeout != model.DefaultStopTimeout {
			t.Errorf("unexpected stop timeout %s", m.Get().StopTimeout)
		}
	})

	t.Run("a file is parsed over the defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
			t.Fatal(err)
		}
		m := NewManager(path)
		if err := m.Load(); err != nil {
			t.Fatal(err)
		}
		cfg := m.Get()
		if cfg.OpenVPNPath != "/usr/sbin/openvpn" || !cfg.SilentConnection {
			t.Errorf("unexpected config %+v", cfg)
		}
		if cfg.MuteInterval != 12*time.Hour || cfg.StopTimeout != 5*time.Second {
			t.Errorf("unexpected durations %s %s", cfg.MuteInterval, cfg.StopTimeout)
		}
		if cfg.ManagementTimeout != model.DefaultManagementTimeout {
			t.Errorf("the default management timeout was lost")
		}
		want := []*model.Profile{{
			Name:          "office",
			Config:        "/etc/ovpngui/office.ovpn",
			AutoConnect:   true,
			SavePasswords: true,
		}, {
			Name:       "lab",
			Management: "tcp://127.0.0.1:7505",
			Proxy:      "http://proxy.local:3128",
		}}
		if diff := cmp.Diff(want, cfg.ResolvedProfiles()); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("an invalid file is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		os.WriteFile(path, []byte("profiles:\n  - name: x\n"), 0600)
		if err := NewManager(path).Load(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("updates are saved", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		m := NewManager(path)
		if err := m.Load(); err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig()
		cfg.Profiles = append(cfg.Profiles, &model.Profile{Name: "lab", Management: "127.0.0.1:7505"})
		if err := m.Update(cfg); err != nil {
			t.Fatal(err)
		}
		m2 := NewManager(path)
		if err := m2.Load(); err != nil {
			t.Fatal(err)
		}
		if _, found := m2.Get().Profile("lab"); !found {
			t.Error("the profile was not saved")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		profiles []*model.Profile
		wantErr  error
	}{{
		name:     "launched and attached profiles are fine",
		profiles: []*model.Profile{{Name: "a", Config: "a.ovpn"}, {Name: "b", Management: "127.0.0.1:7505"}},
	}, {
		name:     "names are required",
		profiles: []*model.Profile{{Config: "a.ovpn"}},
		wantErr:  ErrInvalid,
	}, {
		name:     "names are unique",
		profiles: []*model.Profile{{Name: "a", Config: "a.ovpn"}, {Name: "a", Config: "b.ovpn"}},
		wantErr:  ErrInvalid,
	}, {
		name:     "a profile needs a config or a management address",
		profiles: []*model.Profile{{Name: "a"}},
		wantErr:  ErrInvalid,
	}, {
		name:     "management addresses are checked",
		profiles: []*model.Profile{{Name: "a", Management: "nope"}},
		wantErr:  ErrInvalid,
	}, {
		name:     "proxies are checked",
		profiles: []*model.Profile{{Name: "a", Config: "a.ovpn", Proxy: "http://nope"}},
		wantErr:  ErrInvalid,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Profiles = tt.profiles
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopTimeout = time.Second
	cfg.SilentConnection = true
	mc := model.NewConfig(cfg.Options(model.NewTestLogger())...)
	if mc.StopTimeout() != time.Second || !mc.Silent() {
		t.Errorf("options not applied")
	}
}
