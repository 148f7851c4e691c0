// Package config loads, saves and validates the supervisor configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ovpngui/ovpngui/internal/model"
)

// Config is the configuration file layout.
type Config struct {
	// OpenVPNPath is the openvpn binary; empty means searching PATH.
	OpenVPNPath string `yaml:"openvpn_path,omitempty"`

	// ConfigDir is where relative profile configs and scripts live.
	ConfigDir string `yaml:"config_dir,omitempty"`

	// StateFile saves usernames, passwords and echo history.
	StateFile string `yaml:"state_file,omitempty"`

	// KeyFile holds the key encrypting the saved passwords.
	KeyFile string `yaml:"key_file,omitempty"`

	MuteInterval         time.Duration `yaml:"mute_interval,omitempty"`
	ConnectScriptTimeout time.Duration `yaml:"connect_script_timeout,omitempty"`
	ManagementTimeout    time.Duration `yaml:"management_timeout,omitempty"`
	StopTimeout          time.Duration `yaml:"stop_timeout,omitempty"`

	// SilentConnection suppresses the connected notice.
	SilentConnection bool `yaml:"silent_connection,omitempty"`

	Profiles []*model.Profile `yaml:"profiles"`
}

// DefaultConfig returns the configuration we write when none exists.
func DefaultConfig() *Config {
	dir := defaultDir()
	return &Config{
		ConfigDir:            filepath.Join(dir, "profiles"),
		StateFile:            filepath.Join(dir, "state.yaml"),
		KeyFile:              filepath.Join(dir, "key"),
		MuteInterval:         model.DefaultMuteInterval,
		ConnectScriptTimeout: model.DefaultScriptTimeout,
		ManagementTimeout:    model.DefaultManagementTimeout,
		StopTimeout:          model.DefaultStopTimeout,
		Profiles:             []*model.Profile{},
	}
}

// DefaultPath returns where we look for the configuration by default.
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ovpngui"
	}
	return filepath.Join(dir, "ovpngui")
}

// Options returns the connection settings as [model.Option]s.
func (c *Config) Options(logger model.Logger) []model.Option {
	return []model.Option{
		model.WithLogger(logger),
		model.WithMuteInterval(c.MuteInterval),
		model.WithScriptTimeout(c.ConnectScriptTimeout),
		model.WithManagementTimeout(c.ManagementTimeout),
		model.WithStopTimeout(c.StopTimeout),
		model.WithSilent(c.SilentConnection),
	}
}

// ResolvedProfiles returns copies of the profiles with relative config
// paths resolved against ConfigDir.
func (c *Config) ResolvedProfiles() []*model.Profile {
	out := make([]*model.Profile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		cp := *p
		if cp.Config != "" && !filepath.IsAbs(cp.Config) && c.ConfigDir != "" {
			cp.Config = filepath.Join(c.ConfigDir, cp.Config)
		}
		out = append(out, &cp)
	}
	return out
}

// Profile returns the profile with the given name.
func (c *Config) Profile(name string) (*model.Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}
