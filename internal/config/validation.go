package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/networkio"
)

// ErrInvalid indicates a configuration we cannot use.
var ErrInvalid = errors.New("config: invalid configuration")

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MuteInterval < 0 || c.ConnectScriptTimeout < 0 || c.ManagementTimeout < 0 || c.StopTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	seen := make(map[string]bool)
	for idx, p := range c.Profiles {
		if p == nil {
			return fmt.Errorf("%w: profile #%d is empty", ErrInvalid, idx)
		}
		if err := validateProfile(p); err != nil {
			return fmt.Errorf("%w: profile %q: %s", ErrInvalid, p.Name, err.Error())
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate profile %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func validateProfile(p *model.Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.Config == "" && p.Management == "" {
		return fmt.Errorf("config or management is required")
	}
	if p.Management != "" {
		if _, _, err := networkio.ParseAddress(p.Management); err != nil {
			return err
		}
	}
	if p.Proxy != "" && !strings.EqualFold(p.Proxy, "none") {
		u, err := url.Parse(p.Proxy)
		if err != nil || u.Hostname() == "" || u.Port() == "" {
			return fmt.Errorf("proxy must look like http://host:port or socks://host:port")
		}
	}
	return nil
}
