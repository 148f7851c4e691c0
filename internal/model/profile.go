package model

// Profile describes one openvpn daemon we supervise.
type Profile struct {
	// Name identifies the profile. Saved credentials are keyed by it.
	Name string `yaml:"name"`

	// Config is the openvpn configuration file. When empty we attach to an
	// already running daemon at Management.
	Config string `yaml:"config,omitempty"`

	// Management is the management interface address: "host:port",
	// "tcp://host:port", "unix:///path" or a "\\.\pipe\name" named pipe.
	// When we launch the daemon and this is empty we pick a free local port.
	Management string `yaml:"management,omitempty"`

	// ManagementPassword is the password protecting the management interface.
	ManagementPassword string `yaml:"management_password,omitempty"`

	// AutoConnect connects the profile at startup.
	AutoConnect bool `yaml:"auto_connect,omitempty"`

	// ConnectScript runs once the daemon first reports CONNECTED.
	ConnectScript string `yaml:"connect_script,omitempty"`

	// DisconnectScript runs when leaving a connection that ran ConnectScript.
	DisconnectScript string `yaml:"disconnect_script,omitempty"`

	// SavePasswords allows saving passwords for this profile.
	SavePasswords bool `yaml:"save_passwords,omitempty"`

	// Proxy answers >PROXY: requests: "none", "http://host:port" or "socks://host:port".
	Proxy string `yaml:"proxy,omitempty"`
}

// Launched returns whether we are responsible for starting the daemon.
func (p *Profile) Launched() bool {
	return p.Config != ""
}
