package model

// Process is a running openvpn daemon.
type Process interface {
	// Stop asks the daemon to exit gracefully.
	Stop() error

	// Kill terminates the daemon.
	Kill() error

	// Done is closed when the daemon has exited.
	Done() <-chan struct{}
}
