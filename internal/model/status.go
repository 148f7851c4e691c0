package model

import "time"

// Status is a snapshot of a connection.
type Status struct {
	Name               string
	State              ConnectionState
	Detail             string
	Attempt            string
	IPv4               string
	IPv6               string
	BytesIn            uint64
	BytesOut           uint64
	ConnectedSince     time.Time
	FailedAuthAttempts int
	FailedPswAttempts  int
}
