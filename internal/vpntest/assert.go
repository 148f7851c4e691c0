package vpntest

import "testing"

// AssertPanic runs f and fails the test unless it panics. It returns the
// value f panicked with so callers can check it.
func AssertPanic(t *testing.T, f func()) (value any) {
	t.Helper()
	defer func() {
		value = recover()
		if value == nil {
			t.Errorf("expected a panic")
		}
	}()
	f()
	return nil
}
