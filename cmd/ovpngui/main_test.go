package main

import (
	"testing"

	"github.com/apex/log"
	"github.com/google/go-cmp/cmp"
)

func TestSplitNames(t *testing.T) {
	got := splitNames(" office, lab,,")
	if diff := cmp.Diff([]string{"office", "lab"}, got); diff != "" {
		t.Error(diff)
	}
	if splitNames("") != nil {
		t.Error("expected no names")
	}
}

func TestVerbosityLevel(t *testing.T) {
	tests := map[uint16]log.Level{
		1: log.FatalLevel,
		3: log.WarnLevel,
		4: log.InfoLevel,
		5: log.DebugLevel,
		9: log.DebugLevel,
	}
	for verbosity, want := range tests {
		if got := verbosityLevel(verbosity); got != want {
			t.Errorf("verbosityLevel(%d) = %s, want %s", verbosity, got, want)
		}
	}
}
