package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
	if Logf == nil {
		t.Error("Logf should never be nil")
	}
}

func TestRunLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	logf := RunLogger("abc")

	// installed after RunLogger was created
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	logf("t=%.2f signal %s -> %s", 8.1, "EW_GREEN", "EW_YELLOW")

	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if want := "[run abc] t=8.10 signal EW_GREEN -> EW_YELLOW"; lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}
