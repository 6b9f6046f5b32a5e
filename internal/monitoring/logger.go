// Package monitoring holds the process-wide diagnostic logger shared by the
// simulation hosts.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// RunLogger returns a logger that tags every line with the run it belongs
// to, e.g. "[run 3f2a…] t=8.10 signal EW_GREEN -> EW_YELLOW". It resolves
// Logf on each call so a later SetLogger still takes effect.
func RunLogger(runID string) func(format string, v ...interface{}) {
	prefix := "[run " + runID + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
