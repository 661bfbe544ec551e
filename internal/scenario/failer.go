package scenario

import (
	"fmt"
	"runtime"
	"sync"
)

// RunFailer stands in for testing.T when a scenario runs outside go test.
// FailNow ends the calling goroutine with runtime.Goexit, so a scenario must
// run in a goroutine of its own.
type RunFailer struct {
	mu      sync.Mutex
	errors  []string
	failed  bool
	stopped bool
}

// Helper is a no-op
func (f *RunFailer) Helper() {}

// Errorf records a failure
func (f *RunFailer) Errorf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, fmt.Sprintf(format, args...))
	f.failed = true
}

// FailNow marks the run failed and stops the calling goroutine
func (f *RunFailer) FailNow() {
	f.mu.Lock()
	f.failed = true
	f.stopped = true
	f.mu.Unlock()
	runtime.Goexit()
}

// Failed reports whether any failure was recorded
func (f *RunFailer) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// Stopped reports whether FailNow ended the run early
func (f *RunFailer) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Errors returns the recorded failure messages
func (f *RunFailer) Errors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errors...)
}
