// Package check implements the three outcome policies shared by every page and
// element check: Assert stops the test, Verify records and continues, and WaitFor
// polls until the check holds or its timeout elapses.
package check

import (
	"fmt"
	"time"

	"github.com/ahrdadan/selenified/internal/report"
	"github.com/ahrdadan/selenified/internal/wait"
)

// DefaultTimeout is how long WaitFor checks poll before failing
const DefaultTimeout = 5 * time.Second

// Kind selects the outcome policy of a check
type Kind int

const (
	Assert Kind = iota
	Verify
	WaitFor
)

func (k Kind) String() string {
	switch k {
	case Assert:
		return "assert"
	case Verify:
		return "verify"
	case WaitFor:
		return "wait"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Failer is the part of testing.TB a check needs to fail a test
type Failer interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

// Recorder is the part of a report that checks write to
type Recorder interface {
	RecordExpected(expected string)
	RecordActual(actual string, success report.Success)
	RecordExpectedWait(expected string, timeout time.Duration)
	RecordActualWait(actual string, waited time.Duration, success report.Success)
	AddError()
	Errors() int
}

// Outcome is what a probe observed
type Outcome struct {
	Actual string // report text
	Passed bool
	Value  any
}

// Spec describes one check
type Spec struct {
	Expected string
	Probe    func() Outcome
	Message  string // failure message for Assert, defaults to the expected text
}

// Checker applies one outcome policy
type Checker struct {
	kind     Kind
	rec      Recorder
	failer   Failer
	timeout  time.Duration
	interval time.Duration
}

// New creates a checker. WaitFor checkers poll for DefaultTimeout.
func New(kind Kind, rec Recorder, failer Failer) *Checker {
	c := &Checker{kind: kind, rec: rec, failer: failer, interval: wait.DefaultInterval}
	if kind == WaitFor {
		c.timeout = DefaultTimeout
	}
	return c
}

// Within returns a copy of the checker that polls for d
func (c *Checker) Within(d time.Duration) *Checker {
	cp := *c
	cp.timeout = d
	return &cp
}

// Every returns a copy of the checker that polls every d
func (c *Checker) Every(d time.Duration) *Checker {
	cp := *c
	if d > 0 {
		cp.interval = d
	}
	return &cp
}

// Kind returns the outcome policy
func (c *Checker) Kind() Kind {
	return c.kind
}

// Timeout returns how long the checker polls
func (c *Checker) Timeout() time.Duration {
	return c.timeout
}

// Run evaluates a check under the checker's policy, records it, and returns
// what the probe observed
func Run(c *Checker, s Spec) Outcome {
	if c.kind == WaitFor {
		var out Outcome
		waited, ok := wait.Until(c.timeout, c.interval, func() bool {
			out = s.Probe()
			return out.Passed
		})

		c.rec.RecordExpectedWait(s.Expected, c.timeout)
		c.rec.RecordActualWait(out.Actual, waited, success(ok))
		if !ok {
			c.rec.AddError()
		}
		return out
	}

	out := s.Probe()
	c.rec.RecordExpected(s.Expected)
	c.rec.RecordActual(out.Actual, success(out.Passed))
	if out.Passed {
		return out
	}

	c.rec.AddError()
	if c.kind == Assert && c.failer != nil {
		msg := s.Message
		if msg == "" {
			msg = s.Expected
		}
		c.failer.Helper()
		c.failer.Errorf("%s: %s", msg, out.Actual)
		c.failer.FailNow()
	}
	return out
}

// Teardown fails the test when any soft failure was recorded
func Teardown(rec Recorder, failer Failer) {
	if failer == nil {
		return
	}
	if n := rec.Errors(); n > 0 {
		failer.Helper()
		failer.Errorf("%d check(s) failed, see the test report for details", n)
	}
}

func success(ok bool) report.Success {
	if ok {
		return report.PASS
	}
	return report.FAIL
}
