// Package report writes the per-test HTML output file: a header with run details,
// one table row per recorded action or check, and totals substituted at finalize.
package report

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ahrdadan/selenified/internal/wait"
	"github.com/google/uuid"
)

// Result is the outcome of a recorded action, and the overall status handed to Finalize
type Result string

const (
	WARNING Result = "WARNING"
	SUCCESS Result = "SUCCESS"
	FAILURE Result = "FAILURE"
	SKIPPED Result = "SKIPPED"
)

// Success is the outcome of a recorded check
type Success string

const (
	PASS Success = "PASS"
	FAIL Success = "FAIL"
)

// Row statuses as shown in the Pass/Fail column
const (
	StatusPass  = "Pass"
	StatusFail  = "Fail"
	StatusCheck = "Check"
)

// Info describes the test a report belongs to
type Info struct {
	Name       string `json:"name" yaml:"name"`
	Group      string `json:"group,omitempty" yaml:"group,omitempty"`
	Suite      string `json:"suite,omitempty" yaml:"suite,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Author     string `json:"author,omitempty" yaml:"author,omitempty"`
	Objectives string `json:"objectives,omitempty" yaml:"objectives,omitempty"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	Browser    string `json:"browser,omitempty" yaml:"browser,omitempty"`
	RunID      string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// Screenshotter captures the current page as PNG bytes
type Screenshotter interface {
	Capture() ([]byte, error)
}

// Sink receives every step as soon as it is recorded
type Sink interface {
	Publish(step Step)
}

// Options control where a report is written and what it captures
type Options struct {
	OutputDir      string
	Screenshotter  Screenshotter
	RealBrowser    bool // screenshots are only captured for real browsers
	Sink           Sink
	PackageResults bool
	GeneratePDF    bool
}

// Step is a single recorded row of the report
type Step struct {
	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Test       string    `json:"test" yaml:"test"`
	Number     int       `json:"number" yaml:"number"`
	Action     string    `json:"action" yaml:"action"`
	Expected   string    `json:"expected" yaml:"expected"`
	Actual     string    `json:"actual" yaml:"actual"`
	Result     string    `json:"result" yaml:"result"` // css class of the actual cell
	Status     string    `json:"status" yaml:"status"` // Pass, Fail or Check
	StepTime   int64     `json:"step_ms" yaml:"step_ms"`
	TotalTime  int64     `json:"total_ms" yaml:"total_ms"`
	Screenshot string    `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
	Time       time.Time `json:"time" yaml:"time"`
}

// Report is the output file of a single test
type Report struct {
	info Info
	opts Options
	dir  string
	file string

	mu          sync.Mutex
	out         *os.File
	steps       []Step
	pending     *Step
	errors      int
	screenshots []string
	start       time.Time
	last        time.Time
	summary     *Summary
}

// New creates the report directory and writes the report header
func New(info Info, opts Options) (*Report, error) {
	if info.Name == "" {
		info.Name = "Test"
	}
	if info.RunID == "" {
		info.RunID = uuid.New().String()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	r := &Report{
		info:  info,
		opts:  opts,
		dir:   opts.OutputDir,
		file:  filepath.Join(opts.OutputDir, FileName(info)),
		start: time.Now(),
	}
	r.last = r.start

	out, err := os.Create(r.file)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	r.out = out

	if _, err := out.WriteString(renderHeader(info, r.start)); err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}

	return r, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns the HTML file name used for a test
func FileName(info Info) string {
	name := unsafeChars.ReplaceAllString(strings.TrimSpace(info.Name), "_")
	if info.Browser != "" {
		name += "_" + unsafeChars.ReplaceAllString(info.Browser, "_")
	}
	return name + ".html"
}

// Info returns the test details of the report
func (r *Report) Info() Info {
	return r.info
}

// File returns the path of the HTML report
func (r *Report) File() string {
	return r.file
}

// Dir returns the directory holding the report and its screenshots
func (r *Report) Dir() string {
	return r.dir
}

// RecordAction writes a complete row for an action that was performed.
// Anything other than SUCCESS captures a screenshot on real browsers.
func (r *Report) RecordAction(action, expected, actual string, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flushPending()

	status := StatusCheck
	switch result {
	case SUCCESS:
		status = StatusPass
	case FAILURE:
		status = StatusFail
	}

	step := Step{
		Action:   action,
		Expected: expected,
		Actual:   actual,
		Result:   strings.ToLower(string(result)),
		Status:   status,
	}
	if status != StatusPass && r.opts.RealBrowser {
		step.Screenshot, step.Actual = r.captureScreenshot(step.Actual)
	}
	r.appendStep(step)
}

// RecordExpected opens a check row. It must be followed by RecordActual.
func (r *Report) RecordExpected(expected string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flushPending()
	r.pending = &Step{Action: " ", Expected: expected}
}

// RecordExpectedWait opens a check row for a check that waits up to timeout
func (r *Report) RecordExpectedWait(expected string, timeout time.Duration) {
	if timeout > 0 {
		expected = fmt.Sprintf("Waiting up to %s seconds %s", wait.Seconds(timeout), expected)
	}
	r.RecordExpected(expected)
}

// RecordActual completes the open check row. Checks always capture a screenshot on real browsers.
func (r *Report) RecordActual(actual string, success Success) {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := Step{Action: " ", Expected: ""}
	if r.pending != nil {
		step = *r.pending
		r.pending = nil
	}

	step.Actual = actual
	step.Result = ""
	step.Status = StatusPass
	if success == FAIL {
		step.Status = StatusFail
	}
	if r.opts.RealBrowser {
		step.Screenshot, step.Actual = r.captureScreenshot(step.Actual)
	}
	r.appendStep(step)
}

// RecordActualWait completes the open check row, noting how long the check waited
func (r *Report) RecordActualWait(actual string, waited time.Duration, success Success) {
	if waited > 0 {
		actual = fmt.Sprintf("After waiting for %s seconds, %s", wait.Seconds(waited), lowerFirst(actual))
	}
	r.RecordActual(actual, success)
}

// AddError counts a failure that fails the test at finalize
func (r *Report) AddError() {
	r.AddErrors(1)
}

// AddErrors counts n failures
func (r *Report) AddErrors(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors += n
}

// Errors returns the number of failures counted so far
func (r *Report) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// Steps returns a copy of the recorded rows
func (r *Report) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make([]Step, len(r.steps))
	copy(steps, r.steps)
	return steps
}

// Passes returns the number of passing rows
func (r *Report) Passes() int {
	return r.count(StatusPass)
}

// Fails returns the number of failing rows
func (r *Report) Fails() int {
	return r.count(StatusFail)
}

// Checks returns the number of rows that need a manual look (warnings, skips)
func (r *Report) Checks() int {
	return r.count(StatusCheck)
}

func (r *Report) count(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// flushPending writes an open check row that never received its actual outcome
func (r *Report) flushPending() {
	if r.pending == nil {
		return
	}
	step := *r.pending
	r.pending = nil
	step.Status = StatusCheck
	step.Result = strings.ToLower(string(WARNING))
	r.appendStep(step)
}

func (r *Report) appendStep(step Step) {
	now := time.Now()
	step.Number = len(r.steps) + 1
	step.RunID = r.info.RunID
	step.Test = r.info.Name
	step.StepTime = now.Sub(r.last).Milliseconds()
	step.TotalTime = now.Sub(r.start).Milliseconds()
	step.Time = now
	r.last = now

	r.steps = append(r.steps, step)

	if r.out != nil {
		if _, err := r.out.WriteString(renderRow(step)); err != nil {
			log.Printf("Warning: failed to write report row %d: %v", step.Number, err)
		}
	}

	if r.opts.Sink != nil {
		r.opts.Sink.Publish(step)
	}
}

// captureScreenshot saves a screenshot next to the report and returns its
// file name along with the actual text extended by the image link
func (r *Report) captureScreenshot(actual string) (string, string) {
	if r.opts.Screenshotter == nil {
		return "", actual + noScreenshot
	}

	name := ImageName(time.Now())
	data, err := r.opts.Screenshotter.Capture()
	if err == nil {
		err = os.WriteFile(filepath.Join(r.dir, name), data, 0644)
	}
	if err != nil {
		log.Printf("Warning: failed to capture screenshot: %v", err)
		return "", actual + noScreenshot
	}

	r.screenshots = append(r.screenshots, name)
	return name, actual + imageLink(name)
}

// ImageName returns a unique screenshot file name: <unix millis>_<10 random chars>.png
func ImageName(t time.Time) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
	return fmt.Sprintf("%d_%s.png", t.UnixMilli(), random)
}

// FormatHTML keeps whitespace of pre-formatted text visible in the report
func FormatHTML(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, " ", "&nbsp;"), "\n", "<br/>")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
