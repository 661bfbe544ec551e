package report

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Summary is the outcome of a finalized report
type Summary struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Name        string    `json:"name" yaml:"name"`
	Browser     string    `json:"browser,omitempty" yaml:"browser,omitempty"`
	Status      Result    `json:"status" yaml:"status"`
	Outcome     Result    `json:"outcome" yaml:"outcome"`
	Steps       int       `json:"steps" yaml:"steps"`
	Passed      int       `json:"passed" yaml:"passed"`
	Failed      int       `json:"failed" yaml:"failed"`
	Checks      int       `json:"checks" yaml:"checks"`
	Errors      int       `json:"errors" yaml:"errors"`
	Started     time.Time `json:"started" yaml:"started"`
	Finished    time.Time `json:"finished" yaml:"finished"`
	Runtime     string    `json:"runtime" yaml:"runtime"`
	File        string    `json:"file" yaml:"file"`
	Package     string    `json:"package,omitempty" yaml:"package,omitempty"`
	PDF         string    `json:"pdf,omitempty" yaml:"pdf,omitempty"`
	Screenshots []string  `json:"screenshots,omitempty" yaml:"screenshots,omitempty"`
}

// Succeeded reports whether the test finished without failures or errors
func (s Summary) Succeeded() bool {
	return s.Outcome == SUCCESS
}

// Finalize closes the HTML document and fills in the totals. The overall
// result is SUCCESS only when there were no failing steps, no counted errors
// and status is SUCCESS. Calling Finalize again returns the first summary.
func (r *Report) Finalize(status Result) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.summary != nil {
		return *r.summary, nil
	}

	r.flushPending()

	if r.out != nil {
		if _, err := r.out.WriteString(footer); err != nil {
			log.Printf("Warning: failed to write report footer: %v", err)
		}
		if err := r.out.Close(); err != nil {
			log.Printf("Warning: failed to close report file: %v", err)
		}
		r.out = nil
	}

	passes, fails, checks := 0, 0, 0
	for _, s := range r.steps {
		switch s.Status {
		case StatusPass:
			passes++
		case StatusFail:
			fails++
		default:
			checks++
		}
	}

	finished := time.Now()
	summary := Summary{
		RunID:       r.info.RunID,
		Name:        r.info.Name,
		Browser:     r.info.Browser,
		Status:      status,
		Outcome:     outcome(status, fails, r.errors),
		Steps:       passes + fails,
		Passed:      passes,
		Failed:      fails,
		Checks:      checks,
		Errors:      r.errors,
		Started:     r.start,
		Finished:    finished,
		Runtime:     formatClock(finished.Sub(r.start)),
		File:        r.file,
		Screenshots: append([]string(nil), r.screenshots...),
	}
	r.summary = &summary

	if err := r.fillPlaceholders(map[string]string{
		placeholderSteps:    strconv.Itoa(passes + fails),
		placeholderPassed:   strconv.Itoa(passes),
		placeholderFailed:   strconv.Itoa(fails),
		placeholderResult:   overallResult(status, fails, r.errors),
		placeholderRuntime:  summary.Runtime,
		placeholderFinished: finished.Format(clockLayout),
	}); err != nil {
		return summary, err
	}

	if r.opts.PackageResults {
		pkg, err := packageResults(r.dir, r.file, r.screenshots)
		if err != nil {
			log.Printf("Warning: failed to package results: %v", err)
		} else {
			summary.Package = pkg
		}
	}

	if r.opts.GeneratePDF {
		pdf, err := writePDF(r.info, summary, r.steps, r.dir)
		if err != nil {
			log.Printf("Warning: failed to generate pdf: %v", err)
		} else {
			summary.PDF = pdf
		}
	}

	if err := writeSummary(r.file, summary); err != nil {
		log.Printf("Warning: failed to write report summary: %v", err)
	}

	*r.summary = summary
	return summary, nil
}

// Summary returns the finalized summary, or false before Finalize ran
func (r *Report) Summary() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return Summary{}, false
	}
	return *r.summary, true
}

// fillPlaceholders substitutes the first occurrence of each placeholder, which
// always lives in the header above any recorded step text
func (r *Report) fillPlaceholders(values map[string]string) error {
	data, err := os.ReadFile(r.file)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	content := string(data)
	for placeholder, value := range values {
		content = strings.Replace(content, placeholder, value, 1)
	}

	if err := os.WriteFile(r.file, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	return nil
}
