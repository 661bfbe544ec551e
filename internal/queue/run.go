package queue

import (
	"time"

	"github.com/ahrdadan/selenified/internal/report"
	"github.com/ahrdadan/selenified/internal/scenario"
	"github.com/google/uuid"
)

// Default values for run configuration
const (
	DefaultRunTimeout = 10 * time.Minute
	DefaultMaxRetries = 2
	DefaultResultTTL  = 7 * 24 * time.Hour
	DefaultRetryDelay = 5 * time.Second
	MaxRetryDelay     = 5 * time.Minute
)

// RunStatus is where a run is in its lifecycle
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusPassed   RunStatus = "passed"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
	RunStatusRetrying RunStatus = "retrying"
)

// Finished reports whether the status is final
func (s RunStatus) Finished() bool {
	return s == RunStatusPassed || s == RunStatusFailed || s == RunStatusCanceled
}

// NotifyConfig holds notification settings for a run
type NotifyConfig struct {
	WebhookURL string `json:"webhook_url,omitempty" validate:"omitempty,url"`
	// Secret signs the webhook body into the X-Selenified-Signature header
	Secret string `json:"secret,omitempty"`
}

// RetryConfig controls how a run is retried when it cannot be executed.
// Failing checks are a result, not a reason to retry.
type RetryConfig struct {
	MaxRetries    int     `json:"max_retries" validate:"gte=0"`
	RetryDelay    int     `json:"retry_delay" validate:"gte=0"` // seconds
	BackoffFactor float64 `json:"backoff_factor" validate:"gte=0"`
}

// ProgressInfo holds step progress of a run
type ProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// RunRequest submits a scenario for execution
type RunRequest struct {
	Scenario       scenario.Scenario `json:"scenario" validate:"required"`
	Browser        string            `json:"browser,omitempty"`                  // overrides the scenario's browser
	Timeout        int               `json:"timeout,omitempty" validate:"gte=0"` // seconds
	Notify         *NotifyConfig     `json:"notify,omitempty"`
	Retry          *RetryConfig      `json:"retry,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	ResultTTL      int               `json:"result_ttl,omitempty" validate:"gte=0"` // seconds
}

// Run is a queued scenario execution
type Run struct {
	ID             string          `json:"run_id"`
	Name           string          `json:"name"`
	Status         RunStatus       `json:"status"`
	Progress       int             `json:"progress"`
	ProgressInfo   *ProgressInfo   `json:"progress_info,omitempty"`
	Message        string          `json:"message,omitempty"`
	Request        RunRequest      `json:"request"`
	Summary        *report.Summary `json:"summary,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	StartedAt      int64           `json:"started_at,omitempty"`
	CompletedAt    int64           `json:"completed_at,omitempty"`
	ExpiresAt      int64           `json:"expires_at,omitempty"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	NextRetryAt    int64           `json:"next_retry_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Timeout        int             `json:"timeout"`
}

// NewRun creates a queued run from a request
func NewRun(req RunRequest) *Run {
	now := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = int(DefaultRunTimeout.Seconds())
	}

	maxRetries := DefaultMaxRetries
	if req.Retry != nil {
		maxRetries = req.Retry.MaxRetries
	}

	ttl := DefaultResultTTL
	if req.ResultTTL > 0 {
		ttl = time.Duration(req.ResultTTL) * time.Second
	}

	return &Run{
		ID:             generateRunID(),
		Name:           req.Scenario.Name,
		Status:         RunStatusQueued,
		Request:        req,
		CreatedAt:      now.Unix(),
		UpdatedAt:      now.Unix(),
		ExpiresAt:      now.Add(ttl).Unix(),
		MaxRetries:     maxRetries,
		IdempotencyKey: req.IdempotencyKey,
		Timeout:        timeout,
	}
}

// SetStatus updates the run status and its timestamps
func (r *Run) SetStatus(status RunStatus) {
	now := time.Now().Unix()
	r.Status = status
	r.UpdatedAt = now
	if status == RunStatusRunning && r.StartedAt == 0 {
		r.StartedAt = now
	}
	if status.Finished() {
		r.CompletedAt = now
	}
}

// SetProgress records that current of total steps are done
func (r *Run) SetProgress(current, total int, message string) {
	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}
	r.Progress = percent
	r.Message = message
	r.ProgressInfo = &ProgressInfo{Current: current, Total: total, Percent: percent, Message: message}
	r.UpdatedAt = time.Now().Unix()
}

// SetSummary completes the run with its report summary
func (r *Run) SetSummary(s report.Summary) {
	r.Summary = &s
	r.Progress = 100
	r.Message = "Run finished with " + string(s.Outcome)
	if s.Succeeded() {
		r.SetStatus(RunStatusPassed)
	} else {
		r.SetStatus(RunStatusFailed)
	}
}

// SetError completes the run as failed without a report
func (r *Run) SetError(err string) {
	r.Error = err
	r.LastError = err
	r.SetStatus(RunStatusFailed)
}

// CanRetry reports whether another attempt is allowed
func (r *Run) CanRetry() bool {
	return r.RetryCount < r.MaxRetries
}

// PrepareRetry schedules the next attempt with exponential backoff
func (r *Run) PrepareRetry() {
	r.RetryCount++
	r.SetStatus(RunStatusRetrying)
	r.NextRetryAt = time.Now().Add(r.RetryDelay()).Unix()
}

// RetryDelay is the backoff before the current retry: the base delay times
// the backoff factor for every earlier retry, capped at MaxRetryDelay
func (r *Run) RetryDelay() time.Duration {
	factor := 2.0
	base := DefaultRetryDelay
	if rc := r.Request.Retry; rc != nil {
		if rc.BackoffFactor > 0 {
			factor = rc.BackoffFactor
		}
		if rc.RetryDelay > 0 {
			base = time.Duration(rc.RetryDelay) * time.Second
		}
	}

	delay := base
	for i := 1; i < r.RetryCount; i++ {
		delay = time.Duration(float64(delay) * factor)
		if delay > MaxRetryDelay {
			break
		}
	}
	return min(delay, MaxRetryDelay)
}

// IsExpired reports whether the run is past its TTL
func (r *Run) IsExpired() bool {
	return r.ExpiresAt != 0 && time.Now().Unix() > r.ExpiresAt
}

// TimeoutDuration returns the run timeout
func (r *Run) TimeoutDuration() time.Duration {
	if r.Timeout <= 0 {
		return DefaultRunTimeout
	}
	return time.Duration(r.Timeout) * time.Second
}

// RunCreatedResponse is returned when a run is submitted
type RunCreatedResponse struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	StatusURL string    `json:"status_url"`
	Events    struct {
		SSEURL string `json:"sse_url"`
		WSURL  string `json:"ws_url"`
	} `json:"events"`
}

func generateRunID() string {
	return "run_" + uuid.New().String()[:8]
}
