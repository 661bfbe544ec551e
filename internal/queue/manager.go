// Package queue runs submitted scenarios one at a time from a NATS JetStream
// work queue and fans their progress and steps out to subscribers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ahrdadan/selenified/internal/report"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the JetStream work queue of runs
	StreamName = "SELENIFIED_RUNS"
	// SubjectName is the subject runs are published on
	SubjectName = "selenified.runs"
	// ConsumerName is the durable consumer the worker fetches from
	ConsumerName = "selenified-worker"
	// StepStreamName keeps recently recorded steps of every run
	StepStreamName = "SELENIFIED_STEPS"
	// StepSubjectPrefix is followed by the run ID
	StepSubjectPrefix = "selenified.steps."

	publishTimeout   = 5 * time.Second
	inProgressPeriod = time.Minute
)

// StepSubject returns the subject the steps of a run are published on
func StepSubject(runID string) string {
	return StepSubjectPrefix + runID
}

// ProgressCallback reports that current of total steps are done
type ProgressCallback func(current, total int, message string)

// RunProcessor executes a run and returns its report summary. An error means
// the run could not be executed and may be retried.
type RunProcessor interface {
	Process(ctx context.Context, run *Run, progress ProgressCallback, sink report.Sink) (*report.Summary, error)
}

// Options bound what submitted runs may ask for
type Options struct {
	RunTTL     time.Duration
	MaxTimeout time.Duration
	MaxRetries int
}

// Manager owns the run queue, the run store and the event hub
type Manager struct {
	js       jetstream.JetStream
	store    *Store
	events   *EventHub
	consumer jetstream.Consumer
	opts     Options

	mu        sync.Mutex
	running   map[string]context.CancelFunc
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager sets up the streams and the worker consumer
func NewManager(js jetstream.JetStream, opts Options) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		js:      js,
		store:   NewStore(time.Hour),
		events:  NewEventHub(),
		opts:    opts,
		running: make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := m.setupStreams(); err != nil {
		cancel()
		m.store.Stop()
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}
	return m, nil
}

func (m *Manager) setupStreams() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Selenified run queue",
		Subjects:    []string{SubjectName},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}

	if _, err := m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StepStreamName,
		Description: "Selenified report steps",
		Subjects:    []string{StepSubjectPrefix + ">"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      time.Hour,
		Storage:     jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StepStreamName, err)
	}

	consumer, err := m.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    5,
		AckWait:       5 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	m.consumer = consumer
	return nil
}

// Start runs the worker loop until Stop
func (m *Manager) Start(processor RunProcessor) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return nil
	}
	if m.consumer == nil {
		m.mu.Unlock()
		return errors.New("queue consumer is not set up")
	}
	m.isRunning = true
	m.mu.Unlock()

	log.Println("Starting run queue worker...")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for m.ctx.Err() == nil {
			msgs, err := m.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				select {
				case <-m.ctx.Done():
				case <-time.After(time.Second):
				}
				continue
			}
			for msg := range msgs.Messages() {
				m.processMessage(msg, processor)
			}
		}
	}()
	return nil
}

// Stop cancels running runs, waits for the worker and closes subscriptions
func (m *Manager) Stop() {
	m.mu.Lock()
	wasRunning := m.isRunning
	m.isRunning = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.store.Stop()
	m.events.Close()
	if wasRunning {
		log.Println("Run queue worker stopped")
	}
}

// Enqueue stores a run and publishes it to the queue
func (m *Manager) Enqueue(run *Run) error {
	m.applyLimits(run)
	m.store.Save(run)

	data, err := run.ToJSON()
	if err != nil {
		m.store.Delete(run.ID)
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := m.js.Publish(ctx, SubjectName, data); err != nil {
		m.store.Delete(run.ID)
		return fmt.Errorf("failed to publish run: %w", err)
	}

	m.events.Emit(run.ID, Event{RunID: run.ID, Status: run.Status, Message: "Run queued"})
	return nil
}

// EnqueueWithIdempotency returns the live run submitted with the same key
// instead of enqueuing a duplicate. The bool reports a duplicate.
func (m *Manager) EnqueueWithIdempotency(run *Run) (*Run, bool, error) {
	if run.IdempotencyKey != "" {
		if existing, ok := m.store.GetByIdempotencyKey(run.IdempotencyKey); ok {
			cp := *existing
			return &cp, true, nil
		}
	}
	if err := m.Enqueue(run); err != nil {
		return nil, false, err
	}
	return run, false, nil
}

func (m *Manager) applyLimits(run *Run) {
	if m.opts.RunTTL > 0 && run.Request.ResultTTL <= 0 {
		run.ExpiresAt = time.Unix(run.CreatedAt, 0).Add(m.opts.RunTTL).Unix()
	}
	if limit := m.opts.MaxTimeout; limit > 0 && run.TimeoutDuration() > limit {
		run.Timeout = int(limit.Seconds())
	}
	if m.opts.MaxRetries > 0 && run.MaxRetries > m.opts.MaxRetries {
		run.MaxRetries = m.opts.MaxRetries
	}
}

// GetRun returns a run by ID
func (m *Manager) GetRun(id string) (*Run, error) {
	return m.store.Get(id)
}

// ListRuns returns the live runs, newest first
func (m *Manager) ListRuns() []*Run {
	return m.store.List()
}

// CancelRun cancels a run that has not finished, stopping it if it is running
func (m *Manager) CancelRun(id string) (*Run, error) {
	run, err := m.store.Modify(id, func(r *Run) error {
		if r.Status.Finished() {
			return fmt.Errorf("%w: %s is %s", ErrRunFinished, id, r.Status)
		}
		r.SetStatus(RunStatusCanceled)
		r.Message = "Run canceled"
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	stop := m.running[id]
	m.mu.Unlock()
	if stop != nil {
		stop()
	}

	m.events.Emit(id, Event{RunID: id, Status: run.Status, Progress: run.Progress, Message: run.Message})
	return run, nil
}

// Subscribe returns a channel of the run's events
func (m *Manager) Subscribe(runID string) <-chan Event {
	return m.events.Subscribe(runID)
}

// Unsubscribe ends a subscription
func (m *Manager) Unsubscribe(runID string, ch <-chan Event) {
	m.events.Unsubscribe(runID, ch)
}

// Publisher returns the sink the steps of a run are recorded to
func (m *Manager) Publisher(runID string) *StepPublisher {
	return NewStepPublisher(runID, m.events, m.js)
}

// update modifies a stored run and emits its new state
func (m *Manager) update(id string, fn func(*Run)) (*Run, error) {
	run, err := m.store.Modify(id, func(r *Run) error {
		fn(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Emit(id, Event{RunID: id, Status: run.Status, Progress: run.Progress, Message: run.Message})
	return run, nil
}

func (m *Manager) processMessage(msg jetstream.Msg, processor RunProcessor) {
	queued, err := FromJSON(msg.Data())
	if err != nil {
		log.Printf("Warning: dropping malformed run message: %v", err)
		_ = msg.Term()
		return
	}

	stored, err := m.store.Get(queued.ID)
	if err != nil {
		log.Printf("Warning: dropping run %s: %v", queued.ID, err)
		_ = msg.Ack()
		return
	}
	if stored.Status == RunStatusCanceled || stored.Status.Finished() {
		_ = msg.Ack()
		return
	}
	if stored.Status == RunStatusRetrying && stored.NextRetryAt > 0 {
		if at := time.Unix(stored.NextRetryAt, 0); time.Now().Before(at) {
			_ = msg.NakWithDelay(time.Until(at))
			return
		}
	}

	total := len(stored.Request.Scenario.Steps)
	run, err := m.update(stored.ID, func(r *Run) {
		r.SetStatus(RunStatusRunning)
		r.SetProgress(0, total, "Run started")
	})
	if err != nil {
		_ = msg.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, run.TimeoutDuration())
	defer cancel()
	m.mu.Lock()
	m.running[run.ID] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, run.ID)
		m.mu.Unlock()
	}()

	stopHeartbeat := heartbeat(msg, inProgressPeriod)
	summary, err := processor.Process(ctx, run, func(current, total int, message string) {
		_, _ = m.update(run.ID, func(r *Run) {
			if r.Status == RunStatusRunning {
				r.SetProgress(current, total, message)
			}
		})
	}, m.Publisher(run.ID))
	stopHeartbeat()

	if latest, gerr := m.store.Get(run.ID); gerr == nil && latest.Status == RunStatusCanceled {
		_ = msg.Ack()
		return
	}

	if err != nil {
		m.fail(run, err)
		_ = msg.Ack()
		return
	}

	_, _ = m.update(run.ID, func(r *Run) { r.SetSummary(*summary) })
	_ = msg.Ack()
}

// fail schedules a retry of a run that could not be executed, or fails it
func (m *Manager) fail(run *Run, cause error) {
	if !run.CanRetry() {
		_, _ = m.update(run.ID, func(r *Run) { r.SetError(cause.Error()) })
		return
	}

	retry, err := m.update(run.ID, func(r *Run) {
		r.LastError = cause.Error()
		r.PrepareRetry()
		r.Message = fmt.Sprintf("Retrying (%d/%d): %s", r.RetryCount, r.MaxRetries, cause)
	})
	if err != nil {
		return
	}

	data, err := retry.ToJSON()
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		_, err = m.js.Publish(ctx, SubjectName, data)
	}
	if err != nil {
		log.Printf("Warning: failed to re-enqueue run %s: %v", run.ID, err)
		_, _ = m.update(run.ID, func(r *Run) { r.SetError(cause.Error()) })
	}
}

// heartbeat keeps a long run's message from being redelivered
func heartbeat(msg jetstream.Msg, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				_ = msg.InProgress()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
