package queue

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ahrdadan/selenified/internal/report"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/scenario"
	"github.com/ahrdadan/selenified/internal/security"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJS struct {
	jetstream.JetStream

	mu        sync.Mutex
	published map[string][][]byte
	streams   []string
	failWith  error
}

func (f *fakeJS) CreateOrUpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, cfg.Name)
	return nil, nil
}

func (f *fakeJS) CreateOrUpdateConsumer(context.Context, string, jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	return nil, nil
}

func (f *fakeJS) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.published[subject] = append(f.published[subject], data)
	return &jetstream.PubAck{Stream: StreamName}, nil
}

func (f *fakeJS) PublishAsync(subject string, data []byte, _ ...jetstream.PublishOpt) (jetstream.PubAckFuture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subject] = append(f.published[subject], data)
	return nil, nil
}

func (f *fakeJS) count(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[subject])
}

type fakeMsg struct {
	jetstream.Msg
	data   []byte
	acked  bool
	naked  time.Duration
	termed bool
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error { m.acked = true; return nil }
func (m *fakeMsg) NakWithDelay(d time.Duration) error { m.naked = d; return nil }
func (m *fakeMsg) Term() error { m.termed = true; return nil }
func (m *fakeMsg) InProgress() error { return nil }

type fakeProcessor struct {
	summary *report.Summary
	err     error
	calls   int
}

func (p *fakeProcessor) Process(_ context.Context, run *Run, progress ProgressCallback, sink report.Sink) (*report.Summary, error) {
	p.calls++
	progress(1, 1, "[Step 1/1] goto")
	sink.Publish(report.Step{Number: 1, Action: "Loading https://example.com", Status: report.StatusPass})
	return p.summary, p.err
}

func newManager(t *testing.T, opts Options) (*Manager, *fakeJS) {
	t.Helper()
	js := &fakeJS{published: make(map[string][][]byte)}
	m, err := NewManager(js, opts)
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, js
}

func newRequest() RunRequest {
	return RunRequest{Scenario: scenario.Scenario{
		Name:  "Smoke",
		Steps: []scenario.Step{{Action: "goto", Value: "https://example.com"}},
	}}
}

func enqueued(t *testing.T, m *Manager, js *fakeJS, run *Run) *fakeMsg {
	t.Helper()
	require.NoError(t, m.Enqueue(run))
	js.mu.Lock()
	defer js.mu.Unlock()
	msgs := js.published[SubjectName]
	require.NotEmpty(t, msgs)
	return &fakeMsg{data: msgs[len(msgs)-1]}
}

func TestNewRunDefaults(t *testing.T) {
	run := NewRun(newRequest())

	assert.Regexp(t, `^run_[0-9a-f]{8}$`, run.ID)
	assert.Equal(t, "Smoke", run.Name)
	assert.Equal(t, RunStatusQueued, run.Status)
	assert.Equal(t, DefaultMaxRetries, run.MaxRetries)
	assert.Equal(t, DefaultRunTimeout, run.TimeoutDuration())
	assert.False(t, run.IsExpired())

	req := newRequest()
	req.Retry = &RetryConfig{MaxRetries: 0}
	assert.False(t, NewRun(req).CanRetry())
}

func TestRetryBackoff(t *testing.T) {
	req := newRequest()
	req.Retry = &RetryConfig{MaxRetries: 10, RetryDelay: 2, BackoffFactor: 3}
	run := NewRun(req)

	var delays []time.Duration
	for i := 0; i < 4; i++ {
		run.PrepareRetry()
		delays = append(delays, run.RetryDelay())
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 6 * time.Second, 18 * time.Second, 54 * time.Second}, delays)
	assert.Equal(t, RunStatusRetrying, run.Status)

	for i := 0; i < 10; i++ {
		run.PrepareRetry()
	}
	assert.Equal(t, MaxRetryDelay, run.RetryDelay())
}

func TestRunSummary(t *testing.T) {
	run := NewRun(newRequest())
	run.SetStatus(RunStatusRunning)
	run.SetProgress(1, 4, "step")
	assert.Equal(t, 25, run.Progress)
	assert.NotZero(t, run.StartedAt)

	run.SetSummary(report.Summary{Outcome: report.FAILURE})
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, 100, run.Progress)
	assert.NotZero(t, run.CompletedAt)

	run = NewRun(newRequest())
	run.SetSummary(report.Summary{Outcome: report.SUCCESS})
	assert.Equal(t, RunStatusPassed, run.Status)
}

func TestStore(t *testing.T) {
	s := NewStore(time.Hour)
	defer s.Stop()

	req := newRequest()
	req.IdempotencyKey = "key-1"
	run := NewRun(req)
	s.Save(run)

	got, err := s.Get(run.ID)
	require.NoError(t, err)
	got.Status = RunStatusFailed
	again, _ := s.Get(run.ID)
	assert.Equal(t, RunStatusQueued, again.Status, "Get returns a copy")

	byKey, ok := s.GetByIdempotencyKey("key-1")
	require.True(t, ok)
	assert.Equal(t, run.ID, byKey.ID)

	_, err = s.Get("run_missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	expired := NewRun(newRequest())
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	s.Save(expired)
	assert.Len(t, s.List(), 1)
	assert.Equal(t, 1, s.cleanupExpired())

	s.Delete(run.ID)
	_, ok = s.GetByIdempotencyKey("key-1")
	assert.False(t, ok)
}

func TestEventHub(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe("run_1")
	other := h.Subscribe("run_2")
	assert.Equal(t, 1, h.Subscribers("run_1"))

	h.Emit("run_1", Event{RunID: "run_1", Status: RunStatusRunning})
	select {
	case ev := <-ch:
		assert.Equal(t, RunStatusRunning, ev.Status)
	default:
		t.Fatal("expected an event")
	}
	assert.Empty(t, other)

	h.Unsubscribe("run_1", ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers("run_1"))

	h.Close()
	_, open = <-other
	assert.False(t, open)
}

func TestManagerSetsUpStreams(t *testing.T) {
	_, js := newManager(t, Options{})
	assert.Equal(t, []string{StreamName, StepStreamName}, js.streams)
}

func TestEnqueueWithIdempotency(t *testing.T) {
	m, js := newManager(t, Options{MaxTimeout: time.Minute, MaxRetries: 1})

	req := newRequest()
	req.IdempotencyKey = "abc"
	req.Timeout = 3600
	first, dup, err := m.EnqueueWithIdempotency(NewRun(req))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 60, first.Timeout)
	assert.Equal(t, 1, first.MaxRetries)

	second, dup, err := m.EnqueueWithIdempotency(NewRun(req))
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, js.count(SubjectName))
	assert.Len(t, m.ListRuns(), 1)
}

func TestEnqueuePublishFailure(t *testing.T) {
	m, js := newManager(t, Options{})
	js.failWith = errors.New("no responders")

	run := NewRun(newRequest())
	assert.Error(t, m.Enqueue(run))
	_, err := m.GetRun(run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestProcessMessagePasses(t *testing.T) {
	m, js := newManager(t, Options{})
	run := NewRun(newRequest())
	msg := enqueued(t, m, js, run)
	events := m.Subscribe(run.ID)

	p := &fakeProcessor{summary: &report.Summary{Name: "Smoke", Outcome: report.SUCCESS}}
	m.processMessage(msg, p)

	assert.True(t, msg.acked)
	got, err := m.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPassed, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "Smoke", got.Summary.Name)
	assert.Equal(t, 1, js.count(StepSubject(run.ID)))

	var steps, statuses int
	for len(events) > 0 {
		ev := <-events
		if ev.Step != nil {
			steps++
			assert.Equal(t, run.ID, ev.Step.RunID)
		} else {
			statuses++
		}
	}
	assert.Equal(t, 1, steps)
	assert.Equal(t, 3, statuses) // running, progress, passed
}

func TestProcessMessageRetries(t *testing.T) {
	m, js := newManager(t, Options{})
	req := newRequest()
	req.Retry = &RetryConfig{MaxRetries: 1, RetryDelay: 30}
	run := NewRun(req)
	msg := enqueued(t, m, js, run)

	p := &fakeProcessor{err: errors.New("browser did not start")}
	m.processMessage(msg, p)

	assert.True(t, msg.acked)
	got, err := m.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRetrying, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "browser did not start", got.LastError)
	assert.Equal(t, 2, js.count(SubjectName))

	// the republished run waits for its retry delay
	js.mu.Lock()
	retry := &fakeMsg{data: js.published[SubjectName][1]}
	js.mu.Unlock()
	m.processMessage(retry, p)
	assert.Greater(t, retry.naked, time.Duration(0))
	assert.Equal(t, 1, p.calls)

	m.fail(got, errors.New("still broken"))
	got, _ = m.GetRun(run.ID)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "still broken", got.Error)
}

func TestCancelRun(t *testing.T) {
	m, js := newManager(t, Options{})
	run := NewRun(newRequest())
	msg := enqueued(t, m, js, run)

	canceled, err := m.CancelRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCanceled, canceled.Status)

	_, err = m.CancelRun(run.ID)
	assert.ErrorIs(t, err, ErrRunFinished)

	p := &fakeProcessor{}
	m.processMessage(msg, p)
	assert.True(t, msg.acked)
	assert.Equal(t, 0, p.calls)
}

func TestProcessMessageMalformed(t *testing.T) {
	m, _ := newManager(t, Options{})
	msg := &fakeMsg{data: []byte("{")}
	m.processMessage(msg, &fakeProcessor{})
	assert.True(t, msg.termed)
}

func TestStepPublisherWithoutNATS(t *testing.T) {
	hub := NewEventHub()
	ch := hub.Subscribe("run_x")
	NewStepPublisher("run_x", hub, nil).Publish(report.Step{Number: 3, Action: "Clicking"})

	ev := <-ch
	require.NotNil(t, ev.Step)
	assert.Equal(t, "run_x", ev.Step.RunID)
	assert.Equal(t, 3, ev.Step.Number)
	assert.Equal(t, "Clicking", ev.Message)
}

func TestSendWebhookSigns(t *testing.T) {
	got := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- r
		bodies <- body
	}))
	defer srv.Close()

	p := NewScenarioProcessor(config.DefaultConfig())
	p.sendWebhook("run_abc", NotifyConfig{WebhookURL: srv.URL, Secret: "s3cret"}, report.Summary{Name: "Login", Outcome: report.SUCCESS})

	r := <-got
	body := <-bodies
	assert.Equal(t, "run.finished", r.Header.Get("X-Selenified-Event"))
	assert.Equal(t, "sha256="+security.SignWebhook(body, "s3cret"), r.Header.Get("X-Selenified-Signature"))
	assert.Contains(t, string(body), `"run_id":"run_abc"`)
}
