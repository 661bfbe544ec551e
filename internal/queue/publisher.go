package queue

import (
	"encoding/json"
	"log"

	"github.com/ahrdadan/selenified/internal/report"
	"github.com/nats-io/nats.go/jetstream"
)

// StepPublisher is the report sink of a queued run. It emits each step to the
// run's subscribers and publishes it on the run's step subject.
type StepPublisher struct {
	runID string
	hub   *EventHub
	js    jetstream.JetStream
}

// NewStepPublisher creates a publisher; js may be nil to skip NATS
func NewStepPublisher(runID string, hub *EventHub, js jetstream.JetStream) *StepPublisher {
	return &StepPublisher{runID: runID, hub: hub, js: js}
}

// Publish implements report.Sink
func (p *StepPublisher) Publish(step report.Step) {
	step.RunID = p.runID
	if p.hub != nil {
		p.hub.Emit(p.runID, Event{
			RunID:   p.runID,
			Status:  RunStatusRunning,
			Message: step.Action,
			Step:    &step,
		})
	}

	if p.js == nil {
		return
	}
	data, err := json.Marshal(step)
	if err != nil {
		log.Printf("Warning: failed to encode step %d of %s: %v", step.Number, p.runID, err)
		return
	}
	if _, err := p.js.PublishAsync(StepSubject(p.runID), data); err != nil {
		log.Printf("Warning: failed to publish step %d of %s: %v", step.Number, p.runID, err)
	}
}
