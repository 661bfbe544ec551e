package queue

import (
	"sync"

	"github.com/ahrdadan/selenified/internal/report"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
const subscriberBuffer = 64

// Event is a change of a run: a status or progress update, or a recorded step
type Event struct {
	RunID    string       `json:"run_id"`
	Status   RunStatus    `json:"status"`
	Progress int          `json:"progress,omitempty"`
	Message  string       `json:"message,omitempty"`
	Step     *report.Step `json:"step,omitempty"`
}

// EventHub fans run events out to subscribers
type EventHub struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[string][]chan Event)}
}

// Subscribe returns a channel of the run's events
func (h *EventHub) Subscribe(runID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	h.subscribers[runID] = append(h.subscribers[runID], ch)
	return ch
}

// Unsubscribe removes and closes a subscription
func (h *EventHub) Unsubscribe(runID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[runID]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[runID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(h.subscribers[runID]) == 0 {
		delete(h.subscribers, runID)
	}
}

// Emit sends an event to the run's subscribers, dropping it for any whose
// buffer is full
func (h *EventHub) Emit(runID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[runID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns how many subscriptions the run has
func (h *EventHub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[runID])
}

// Close closes every subscription
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for runID, subs := range h.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subscribers, runID)
	}
}
