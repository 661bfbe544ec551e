package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRunNotFound is returned for unknown or expired run IDs
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished is returned when canceling a run that already ended
	ErrRunFinished = errors.New("run already finished")
)

// Store keeps runs in memory until their TTL passes
type Store struct {
	runs           map[string]*Run
	idempotencyMap map[string]string // idempotency key -> run ID
	mu             sync.RWMutex
	stopCleanup    chan struct{}
	stopOnce       sync.Once
}

// NewStore creates a store that drops expired runs every interval
func NewStore(interval time.Duration) *Store {
	s := &Store{
		runs:           make(map[string]*Run),
		idempotencyMap: make(map[string]string),
		stopCleanup:    make(chan struct{}),
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go s.cleanupLoop(interval)
	return s
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.cleanupExpired(); n > 0 {
				log.Printf("Cleaned up %d expired runs", n)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes expired runs and returns how many were removed
func (s *Store) cleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, run := range s.runs {
		if !run.IsExpired() {
			continue
		}
		if run.IdempotencyKey != "" {
			delete(s.idempotencyMap, run.IdempotencyKey)
		}
		delete(s.runs, id)
		deleted++
	}
	return deleted
}

// Stop ends the cleanup loop
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// Save adds or replaces a run
func (s *Store) Save(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	if run.IdempotencyKey != "" {
		s.idempotencyMap[run.IdempotencyKey] = run.ID
	}
}

// GetByIdempotencyKey returns the live run submitted with key
func (s *Store) GetByIdempotencyKey(key string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idempotencyMap[key]
	if !ok {
		return nil, false
	}
	run, ok := s.runs[id]
	if !ok || run.IsExpired() {
		return nil, false
	}
	return run, true
}

// Get returns a copy of a run
func (s *Store) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok || run.IsExpired() {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	cp := *run
	return &cp, nil
}

// Modify applies fn to the stored run under the store lock and returns a copy
// of the result
func (s *Store) Modify(id string, fn func(*Run) error) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err := fn(run); err != nil {
		return nil, err
	}
	cp := *run
	return &cp, nil
}

// Delete removes a run
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok && run.IdempotencyKey != "" {
		delete(s.idempotencyMap, run.IdempotencyKey)
	}
	delete(s.runs, id)
}

// List returns copies of the live runs, newest first
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		if run.IsExpired() {
			continue
		}
		cp := *run
		runs = append(runs, &cp)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt != runs[j].CreatedAt {
			return runs[i].CreatedAt > runs[j].CreatedAt
		}
		return runs[i].ID < runs[j].ID
	})
	return runs
}

// ToJSON serializes a run for the queue
func (r *Run) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes a queued run
func FromJSON(data []byte) (*Run, error) {
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
