package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// IdempotencyStore remembers the response given to a run submission so a
// retried POST with the same X-Idempotency-Key is answered without a new run
type IdempotencyStore struct {
	keys map[string]*IdempotencyEntry
	mu   sync.RWMutex
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// IdempotencyEntry is a stored response
type IdempotencyEntry struct {
	Key       string    `json:"key"`
	RunID     string    `json:"run_id"`
	Response  any       `json:"response"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewIdempotencyStore creates a store whose entries live for ttl
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &IdempotencyStore{
		keys: make(map[string]*IdempotencyEntry),
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	go s.cleanup(5 * time.Minute)
	return s
}

// Check returns the live entry stored under key
func (s *IdempotencyStore) Check(key string) (*IdempotencyEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.keys[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// Store records the response given for key
func (s *IdempotencyStore) Store(key, runID string, response any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.keys[key] = &IdempotencyEntry{
		Key:       key,
		RunID:     runID,
		Response:  response,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
}

// Delete removes key
func (s *IdempotencyStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Stop ends the cleanup loop
func (s *IdempotencyStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *IdempotencyStore) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, entry := range s.keys {
				if now.After(entry.ExpiresAt) {
					delete(s.keys, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// SignWebhook returns the hex HMAC-SHA256 of payload under secret
func SignWebhook(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks a signature produced by SignWebhook
func VerifyWebhook(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(SignWebhook(payload, secret)), []byte(signature))
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
