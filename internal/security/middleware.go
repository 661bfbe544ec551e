// Package security holds the rate limiting, idempotency and header
// middleware of the run API.
package security

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	// IdempotencyHeader carries the client's idempotency key
	IdempotencyHeader = "X-Idempotency-Key"
	// RequestIDHeader carries the request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDLocal is the fiber.Ctx local holding the request ID
	RequestIDLocal = "requestID"

	maxBodySize = 10 * 1024 * 1024
)

// Middleware provides security middleware for Fiber
type Middleware struct {
	rateLimiter      *RateLimiter
	idempotencyStore *IdempotencyStore
}

// NewMiddleware creates the middleware. Either store may be nil to disable it.
func NewMiddleware(rl *RateLimiter, is *IdempotencyStore) *Middleware {
	return &Middleware{
		rateLimiter:      rl,
		idempotencyStore: is,
	}
}

// clientID prefers an explicit client header over the remote address
func clientID(c *fiber.Ctx) string {
	if id := c.Get("X-Client-ID"); id != "" {
		return id
	}
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	return c.IP()
}

// RateLimit rejects clients over the limit with 429 and reports the limit
// state in X-RateLimit-* headers
func (m *Middleware) RateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.rateLimiter == nil {
			return c.Next()
		}

		id := clientID(c)
		allowed := m.rateLimiter.Allow(id)
		info := m.rateLimiter.Info(id)

		c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
		if !allowed {
			retry := int64(time.Until(info.ResetAt).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Set("X-RateLimit-Remaining", "0")
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retry, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		return c.Next()
	}
}

// Idempotency answers a POST whose X-Idempotency-Key was already seen with
// the stored response
func (m *Middleware) Idempotency() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.idempotencyStore == nil || c.Method() != fiber.MethodPost {
			return c.Next()
		}
		key := c.Get(IdempotencyHeader)
		if key == "" {
			return c.Next()
		}
		if entry, ok := m.idempotencyStore.Check(key); ok {
			c.Set("X-Idempotency-Replayed", "true")
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"success": true,
				"data":    entry.Response,
			})
		}
		return c.Next()
	}
}

// Headers sets the security headers and assigns every request an ID
func Headers() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "SAMEORIGIN")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		id := c.Get(RequestIDHeader)
		if id == "" {
			id = GenerateRequestID()
		}
		c.Set(RequestIDHeader, id)
		c.Locals(RequestIDLocal, id)

		return c.Next()
	}
}

// ValidateRequest rejects writes that are not JSON or YAML and oversized bodies
func ValidateRequest() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
			ct := c.Get(fiber.HeaderContentType)
			if ct != "" && !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) && !isYAML(ct) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"success": false,
					"error":   "Content-Type must be application/json or application/yaml",
				})
			}
		}

		if len(c.Body()) > maxBodySize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"success": false,
				"error":   "Request body too large",
			})
		}
		return c.Next()
	}
}

func isYAML(contentType string) bool {
	for _, t := range []string{"application/yaml", "application/x-yaml", "text/yaml"} {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

// IsYAML reports whether the request body is declared as YAML
func IsYAML(c *fiber.Ctx) bool {
	return isYAML(c.Get(fiber.HeaderContentType))
}
