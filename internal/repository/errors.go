package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProxyAvailable is returned when a proxied fetch finds an empty pool
	// and direct fallback is disabled.
	ErrNoProxyAvailable = errors.New("no proxy available")
	// ErrUnknownWebsiteType is returned for a source whose adapter is not registered.
	ErrUnknownWebsiteType = errors.New("unknown website type")
	// ErrTokensUnavailable is returned when session tokens cannot be obtained.
	ErrTokensUnavailable = errors.New("session tokens unavailable")
	// ErrReplenishTimeout is returned when nobody answered a proxy request in time.
	ErrReplenishTimeout = errors.New("proxy replenishment timed out")
	// ErrLockHeld is returned when another watcher already runs cycles.
	ErrLockHeld = errors.New("runner lock held by another process")
)

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 403 || e.StatusCode == 407 || e.StatusCode == 408
}
