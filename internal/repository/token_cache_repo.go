package repository

import (
	"context"
	"time"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// TokenCache holds session tokens for a bounded time.
type TokenCache interface {
	// Get returns the cached tokens; found is false when absent or expired.
	Get(ctx context.Context, key string) (tokens *entity.SessionTokens, found bool, err error)
	// Put stores tokens for ttl.
	Put(ctx context.Context, key string, tokens *entity.SessionTokens, ttl time.Duration) error
	// Invalidate drops the cached tokens, used after the site rejects them.
	Invalidate(ctx context.Context, key string) error
}

// RunnerLock guarantees a single cycle runner per state store.
type RunnerLock interface {
	// Acquire takes the lock for ttl; acquired is false if someone else holds it.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (acquired bool, err error)
	// Refresh extends the lock if owner still holds it.
	Refresh(ctx context.Context, owner string, ttl time.Duration) error
	// Release drops the lock if owner holds it.
	Release(ctx context.Context, owner string) error
}
