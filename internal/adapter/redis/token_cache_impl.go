package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

const tokenKeyPrefix = "tokens:"

// TokenCacheImpl provides a concrete implementation for the TokenCache interface using Redis.
// Expiry is delegated to the key TTL.
type TokenCacheImpl struct {
	client *redis.Client
}

// NewTokenCache creates a new instance of TokenCacheImpl.
func NewTokenCache(client *redis.Client) *TokenCacheImpl {
	return &TokenCacheImpl{client: client}
}

func (r *TokenCacheImpl) generateKey(key string) string {
	return fmt.Sprintf("%s%s", tokenKeyPrefix, key)
}

// Get returns the cached tokens, or found=false when the key expired.
func (r *TokenCacheImpl) Get(ctx context.Context, key string) (*entity.SessionTokens, bool, error) {
	raw, err := r.client.Get(ctx, r.generateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var tokens entity.SessionTokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Put.
		return nil, false, nil
	}
	return &tokens, true, nil
}

// Put stores tokens with SETEX semantics.
func (r *TokenCacheImpl) Put(ctx context.Context, key string, tokens *entity.SessionTokens, ttl time.Duration) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.generateKey(key), raw, ttl).Err()
}

func (r *TokenCacheImpl) Invalidate(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.generateKey(key)).Err()
}
