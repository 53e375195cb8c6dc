package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
)

const runnerLockKey = "watcher:runner"

var (
	refreshScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if not holder then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RunnerLockImpl is a single-key lease. Only the owner that set the key may
// extend or drop it.
type RunnerLockImpl struct {
	client *redis.Client
	key    string
}

// NewRunnerLock creates a lock on the default key.
func NewRunnerLock(client *redis.Client) *RunnerLockImpl {
	return &RunnerLockImpl{client: client, key: runnerLockKey}
}

// Acquire sets the key only if absent (SET NX PX).
func (l *RunnerLockImpl) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, owner, ttl).Result()
}

// Refresh extends the lease, taking it again if it expired in the meantime.
// It returns ErrLockHeld if another owner took it.
func (l *RunnerLockImpl) Refresh(ctx context.Context, owner string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrLockHeld
	}
	return nil
}

func (l *RunnerLockImpl) Release(ctx context.Context, owner string) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
