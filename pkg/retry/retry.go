package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy matches the watcher's historic behaviour: three tries, five
// seconds apart at first.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, InitialInterval: 5 * time.Second, MaxInterval: time.Minute}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, returns a Permanent error, runs out of
// attempts or ctx is done. notify, when non-nil, is called after every
// failed attempt that will be retried.
func Do(ctx context.Context, p Policy, op func(attempt int) error, notify func(err error, wait time.Duration)) error {
	attempt := 0
	operation := func() error {
		attempt++
		return op(attempt)
	}
	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}
	return backoff.RetryNotify(operation, p.backOff(ctx), n)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
