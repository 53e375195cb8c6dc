package httpfetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/metrics"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/retry"
)

// Retrying retries failed requests with exponential backoff. Client errors
// other than the throttling ones are returned at once.
type Retrying struct {
	next   Doer
	policy retry.Policy
	logger *zap.Logger
}

// NewRetrying wraps next.
func NewRetrying(next Doer, policy retry.Policy, logger *zap.Logger) *Retrying {
	return &Retrying{next: next, policy: policy, logger: logger}
}

func (r *Retrying) Do(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, r.policy, func(attempt int) error {
		var err error
		resp, err = r.next.Do(ctx, req)
		if err == nil {
			metrics.FetchAttemptsTotal.WithLabelValues("http", "success").Inc()
			return nil
		}
		metrics.FetchAttemptsTotal.WithLabelValues("http", "failure").Inc()
		r.logger.Warn("fetch attempt failed",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.Attempts),
			zap.Error(err),
		)
		if !IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		r.logger.Info("retrying fetch", zap.String("url", req.URL), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, repository.ErrNoProxyAvailable) {
		return false
	}
	var statusErr *repository.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
