package httpfetch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
)

// Proxied picks a proxy from the pool for every request that asks for one
// and reports the outcome back to the pool.
type Proxied struct {
	next           Doer
	pool           repository.ProxyProvider
	fallbackDirect bool
	logger         *zap.Logger
}

// NewProxied wraps next. With fallbackDirect an empty pool degrades to a
// direct call, otherwise the request fails with ErrNoProxyAvailable.
func NewProxied(next Doer, pool repository.ProxyProvider, fallbackDirect bool, logger *zap.Logger) *Proxied {
	return &Proxied{next: next, pool: pool, fallbackDirect: fallbackDirect, logger: logger}
}

func (p *Proxied) Do(ctx context.Context, req *Request) (*Response, error) {
	if !req.UseProxy {
		return p.next.Do(ctx, req)
	}

	proxy, err := Acquire(ctx, p.pool, p.fallbackDirect, p.logger)
	if err != nil {
		return nil, err
	}

	attempt := *req
	attempt.Proxy = proxy
	resp, err := p.next.Do(ctx, &attempt)
	Report(ctx, p.pool, proxy, err, p.logger)
	return resp, err
}

// Acquire returns a proxy from the pool. A nil proxy with a nil error means
// the caller should go direct.
func Acquire(ctx context.Context, pool repository.ProxyProvider, fallbackDirect bool, logger *zap.Logger) (*entity.Proxy, error) {
	proxy, err := pool.AcquireOne(ctx)
	if err != nil {
		logger.Warn("failed to acquire proxy", zap.Error(err))
		proxy = nil
	}
	if proxy == nil {
		if !fallbackDirect {
			return nil, repository.ErrNoProxyAvailable
		}
		logger.Debug("no proxy available, fetching directly")
	}
	return proxy, nil
}

// Report tells the pool how an attempt through proxy went. A response the
// proxy delivered faithfully, such as a 404, counts as a use, not a failure.
func Report(ctx context.Context, pool repository.ProxyProvider, proxy *entity.Proxy, fetchErr error, logger *zap.Logger) {
	if proxy == nil || ctx.Err() != nil {
		return
	}

	var statusErr *repository.HTTPStatusError
	var reportErr error
	switch {
	case fetchErr == nil:
		reportErr = pool.ReportUsed(ctx, proxy)
	case errors.As(fetchErr, &statusErr) && !statusErr.Retryable():
		reportErr = pool.ReportUsed(ctx, proxy)
	default:
		reportErr = pool.ReportFailure(ctx, proxy)
	}
	if reportErr != nil {
		logger.Warn("failed to report proxy outcome", zap.String("proxy", proxy.Key()), zap.Error(reportErr))
	}
}
