package chromedp_crawler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/httpfetch"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/metrics"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/retry"
)

// ProxiedRenderer routes renders that ask for it through a pool proxy and
// reports the outcome, exactly like httpfetch.Proxied does for plain calls.
type ProxiedRenderer struct {
	next           Renderer
	pool           repository.ProxyProvider
	fallbackDirect bool
	logger         *zap.Logger
}

func NewProxiedRenderer(next Renderer, pool repository.ProxyProvider, fallbackDirect bool, logger *zap.Logger) *ProxiedRenderer {
	return &ProxiedRenderer{next: next, pool: pool, fallbackDirect: fallbackDirect, logger: logger}
}

func (p *ProxiedRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	if !req.UseProxy {
		return p.next.Render(ctx, req)
	}
	proxy, err := httpfetch.Acquire(ctx, p.pool, p.fallbackDirect, p.logger)
	if err != nil {
		return nil, err
	}
	attempt := *req
	attempt.Proxy = proxy
	res, err := p.next.Render(ctx, &attempt)
	httpfetch.Report(ctx, p.pool, proxy, err, p.logger)
	return res, err
}

// RetryingRenderer retries failed renders with the fetch retry policy.
type RetryingRenderer struct {
	next   Renderer
	policy retry.Policy
	logger *zap.Logger
}

func NewRetryingRenderer(next Renderer, policy retry.Policy, logger *zap.Logger) *RetryingRenderer {
	return &RetryingRenderer{next: next, policy: policy, logger: logger}
}

func (r *RetryingRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	var res *RenderResult
	err := retry.Do(ctx, r.policy, func(attempt int) error {
		var err error
		res, err = r.next.Render(ctx, req)
		if err == nil {
			metrics.FetchAttemptsTotal.WithLabelValues("render", "success").Inc()
			return nil
		}
		metrics.FetchAttemptsTotal.WithLabelValues("render", "failure").Inc()
		r.logger.Warn("render attempt failed",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.Attempts),
			zap.Error(err),
		)
		if !httpfetch.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		r.logger.Info("retrying render", zap.String("url", req.URL), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
