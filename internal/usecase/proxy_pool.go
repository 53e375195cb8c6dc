package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/metrics"
)

// ProxyPoolConfig tunes the proxy pool.
type ProxyPoolConfig struct {
	// MinCount triggers replenishment when the active set falls below it.
	MinCount int
	// SelectionWindow limits random selection to the best N candidates; 0 means all.
	SelectionWindow int
	// ReplenishTimeout bounds the wait for an out-of-band answer.
	ReplenishTimeout time.Duration
	// Threshold is the retry count at which a proxy is evicted.
	Threshold int
}

// ProxyPool hands out proxies, tracks their failures and keeps the pool stocked.
type ProxyPool struct {
	repo        repository.ProxyRepository
	replenisher repository.Replenisher
	cfg         ProxyPoolConfig
	logger      *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	replenishMu sync.Mutex
}

// NewProxyPool creates a pool. replenisher may be nil, in which case the
// pool never refills itself.
func NewProxyPool(repo repository.ProxyRepository, replenisher repository.Replenisher, cfg ProxyPoolConfig, logger *zap.Logger) *ProxyPool {
	if cfg.Threshold <= 0 {
		cfg.Threshold = entity.ProxyEvictionThreshold
	}
	if cfg.ReplenishTimeout <= 0 {
		cfg.ReplenishTimeout = time.Hour
	}
	return &ProxyPool{
		repo:        repo,
		replenisher: replenisher,
		cfg:         cfg,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AcquireOne returns a random active proxy, preferring the least failed and
// fastest ones. It returns nil without error when the pool is empty.
func (p *ProxyPool) AcquireOne(ctx context.Context) (*entity.Proxy, error) {
	candidates, err := p.repo.ListActive(ctx, p.cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list active proxies: %w", err)
	}

	eligible := candidates[:0:0]
	for _, c := range candidates {
		if c.RetryCount < p.cfg.Threshold {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		p.logger.Warn("no active proxies available")
		return nil, nil
	}
	if w := p.cfg.SelectionWindow; w > 0 && w < len(eligible) {
		eligible = eligible[:w]
	}

	p.rngMu.Lock()
	chosen := eligible[p.rng.Intn(len(eligible))]
	p.rngMu.Unlock()

	p.logger.Debug("selected proxy", zap.String("proxy", chosen.Key()), zap.Int64("proxy_id", chosen.ID), zap.Int("retry_count", chosen.RetryCount))
	return &chosen, nil
}

// ReportFailure records a failed use. The proxy stops being handed out as
// soon as its count reaches the threshold; the row is removed by the next
// housekeeping pass.
func (p *ProxyPool) ReportFailure(ctx context.Context, proxy *entity.Proxy) error {
	if proxy == nil {
		return nil
	}
	count, err := p.repo.IncrementRetry(ctx, proxy.ID)
	if err != nil {
		return fmt.Errorf("failed to increment retry count for proxy %d: %w", proxy.ID, err)
	}
	proxy.RetryCount = count

	if count >= p.cfg.Threshold && count-1 < p.cfg.Threshold {
		metrics.ProxyEvictionsTotal.Inc()
		p.logger.Info("proxy evicted", zap.String("proxy", proxy.Key()), zap.Int64("proxy_id", proxy.ID), zap.Int("retry_count", count))
		if err := p.repo.SetValid(ctx, proxy.ID, false); err != nil {
			p.logger.Warn("failed to flag evicted proxy", zap.Int64("proxy_id", proxy.ID), zap.Error(err))
		}
		proxy.IsValid = false
	} else {
		p.logger.Debug("proxy failure recorded", zap.String("proxy", proxy.Key()), zap.Int("retry_count", count))
	}
	return nil
}

// ReportUsed stamps the proxy's last use. It does not affect eligibility.
func (p *ProxyPool) ReportUsed(ctx context.Context, proxy *entity.Proxy) error {
	if proxy == nil {
		return nil
	}
	if err := p.repo.MarkUsed(ctx, proxy.ID); err != nil {
		return fmt.Errorf("failed to mark proxy %d used: %w", proxy.ID, err)
	}
	now := time.Now()
	proxy.LastUsed = &now
	return nil
}

// RunHousekeeping deletes evicted proxies and refills the pool when the
// active set drops below the configured minimum. A failed or empty refill
// is logged, not returned.
func (p *ProxyPool) RunHousekeeping(ctx context.Context) (int, error) {
	removed, err := p.repo.DeleteEvicted(ctx, p.cfg.Threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete evicted proxies: %w", err)
	}
	if removed > 0 {
		p.logger.Info("removed evicted proxies", zap.Int("count", removed))
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		return removed, err
	}
	p.logger.Info("proxy pool status",
		zap.Int("active", stats.Active),
		zap.Int("evicted", stats.Evicted),
		zap.Int("total", stats.Total),
		zap.Int("min_count", p.cfg.MinCount),
	)

	if stats.Active >= p.cfg.MinCount {
		return removed, nil
	}

	added, err := p.Replenish(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		p.logger.Warn("proxy replenishment failed, continuing with a short pool", zap.Int("active", stats.Active), zap.Error(err))
		return removed, nil
	}
	if added == 0 {
		p.logger.Warn("proxy replenishment added nothing", zap.Int("active", stats.Active))
	}
	return removed, nil
}

// Replenish asks the out-of-band source for proxies and inserts whatever
// parses. It blocks for at most the configured timeout.
func (p *ProxyPool) Replenish(ctx context.Context) (int, error) {
	if p.replenisher == nil {
		p.logger.Warn("proxy pool is low but no replenisher is configured")
		return 0, nil
	}

	p.replenishMu.Lock()
	defer p.replenishMu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.ReplenishTimeout)
	defer cancel()

	p.logger.Info("requesting proxies", zap.Duration("timeout", p.cfg.ReplenishTimeout))
	text, err := p.replenisher.RequestProxies(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, repository.ErrReplenishTimeout
		}
		return 0, fmt.Errorf("failed to request proxies: %w", err)
	}

	added, _, err := p.Import(ctx, text)
	return added, err
}

// Import parses a proxy list and inserts it. It returns how many proxies were
// added and how many lines were rejected.
func (p *ProxyPool) Import(ctx context.Context, text string) (added, rejected int, err error) {
	proxies, parseErrs := ParseProxyList(text)
	for _, perr := range parseErrs {
		p.logger.Warn("could not parse proxy", zap.Error(perr))
	}
	if len(proxies) == 0 {
		return 0, len(parseErrs), nil
	}

	added, err = p.repo.InsertBatch(ctx, proxies)
	if err != nil {
		return 0, len(parseErrs), fmt.Errorf("failed to insert proxies: %w", err)
	}
	metrics.ProxiesAddedTotal.Add(float64(added))
	p.logger.Info("proxies imported", zap.Int("parsed", len(proxies)), zap.Int("added", added), zap.Int("rejected", len(parseErrs)))
	return added, len(parseErrs), nil
}

// Stats counts the pool and refreshes the active gauge.
func (p *ProxyPool) Stats(ctx context.Context) (entity.ProxyStats, error) {
	stats, err := p.repo.Stats(ctx, p.cfg.Threshold)
	if err != nil {
		return entity.ProxyStats{}, fmt.Errorf("failed to count proxies: %w", err)
	}
	metrics.ProxiesActive.Set(float64(stats.Active))
	return stats, nil
}
