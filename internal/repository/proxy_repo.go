package repository

import (
	"context"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// ProxyRepository defines the durable storage of the proxy pool. Every
// mutation must be atomic per row since adapters may use the pool concurrently.
type ProxyRepository interface {
	// ListActive returns proxies with retry_count below threshold ordered by
	// retry_count then latency (unknown latency last).
	ListActive(ctx context.Context, threshold int) ([]entity.Proxy, error)
	// InsertBatch inserts proxies, silently ignoring (ip, port, protocol) duplicates.
	// It returns how many rows were actually added.
	InsertBatch(ctx context.Context, proxies []entity.Proxy) (int, error)
	// IncrementRetry bumps retry_count and returns the new value.
	IncrementRetry(ctx context.Context, id int64) (int, error)
	// MarkUsed stamps last_used.
	MarkUsed(ctx context.Context, id int64) error
	// SetValid sets the soft health flag and stamps last_checked.
	SetValid(ctx context.Context, id int64, valid bool) error
	// DeleteEvicted removes proxies with retry_count >= threshold.
	DeleteEvicted(ctx context.Context, threshold int) (int, error)
	// Stats counts proxies relative to threshold.
	Stats(ctx context.Context, threshold int) (entity.ProxyStats, error)
}

// ProxyProvider is the part of the proxy pool that fetchers consume.
type ProxyProvider interface {
	AcquireOne(ctx context.Context) (*entity.Proxy, error)
	ReportFailure(ctx context.Context, proxy *entity.Proxy) error
	ReportUsed(ctx context.Context, proxy *entity.Proxy) error
}
