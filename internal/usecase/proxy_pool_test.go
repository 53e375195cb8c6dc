package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
)

func newTestPool(repo *fakeProxyRepo, r repository.Replenisher, minCount int) *ProxyPool {
	return NewProxyPool(repo, r, ProxyPoolConfig{MinCount: minCount, ReplenishTimeout: time.Second}, zap.NewNop())
}

func TestProxyPool_AcquireOneEmpty(t *testing.T) {
	pool := newTestPool(newFakeProxyRepo(), nil, 0)

	p, err := pool.AcquireOne(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p != nil {
		t.Errorf("Expected nil proxy from empty pool, got %+v", p)
	}
}

func TestProxyPool_EvictionAtThreshold(t *testing.T) {
	repo := newFakeProxyRepo(
		entity.Proxy{IP: "1.1.1.1", Port: 80, Protocol: "http", RetryCount: 9, IsValid: true},
	)
	pool := newTestPool(repo, nil, 0)
	ctx := context.Background()

	p, err := pool.AcquireOne(ctx)
	if err != nil || p == nil {
		t.Fatalf("Expected a proxy, got %v, %v", p, err)
	}
	if err := pool.ReportFailure(ctx, p); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}
	if p.RetryCount != 10 || !p.Evicted() {
		t.Errorf("Expected proxy evicted at 10 retries, got %d", p.RetryCount)
	}
	if repo.proxies[p.ID].IsValid {
		t.Error("Expected evicted proxy to be flagged invalid")
	}

	for i := 0; i < 20; i++ {
		got, err := pool.AcquireOne(ctx)
		if err != nil {
			t.Fatalf("AcquireOne failed: %v", err)
		}
		if got != nil {
			t.Fatalf("Expected evicted proxy never to be returned, got %+v", got)
		}
	}

	removed, err := pool.RunHousekeeping(ctx)
	if err != nil {
		t.Fatalf("RunHousekeeping failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed proxy, got %d", removed)
	}
}

func TestProxyPool_AcquireSkipsOverThresholdRows(t *testing.T) {
	repo := newFakeProxyRepo(
		entity.Proxy{IP: "1.1.1.1", Port: 80, Protocol: "http"},
		entity.Proxy{IP: "2.2.2.2", Port: 80, Protocol: "http"},
	)
	pool := newTestPool(repo, nil, 0)
	ctx := context.Background()

	// Push the first proxy over the threshold directly.
	for i := 0; i < entity.ProxyEvictionThreshold; i++ {
		if _, err := repo.IncrementRetry(ctx, 1); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 50; i++ {
		p, err := pool.AcquireOne(ctx)
		if err != nil || p == nil {
			t.Fatalf("Expected a proxy, got %v, %v", p, err)
		}
		if p.IP != "2.2.2.2" {
			t.Fatalf("Expected only 2.2.2.2, got %s", p.IP)
		}
	}
}

func TestProxyPool_SelectionWindow(t *testing.T) {
	repo := newFakeProxyRepo(
		entity.Proxy{IP: "1.1.1.1", Port: 80, Protocol: "http"},
		entity.Proxy{IP: "2.2.2.2", Port: 80, Protocol: "http", RetryCount: 3},
		entity.Proxy{IP: "3.3.3.3", Port: 80, Protocol: "http", RetryCount: 5},
	)
	pool := NewProxyPool(repo, nil, ProxyPoolConfig{SelectionWindow: 1}, zap.NewNop())

	for i := 0; i < 20; i++ {
		p, err := pool.AcquireOne(context.Background())
		if err != nil || p == nil {
			t.Fatalf("Expected a proxy, got %v, %v", p, err)
		}
		if p.IP != "1.1.1.1" {
			t.Fatalf("Expected the least failed proxy, got %s", p.IP)
		}
	}
}

func TestProxyPool_ReportUsed(t *testing.T) {
	repo := newFakeProxyRepo(entity.Proxy{IP: "1.1.1.1", Port: 80, Protocol: "http"})
	pool := newTestPool(repo, nil, 0)
	ctx := context.Background()

	p, _ := pool.AcquireOne(ctx)
	if err := pool.ReportUsed(ctx, p); err != nil {
		t.Fatalf("ReportUsed failed: %v", err)
	}
	if repo.used[p.ID] != 1 || p.LastUsed == nil {
		t.Errorf("Expected proxy marked used once, got %d", repo.used[p.ID])
	}
	if p.RetryCount != 0 {
		t.Errorf("Expected ReportUsed not to touch retry count, got %d", p.RetryCount)
	}
}

func TestProxyPool_HousekeepingReplenishes(t *testing.T) {
	repo := newFakeProxyRepo(entity.Proxy{IP: "1.1.1.1", Port: 80, Protocol: "http"})
	replenisher := &fakeReplenisher{text: "1.1.1.1:80\n4.4.4.4:8080\n5.5.5.5:1080:u:p\ngarbage"}
	pool := newTestPool(repo, replenisher, 3)

	if _, err := pool.RunHousekeeping(context.Background()); err != nil {
		t.Fatalf("RunHousekeeping failed: %v", err)
	}
	if replenisher.calls != 1 {
		t.Errorf("Expected one replenishment request, got %d", replenisher.calls)
	}
	stats, _ := pool.Stats(context.Background())
	if stats.Active != 3 {
		t.Errorf("Expected 3 active proxies after refill (duplicate ignored), got %d", stats.Active)
	}
}

func TestProxyPool_HousekeepingSkipsReplenishWhenStocked(t *testing.T) {
	repo := newFakeProxyRepo(entity.Proxy{IP: "1.1.1.1", Port: 80, Protocol: "http"})
	replenisher := &fakeReplenisher{text: "4.4.4.4:8080"}
	pool := newTestPool(repo, replenisher, 1)

	if _, err := pool.RunHousekeeping(context.Background()); err != nil {
		t.Fatalf("RunHousekeeping failed: %v", err)
	}
	if replenisher.calls != 0 {
		t.Errorf("Expected no replenishment, got %d calls", replenisher.calls)
	}
}

func TestProxyPool_ReplenishTimeoutIsNotFatal(t *testing.T) {
	repo := newFakeProxyRepo()
	replenisher := &fakeReplenisher{block: true}
	pool := NewProxyPool(repo, replenisher, ProxyPoolConfig{MinCount: 5, ReplenishTimeout: 20 * time.Millisecond}, zap.NewNop())

	added, err := pool.Replenish(context.Background())
	if !errors.Is(err, repository.ErrReplenishTimeout) {
		t.Errorf("Expected ErrReplenishTimeout, got %v", err)
	}
	if added != 0 {
		t.Errorf("Expected nothing added, got %d", added)
	}

	if _, err := pool.RunHousekeeping(context.Background()); err != nil {
		t.Errorf("Expected housekeeping to swallow the timeout, got %v", err)
	}
	p, err := pool.AcquireOne(context.Background())
	if p != nil || err != nil {
		t.Errorf("Expected empty pool to keep working, got %v, %v", p, err)
	}
}

func TestProxyPool_ConcurrentFailures(t *testing.T) {
	repo := newFakeProxyRepo(entity.Proxy{IP: "1.1.1.1", Port: 80, Protocol: "http"})
	pool := newTestPool(repo, nil, 0)
	ctx := context.Background()
	proxy, _ := pool.AcquireOne(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *proxy
			_ = pool.ReportFailure(ctx, &cp)
		}()
	}
	wg.Wait()

	if got := repo.proxies[proxy.ID].RetryCount; got != 25 {
		t.Errorf("Expected 25 recorded failures, got %d", got)
	}
	if p, _ := pool.AcquireOne(ctx); p != nil {
		t.Errorf("Expected proxy to be ineligible, got %+v", p)
	}
}
