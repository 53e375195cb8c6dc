package httpfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/retry"
)

type fakePool struct {
	mu       sync.Mutex
	proxies  []*entity.Proxy
	failures map[int64]int
	uses     map[int64]int
}

func newFakePool(proxies ...*entity.Proxy) *fakePool {
	return &fakePool{proxies: proxies, failures: map[int64]int{}, uses: map[int64]int{}}
}

func (p *fakePool) AcquireOne(ctx context.Context) (*entity.Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return nil, nil
	}
	cp := *p.proxies[0]
	return &cp, nil
}

func (p *fakePool) ReportFailure(ctx context.Context, proxy *entity.Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[proxy.ID]++
	return nil
}

func (p *fakePool) ReportUsed(ctx context.Context, proxy *entity.Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uses[proxy.ID]++
	return nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func proxyFromServer(t *testing.T, srv *httptest.Server) *entity.Proxy {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(u.Port())
	return &entity.Proxy{ID: 7, IP: u.Hostname(), Port: port, Protocol: "http"}
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected a User-Agent header")
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(time.Second, "").Do(context.Background(), Get(srv.URL, false))
	var statusErr *repository.HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Retryable() {
		t.Errorf("Expected non-retryable 404, got %+v", statusErr)
	}
}

func TestRetrying(t *testing.T) {
	testCases := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
	}{
		{"success", []int{200}, 1, false},
		{"server error then success", []int{500, 503, 200}, 3, false},
		{"throttled then success", []int{429, 200}, 2, false},
		{"not found is not retried", []int{404}, 1, true},
		{"gives up after attempts", []int{500, 500, 500, 500}, 3, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.statuses[int(n)-1])
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			doer := NewRetrying(NewClient(time.Second, ""), fastPolicy(), zap.NewNop())
			resp, err := doer.Do(context.Background(), Get(srv.URL, false))

			if got := atomic.LoadInt32(&calls); got != tc.wantCalls {
				t.Errorf("Expected %d calls, got %d", tc.wantCalls, got)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("Expected error=%v, got %v", tc.wantErr, err)
			}
			if err == nil && string(resp.Body) != "ok" {
				t.Errorf("Expected body ok, got %q", resp.Body)
			}
		})
	}
}

func TestProxied_RoutesThroughProxy(t *testing.T) {
	var sawAbsoluteURL atomic.Bool
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Host == "listings.invalid" {
			sawAbsoluteURL.Store(true)
		}
		_, _ = w.Write([]byte("via proxy"))
	}))
	defer proxySrv.Close()

	pool := newFakePool(proxyFromServer(t, proxySrv))
	doer := NewProxied(NewClient(time.Second, ""), pool, false, zap.NewNop())

	resp, err := doer.Do(context.Background(), Get("http://listings.invalid/page", true))
	if err != nil {
		t.Fatalf("Expected success through proxy, got %v", err)
	}
	if string(resp.Body) != "via proxy" || !sawAbsoluteURL.Load() {
		t.Errorf("Expected the request to reach the proxy, got %q", resp.Body)
	}
	if pool.uses[7] != 1 || pool.failures[7] != 0 {
		t.Errorf("Expected one use and no failure, got uses=%d failures=%d", pool.uses[7], pool.failures[7])
	}
}

func TestProxied_ReportsFailureBeforeRetry(t *testing.T) {
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer proxySrv.Close()

	pool := newFakePool(proxyFromServer(t, proxySrv))
	doer := NewRetrying(NewProxied(NewClient(time.Second, ""), pool, false, zap.NewNop()), fastPolicy(), zap.NewNop())

	if _, err := doer.Do(context.Background(), Get("http://listings.invalid/", true)); err == nil {
		t.Fatal("Expected failure")
	}
	if pool.failures[7] != 3 {
		t.Errorf("Expected a failure report per attempt, got %d", pool.failures[7])
	}
}

func TestProxied_NotFoundCountsAsUse(t *testing.T) {
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer proxySrv.Close()

	pool := newFakePool(proxyFromServer(t, proxySrv))
	doer := NewProxied(NewClient(time.Second, ""), pool, false, zap.NewNop())

	_, _ = doer.Do(context.Background(), Get("http://listings.invalid/", true))
	if pool.failures[7] != 0 || pool.uses[7] != 1 {
		t.Errorf("Expected 404 to count as a use, got uses=%d failures=%d", pool.uses[7], pool.failures[7])
	}
}

func TestProxied_EmptyPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("direct"))
	}))
	defer srv.Close()

	strict := NewProxied(NewClient(time.Second, ""), newFakePool(), false, zap.NewNop())
	if _, err := strict.Do(context.Background(), Get(srv.URL, true)); !errors.Is(err, repository.ErrNoProxyAvailable) {
		t.Errorf("Expected ErrNoProxyAvailable, got %v", err)
	}

	lenient := NewProxied(NewClient(time.Second, ""), newFakePool(), true, zap.NewNop())
	resp, err := lenient.Do(context.Background(), Get(srv.URL, true))
	if err != nil || string(resp.Body) != "direct" {
		t.Errorf("Expected direct fallback, got %v, %v", resp, err)
	}

	if IsRetryable(repository.ErrNoProxyAvailable) {
		t.Error("Expected an empty pool not to be retried")
	}
}
