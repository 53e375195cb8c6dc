package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

type fakeProxyRepo struct {
	mu      sync.Mutex
	nextID  int64
	proxies map[int64]*entity.Proxy
	used    map[int64]int
}

func newFakeProxyRepo(proxies ...entity.Proxy) *fakeProxyRepo {
	r := &fakeProxyRepo{proxies: map[int64]*entity.Proxy{}, used: map[int64]int{}}
	_, _ = r.InsertBatch(context.Background(), proxies)
	return r
}

func (r *fakeProxyRepo) ListActive(ctx context.Context, threshold int) ([]entity.Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Proxy
	for _, p := range r.proxies {
		if p.RetryCount < threshold {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RetryCount != out[j].RetryCount {
			return out[i].RetryCount < out[j].RetryCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeProxyRepo) InsertBatch(ctx context.Context, proxies []entity.Proxy) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, p := range proxies {
		dup := false
		for _, existing := range r.proxies {
			if existing.Key() == p.Key() {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.nextID++
		cp := p
		cp.ID = r.nextID
		r.proxies[cp.ID] = &cp
		added++
	}
	return added, nil
}

func (r *fakeProxyRepo) IncrementRetry(ctx context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proxies[id]
	if !ok {
		return 0, errors.New("no such proxy")
	}
	p.RetryCount++
	return p.RetryCount, nil
}

func (r *fakeProxyRepo) MarkUsed(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[id]++
	if p, ok := r.proxies[id]; ok {
		now := time.Now()
		p.LastUsed = &now
	}
	return nil
}

func (r *fakeProxyRepo) SetValid(ctx context.Context, id int64, valid bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.proxies[id]; ok {
		p.IsValid = valid
	}
	return nil
}

func (r *fakeProxyRepo) DeleteEvicted(ctx context.Context, threshold int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, p := range r.proxies {
		if p.RetryCount >= threshold {
			delete(r.proxies, id)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeProxyRepo) Stats(ctx context.Context, threshold int) (entity.ProxyStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s entity.ProxyStats
	for _, p := range r.proxies {
		s.Total++
		if p.RetryCount < threshold {
			s.Active++
		} else {
			s.Evicted++
		}
	}
	return s, nil
}

type fakeReplenisher struct {
	text  string
	err   error
	block bool
	calls int
}

func (f *fakeReplenisher) RequestProxies(ctx context.Context) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type fakeKnownRepo struct {
	known   map[string]map[string]struct{}
	failErr error
	applied int
}

func newFakeKnownRepo() *fakeKnownRepo {
	return &fakeKnownRepo{known: map[string]map[string]struct{}{}}
}

func (r *fakeKnownRepo) KnownIDs(ctx context.Context, searchTitle string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for id := range r.known[searchTitle] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *fakeKnownRepo) ApplySnapshot(ctx context.Context, searchTitle, websiteType string, added, purged []string) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.applied++
	set, ok := r.known[searchTitle]
	if !ok {
		set = map[string]struct{}{}
		r.known[searchTitle] = set
	}
	for _, id := range purged {
		delete(set, id)
	}
	for _, id := range added {
		set[id] = struct{}{}
	}
	return nil
}

func (r *fakeKnownRepo) CountKnown(ctx context.Context, searchTitle string) (int, error) {
	return len(r.known[searchTitle]), nil
}

type fakeMarkerRepo struct {
	markers map[string]string
	saves   int
}

func newFakeMarkerRepo() *fakeMarkerRepo {
	return &fakeMarkerRepo{markers: map[string]string{}}
}

func (r *fakeMarkerRepo) GetMarker(ctx context.Context, searchTitle string) (string, bool, error) {
	m, ok := r.markers[searchTitle]
	return m, ok, nil
}

func (r *fakeMarkerRepo) SaveMarker(ctx context.Context, searchTitle, marker string) error {
	r.saves++
	r.markers[searchTitle] = marker
	return nil
}

func (r *fakeMarkerRepo) MarkerUpdatedAt(ctx context.Context, searchTitle string) (*time.Time, error) {
	return nil, nil
}

type notified struct {
	scope    string
	listings []entity.Notification
}

type fakeNotifier struct {
	mu        sync.Mutex
	notified  []notified
	alerts    []string
	zeroItems []string
}

func (n *fakeNotifier) NotifyListings(ctx context.Context, searchTitle, websiteType string, listings []entity.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, notified{scope: searchTitle, listings: listings})
	return nil
}

func (n *fakeNotifier) SendAlert(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
	return nil
}

func (n *fakeNotifier) SendZeroItemsAlert(ctx context.Context, searchTitle, url, websiteType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.zeroItems = append(n.zeroItems, searchTitle)
	return nil
}

func (n *fakeNotifier) Ping(ctx context.Context) error { return nil }

func (n *fakeNotifier) notifiedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, x := range n.notified {
		total += len(x.listings)
	}
	return total
}

type fakeSnapshotAdapter struct {
	results []entity.SnapshotResult
	err     error
	calls   int
}

func (a *fakeSnapshotAdapter) FetchSnapshot(ctx context.Context, src entity.Source) (entity.SnapshotResult, error) {
	a.calls++
	if a.err != nil {
		return entity.SnapshotResult{}, a.err
	}
	i := a.calls - 1
	if i >= len(a.results) {
		i = len(a.results) - 1
	}
	return a.results[i], nil
}

type fakeMarkerAdapter struct {
	pages [][]entity.Listing
	err   error
	calls int
	panic bool
}

func (a *fakeMarkerAdapter) FetchPage(ctx context.Context, src entity.Source) ([]entity.Listing, error) {
	a.calls++
	if a.panic {
		panic("selector exploded")
	}
	if a.err != nil {
		return nil, a.err
	}
	i := a.calls - 1
	if i >= len(a.pages) {
		i = len(a.pages) - 1
	}
	return a.pages[i], nil
}
