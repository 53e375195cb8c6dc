package sites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/chromedp_crawler"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/httpfetch"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
)

func aisPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="machines">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<a href="/pre-owned-machines/x/%s/"><div class="machine"><h3>%s</h3></div></a>`, id, id)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func TestAISEquipAdapter_Paginates(t *testing.T) {
	pages := map[string]string{
		"":  aisPage("a1", "a2"),
		"2": aisPage("a3"),
		"3": aisPage(),
	}
	var requested []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("_paged")
		mu.Lock()
		requested = append(requested, page)
		mu.Unlock()
		if r.URL.Query().Get("cat") != "loaders" {
			t.Errorf("Expected original query to be kept, got %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, pages[page])
	}))
	defer srv.Close()

	adapter := NewAISEquipAdapter(httpfetch.NewClient(time.Second, ""), 0, zap.NewNop())
	res, err := adapter.FetchSnapshot(context.Background(), entity.Source{URL: srv.URL + "/list?cat=loaders", SearchTitle: "AIS"})
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if len(res.Listings) != 3 || res.Pages != 2 {
		t.Errorf("Expected 3 listings over 2 pages, got %d over %d", len(res.Listings), res.Pages)
	}
	if strings.Join(requested, ",") != ",2,3" {
		t.Errorf("Unexpected pages requested: %v", requested)
	}
}

func TestAISEquipAdapter_PageCeiling(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, aisPage(fmt.Sprintf("id%d", n)))
	}))
	defer srv.Close()

	adapter := NewAISEquipAdapter(httpfetch.NewClient(time.Second, ""), 0, zap.NewNop())
	adapter.maxPages = 4
	res, err := adapter.FetchSnapshot(context.Background(), entity.Source{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 || len(res.Listings) != 4 {
		t.Errorf("Expected to stop at the page ceiling, got %d calls and %d listings", got, len(res.Listings))
	}
}

func TestAISEquipAdapter_FailedPageFailsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_paged") == "2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, aisPage("a1"))
	}))
	defer srv.Close()

	adapter := NewAISEquipAdapter(httpfetch.NewClient(time.Second, ""), 0, zap.NewNop())
	if _, err := adapter.FetchSnapshot(context.Background(), entity.Source{URL: srv.URL}); err == nil {
		t.Fatal("Expected a failed page to fail the snapshot")
	}
}

type memTokenCache struct {
	mu          sync.Mutex
	tokens      map[string]*entity.SessionTokens
	invalidated int
}

func (c *memTokenCache) Get(ctx context.Context, key string) (*entity.SessionTokens, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[key]
	return t, ok, nil
}

func (c *memTokenCache) Put(ctx context.Context, key string, tokens *entity.SessionTokens, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		c.tokens = map[string]*entity.SessionTokens{}
	}
	c.tokens[key] = tokens
	return nil
}

func (c *memTokenCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, key)
	c.invalidated++
	return nil
}

type staticRenderer struct {
	html    string
	cookies map[string]string
	calls   int
}

func (r *staticRenderer) Render(ctx context.Context, req *chromedp_crawler.RenderRequest) (*chromedp_crawler.RenderResult, error) {
	r.calls++
	return &chromedp_crawler.RenderResult{HTML: r.html, Cookies: r.cookies}, nil
}

func machineFinderServer(t *testing.T, matches int, status *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := atomic.LoadInt32(status); s != 0 {
			w.WriteHeader(int(s))
			return
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-CSRF-Token") != "tok-123" {
			t.Errorf("Missing csrf header")
		}
		if r.Header.Get("Cookie") != "a=1; b=2" {
			t.Errorf("Unexpected cookie header %q", r.Header.Get("Cookie"))
		}

		var q machineFinderQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		var machines []map[string]any
		for i := q.ShowMoreStart; i < q.ShowMoreStart+machineFinderPageSize && i < matches; i++ {
			machines = append(machines, map[string]any{
				"id":     1000 + i,
				"url":    fmt.Sprintf("/ww/en-US/machines/%d", 1000+i),
				"label":  fmt.Sprintf("%s %d", q.Criteria.BCat[0], i),
				"retail": "$10",
				"hrs":    120,
				"situ":   " Moline, IL ",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{"matches": matches, "machines": machines},
		})
	}))
}

func TestMachineFinderAdapter_FetchesAllPages(t *testing.T) {
	var status int32
	srv := machineFinderServer(t, 130, &status)
	defer srv.Close()

	renderer := &staticRenderer{
		html:    `<html><head><meta name="csrf-token" content="tok-123"></head></html>`,
		cookies: map[string]string{"b": "2", "a": "1"},
	}
	cache := &memTokenCache{}
	adapter := NewMachineFinderAdapter(httpfetch.NewClient(time.Second, ""), renderer, cache, zap.NewNop())
	adapter.endpoint = srv.URL

	src := entity.Source{
		SearchTitle: "MachineFinder",
		Categories:  []entity.Category{{Title: "Excavators", SearchKind: "construction", BCat: "excavators"}},
	}
	res, err := adapter.FetchSnapshot(context.Background(), src)
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if len(res.Listings) != 130 || res.Pages != 6 {
		t.Fatalf("Expected 130 listings over 6 pages, got %d over %d", len(res.Listings), res.Pages)
	}
	for i, l := range res.Listings {
		if l.UniqueID != fmt.Sprint(1000+i) {
			t.Fatalf("Expected page order to be kept, listing %d is %s", i, l.UniqueID)
		}
	}
	first := res.Listings[0]
	if first.Hours != "120" || first.Location != "Moline, IL" || first.Category != "Excavators" {
		t.Errorf("Unexpected listing %+v", first)
	}
	if first.Link != "https://www.machinefinder.com/ww/en-US/machines/1000" {
		t.Errorf("Unexpected link %s", first.Link)
	}

	if _, err := adapter.FetchSnapshot(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if renderer.calls != 1 {
		t.Errorf("Expected cached tokens to be reused, rendered %d times", renderer.calls)
	}
}

func TestMachineFinderAdapter_RejectedTokensAreDropped(t *testing.T) {
	status := int32(http.StatusForbidden)
	srv := machineFinderServer(t, 10, &status)
	defer srv.Close()

	cache := &memTokenCache{}
	_ = cache.Put(context.Background(), machineFinderTokenKey, &entity.SessionTokens{CSRFToken: "tok-123", Cookies: map[string]string{"a": "1", "b": "2"}}, time.Minute)

	adapter := NewMachineFinderAdapter(httpfetch.NewClient(time.Second, ""), &staticRenderer{}, cache, zap.NewNop())
	adapter.endpoint = srv.URL

	_, err := adapter.FetchSnapshot(context.Background(), entity.Source{Categories: []entity.Category{{Title: "Tractors", BCat: "tractors"}}})
	var statusErr *repository.HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected status error, got %v", err)
	}
	if cache.invalidated != 1 {
		t.Errorf("Expected cached tokens to be invalidated, got %d", cache.invalidated)
	}
}

func TestMachineFinderAdapter_NoToken(t *testing.T) {
	adapter := NewMachineFinderAdapter(httpfetch.NewClient(time.Second, ""), &staticRenderer{html: "<html></html>"}, &memTokenCache{}, zap.NewNop())
	_, err := adapter.FetchSnapshot(context.Background(), entity.Source{Categories: []entity.Category{{Title: "Tractors", BCat: "tractors"}}})
	if !errors.Is(err, repository.ErrTokensUnavailable) {
		t.Errorf("Expected ErrTokensUnavailable, got %v", err)
	}
}

func TestExtractSessionTokens(t *testing.T) {
	testCases := []struct {
		name    string
		html    string
		cookies map[string]string
		want    string
	}{
		{"meta tag", `<meta name="csrf-token" content="meta-tok">`, nil, "meta-tok"},
		{"inline script", `<script>window.app = {csrf_token: "script-tok"}</script>`, nil, "script-tok"},
		{"xsrf cookie", `<html></html>`, map[string]string{"XSRF-TOKEN": "cookie-tok"}, "cookie-tok"},
		{"none", `<html></html>`, nil, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractSessionTokens(tc.html, tc.cookies).CSRFToken; got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseMachineFinderResults(t *testing.T) {
	body := []byte(`{"results":{"matches":3,"machines":[
		{"id":"1","label":"JD 310","retail":"$50,000","situ":"Davenport","thumb":"t.jpg"},
		{"id":null,"label":"broken"},
		{"id":3,"gallery":"g.jpg","retail":null},
		{"id":{"nested":true}}
	]}}`)
	listings, matches, skipped, err := ParseMachineFinderResults(body, "Backhoes")
	if err != nil {
		t.Fatal(err)
	}
	if matches != 3 || len(listings) != 2 {
		t.Fatalf("Expected 2 listings of 3 matches, got %d of %d", len(listings), matches)
	}
	if len(skipped) != 2 {
		t.Fatalf("Expected 2 skipped machines, got %v", skipped)
	}
	if !strings.Contains(skipped[0].Error(), "machine 1 has no id") || !strings.Contains(skipped[1].Error(), "machine 3") {
		t.Errorf("Unexpected skip reasons %v", skipped)
	}
	if listings[0].ImageURL != "t.jpg" || listings[0].Link != "https://www.machinefinder.com/ww/en-US/machines/1" {
		t.Errorf("Unexpected fallbacks %+v", listings[0])
	}
	if listings[1].Title != "Machine 3" || listings[1].ImageURL != "g.jpg" || listings[1].Price != "" {
		t.Errorf("Unexpected listing %+v", listings[1])
	}

	if _, _, _, err := ParseMachineFinderResults([]byte(`{"error":"nope"}`), "x"); err == nil {
		t.Error("Expected an error without results")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(Deps{Logger: zap.NewNop()})

	testCases := []struct {
		websiteType string
		mode        entity.DetectionMode
	}{
		{TypeAISEquip, entity.ModeSnapshot},
		{TypeMonroeTractor, entity.ModeSnapshot},
		{TypeMachineFinder, entity.ModeSnapshot},
		{TypeCraigslist, entity.ModeMarker},
		{TypeMascus, entity.ModeMarker},
	}
	for _, tc := range testCases {
		adapter, mode, err := reg.Lookup(tc.websiteType)
		if err != nil || mode != tc.mode {
			t.Errorf("Lookup(%s) = %v, %v", tc.websiteType, mode, err)
			continue
		}
		switch adapter.(type) {
		case repository.SnapshotAdapter:
			if mode != entity.ModeSnapshot {
				t.Errorf("%s: snapshot adapter registered as %s", tc.websiteType, mode)
			}
		case repository.MarkerAdapter:
			if mode != entity.ModeMarker {
				t.Errorf("%s: marker adapter registered as %s", tc.websiteType, mode)
			}
		default:
			t.Errorf("%s: adapter implements neither capability", tc.websiteType)
		}
	}

	if _, _, err := reg.Lookup("ebay"); !errors.Is(err, repository.ErrUnknownWebsiteType) {
		t.Errorf("Expected ErrUnknownWebsiteType, got %v", err)
	}
	if len(KnownTypes()) != 5 {
		t.Errorf("Expected 5 known types, got %v", KnownTypes())
	}
}
