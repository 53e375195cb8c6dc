package sites

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/chromedp_crawler"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/httpfetch"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
)

const (
	machineFinderHome     = "https://www.machinefinder.com/"
	machineFinderBase     = "https://www.machinefinder.com"
	machineFinderAPI      = "https://www.machinefinder.com/ww/en-US/mfinder/results?mw=t&lang_code=en-US"
	machineFinderPageSize = 25
	machineFinderParallel = 5
	machineFinderTokenKey = "machinefinder"
	machineFinderTokenTTL = 30 * time.Minute
)

var csrfInSource = regexp.MustCompile(`(?i)csrf[_-]?token["']?\s*[:=]\s*["']([^"']+)`)

// MachineFinderAdapter queries the MachineFinder JSON search API. The API
// wants a CSRF token and session cookies, which are harvested from a
// headless visit and cached.
type MachineFinderAdapter struct {
	doer     httpfetch.Doer
	renderer chromedp_crawler.Renderer
	tokens   repository.TokenCache
	endpoint string
	logger   *zap.Logger
}

func NewMachineFinderAdapter(doer httpfetch.Doer, renderer chromedp_crawler.Renderer, tokens repository.TokenCache, logger *zap.Logger) *MachineFinderAdapter {
	return &MachineFinderAdapter{doer: doer, renderer: renderer, tokens: tokens, endpoint: machineFinderAPI, logger: logger}
}

// FetchSnapshot fetches every configured category. A failure on any page
// fails the snapshot, since a partial set would purge live listings.
func (a *MachineFinderAdapter) FetchSnapshot(ctx context.Context, src entity.Source) (entity.SnapshotResult, error) {
	if len(src.Categories) == 0 {
		return entity.SnapshotResult{}, fmt.Errorf("machinefinder source %q has no categories", src.SearchTitle)
	}

	tokens, err := a.sessionTokens(ctx, src.UseProxy)
	if err != nil {
		return entity.SnapshotResult{}, err
	}

	var result entity.SnapshotResult
	for _, cat := range src.Categories {
		listings, pages, err := a.fetchCategory(ctx, cat, tokens, src.UseProxy)
		if err != nil {
			var statusErr *repository.HTTPStatusError
			if errors.As(err, &statusErr) && isTokenRejected(statusErr.StatusCode) {
				if ierr := a.tokens.Invalidate(ctx, machineFinderTokenKey); ierr != nil {
					a.logger.Warn("failed to invalidate session tokens", zap.Error(ierr))
				}
			}
			return result, fmt.Errorf("category %q: %w", cat.Title, err)
		}
		a.logger.Info("category fetched", zap.String("category", cat.Title), zap.Int("listings", len(listings)), zap.Int("pages", pages))
		result.Listings = append(result.Listings, listings...)
		result.Pages += pages
	}
	return result, nil
}

func isTokenRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == 419
}

func (a *MachineFinderAdapter) sessionTokens(ctx context.Context, useProxy bool) (*entity.SessionTokens, error) {
	cached, found, err := a.tokens.Get(ctx, machineFinderTokenKey)
	if err != nil {
		a.logger.Warn("token cache unavailable, harvesting fresh tokens", zap.Error(err))
	}
	if found && cached.CSRFToken != "" {
		return cached, nil
	}

	a.logger.Info("extracting machinefinder session tokens")
	res, err := a.renderer.Render(ctx, &chromedp_crawler.RenderRequest{
		URL:            machineFinderHome,
		Settle:         3 * time.Second,
		CaptureCookies: true,
		UseProxy:       useProxy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrTokensUnavailable, err)
	}

	tokens := ExtractSessionTokens(res.HTML, res.Cookies)
	if tokens.CSRFToken == "" {
		return nil, fmt.Errorf("%w: csrf token not found in page", repository.ErrTokensUnavailable)
	}
	tokens.FetchedAt = time.Now()

	if err := a.tokens.Put(ctx, machineFinderTokenKey, tokens, machineFinderTokenTTL); err != nil {
		a.logger.Warn("failed to cache session tokens", zap.Error(err))
	}
	a.logger.Info("session tokens extracted", zap.Int("cookies", len(tokens.Cookies)))
	return tokens, nil
}

// ExtractSessionTokens finds the CSRF token in the meta tag, then in inline
// scripts, then in the cookies.
func ExtractSessionTokens(html string, cookies map[string]string) *entity.SessionTokens {
	tokens := &entity.SessionTokens{Cookies: cookies}
	if tokens.Cookies == nil {
		tokens.Cookies = map[string]string{}
	}

	if doc, err := newDocumentFromString(html); err == nil {
		tokens.CSRFToken = strings.TrimSpace(doc.Find(`meta[name="csrf-token"]`).First().AttrOr("content", ""))
	}
	if tokens.CSRFToken == "" {
		tokens.CSRFToken = firstMatch(csrfInSource, html)
	}
	if tokens.CSRFToken == "" {
		tokens.CSRFToken = tokens.Cookies["XSRF-TOKEN"]
	}
	if tokens.CSRFToken == "" {
		tokens.CSRFToken = tokens.Cookies["csrf_token"]
	}
	return tokens
}

type machineFinderContext struct {
	Kind       string `json:"kind"`
	Region     string `json:"region"`
	Property   string `json:"property"`
	SearchKind string `json:"search_kind"`
}

type machineFinderCriteria struct {
	BCat []string `json:"bcat"`
}

type machineFinderQuery struct {
	Branding       string                `json:"branding"`
	Context        machineFinderContext  `json:"context"`
	Criteria       machineFinderCriteria `json:"criteria"`
	FW             string                `json:"fw"`
	IntroHeader    string                `json:"intro_header"`
	LockedCriteria machineFinderCriteria `json:"locked_criteria"`
	ShowMoreStart  int                   `json:"show_more_start"`
}

func newMachineFinderQuery(cat entity.Category, offset int) machineFinderQuery {
	return machineFinderQuery{
		Branding: "co",
		Context: machineFinderContext{
			Kind:       "mf",
			Region:     "na",
			Property:   "mf_na",
			SearchKind: cat.SearchKind,
		},
		Criteria:       machineFinderCriteria{BCat: []string{cat.BCat}},
		FW:             "pr:hrs:shr:chr:fhr",
		IntroHeader:    fmt.Sprintf("Used %s For Sale", cat.Title),
		LockedCriteria: machineFinderCriteria{BCat: []string{cat.BCat}},
		ShowMoreStart:  offset,
	}
}

func (a *MachineFinderAdapter) fetchCategory(ctx context.Context, cat entity.Category, tokens *entity.SessionTokens, useProxy bool) ([]entity.Listing, int, error) {
	first, matches, err := a.fetchPage(ctx, cat, 0, tokens, useProxy)
	if err != nil {
		return nil, 0, err
	}

	var offsets []int
	for off := machineFinderPageSize; off < matches; off += machineFinderPageSize {
		offsets = append(offsets, off)
	}
	if len(offsets) == 0 {
		return first, 1, nil
	}

	pages := make([][]entity.Listing, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(machineFinderParallel)
	for i, off := range offsets {
		i, off := i, off
		g.Go(func() error {
			listings, _, err := a.fetchPage(gctx, cat, off, tokens, useProxy)
			if err != nil {
				return fmt.Errorf("offset %d: %w", off, err)
			}
			pages[i] = listings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	all := first
	for _, p := range pages {
		all = append(all, p...)
	}
	return all, len(offsets) + 1, nil
}

func (a *MachineFinderAdapter) fetchPage(ctx context.Context, cat entity.Category, offset int, tokens *entity.SessionTokens, useProxy bool) ([]entity.Listing, int, error) {
	body, err := json.Marshal(newMachineFinderQuery(cat, offset))
	if err != nil {
		return nil, 0, err
	}

	header := http.Header{}
	header.Set("Accept", "application/json, text/plain, */*")
	header.Set("Accept-Language", "en-US,en;q=0.9")
	header.Set("Content-Type", "application/json;charset=UTF-8")
	header.Set("X-CSRF-Token", tokens.CSRFToken)
	header.Set("X-Requested-With", "XMLHttpRequest")
	if cookie := cookieHeader(tokens.Cookies); cookie != "" {
		header.Set("Cookie", cookie)
	}

	resp, err := a.doer.Do(ctx, &httpfetch.Request{
		Method:   http.MethodPost,
		URL:      a.endpoint,
		Header:   header,
		Body:     body,
		UseProxy: useProxy,
	})
	if err != nil {
		return nil, 0, err
	}
	listings, matches, skipped, err := ParseMachineFinderResults(resp.Body, cat.Title)
	for _, e := range skipped {
		a.logger.Warn("skipped machine", zap.String("category", cat.Title), zap.Int("offset", offset), zap.Error(e))
	}
	return listings, matches, err
}

func cookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for i, name := range names {
		if i > 0 {
			buf.WriteString("; ")
		}
		buf.WriteString(name)
		buf.WriteByte('=')
		buf.WriteString(cookies[name])
	}
	return buf.String()
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type machineFinderMachine struct {
	ID      flexString `json:"id"`
	URL     flexString `json:"url"`
	Label   flexString `json:"label"`
	Retail  flexString `json:"retail"`
	Hours   flexString `json:"hrs"`
	Situ    flexString `json:"situ"`
	Gallery flexString `json:"gallery"`
	Thumb   flexString `json:"thumb"`
}

type machineFinderResponse struct {
	Results *struct {
		Matches  int               `json:"matches"`
		Machines []json.RawMessage `json:"machines"`
	} `json:"results"`
}

// ParseMachineFinderResults decodes one API page. It returns the listings,
// the total match count of the search, the records it had to skip and an
// error only when the payload as a whole is unusable.
func ParseMachineFinderResults(body []byte, category string) ([]entity.Listing, int, []error, error) {
	var resp machineFinderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, nil, fmt.Errorf("failed to decode machinefinder response: %w", err)
	}
	if resp.Results == nil {
		return nil, 0, nil, fmt.Errorf("machinefinder response has no results")
	}

	listings := make([]entity.Listing, 0, len(resp.Results.Machines))
	var skipped []error
	for i, raw := range resp.Results.Machines {
		var m machineFinderMachine
		if err := json.Unmarshal(raw, &m); err != nil {
			skipped = append(skipped, fmt.Errorf("machine %d: %w", i, err))
			continue
		}
		if m.ID == "" {
			skipped = append(skipped, fmt.Errorf("machine %d has no id", i))
			continue
		}
		id := string(m.ID)

		link := machineFinderBase + "/ww/en-US/machines/" + id
		if m.URL != "" {
			link = machineFinderBase + string(m.URL)
		}
		title := strings.TrimSpace(string(m.Label))
		if title == "" {
			title = "Machine " + id
		}
		image := string(m.Gallery)
		if image == "" {
			image = string(m.Thumb)
		}

		listings = append(listings, entity.Listing{
			UniqueID: id,
			Title:    title,
			Category: category,
			Link:     link,
			Price:    strings.TrimSpace(string(m.Retail)),
			Hours:    strings.TrimSpace(string(m.Hours)),
			Location: strings.TrimSpace(string(m.Situ)),
			ImageURL: image,
		})
	}
	return listings, resp.Results.Matches, skipped, nil
}
