package chromedp_crawler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// ScrollSpec drives infinite-scroll pages until every item is loaded.
type ScrollSpec struct {
	// ItemSelector matches one loaded item.
	ItemSelector string
	// CountSelector and CountAttr locate the total the page claims to hold.
	CountSelector string
	CountAttr     string
	MaxAttempts   int
	// StallLimit stops scrolling after this many rounds without new items.
	StallLimit int
	Pause      time.Duration
}

// RenderRequest is one headless page visit.
type RenderRequest struct {
	URL string
	// WaitSelectors are tried in order; the first to appear ends the wait.
	// When none appears the page is still captured.
	WaitSelectors []string
	WaitTimeout   time.Duration
	// Settle is an extra pause after the wait for late rendering.
	Settle         time.Duration
	Scroll         *ScrollSpec
	CaptureCookies bool
	UseProxy       bool
	Proxy          *entity.Proxy
}

// RenderResult is the rendered DOM and, on request, the cookies the site set.
type RenderResult struct {
	HTML    string
	Cookies map[string]string
}

// Renderer loads a page in a headless browser.
type Renderer interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
}

func countScript(selector string) string {
	return fmt.Sprintf("document.querySelectorAll(%s).length", strconv.Quote(selector))
}

func attrScript(selector, attr string) string {
	return fmt.Sprintf("(function(){var e=document.querySelector(%s);return e?(e.getAttribute(%s)||''):'';})()",
		strconv.Quote(selector), strconv.Quote(attr))
}

const (
	scrollStepScript   = "window.scrollBy(0, 500);"
	scrollBottomScript = "window.scrollTo(0, document.body.scrollHeight);"
)
