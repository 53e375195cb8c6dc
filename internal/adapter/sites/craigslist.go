package sites

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/chromedp_crawler"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/utils"
)

const craigslistBase = "https://craigslist.org"

var craigslistAgeSuffixes = []string{"mins ago", "min ago", "hours ago", "hour ago", "days ago", "day ago"}

// CraigslistAdapter renders a Craigslist search, newest first.
type CraigslistAdapter struct {
	renderer chromedp_crawler.Renderer
	logger   *zap.Logger
}

func NewCraigslistAdapter(renderer chromedp_crawler.Renderer, logger *zap.Logger) *CraigslistAdapter {
	return &CraigslistAdapter{renderer: renderer, logger: logger}
}

func (a *CraigslistAdapter) FetchPage(ctx context.Context, src entity.Source) ([]entity.Listing, error) {
	res, err := a.renderer.Render(ctx, &chromedp_crawler.RenderRequest{
		URL:           src.URL,
		WaitSelectors: []string{"a.main", "li.cl-search-result"},
		WaitTimeout:   20 * time.Second,
		Settle:        2 * time.Second,
		UseProxy:      src.UseProxy,
	})
	if err != nil {
		return nil, err
	}

	doc, err := newDocumentFromString(res.HTML)
	if err != nil {
		return nil, err
	}
	listings, skipped := ParseCraigslistPage(doc)
	for _, e := range skipped {
		a.logger.Debug("skipped listing", zap.String("source", src.SearchTitle), zap.Error(e))
	}
	if len(listings) == 0 {
		a.logger.Warn("no craigslist results found", zap.String("source", src.SearchTitle))
	}
	return listings, nil
}

// ParseCraigslistPage returns the results in page order. Results without a
// data-pid are skipped; a missing title falls back to the title attribute,
// then to the post id, so the ordering stays intact for marker detection.
func ParseCraigslistPage(doc *goquery.Document) ([]entity.Listing, []error) {
	var listings []entity.Listing
	var skipped []error

	doc.Find("div.cl-search-result").Each(func(i int, item *goquery.Selection) {
		id := strings.TrimSpace(item.AttrOr("data-pid", ""))
		if id == "" {
			skipped = append(skipped, fmt.Errorf("result %d has no data-pid", i))
			return
		}

		main := item.Find("a.main").First()
		link := main.AttrOr("href", "")
		if link != "" && !strings.HasPrefix(link, "http") {
			link = utils.ToAbsoluteURL(craigslistBase, link)
		}

		title := ""
		if posting := item.Find("a.posting-title").First(); posting.Length() > 0 {
			title = text(posting.Find("span.label").First())
			if title == "" {
				title = text(posting)
			}
		}
		if title == "" {
			title = strings.TrimSpace(item.AttrOr("title", ""))
		}
		if title == "" {
			title = "Listing " + id
		}

		var image string
		if src := main.Find("img").First().AttrOr("src", ""); src != "" && !strings.Contains(src, "data:image") {
			image = src
		}

		listings = append(listings, entity.Listing{
			UniqueID: id,
			Title:    title,
			Category: "Heavy Equipment",
			Link:     link,
			Price:    text(item.Find("span.priceinfo").First()),
			Location: craigslistLocation(item.Find("div.meta").First()),
			ImageURL: image,
		})
	})
	return listings, skipped
}

// craigslistLocation drops the leading date or age from the meta line.
func craigslistLocation(meta *goquery.Selection) string {
	if meta.Length() == 0 {
		return ""
	}
	parts := meta.Contents().Map(func(_ int, s *goquery.Selection) string { return s.Text() })
	line := strings.Join(parts, " ")
	for _, suffix := range craigslistAgeSuffixes {
		line = strings.ReplaceAll(line, suffix, " ")
	}
	line = strings.ReplaceAll(line, "•", " ")

	fields := strings.Fields(line)
	for len(fields) > 0 && (strings.Contains(fields[0], "/") || isDigits(fields[0])) {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
