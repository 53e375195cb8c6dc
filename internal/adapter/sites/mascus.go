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

const mascusBase = "https://www.mascus.co.uk"

// Mascus ships hashed CSS module class names; only the stable prefix is matched.
const (
	mascusItemSelector     = `div[class*="SearchResult_searchResultItemWrapper"]`
	mascusLinkSelector     = `a[class*="SearchResult_assetHeaderUrl"]`
	mascusTitleSelector    = `h3[class*="SearchResult_brandmodel"]`
	mascusPriceSelector    = `div[class*="typography__Heading5"]`
	mascusLocationSelector = `p[class*="typography__BodyText2"]`
)

// MascusAdapter renders a Mascus search, newest first.
type MascusAdapter struct {
	renderer chromedp_crawler.Renderer
	logger   *zap.Logger
}

func NewMascusAdapter(renderer chromedp_crawler.Renderer, logger *zap.Logger) *MascusAdapter {
	return &MascusAdapter{renderer: renderer, logger: logger}
}

func (a *MascusAdapter) FetchPage(ctx context.Context, src entity.Source) ([]entity.Listing, error) {
	res, err := a.renderer.Render(ctx, &chromedp_crawler.RenderRequest{
		URL:           src.URL,
		WaitSelectors: []string{mascusItemSelector},
		WaitTimeout:   15 * time.Second,
		Settle:        4 * time.Second,
		UseProxy:      src.UseProxy,
	})
	if err != nil {
		return nil, err
	}

	doc, err := newDocumentFromString(res.HTML)
	if err != nil {
		return nil, err
	}
	listings, skipped := ParseMascusPage(doc)
	for _, e := range skipped {
		a.logger.Debug("skipped listing", zap.String("source", src.SearchTitle), zap.Error(e))
	}
	if len(listings) == 0 {
		a.logger.Warn("no mascus results found", zap.String("source", src.SearchTitle))
	}
	return listings, nil
}

// ParseMascusPage returns the results in page order. The id is the last
// path segment of the listing link without its .html suffix.
func ParseMascusPage(doc *goquery.Document) ([]entity.Listing, []error) {
	var listings []entity.Listing
	var skipped []error

	doc.Find(mascusItemSelector).Each(func(i int, item *goquery.Selection) {
		href := item.Find(mascusLinkSelector).First().AttrOr("href", "")
		if href == "" {
			skipped = append(skipped, fmt.Errorf("result %d has no link", i))
			return
		}
		id := strings.TrimSuffix(utils.LastPathSegment(href), ".html")
		if id == "" {
			skipped = append(skipped, fmt.Errorf("result %d has no id in %q", i, href))
			return
		}

		title := text(item.Find(mascusTitleSelector).First())
		if title == "" {
			title = "Machine " + id
		}

		l := entity.Listing{
			UniqueID: id,
			Title:    title,
			Category: "Mascus - Construction Equipment",
			Link:     utils.ToAbsoluteURL(mascusBase, href),
			Price:    text(item.Find(mascusPriceSelector).First()),
		}
		l.Year, l.Hours, l.Location, l.CountryCode = parseMascusDetails(item.Find(mascusLocationSelector).First().Text())

		item.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
			if img.AttrOr("alt", "") == title {
				l.ImageURL = img.AttrOr("src", "")
				return false
			}
			return true
		})

		listings = append(listings, l)
	})
	return listings, skipped
}

// parseMascusDetails splits "2019 • 1234 h • Leeds GB • Dealer Ltd".
func parseMascusDetails(line string) (year, hours, location, country string) {
	parts := strings.Split(line, "•")
	if len(parts) < 2 {
		return "", "", "", ""
	}
	for _, part := range parts {
		p := strings.TrimSpace(part)
		switch {
		case len(p) == 4 && isDigits(p):
			year = p
		case strings.Contains(p, "h") && isDigits(strings.NewReplacer("h", "", " ", "", ",", "").Replace(p)):
			hours = p
		}
	}

	location = strings.TrimSpace(parts[len(parts)-2])
	if words := strings.Fields(location); len(words) > 0 {
		last := words[len(words)-1]
		if len(last) == 2 && isUpper(last) {
			country = last
		}
	}
	return year, hours, location, country
}

func isUpper(s string) bool {
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
