package sites

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/httpfetch"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/utils"
)

const (
	aisEquipBase     = "https://www.aisequip.com"
	aisEquipMaxPages = 50
)

// AISEquipAdapter reads the server-rendered AIS inventory page by page.
type AISEquipAdapter struct {
	doer      httpfetch.Doer
	pageDelay time.Duration
	maxPages  int
	logger    *zap.Logger
}

func NewAISEquipAdapter(doer httpfetch.Doer, pageDelay time.Duration, logger *zap.Logger) *AISEquipAdapter {
	return &AISEquipAdapter{doer: doer, pageDelay: pageDelay, maxPages: aisEquipMaxPages, logger: logger}
}

// FetchSnapshot walks ?_paged=N until a page comes back empty or the page
// ceiling is reached. A failed page fails the whole snapshot.
func (a *AISEquipAdapter) FetchSnapshot(ctx context.Context, src entity.Source) (entity.SnapshotResult, error) {
	var result entity.SnapshotResult

	for page := 1; page <= a.maxPages; page++ {
		pageURL := src.URL
		if page > 1 {
			pageURL = utils.WithQueryParam(src.URL, "_paged", strconv.Itoa(page))
		}

		resp, err := a.doer.Do(ctx, httpfetch.Get(pageURL, src.UseProxy))
		if err != nil {
			return result, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		doc, err := newDocument(resp.Body)
		if err != nil {
			return result, err
		}

		listings, skipped := ParseAISEquipPage(doc)
		for _, e := range skipped {
			a.logger.Warn("skipped listing", zap.String("source", src.SearchTitle), zap.Int("page", page), zap.Error(e))
		}
		if len(listings) == 0 {
			a.logger.Debug("empty page, stopping pagination", zap.String("source", src.SearchTitle), zap.Int("page", page))
			break
		}

		result.Listings = append(result.Listings, listings...)
		result.Pages = page
		a.logger.Debug("page parsed", zap.String("source", src.SearchTitle), zap.Int("page", page), zap.Int("listings", len(listings)))

		if page < a.maxPages {
			if err := utils.Sleep(ctx, a.pageDelay); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// ParseAISEquipPage extracts the machines of one inventory page. Each
// machine is an <a href> wrapping a div.machine inside div.machines.
func ParseAISEquipPage(doc *goquery.Document) ([]entity.Listing, []error) {
	var listings []entity.Listing
	var skipped []error

	container := doc.Find("div.machines").First()
	if container.Length() == 0 {
		return nil, nil
	}

	container.Find("a[href]").Each(func(i int, link *goquery.Selection) {
		machine := link.Find("div.machine").First()
		if machine.Length() == 0 {
			return
		}

		href := utils.ToAbsoluteURL(aisEquipBase, link.AttrOr("href", ""))
		id := utils.LastPathSegment(href)
		if id == "" {
			skipped = append(skipped, fmt.Errorf("no unique id in link %q", href))
			return
		}

		title := text(machine.Find("h3").First())
		if title == "" {
			title = "Unknown"
		}

		listings = append(listings, entity.Listing{
			UniqueID: id,
			Title:    title,
			Category: text(machine.Find("div.machine-category").First()),
			Link:     href,
			Price:    text(machine.Find("div.machine-price").First()),
			Year:     stripLabel(text(machine.Find("div.machine-year").First()), yearLabel),
			Hours:    stripLabel(text(machine.Find("div.machine-hours").First()), hoursLabel),
			Location: stripLabel(text(machine.Find("div.machine-location").First()), locationLabel),
			ImageURL: aisEquipImage(machine),
		})
	})
	return listings, skipped
}

func aisEquipImage(machine *goquery.Selection) string {
	if src, ok := machine.Find("picture img").First().Attr("src"); ok && src != "" {
		return utils.ToAbsoluteURL(aisEquipBase, src)
	}
	src, ok := machine.Find("img").First().Attr("src")
	if !ok || src == "" || strings.Contains(strings.ToLower(src), "placeholder") {
		return ""
	}
	return utils.ToAbsoluteURL(aisEquipBase, src)
}
