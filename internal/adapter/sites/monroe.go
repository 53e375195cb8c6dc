package sites

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/chromedp_crawler"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/utils"
)

var (
	monroeStockInURL = regexp.MustCompile(`/(H\d+)/?$`)
	monroeModel      = regexp.MustCompile(`Model:\s*([^|]+?)\s*(?:\||Stock)`)
	monroeStock      = regexp.MustCompile(`Stock #:\s*([^\n|]+)`)
	monroePrice      = regexp.MustCompile(`Price:\s*([^\n|]+)`)
	monroeLocation   = regexp.MustCompile(`Location:\s*([^\n|]+)`)
	monroeYear       = regexp.MustCompile(`Year:\s*(\d{4})`)
)

// MonroeAdapter renders the Monroe Tractor inventory, which loads items on
// scroll, and parses the fully loaded DOM.
type MonroeAdapter struct {
	renderer chromedp_crawler.Renderer
	logger   *zap.Logger
}

func NewMonroeAdapter(renderer chromedp_crawler.Renderer, logger *zap.Logger) *MonroeAdapter {
	return &MonroeAdapter{renderer: renderer, logger: logger}
}

func (a *MonroeAdapter) FetchSnapshot(ctx context.Context, src entity.Source) (entity.SnapshotResult, error) {
	res, err := a.renderer.Render(ctx, &chromedp_crawler.RenderRequest{
		URL:           src.URL,
		WaitSelectors: []string{".equipment_by_type"},
		WaitTimeout:   10 * time.Second,
		Scroll: &chromedp_crawler.ScrollSpec{
			ItemSelector:  ".equip-item-wrap",
			CountSelector: ".equipment_by_type",
			CountAttr:     "data-equip-count",
			MaxAttempts:   20,
			StallLimit:    3,
			Pause:         3 * time.Second,
		},
		UseProxy: src.UseProxy,
	})
	if err != nil {
		return entity.SnapshotResult{}, err
	}

	doc, err := newDocumentFromString(res.HTML)
	if err != nil {
		return entity.SnapshotResult{}, err
	}
	listings, expected, skipped := ParseMonroePage(doc, src.URL)
	for _, e := range skipped {
		a.logger.Warn("skipped listing", zap.String("source", src.SearchTitle), zap.Error(e))
	}
	if expected > 0 && expected != len(listings) {
		a.logger.Warn("listing count differs from the page total",
			zap.String("source", src.SearchTitle),
			zap.Int("parsed", len(listings)),
			zap.Int("expected", expected),
		)
	}
	return entity.SnapshotResult{Listings: listings, Pages: 1}, nil
}

// ParseMonroePage extracts machines from a rendered inventory page. It also
// returns the total the page advertises in data-equip-count, 0 if unknown.
func ParseMonroePage(doc *goquery.Document, pageURL string) ([]entity.Listing, int, []error) {
	container := doc.Find("div.equipment_by_type").First()
	if container.Length() == 0 {
		return nil, 0, nil
	}
	expected, _ := strconv.Atoi(strings.TrimSpace(container.AttrOr("data-equip-count", "")))

	var listings []entity.Listing
	var skipped []error
	doc.Find("div.equip-item-wrap").Each(func(i int, item *goquery.Selection) {
		l, err := parseMonroeItem(item, pageURL)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("item %d: %w", i, err))
			return
		}
		listings = append(listings, l)
	})
	return listings, expected, skipped
}

func parseMonroeItem(item *goquery.Selection, pageURL string) (entity.Listing, error) {
	equip := item.Find("div.equip_item").First()
	if equip.Length() == 0 {
		return entity.Listing{}, fmt.Errorf("no equip_item block")
	}

	imageLink := equip.Find("a.image").First()
	href, ok := imageLink.Attr("href")
	if !ok || href == "" {
		return entity.Listing{}, fmt.Errorf("no machine link")
	}
	link := utils.ToAbsoluteURL(pageURL, href)

	id := firstMatch(monroeStockInURL, link)
	if id == "" {
		id = utils.LastPathSegment(link)
	}
	if id == "" {
		return entity.Listing{}, fmt.Errorf("no unique id in %q", link)
	}

	details := equip.Find("div.details").First()
	if details.Length() == 0 {
		return entity.Listing{}, fmt.Errorf("no details block")
	}
	bottom := details.Find("div.bottom").First()
	if bottom.Length() == 0 {
		return entity.Listing{}, fmt.Errorf("no bottom block")
	}

	brand := text(details.Find("div.top strong").First())
	if brand == "" {
		brand = "Unknown"
	}
	bottomText := bottom.Text()

	model := firstMatch(monroeModel, bottomText)
	if model == "" {
		model = "Unknown"
	}
	stock := firstMatch(monroeStock, bottomText)
	if stock == "" {
		stock = id
	}
	price := firstMatch(monroePrice, bottomText)
	if price == "" {
		price = "Upon Request"
	}
	location := firstMatch(monroeLocation, bottomText)
	if location == "" {
		location = "Unknown"
	}
	year := firstMatch(monroeYear, bottomText)

	title := brand + " " + model
	if year != "" {
		title += " " + year
	}
	title += " " + stock

	var image string
	if src, ok := imageLink.Find("img").First().Attr("src"); ok && src != "" && !strings.Contains(src, "img-loading") {
		image = utils.ToAbsoluteURL(pageURL, src)
	}

	return entity.Listing{
		UniqueID: id,
		Title:    title,
		Category: "Construction Equipment",
		Link:     link,
		Price:    price,
		Year:     year,
		Location: location,
		ImageURL: image,
	}, nil
}
