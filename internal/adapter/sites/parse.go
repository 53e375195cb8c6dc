package sites

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/utils"
)

func newDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

func newDocumentFromString(html string) (*goquery.Document, error) {
	return newDocument([]byte(html))
}

func text(s *goquery.Selection) string {
	return utils.CleanText(s.Text())
}

var (
	yearLabel     = regexp.MustCompile(`(?i)Year\s*:?\s*`)
	hoursLabel    = regexp.MustCompile(`(?i)Hours\s*:?\s*`)
	locationLabel = regexp.MustCompile(`(?i)Location\s*:?\s*`)
)

// stripLabel removes a field label such as "Year" from a value.
func stripLabel(value string, label *regexp.Regexp) string {
	return strings.TrimSpace(label.ReplaceAllString(value, ""))
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
