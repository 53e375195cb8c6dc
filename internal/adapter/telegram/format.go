package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

const captionLimit = 1024

// FormatListing renders the HTML message announcing one new listing.
func FormatListing(searchTitle string, n entity.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 <b>New item(s) found on %s:</b>\n\n", html.EscapeString(searchTitle))
	fmt.Fprintf(&b, "<b>Title:</b> %s\n", html.EscapeString(n.Title))
	if n.Price != "" {
		fmt.Fprintf(&b, "<b>Price:</b> %s\n", html.EscapeString(n.Price))
	}
	if n.Year != "" {
		fmt.Fprintf(&b, "<b>Year:</b> %s\n", html.EscapeString(n.Year))
	}
	if n.Location != "" {
		fmt.Fprintf(&b, "<b>Location:</b> %s\n", html.EscapeString(n.Location))
	}
	if n.Hours != "" {
		fmt.Fprintf(&b, "<b>Hours:</b> %s\n", html.EscapeString(n.Hours))
	}
	fmt.Fprintf(&b, "<b>Link:</b> %s", html.EscapeString(n.Link))
	return b.String()
}

// FormatAlert wraps a free-form alert.
func FormatAlert(message string) string {
	return "⚠️ <b>ALERT</b>\n\n" + html.EscapeString(message)
}

// FormatZeroItems renders the zero-items warning for a source.
func FormatZeroItems(searchTitle, url string) string {
	if len(url) > 80 {
		url = url[:80] + "..."
	}
	return "⚠️ <b>Zero Items Alert</b>\n\n" +
		"<b>Source:</b> " + html.EscapeString(searchTitle) + "\n" +
		"<b>Status:</b> Scraped 0 items\n" +
		"<b>URL:</b> " + html.EscapeString(url) + "\n\n" +
		"This might indicate:\n" +
		"• Website structure changed\n" +
		"• No items available\n" +
		"• Scraping issue"
}

// FormatProxyRequest is the message asking the operator for proxies.
func FormatProxyRequest() string {
	return "🔌 <b>Proxy pool is low</b>\n\n" +
		"Reply to this chat with a list of proxies, one per line:\n" +
		"<code>ip:port</code> or <code>ip:port:user:pass</code>"
}

// truncateCaption keeps a photo caption within the Bot API limit.
func truncateCaption(s string) string {
	r := []rune(s)
	if len(r) <= captionLimit {
		return s
	}
	return string(r[:captionLimit-1]) + "…"
}
