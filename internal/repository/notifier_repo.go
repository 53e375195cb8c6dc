package repository

import (
	"context"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// Notifier delivers new-listing notifications and operational alerts.
type Notifier interface {
	// NotifyListings sends one message per listing for the given scope.
	NotifyListings(ctx context.Context, searchTitle, websiteType string, listings []entity.Notification) error
	// SendAlert sends a free-form operational alert.
	SendAlert(ctx context.Context, message string) error
	// SendZeroItemsAlert warns that a scope fetched nothing.
	SendZeroItemsAlert(ctx context.Context, searchTitle, url, websiteType string) error
	// Ping checks that the transport is reachable.
	Ping(ctx context.Context) error
}

// Replenisher asks an out-of-band party for a fresh list of proxies and
// blocks until it answers or ctx is done. The answer is free text, one
// proxy per line.
type Replenisher interface {
	RequestProxies(ctx context.Context) (string, error)
}
