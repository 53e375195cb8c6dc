package repository

import (
	"context"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// SnapshotAdapter fetches every listing a source currently shows,
// paginating internally.
type SnapshotAdapter interface {
	FetchSnapshot(ctx context.Context, src entity.Source) (entity.SnapshotResult, error)
}

// MarkerAdapter fetches the first page of a newest-first feed. Index 0 is
// the newest listing.
type MarkerAdapter interface {
	FetchPage(ctx context.Context, src entity.Source) ([]entity.Listing, error)
}

// AdapterRegistry resolves the adapter of a website type. The returned
// value implements exactly one of SnapshotAdapter or MarkerAdapter.
type AdapterRegistry interface {
	Lookup(websiteType string) (adapter any, mode entity.DetectionMode, err error)
}
