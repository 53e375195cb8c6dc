package repository

import (
	"context"
	"time"
)

// KnownListingRepository persists the Snapshot-mode id set of each scope.
type KnownListingRepository interface {
	// KnownIDs returns every id currently stored for the scope.
	KnownIDs(ctx context.Context, searchTitle string) (map[string]struct{}, error)
	// ApplySnapshot inserts added ids and deletes purged ids in one transaction.
	ApplySnapshot(ctx context.Context, searchTitle, websiteType string, added, purged []string) error
	// CountKnown returns how many ids are stored for the scope.
	CountKnown(ctx context.Context, searchTitle string) (int, error)
}

// MarkerRepository persists the Marker-mode cursor of each scope.
type MarkerRepository interface {
	// GetMarker returns the cursor and whether one exists.
	GetMarker(ctx context.Context, searchTitle string) (marker string, found bool, err error)
	// SaveMarker upserts the cursor.
	SaveMarker(ctx context.Context, searchTitle, marker string) error
	// MarkerUpdatedAt returns when the cursor last moved, nil if never.
	MarkerUpdatedAt(ctx context.Context, searchTitle string) (*time.Time, error)
}
