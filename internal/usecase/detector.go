package usecase

import (
	"sort"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// SnapshotDiff is the outcome of comparing a full fetch with the known ids.
type SnapshotDiff struct {
	// New holds listings not seen before, in encounter order.
	New []entity.Listing
	// Current is the id set to persist: exactly the ids of this fetch.
	Current []string
	// Purged holds known ids absent from this fetch, sorted.
	Purged []string
}

// PurgeCount returns how many known ids disappeared.
func (d SnapshotDiff) PurgeCount() int {
	return len(d.Purged)
}

// Added returns the ids of New.
func (d SnapshotDiff) Added() []string {
	ids := make([]string, 0, len(d.New))
	for _, l := range d.New {
		ids = append(ids, l.UniqueID)
	}
	return ids
}

// DetectSnapshot classifies every listing of a full fetch against the ids
// persisted for the scope. An empty fetch purges every known id; callers
// decide whether to trust such a result.
func DetectSnapshot(current []entity.Listing, known map[string]struct{}) SnapshotDiff {
	diff := SnapshotDiff{
		New:     []entity.Listing{},
		Current: make([]string, 0, len(current)),
		Purged:  []string{},
	}

	seen := make(map[string]struct{}, len(current))
	for _, l := range current {
		if l.UniqueID == "" {
			continue
		}
		if _, dup := seen[l.UniqueID]; dup {
			continue
		}
		seen[l.UniqueID] = struct{}{}
		diff.Current = append(diff.Current, l.UniqueID)
		if _, ok := known[l.UniqueID]; !ok {
			diff.New = append(diff.New, l)
		}
	}

	for id := range known {
		if _, ok := seen[id]; !ok {
			diff.Purged = append(diff.Purged, id)
		}
	}
	sort.Strings(diff.Purged)
	return diff
}

// MarkerDiff is the outcome of walking an ordered feed down to the cursor.
type MarkerDiff struct {
	// New holds the listings above the previous cursor, newest first.
	New []entity.Listing
	// NextMarker is the id at the top of the feed, empty only for an empty feed.
	NextMarker string
}

// DetectMarker walks ordered (newest first) until it meets previous or has
// collected maxItems listings. previous == "" means the scope has never
// been seen; maxItems <= 0 means no bound. Nothing below the cursor is
// ever inspected and nothing is purged.
func DetectMarker(ordered []entity.Listing, previous string, maxItems int) MarkerDiff {
	diff := MarkerDiff{New: []entity.Listing{}}
	if len(ordered) == 0 {
		return diff
	}
	diff.NextMarker = ordered[0].UniqueID

	for _, l := range ordered {
		if maxItems > 0 && len(diff.New) >= maxItems {
			break
		}
		if previous != "" && l.UniqueID == previous {
			break
		}
		diff.New = append(diff.New, l)
	}
	return diff
}
