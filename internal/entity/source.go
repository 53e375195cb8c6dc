package entity

// DetectionMode selects how new listings are found for a source. It is a
// property of the website type and never changes for a given scope.
type DetectionMode int

const (
	// ModeSnapshot diffs the full listing set against the known id set.
	ModeSnapshot DetectionMode = iota + 1
	// ModeMarker walks an ordered feed from the top down to the last seen id.
	ModeMarker
)

func (m DetectionMode) String() string {
	switch m {
	case ModeSnapshot:
		return "snapshot"
	case ModeMarker:
		return "marker"
	default:
		return "unknown"
	}
}

// Category is a MachineFinder search category.
type Category struct {
	Title      string `mapstructure:"title" json:"title"`
	SearchKind string `mapstructure:"search_kind" json:"search_kind"`
	BCat       string `mapstructure:"bcat" json:"bcat"`
}

// Source is one configured crawl target. SearchTitle is the SourceScope:
// every piece of persisted state is partitioned by it.
type Source struct {
	URL         string     `mapstructure:"url" json:"url"`
	WebsiteType string     `mapstructure:"website_type" json:"website_type"`
	SearchTitle string     `mapstructure:"search_title" json:"search_title"`
	Enabled     bool       `mapstructure:"enabled" json:"enabled"`
	MaxItems    int        `mapstructure:"max_items" json:"max_items,omitempty"`
	Categories  []Category `mapstructure:"categories" json:"categories,omitempty"`
	UseProxy    bool       `mapstructure:"use_proxy" json:"use_proxy"`
}

// Scope returns the isolation key for persisted state.
func (s Source) Scope() string {
	return s.SearchTitle
}
