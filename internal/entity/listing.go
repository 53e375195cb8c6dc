package entity

// Listing is one normalized machine listing produced by a site adapter.
// UniqueID is only unique within the SourceScope that produced it.
type Listing struct {
	UniqueID    string
	Title       string
	Category    string
	Link        string
	Price       string
	Year        string
	Hours       string
	Location    string
	ImageURL    string
	CountryCode string
}

// Notification is the outward record handed to the notifier for a new listing.
type Notification struct {
	Title    string `json:"title"`
	Price    string `json:"price,omitempty"`
	Year     string `json:"year,omitempty"`
	Hours    string `json:"hours,omitempty"`
	Location string `json:"location,omitempty"`
	Link     string `json:"link"`
	ImageURL string `json:"image_url,omitempty"`
}

// Notification converts the listing into the record sent to the notifier.
func (l Listing) Notification() Notification {
	return Notification{
		Title:    l.Title,
		Price:    l.Price,
		Year:     l.Year,
		Hours:    l.Hours,
		Location: l.Location,
		Link:     l.Link,
		ImageURL: l.ImageURL,
	}
}

func (l Listing) String() string {
	price := l.Price
	if price == "" {
		price = "N/A"
	}
	return l.Title + " (" + l.UniqueID + ") - " + price
}

// SnapshotResult is the complete listing set of a Snapshot-mode source.
type SnapshotResult struct {
	Listings []Listing
	Pages    int
}
