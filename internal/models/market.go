package models

import "time"

// Platform identifies a marketplace source.
type Platform string

const (
	PlatformEbay     Platform = "ebay"
	PlatformFacebook Platform = "facebook"
	PlatformPoshmark Platform = "poshmark"
	PlatformMercari  Platform = "mercari"
)

// ListingSample is one observed listing from a marketplace source.
// Samples are immutable once recorded.
type ListingSample struct {
	PlatformID string     `json:"platform_id"`
	Title      string     `json:"title"`
	Price      float64    `json:"price"`
	Condition  string     `json:"condition"`
	Sold       bool       `json:"sold"`
	ImageURL   string     `json:"image_url"`
	Seller     string     `json:"seller"`
	URL        string     `json:"url"`
	ListedAt   time.Time  `json:"listed_at"` // zero value means unknown
	SoldAt     *time.Time `json:"sold_at"`
}

// MarketSnapshot is the aggregated view for one watch query at one scan
// time. Produced fresh per scan and never mutated afterwards.
type MarketSnapshot struct {
	Query       string          `json:"query"`
	Platform    Platform        `json:"platform"`
	Active      []ListingSample `json:"active"`
	Sold        []ListingSample `json:"sold"`
	TotalActive int             `json:"total_active"` // total on market, may exceed len(Active)
	TotalSold   int             `json:"total_sold"`   // total sold recently, may exceed len(Sold)
	Partial     bool            `json:"partial"`      // sold history missing or truncated at the source
	FetchedAt   time.Time       `json:"fetched_at"`
}

// BestActivePrice returns the lowest positive asking price in the
// snapshot, or 0 when there are no usable active samples.
func (s *MarketSnapshot) BestActivePrice() float64 {
	best := 0.0
	for _, l := range s.Active {
		if l.Price <= 0 {
			continue
		}
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}
