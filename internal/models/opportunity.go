package models

import "time"

// OpportunityStatus is the lifecycle state of a discovered deal. Found is
// the only non-terminal state; records are terminalized, never deleted.
type OpportunityStatus string

const (
	OpportunityFound     OpportunityStatus = "found"
	OpportunityPurchased OpportunityStatus = "purchased"
	OpportunityDismissed OpportunityStatus = "dismissed"
	OpportunityExpired   OpportunityStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s OpportunityStatus) Terminal() bool {
	return s != OpportunityFound
}

// Opportunity is a discovered deal matching a watch query's thresholds.
// At most one found Opportunity exists per (watch query, fingerprint)
// pair; repeated sightings refresh the metrics in place.
type Opportunity struct {
	ID           string   `json:"id" gorm:"primaryKey;size:36"`
	WatchQueryID string   `json:"watch_query_id" gorm:"index:idx_opp_watch_fp"`
	Fingerprint  string   `json:"fingerprint" gorm:"index:idx_opp_watch_fp"`
	Platform     Platform `json:"platform" gorm:"index"`
	Title        string   `json:"title" gorm:"not null"`
	URL          string   `json:"url"`
	ImageURL     string   `json:"image_url"`
	Condition    string   `json:"condition"`
	Seller       string   `json:"seller"`
	CurrentPrice float64  `json:"current_price"`

	// Snapshot-derived metrics, refreshed on every qualifying sighting.
	SellThroughRate     float64 `json:"sell_through_rate"`
	Liquidity           string  `json:"liquidity"`
	AvgDaysToSell       float64 `json:"avg_days_to_sell"`
	RecommendedBuyPrice float64 `json:"recommended_buy_price"`
	EstimatedSellPrice  float64 `json:"estimated_sell_price"`
	EstimatedProfit     float64 `json:"estimated_profit"`
	DealScore           int     `json:"deal_score"`
	Verdict             string  `json:"verdict"`

	Status     OpportunityStatus `json:"status" gorm:"index;default:'found'"`
	FoundAt    time.Time         `json:"found_at"`
	LastSeenAt time.Time         `json:"last_seen_at"`
	ResolvedAt *time.Time        `json:"resolved_at"`

	// Relist pipeline artifacts. Each is written once by its stage and
	// doubles as the stage-completion marker for idempotent resumes.
	PurchasePrice   *float64 `json:"purchase_price"`
	DraftListing    string   `json:"draft_listing" gorm:"type:text"` // JSON-encoded DraftListing
	InventoryItemID string   `json:"inventory_item_id"`
	PublishedURL    string   `json:"published_url"`
	PipelineError   string   `json:"pipeline_error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpportunityFilter narrows List results on the opportunity store.
type OpportunityFilter struct {
	Status       OpportunityStatus
	WatchQueryID string
	MinScore     *int
	MinProfit    *float64
	SortBy       string // found_at, deal_score, estimated_profit, current_price
	Order        string // asc or desc
	Limit        int
}
