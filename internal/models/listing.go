package models

import "time"

// DraftListing is the generated listing copy for a purchased item,
// produced by the external listing generator.
type DraftListing struct {
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	ItemSpecifics  map[string]string `json:"item_specifics"`
	Category       string            `json:"category"`
	SuggestedPrice float64           `json:"suggested_price"`
}

// InventoryItem is the record created for a confirmed purchase. One item
// exists per opportunity; re-running the relist pipeline must not create
// duplicates.
type InventoryItem struct {
	ID               string     `json:"id" gorm:"primaryKey;size:36"`
	OpportunityID    string     `json:"opportunity_id" gorm:"uniqueIndex"`
	Title            string     `json:"title" gorm:"not null"`
	PurchasePrice    float64    `json:"purchase_price"`
	PurchaseDate     time.Time  `json:"purchase_date"`
	PurchaseLocation string     `json:"purchase_location"`
	Status           string     `json:"status" gorm:"default:'unlisted'"` // unlisted, listed
	ListedPrice      *float64   `json:"listed_price"`
	ListedAt         *time.Time `json:"listed_at"`
	ListedPlatform   string     `json:"listed_platform"`
	ImageURL         string     `json:"image_url"`
	Notes            string     `json:"notes"`
	SearchQuery      string     `json:"search_query"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
