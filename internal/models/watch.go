package models

import "time"

// WatchQuery is a user-defined saved search that the deal scanner polls
// periodically. The scanner only reads queries and updates the scan
// bookkeeping fields; everything else changes through explicit updates.
type WatchQuery struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	Query              string     `json:"query" gorm:"not null"`
	Platform           Platform   `json:"platform" gorm:"index"` // empty means all platforms
	TargetPrice        *float64   `json:"target_price"`
	MinDealScore       int        `json:"min_deal_score" gorm:"default:50"`
	Active             bool       `json:"active" gorm:"default:true;index"`
	LastScannedAt      *time.Time `json:"last_scanned_at" gorm:"index"`
	ScanCount          int        `json:"scan_count"`
	OpportunitiesFound int        `json:"opportunities_found"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// WatchQueryUpdate carries the fields a user is allowed to change on an
// existing watch query. Nil fields are left untouched.
type WatchQueryUpdate struct {
	Query        *string   `json:"query"`
	Platform     *Platform `json:"platform"`
	TargetPrice  *float64  `json:"target_price"`
	MinDealScore *int      `json:"min_deal_score"`
	Active       *bool     `json:"active"`
}
