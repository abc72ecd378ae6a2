package opportunity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"flipradar/server/internal/models"
)

var (
	// ErrNotFound means no opportunity exists with the given id
	ErrNotFound = errors.New("opportunity not found")
	// ErrInvalidTransition means a state change was attempted from a
	// terminal status. The record is left unchanged.
	ErrInvalidTransition = errors.New("invalid opportunity transition")
)

// Store persists discovered deals and enforces their lifecycle. Found
// is the only non-terminal status; transitions out of it use an
// optimistic check-and-set so the scanner loop and foreground requests
// can write concurrently without a shared lock.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// UpsertFound records a sighting. If a found opportunity already exists
// for the (watch query, fingerprint) pair its metrics are refreshed in
// place; otherwise a new found record is created. Terminal records for
// the pair are history and do not block a fresh sighting. Returns
// whether a new record was created.
func (s *Store) UpsertFound(opp *models.Opportunity) (bool, error) {
	now := time.Now()

	var existing models.Opportunity
	err := s.db.
		Where("watch_query_id = ? AND fingerprint = ? AND status = ?",
			opp.WatchQueryID, opp.Fingerprint, models.OpportunityFound).
		First(&existing).Error

	switch {
	case err == nil:
		updates := map[string]interface{}{
			"current_price":         opp.CurrentPrice,
			"url":                   opp.URL,
			"image_url":             opp.ImageURL,
			"sell_through_rate":     opp.SellThroughRate,
			"liquidity":             opp.Liquidity,
			"avg_days_to_sell":      opp.AvgDaysToSell,
			"recommended_buy_price": opp.RecommendedBuyPrice,
			"estimated_sell_price":  opp.EstimatedSellPrice,
			"estimated_profit":      opp.EstimatedProfit,
			"deal_score":            opp.DealScore,
			"verdict":               opp.Verdict,
			"last_seen_at":          now,
		}
		if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
			return false, fmt.Errorf("refreshing opportunity: %w", err)
		}
		*opp = existing
		return false, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		opp.ID = uuid.NewString()
		opp.Status = models.OpportunityFound
		opp.FoundAt = now
		opp.LastSeenAt = now
		if err := s.db.Create(opp).Error; err != nil {
			return false, fmt.Errorf("creating opportunity: %w", err)
		}
		return true, nil

	default:
		return false, err
	}
}

// Get returns one opportunity by id
func (s *Store) Get(id string) (*models.Opportunity, error) {
	var opp models.Opportunity
	err := s.db.First(&opp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &opp, nil
}

// List returns opportunities matching the filter, newest first unless
// the filter says otherwise.
func (s *Store) List(filter models.OpportunityFilter) ([]models.Opportunity, error) {
	q := s.db.Model(&models.Opportunity{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.WatchQueryID != "" {
		q = q.Where("watch_query_id = ?", filter.WatchQueryID)
	}
	if filter.MinScore != nil {
		q = q.Where("deal_score >= ?", *filter.MinScore)
	}
	if filter.MinProfit != nil {
		q = q.Where("estimated_profit >= ?", *filter.MinProfit)
	}

	sortBy := filter.SortBy
	switch sortBy {
	case "deal_score", "estimated_profit", "current_price", "found_at":
	default:
		sortBy = "found_at"
	}
	order := "DESC"
	if filter.Order == "asc" {
		order = "ASC"
	}
	q = q.Order(fmt.Sprintf("%s %s", sortBy, order))

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var opps []models.Opportunity
	if err := q.Find(&opps).Error; err != nil {
		return nil, err
	}
	return opps, nil
}

// Purchase transitions a found opportunity to purchased, recording the
// price paid. Fails with ErrInvalidTransition when the record is
// already terminal.
func (s *Store) Purchase(id string, purchasePrice float64) (*models.Opportunity, error) {
	return s.transition(id, models.OpportunityPurchased, map[string]interface{}{
		"purchase_price": purchasePrice,
	})
}

// Dismiss transitions a found opportunity to dismissed
func (s *Store) Dismiss(id string) (*models.Opportunity, error) {
	return s.transition(id, models.OpportunityDismissed, nil)
}

// transition applies a found→terminal state change as a single
// conditional update. Zero rows affected means the record was either
// missing or already terminal; the two are distinguished afterwards.
func (s *Store) transition(id string, to models.OpportunityStatus, extra map[string]interface{}) (*models.Opportunity, error) {
	updates := map[string]interface{}{
		"status":      to,
		"resolved_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.Model(&models.Opportunity{}).
		Where("id = ? AND status = ?", id, models.OpportunityFound).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		if _, err := s.Get(id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}

	opp, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"id":     id,
		"status": to,
	}).Info("Opportunity resolved")
	return opp, nil
}

// ExpireOlderThan terminalizes found opportunities first seen before
// the cutoff. Returns the number of records expired. The sweep ignores
// watch-query state: an orphaned opportunity still expires.
func (s *Store) ExpireOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.Opportunity{}).
		Where("status = ? AND found_at < ?", models.OpportunityFound, cutoff).
		Updates(map[string]interface{}{
			"status":      models.OpportunityExpired,
			"resolved_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.WithField("count", res.RowsAffected).Info("Expired stale opportunities")
	}
	return res.RowsAffected, nil
}

// SetDraftListing attaches generated listing copy (JSON) to an
// opportunity. Written by the relist pipeline's generate stage.
func (s *Store) SetDraftListing(id, draftJSON string) error {
	return s.setField(id, "draft_listing", draftJSON)
}

// SetInventoryItem records the inventory item created for a purchase
func (s *Store) SetInventoryItem(id, inventoryItemID string) error {
	return s.setField(id, "inventory_item_id", inventoryItemID)
}

// SetPublishedURL records the live listing reference after publishing
func (s *Store) SetPublishedURL(id, url string) error {
	return s.setField(id, "published_url", url)
}

// SetPipelineError records a pipeline-stage failure for manual retry.
// An empty message clears a previous error.
func (s *Store) SetPipelineError(id, msg string) error {
	return s.setField(id, "pipeline_error", msg)
}

func (s *Store) setField(id, column string, value interface{}) error {
	res := s.db.Model(&models.Opportunity{}).
		Where("id = ?", id).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
