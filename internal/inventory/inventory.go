package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"flipradar/server/internal/models"
)

// GormStore persists purchased items. It satisfies the relist
// pipeline's InventoryStore contract: CreateItem is idempotent per
// opportunity, backed by a unique index.
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// CreateItem records a purchase, returning the existing item's id when
// one was already created for the opportunity.
func (s *GormStore) CreateItem(ctx context.Context, opp *models.Opportunity, draft *models.DraftListing) (string, error) {
	var existing models.InventoryItem
	err := s.db.WithContext(ctx).First(&existing, "opportunity_id = ?", opp.ID).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	item := models.InventoryItem{
		ID:               uuid.NewString(),
		OpportunityID:    opp.ID,
		Title:            opp.Title,
		PurchaseDate:     time.Now(),
		PurchaseLocation: string(opp.Platform),
		Status:           "unlisted",
		ImageURL:         opp.ImageURL,
	}
	if opp.PurchasePrice != nil {
		item.PurchasePrice = *opp.PurchasePrice
	}
	if draft != nil {
		item.Title = draft.Title
		item.ListedPrice = &draft.SuggestedPrice
	}

	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		// a concurrent run may have won the unique index race
		var raced models.InventoryItem
		if ferr := s.db.WithContext(ctx).First(&raced, "opportunity_id = ?", opp.ID).Error; ferr == nil {
			return raced.ID, nil
		}
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"item_id":        item.ID,
		"opportunity_id": opp.ID,
	}).Info("Inventory item created")
	return item.ID, nil
}

// MarkListed records that the item went live on a platform
func (s *GormStore) MarkListed(ctx context.Context, itemID string, platform models.Platform, price float64) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"status":          "listed",
			"listed_platform": string(platform),
			"listed_price":    price,
			"listed_at":       now,
		}).Error
}

// List returns inventory items, newest purchases first
func (s *GormStore) List(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.db.WithContext(ctx).Order("purchase_date DESC").Find(&items).Error
	return items, err
}
