package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"flipradar/server/internal/models"
)

var (
	// ErrNotFound means no watch query exists with the given id
	ErrNotFound = errors.New("watch query not found")
	// ErrInvalidQuery means the watch query failed validation
	ErrInvalidQuery = errors.New("invalid watch query")
)

// Registry manages the saved searches the scanner polls. All methods
// are safe for concurrent use; the database serializes writes.
type Registry struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRegistry(db *gorm.DB, logger *logrus.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

// Create validates and stores a new watch query. The query text is
// required; a blank platform means all platforms.
func (r *Registry) Create(wq *models.WatchQuery) error {
	if err := validate(wq); err != nil {
		return err
	}
	if wq.ID == "" {
		wq.ID = uuid.NewString()
	}
	if wq.MinDealScore == 0 {
		wq.MinDealScore = 50
	}
	wq.Active = true

	if err := r.db.Create(wq).Error; err != nil {
		return fmt.Errorf("creating watch query: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"id":       wq.ID,
		"query":    wq.Query,
		"platform": wq.Platform,
	}).Info("Watch query created")
	return nil
}

// Get returns one watch query by id
func (r *Registry) Get(id string) (*models.WatchQuery, error) {
	var wq models.WatchQuery
	err := r.db.First(&wq, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wq, nil
}

// List returns watch queries, newest first. When activeOnly is set,
// paused queries are excluded.
func (r *Registry) List(activeOnly bool) ([]models.WatchQuery, error) {
	var queries []models.WatchQuery
	q := r.db.Order("created_at DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&queries).Error; err != nil {
		return nil, err
	}
	return queries, nil
}

// Update applies the non-nil fields of the update to an existing watch
// query and returns the updated record.
func (r *Registry) Update(id string, upd *models.WatchQueryUpdate) (*models.WatchQuery, error) {
	wq, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	if upd.Query != nil {
		wq.Query = *upd.Query
	}
	if upd.Platform != nil {
		wq.Platform = *upd.Platform
	}
	if upd.TargetPrice != nil {
		wq.TargetPrice = upd.TargetPrice
	}
	if upd.MinDealScore != nil {
		wq.MinDealScore = *upd.MinDealScore
	}
	if upd.Active != nil {
		wq.Active = *upd.Active
	}
	if err := validate(wq); err != nil {
		return nil, err
	}

	if err := r.db.Save(wq).Error; err != nil {
		return nil, fmt.Errorf("updating watch query: %w", err)
	}
	return wq, nil
}

// Delete removes a watch query. Opportunities already found for it are
// kept as history.
func (r *Registry) Delete(id string) error {
	res := r.db.Delete(&models.WatchQuery{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDue returns up to limit active watch queries eligible for a scan:
// never-scanned queries first, then the longest-unscanned. Queries
// scanned within minInterval are excluded so manual triggers cannot
// hammer the sources.
func (r *Registry) ListDue(limit int, minInterval time.Duration) ([]models.WatchQuery, error) {
	cutoff := time.Now().Add(-minInterval)

	var queries []models.WatchQuery
	err := r.db.
		Where("active = ?", true).
		Where("last_scanned_at IS NULL OR last_scanned_at < ?", cutoff).
		Order("last_scanned_at IS NOT NULL, last_scanned_at ASC, created_at ASC").
		Limit(limit).
		Find(&queries).Error
	if err != nil {
		return nil, err
	}
	return queries, nil
}

// MarkAttempted records a failed scan attempt: only the staleness
// timestamp moves, so the query rotates to the back of the due order
// instead of monopolizing every bounded batch while its source is down.
func (r *Registry) MarkAttempted(id string) error {
	res := r.db.Model(&models.WatchQuery{}).
		Where("id = ?", id).
		Update("last_scanned_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkScanned records a completed scan: bumps the scan bookkeeping in a
// single update so concurrent cycles cannot lose counts.
func (r *Registry) MarkScanned(id string, foundCount int) error {
	res := r.db.Model(&models.WatchQuery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_scanned_at":     time.Now(),
			"scan_count":          gorm.Expr("scan_count + 1"),
			"opportunities_found": gorm.Expr("opportunities_found + ?", foundCount),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func validate(wq *models.WatchQuery) error {
	if strings.TrimSpace(wq.Query) == "" {
		return fmt.Errorf("%w: query text is required", ErrInvalidQuery)
	}
	if wq.TargetPrice != nil && *wq.TargetPrice <= 0 {
		return fmt.Errorf("%w: target price must be positive", ErrInvalidQuery)
	}
	if wq.MinDealScore < 0 || wq.MinDealScore > 100 {
		return fmt.Errorf("%w: min deal score must be between 0 and 100", ErrInvalidQuery)
	}
	switch wq.Platform {
	case "", models.PlatformEbay, models.PlatformFacebook, models.PlatformPoshmark, models.PlatformMercari:
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidQuery, wq.Platform)
	}
	return nil
}
