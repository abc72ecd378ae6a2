package database

import (
	"fmt"

	"gorm.io/gorm"

	"flipradar/server/internal/models"
)

// RunMigrations creates or updates the schema for all persistent records.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.WatchQuery{},
		&models.Opportunity{},
		&models.InventoryItem{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
