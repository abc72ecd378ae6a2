package inventory

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipradar/server/internal/database"
	"flipradar/server/internal/models"
)

func setupInventory(t *testing.T) *GormStore {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewGormStore(db, logger)
}

func purchasedOpportunity() *models.Opportunity {
	price := 32.50
	return &models.Opportunity{
		ID:            "opp-1",
		Title:         "Vintage Levi's 501",
		ImageURL:      "https://img.example/1.jpg",
		PurchasePrice: &price,
	}
}

func TestCreateItemIdempotent(t *testing.T) {
	store := setupInventory(t)
	ctx := context.Background()
	opp := purchasedOpportunity()

	draft := &models.DraftListing{Title: "Levi's 501 Vintage Denim", SuggestedPrice: 65}
	first, err := store.CreateItem(ctx, opp, draft)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := store.CreateItem(ctx, opp, draft)
	require.NoError(t, err)
	assert.Equal(t, first, second, "one inventory item per opportunity")

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Levi's 501 Vintage Denim", items[0].Title, "draft title wins when present")
	assert.Equal(t, 32.50, items[0].PurchasePrice)
	assert.Equal(t, "unlisted", items[0].Status)
}

func TestCreateItemWithoutDraft(t *testing.T) {
	store := setupInventory(t)

	id, err := store.CreateItem(context.Background(), purchasedOpportunity(), nil)
	require.NoError(t, err)

	items, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "Vintage Levi's 501", items[0].Title)
	assert.Nil(t, items[0].ListedPrice)
}

func TestMarkListed(t *testing.T) {
	store := setupInventory(t)
	ctx := context.Background()

	id, err := store.CreateItem(ctx, purchasedOpportunity(), nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkListed(ctx, id, models.PlatformEbay, 64.99))

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "listed", items[0].Status)
	assert.Equal(t, "ebay", items[0].ListedPlatform)
	require.NotNil(t, items[0].ListedPrice)
	assert.Equal(t, 64.99, *items[0].ListedPrice)
	assert.NotNil(t, items[0].ListedAt)
}
