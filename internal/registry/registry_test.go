package registry

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipradar/server/internal/database"
	"flipradar/server/internal/models"
)

func setupRegistry(t *testing.T) *Registry {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewRegistry(db, logger)
}

func TestCreateAndGet(t *testing.T) {
	reg := setupRegistry(t)

	wq := &models.WatchQuery{
		Query:        "vintage denim jacket",
		Platform:     models.PlatformEbay,
		MinDealScore: 60,
	}
	require.NoError(t, reg.Create(wq))
	assert.NotEmpty(t, wq.ID)

	got, err := reg.Get(wq.ID)
	require.NoError(t, err)
	assert.Equal(t, "vintage denim jacket", got.Query)
	assert.Equal(t, models.PlatformEbay, got.Platform)
	assert.Equal(t, 60, got.MinDealScore)
	assert.True(t, got.Active)
	assert.Nil(t, got.LastScannedAt)
}

func TestCreateDefaultsMinScore(t *testing.T) {
	reg := setupRegistry(t)

	wq := &models.WatchQuery{Query: "air jordan 1"}
	require.NoError(t, reg.Create(wq))
	assert.Equal(t, 50, wq.MinDealScore)
}

func TestCreateValidation(t *testing.T) {
	reg := setupRegistry(t)

	err := reg.Create(&models.WatchQuery{Query: "   "})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	badPrice := -5.0
	err = reg.Create(&models.WatchQuery{Query: "ok", TargetPrice: &badPrice})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	err = reg.Create(&models.WatchQuery{Query: "ok", MinDealScore: 150})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	err = reg.Create(&models.WatchQuery{Query: "ok", Platform: "craigslist"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestGetMissing(t *testing.T) {
	reg := setupRegistry(t)

	_, err := reg.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePartial(t *testing.T) {
	reg := setupRegistry(t)

	wq := &models.WatchQuery{Query: "gameboy color", MinDealScore: 50}
	require.NoError(t, reg.Create(wq))

	newScore := 70
	inactive := false
	updated, err := reg.Update(wq.ID, &models.WatchQueryUpdate{
		MinDealScore: &newScore,
		Active:       &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, "gameboy color", updated.Query, "untouched fields keep their values")
	assert.Equal(t, 70, updated.MinDealScore)
	assert.False(t, updated.Active)
}

func TestDelete(t *testing.T) {
	reg := setupRegistry(t)

	wq := &models.WatchQuery{Query: "levis 501"}
	require.NoError(t, reg.Create(wq))

	require.NoError(t, reg.Delete(wq.ID))
	_, err := reg.Get(wq.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, reg.Delete(wq.ID), ErrNotFound)
}

func TestListDueOrdering(t *testing.T) {
	reg := setupRegistry(t)

	never := &models.WatchQuery{Query: "never scanned"}
	require.NoError(t, reg.Create(never))

	old := &models.WatchQuery{Query: "scanned long ago"}
	require.NoError(t, reg.Create(old))
	oldScan := time.Now().Add(-2 * time.Hour)
	require.NoError(t, reg.db.Model(old).Update("last_scanned_at", oldScan).Error)

	recent := &models.WatchQuery{Query: "scanned just now"}
	require.NoError(t, reg.Create(recent))
	require.NoError(t, reg.db.Model(recent).Update("last_scanned_at", time.Now()).Error)

	paused := &models.WatchQuery{Query: "paused"}
	require.NoError(t, reg.Create(paused))
	require.NoError(t, reg.db.Model(paused).Update("active", false).Error)

	due, err := reg.ListDue(10, 5*time.Minute)
	require.NoError(t, err)

	require.Len(t, due, 2, "recently scanned and paused queries are excluded")
	assert.Equal(t, never.ID, due[0].ID, "never-scanned queries come first")
	assert.Equal(t, old.ID, due[1].ID)
}

func TestListDueLimit(t *testing.T) {
	reg := setupRegistry(t)

	for _, q := range []string{"one", "two", "three"} {
		require.NoError(t, reg.Create(&models.WatchQuery{Query: q}))
	}

	due, err := reg.ListDue(2, time.Minute)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestMarkScanned(t *testing.T) {
	reg := setupRegistry(t)

	wq := &models.WatchQuery{Query: "charizard holo"}
	require.NoError(t, reg.Create(wq))

	require.NoError(t, reg.MarkScanned(wq.ID, 3))
	require.NoError(t, reg.MarkScanned(wq.ID, 1))

	got, err := reg.Get(wq.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ScanCount)
	assert.Equal(t, 4, got.OpportunitiesFound)
	require.NotNil(t, got.LastScannedAt)
	assert.WithinDuration(t, time.Now(), *got.LastScannedAt, 5*time.Second)

	assert.ErrorIs(t, reg.MarkScanned("missing", 0), ErrNotFound)
}

func TestMarkAttemptedRotatesWithoutCounting(t *testing.T) {
	reg := setupRegistry(t)

	failing := &models.WatchQuery{Query: "down source"}
	require.NoError(t, reg.Create(failing))
	fresh := &models.WatchQuery{Query: "never tried"}
	require.NoError(t, reg.Create(fresh))

	require.NoError(t, reg.MarkAttempted(failing.ID))

	got, err := reg.Get(failing.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastScannedAt, "a failed attempt still moves the staleness cursor")
	assert.Zero(t, got.ScanCount)
	assert.Zero(t, got.OpportunitiesFound)

	due, err := reg.ListDue(10, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, fresh.ID, due[0].ID, "the attempted query rotates behind untried ones")

	assert.ErrorIs(t, reg.MarkAttempted("missing"), ErrNotFound)
}

func TestListActiveOnly(t *testing.T) {
	reg := setupRegistry(t)

	active := &models.WatchQuery{Query: "active one"}
	require.NoError(t, reg.Create(active))

	paused := &models.WatchQuery{Query: "paused one"}
	require.NoError(t, reg.Create(paused))
	require.NoError(t, reg.db.Model(paused).Update("active", false).Error)

	all, err := reg.List(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := reg.List(true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)
}
