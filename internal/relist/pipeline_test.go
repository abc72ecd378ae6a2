package relist

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipradar/server/internal/database"
	"flipradar/server/internal/models"
	"flipradar/server/internal/opportunity"
)

type fakeGenerator struct {
	calls int
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, item ItemSummary) (*models.DraftListing, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &models.DraftListing{
		Title:          item.Title,
		Description:    "Great condition, ships fast.",
		Category:       "Clothing",
		SuggestedPrice: item.EstimatedSellPrice,
	}, nil
}

type fakeInventory struct {
	calls int
	err   error
}

func (i *fakeInventory) CreateItem(ctx context.Context, opp *models.Opportunity, draft *models.DraftListing) (string, error) {
	i.calls++
	if i.err != nil {
		return "", i.err
	}
	return "inv-" + opp.ID, nil
}

type fakePublisher struct {
	calls int
	errs  []error // consumed per call, nil entries succeed
}

func (p *fakePublisher) Publish(ctx context.Context, draft *models.DraftListing) (string, error) {
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "https://ebay.com/itm/published", nil
}

type pipelineFixture struct {
	pipeline  *Pipeline
	store     *opportunity.Store
	generator *fakeGenerator
	inventory *fakeInventory
	publisher *fakePublisher
}

func setupPipeline(t *testing.T, autoPublish bool) *pipelineFixture {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := opportunity.NewStore(db, logger)
	gen := &fakeGenerator{}
	inv := &fakeInventory{}
	pub := &fakePublisher{}

	return &pipelineFixture{
		pipeline:  NewPipeline(store, gen, inv, pub, autoPublish, logger),
		store:     store,
		generator: gen,
		inventory: inv,
		publisher: pub,
	}
}

func (f *pipelineFixture) foundOpportunity(t *testing.T) *models.Opportunity {
	opp := &models.Opportunity{
		WatchQueryID:       "watch-1",
		Fingerprint:        "fp-1",
		Platform:           models.PlatformEbay,
		Title:              "Vintage Levi's 501",
		Condition:          "Used - Good",
		CurrentPrice:       35,
		EstimatedSellPrice: 65,
		DealScore:          80,
	}
	_, err := f.store.UpsertFound(opp)
	require.NoError(t, err)
	return opp
}

func TestRunHappyPath(t *testing.T) {
	f := setupPipeline(t, true)
	opp := f.foundOpportunity(t)

	result, err := f.pipeline.Run(context.Background(), opp.ID, 32.50)
	require.NoError(t, err)

	assert.Empty(t, result.StageErrors)
	require.NotNil(t, result.Draft)
	assert.Equal(t, "Vintage Levi's 501", result.Draft.Title)
	assert.Equal(t, "inv-"+opp.ID, result.InventoryItemID)
	assert.Equal(t, "https://ebay.com/itm/published", result.PublishedURL)

	stored, err := f.store.Get(opp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityPurchased, stored.Status)
	assert.Equal(t, 32.50, *stored.PurchasePrice)
	assert.NotEmpty(t, stored.DraftListing)
	assert.Equal(t, result.InventoryItemID, stored.InventoryItemID)
	assert.Equal(t, result.PublishedURL, stored.PublishedURL)
	assert.Empty(t, stored.PipelineError)
}

func TestGenerationFailureKeepsPurchase(t *testing.T) {
	f := setupPipeline(t, true)
	f.generator.err = ErrGenerationFailed
	opp := f.foundOpportunity(t)

	result, err := f.pipeline.Run(context.Background(), opp.ID, 30)
	require.NoError(t, err, "a failed stage is reported, not returned")

	assert.Contains(t, result.StageErrors, "generate")
	assert.Nil(t, result.Draft)
	assert.Equal(t, "inv-"+opp.ID, result.InventoryItemID, "inventory is recorded even without a draft")
	assert.Empty(t, result.PublishedURL, "nothing to publish without a draft")
	assert.Equal(t, 0, f.publisher.calls)

	stored, err := f.store.Get(opp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityPurchased, stored.Status, "generation failure never blocks the purchase")
	assert.Contains(t, stored.PipelineError, "generate:")
}

func TestResumeAfterPublishFailure(t *testing.T) {
	f := setupPipeline(t, true)
	f.publisher.errs = []error{ErrPublishFailed}
	opp := f.foundOpportunity(t)

	first, err := f.pipeline.Run(context.Background(), opp.ID, 30)
	require.NoError(t, err)
	assert.Contains(t, first.StageErrors, "publish")
	assert.NotNil(t, first.Draft)
	assert.NotEmpty(t, first.InventoryItemID)

	// retry: generation and inventory must not run again
	second, err := f.pipeline.Run(context.Background(), opp.ID, 30)
	require.NoError(t, err)

	assert.Empty(t, second.StageErrors)
	assert.Equal(t, "https://ebay.com/itm/published", second.PublishedURL)
	assert.Equal(t, 1, f.generator.calls, "draft already exists, no regeneration")
	assert.Equal(t, 1, f.inventory.calls, "no duplicate inventory record")
	assert.Equal(t, 2, f.publisher.calls)

	stored, err := f.store.Get(opp.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PipelineError, "a successful retry clears the recorded error")
}

func TestRunRejectsTerminalStates(t *testing.T) {
	f := setupPipeline(t, true)
	opp := f.foundOpportunity(t)

	_, err := f.store.Dismiss(opp.ID)
	require.NoError(t, err)

	_, err = f.pipeline.Run(context.Background(), opp.ID, 30)
	assert.ErrorIs(t, err, opportunity.ErrInvalidTransition)
	assert.Equal(t, 0, f.generator.calls)
}

func TestRunMissingOpportunity(t *testing.T) {
	f := setupPipeline(t, true)

	_, err := f.pipeline.Run(context.Background(), "missing", 30)
	assert.ErrorIs(t, err, opportunity.ErrNotFound)
}

func TestAutoPublishDisabled(t *testing.T) {
	f := setupPipeline(t, false)
	opp := f.foundOpportunity(t)

	result, err := f.pipeline.Run(context.Background(), opp.ID, 30)
	require.NoError(t, err)

	assert.Empty(t, result.StageErrors)
	assert.NotNil(t, result.Draft)
	assert.NotEmpty(t, result.InventoryItemID)
	assert.Empty(t, result.PublishedURL)
	assert.Equal(t, 0, f.publisher.calls)
}

func TestAuthExpiredRecordedForRetry(t *testing.T) {
	f := setupPipeline(t, true)
	f.publisher.errs = []error{ErrAuthExpired}
	opp := f.foundOpportunity(t)

	result, err := f.pipeline.Run(context.Background(), opp.ID, 30)
	require.NoError(t, err)
	assert.Contains(t, result.StageErrors["publish"], "expired")

	stored, err := f.store.Get(opp.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.PipelineError, "publish:")
	assert.NotEmpty(t, stored.InventoryItemID, "publish failure does not unwind inventory")
}
