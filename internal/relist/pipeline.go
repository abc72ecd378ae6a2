package relist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"flipradar/server/internal/models"
	"flipradar/server/internal/opportunity"
)

var (
	// ErrGenerationFailed means the external listing generator could
	// not produce a draft. The purchase still stands.
	ErrGenerationFailed = errors.New("listing generation failed")
	// ErrPublishFailed means the seller-publish call failed. Earlier
	// stages are not rolled back.
	ErrPublishFailed = errors.New("listing publish failed")
	// ErrAuthExpired means the seller credentials need a refresh
	ErrAuthExpired = errors.New("seller credentials expired")
)

// ItemSummary is what the listing generator gets to work with
type ItemSummary struct {
	Title              string          `json:"title"`
	Condition          string          `json:"condition"`
	Platform           models.Platform `json:"platform"`
	ImageURL           string          `json:"image_url"`
	PurchasePrice      float64         `json:"purchase_price"`
	EstimatedSellPrice float64         `json:"estimated_sell_price"`
}

// Generator produces listing copy for a purchased item
type Generator interface {
	Generate(ctx context.Context, item ItemSummary) (*models.DraftListing, error)
}

// Publisher pushes a draft listing live on the seller account
type Publisher interface {
	Publish(ctx context.Context, draft *models.DraftListing) (string, error)
}

// InventoryStore records purchased items. CreateItem must be
// idempotent per opportunity id.
type InventoryStore interface {
	CreateItem(ctx context.Context, opp *models.Opportunity, draft *models.DraftListing) (string, error)
}

// Result reports what each pipeline stage did on one invocation.
// Stages skipped because a previous run already completed them are
// reported with their stored artifacts.
type Result struct {
	OpportunityID   string               `json:"opportunity_id"`
	Draft           *models.DraftListing `json:"draft,omitempty"`
	InventoryItemID string               `json:"inventory_item_id,omitempty"`
	PublishedURL    string               `json:"published_url,omitempty"`
	StageErrors     map[string]string    `json:"stage_errors,omitempty"`
}

// Pipeline turns a confirmed purchase into a generated and optionally
// published listing. Each stage stores its artifact on the opportunity
// record; re-running the pipeline skips stages that already completed,
// so a publish failure can be retried without regenerating or
// duplicating inventory.
type Pipeline struct {
	store       *opportunity.Store
	generator   Generator
	inventory   InventoryStore
	publisher   Publisher
	autoPublish bool
	logger      *logrus.Logger
}

func NewPipeline(store *opportunity.Store, gen Generator, inv InventoryStore, pub Publisher, autoPublish bool, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		generator:   gen,
		inventory:   inv,
		publisher:   pub,
		autoPublish: autoPublish,
		logger:      logger,
	}
}

// Run confirms the purchase and executes the stages in order. Calling
// it again for an already purchased opportunity resumes where the
// previous run stopped. Stage failures are recorded on the opportunity
// and reported in the result; they never unwind completed stages.
func (p *Pipeline) Run(ctx context.Context, opportunityID string, purchasePrice float64) (*Result, error) {
	opp, err := p.store.Purchase(opportunityID, purchasePrice)
	if errors.Is(err, opportunity.ErrInvalidTransition) {
		opp, err = p.store.Get(opportunityID)
		if err != nil {
			return nil, err
		}
		if opp.Status != models.OpportunityPurchased {
			return nil, opportunity.ErrInvalidTransition
		}
		// already purchased: this is a retry, resume the stages
	} else if err != nil {
		return nil, err
	}

	log := p.logger.WithField("opportunity_id", opp.ID)
	result := &Result{
		OpportunityID: opp.ID,
		StageErrors:   make(map[string]string),
	}

	draft := p.runGenerate(ctx, opp, result, log)
	p.runRecordInventory(ctx, opp, draft, result, log)
	p.runPublish(ctx, opp, draft, result, log)

	if err := p.storePipelineErrors(opp.ID, result); err != nil {
		return result, err
	}
	return result, nil
}

// runGenerate produces listing copy, unless a draft already exists from
// a previous run.
func (p *Pipeline) runGenerate(ctx context.Context, opp *models.Opportunity, result *Result, log *logrus.Entry) *models.DraftListing {
	if opp.DraftListing != "" {
		var draft models.DraftListing
		if err := json.Unmarshal([]byte(opp.DraftListing), &draft); err == nil {
			result.Draft = &draft
			return &draft
		}
		// stored draft is unreadable, regenerate
	}

	price := opp.EstimatedSellPrice
	purchase := 0.0
	if opp.PurchasePrice != nil {
		purchase = *opp.PurchasePrice
	}
	draft, err := p.generator.Generate(ctx, ItemSummary{
		Title:              opp.Title,
		Condition:          opp.Condition,
		Platform:           opp.Platform,
		ImageURL:           opp.ImageURL,
		PurchasePrice:      purchase,
		EstimatedSellPrice: price,
	})
	if err != nil {
		log.WithError(err).Warn("Listing generation failed")
		result.StageErrors["generate"] = err.Error()
		return nil
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		result.StageErrors["generate"] = fmt.Sprintf("encoding draft: %v", err)
		return nil
	}
	if err := p.store.SetDraftListing(opp.ID, string(raw)); err != nil {
		result.StageErrors["generate"] = fmt.Sprintf("storing draft: %v", err)
		return nil
	}

	log.Info("Draft listing generated")
	result.Draft = draft
	return draft
}

// runRecordInventory creates the inventory record, once per
// opportunity. A missing draft is fine: the item is tracked without
// listing copy.
func (p *Pipeline) runRecordInventory(ctx context.Context, opp *models.Opportunity, draft *models.DraftListing, result *Result, log *logrus.Entry) {
	if opp.InventoryItemID != "" {
		result.InventoryItemID = opp.InventoryItemID
		return
	}

	itemID, err := p.inventory.CreateItem(ctx, opp, draft)
	if err != nil {
		log.WithError(err).Error("Failed to record inventory item")
		result.StageErrors["inventory"] = err.Error()
		return
	}
	if err := p.store.SetInventoryItem(opp.ID, itemID); err != nil {
		result.StageErrors["inventory"] = fmt.Sprintf("storing inventory ref: %v", err)
		return
	}

	log.WithField("inventory_item", itemID).Info("Inventory item recorded")
	result.InventoryItemID = itemID
}

// runPublish pushes the draft live when auto-publish is on. Skipped
// without error when disabled, unconfigured, already published or
// there is no draft to publish.
func (p *Pipeline) runPublish(ctx context.Context, opp *models.Opportunity, draft *models.DraftListing, result *Result, log *logrus.Entry) {
	if opp.PublishedURL != "" {
		result.PublishedURL = opp.PublishedURL
		return
	}
	if !p.autoPublish || p.publisher == nil || draft == nil {
		return
	}

	url, err := p.publisher.Publish(ctx, draft)
	if err != nil {
		log.WithError(err).Warn("Listing publish failed")
		result.StageErrors["publish"] = err.Error()
		return
	}
	if err := p.store.SetPublishedURL(opp.ID, url); err != nil {
		result.StageErrors["publish"] = fmt.Sprintf("storing published ref: %v", err)
		return
	}

	log.WithField("url", url).Info("Listing published")
	result.PublishedURL = url
}

// storePipelineErrors persists this run's stage failures for manual
// retry, or clears a stale error once everything succeeds.
func (p *Pipeline) storePipelineErrors(oppID string, result *Result) error {
	if len(result.StageErrors) == 0 {
		return p.store.SetPipelineError(oppID, "")
	}

	parts := make([]string, 0, len(result.StageErrors))
	for _, stage := range []string{"generate", "inventory", "publish"} {
		if msg, ok := result.StageErrors[stage]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", stage, msg))
		}
	}
	return p.store.SetPipelineError(oppID, strings.Join(parts, "; "))
}
