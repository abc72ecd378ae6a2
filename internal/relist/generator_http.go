package relist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"flipradar/server/internal/models"
)

// HTTPGenerator asks the listing-copy service for a draft. The service
// owns the AI prompt work; this client only carries the item summary
// over and maps failures onto ErrGenerationFailed.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewHTTPGenerator(baseURL string, logger *logrus.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, item ItemSummary) (*models.DraftListing, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding item summary: %v", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/listings/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).Warn("Listing generator unreachable")
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGenerationFailed, resp.StatusCode)
	}

	var draft models.DraftListing
	if err := json.NewDecoder(resp.Body).Decode(&draft); err != nil {
		return nil, fmt.Errorf("%w: decoding draft: %v", ErrGenerationFailed, err)
	}
	return &draft, nil
}
