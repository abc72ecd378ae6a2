package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"flipradar/server/internal/models"
)

// HTTPAggregator talks to the listing aggregation service over HTTP.
// The service handles the per-marketplace fetching and normalization;
// this client only maps its responses onto snapshots and its failure
// modes onto the package sentinel errors.
type HTTPAggregator struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewHTTPAggregator(baseURL string, logger *logrus.Logger) *HTTPAggregator {
	return &HTTPAggregator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type snapshotResponse struct {
	Active      []models.ListingSample `json:"active"`
	Sold        []models.ListingSample `json:"sold"`
	TotalActive int                    `json:"total_active"`
	TotalSold   int                    `json:"total_sold"`
	SoldMissing bool                   `json:"sold_missing"`
}

func (a *HTTPAggregator) FetchSnapshot(ctx context.Context, query string, platform models.Platform) (*models.MarketSnapshot, error) {
	endpoint := fmt.Sprintf("%s/api/listings/search?q=%s&platform=%s",
		a.baseURL, url.QueryEscape(query), url.QueryEscape(string(platform)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building snapshot request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"query":    query,
			"platform": platform,
		}).Warnf("Aggregation service unreachable: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("aggregation service returned %d: %s", resp.StatusCode, body)
	}

	var payload snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding snapshot response: %w", err)
	}

	snap := &models.MarketSnapshot{
		Query:       query,
		Platform:    platform,
		Active:      payload.Active,
		Sold:        payload.Sold,
		TotalActive: payload.TotalActive,
		TotalSold:   payload.TotalSold,
		Partial:     payload.SoldMissing,
		FetchedAt:   time.Now(),
	}

	if payload.SoldMissing {
		return snap, ErrPartialData
	}
	return snap, nil
}

func (a *HTTPAggregator) Sources() []Source {
	return []Source{
		{Platform: models.PlatformEbay, Kind: SourceAPI, SoldHistory: true},
		{Platform: models.PlatformFacebook, Kind: SourceScrape, SoldHistory: false},
		{Platform: models.PlatformPoshmark, Kind: SourceScrape, SoldHistory: true},
		{Platform: models.PlatformMercari, Kind: SourceScrape, SoldHistory: true},
	}
}
