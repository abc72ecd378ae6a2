package market

import (
	"context"
	"errors"

	"flipradar/server/internal/models"
)

var (
	// ErrSourceUnavailable means the marketplace source could not be
	// reached or returned a server error. Retryable.
	ErrSourceUnavailable = errors.New("market source unavailable")
	// ErrRateLimited means the source throttled us. Retryable after
	// backing off.
	ErrRateLimited = errors.New("market source rate limited")
	// ErrPartialData means active listings were fetched but sold
	// history was not. The snapshot is still usable at low confidence.
	ErrPartialData = errors.New("sold history unavailable")
)

// SourceKind describes how a source is accessed
type SourceKind string

const (
	SourceAPI    SourceKind = "api"
	SourceScrape SourceKind = "scrape"
)

// Source describes one marketplace backend an aggregator can query
type Source struct {
	Platform models.Platform `json:"platform"`
	Kind     SourceKind      `json:"kind"`
	// SoldHistory reports whether the source exposes sold listings
	SoldHistory bool `json:"sold_history"`
}

// Aggregator fetches a market snapshot for a query on one platform.
// Implementations must honor context cancellation and return the
// package sentinel errors so callers can distinguish retryable
// failures from permanent ones.
type Aggregator interface {
	// FetchSnapshot returns active and sold listings for the query.
	// A non-nil snapshot may accompany ErrPartialData.
	FetchSnapshot(ctx context.Context, query string, platform models.Platform) (*models.MarketSnapshot, error)

	// Sources lists the marketplace backends this aggregator covers
	Sources() []Source
}
