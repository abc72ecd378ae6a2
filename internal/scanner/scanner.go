package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"flipradar/server/config"
	"flipradar/server/internal/market"
	"flipradar/server/internal/models"
	"flipradar/server/internal/opportunity"
	"flipradar/server/internal/pricing"
	"flipradar/server/internal/queue"
	"flipradar/server/internal/registry"
)

var (
	ErrAlreadyRunning = errors.New("scanner is already running")
	ErrNotRunning     = errors.New("scanner is not running")
)

// Status is a read-only snapshot of scanner state, safe to request
// while a cycle is in flight.
type Status struct {
	Running             bool           `json:"running"`
	Scanning            bool           `json:"scanning"`
	LastCycleStartedAt  *time.Time     `json:"last_cycle_started_at"`
	LastCycleFinishedAt *time.Time     `json:"last_cycle_finished_at"`
	QueriesScanned      int            `json:"queries_scanned"`
	OpportunitiesFound  int            `json:"opportunities_found"`
	ErrorsByKind        map[string]int `json:"errors_by_kind"`
}

// Scanner drives the background deal discovery loop: it pulls due watch
// queries, fetches market snapshots through the aggregator, evaluates
// them and records qualifying opportunities. One scanner owns its loop;
// independent instances can run side by side.
type Scanner struct {
	registry   *registry.Registry
	store      *opportunity.Store
	aggregator market.Aggregator
	engine     *pricing.Engine
	events     *queue.OpportunityQueue
	cfg        *config.Config
	logger     *logrus.Logger

	mu       sync.Mutex
	running  bool
	scanning bool
	stopChan chan struct{}
	// buffered so a second scan-now request during a cycle coalesces
	// with the pending one instead of stacking up
	scanNow chan struct{}
	wg      sync.WaitGroup

	sourceMu sync.Mutex
	breakers map[models.Platform]*gobreaker.CircuitBreaker
	limiters map[models.Platform]*rate.Limiter

	statusMu sync.Mutex
	status   Status
}

// NewScanner wires a scanner; events may be nil when no notification
// fan-out is wanted.
func NewScanner(reg *registry.Registry, store *opportunity.Store, agg market.Aggregator, engine *pricing.Engine, events *queue.OpportunityQueue, cfg *config.Config, logger *logrus.Logger) *Scanner {
	return &Scanner{
		registry:   reg,
		store:      store,
		aggregator: agg,
		engine:     engine,
		events:     events,
		cfg:        cfg,
		logger:     logger,
		scanNow:    make(chan struct{}, 1),
		breakers:   make(map[models.Platform]*gobreaker.CircuitBreaker),
		limiters:   make(map[models.Platform]*rate.Limiter),
		status:     Status{ErrorsByKind: make(map[string]int)},
	}
}

// Start launches the background loop. The first cycle runs immediately.
func (s *Scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.statusMu.Lock()
	s.status.Running = true
	s.statusMu.Unlock()

	s.wg.Add(1)
	go s.run(s.stopChan)

	s.logger.WithField("interval_minutes", s.cfg.Scanner.IntervalMinutes).Info("Deal scanner started")
	return nil
}

// Stop shuts the loop down. An in-flight cycle finishes its current
// per-query fetches before the loop exits.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.statusMu.Lock()
	s.status.Running = false
	s.statusMu.Unlock()

	s.logger.Info("Deal scanner stopped")
}

// ScanNow requests an immediate out-of-band cycle. If a cycle is
// already in flight the request coalesces with it.
func (s *Scanner) ScanNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	select {
	case s.scanNow <- struct{}{}:
	default:
		// a trigger is already pending
	}
	return nil
}

// Status returns a copy of the current counters
func (s *Scanner) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	st := s.status
	st.ErrorsByKind = make(map[string]int, len(s.status.ErrorsByKind))
	for k, v := range s.status.ErrorsByKind {
		st.ErrorsByKind[k] = v
	}
	return st
}

func (s *Scanner) run(stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.cfg.Scanner.IntervalMinutes) * time.Minute)
	defer ticker.Stop()

	// startup cycle
	s.runCycle(stop)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runCycle(stop)
		case <-s.scanNow:
			s.runCycle(stop)
		}
	}
}

// runCycle executes one full scan pass: expiration sweep, due-query
// fetch, bounded-concurrency scanning, bookkeeping.
func (s *Scanner) runCycle(stop chan struct{}) {
	started := time.Now()
	s.statusMu.Lock()
	s.status.Scanning = true
	s.status.LastCycleStartedAt = &started
	s.statusMu.Unlock()

	defer func() {
		finished := time.Now()
		s.statusMu.Lock()
		s.status.Scanning = false
		s.status.LastCycleFinishedAt = &finished
		s.statusMu.Unlock()
	}()

	ttl := time.Duration(s.cfg.Scanner.OpportunityTTLHours) * time.Hour
	if _, err := s.store.ExpireOlderThan(time.Now().Add(-ttl)); err != nil {
		s.logger.WithError(err).Error("Expiration sweep failed")
		s.recordError("sweep_failed")
	}

	minInterval := time.Duration(s.cfg.Scanner.MinScanIntervalMinutes) * time.Minute
	due, err := s.registry.ListDue(s.cfg.Scanner.BatchSize, minInterval)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list due watch queries")
		s.recordError("registry_failed")
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.WithField("due_queries", len(due)).Info("Starting scan cycle")

	sem := make(chan struct{}, s.cfg.Scanner.WorkerCount)
	var wg sync.WaitGroup
	for i := range due {
		// stop between per-query dispatches, never mid-fetch
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}

		wq := due[i]
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.scanQuery(&wq)
		}()
	}
	wg.Wait()
}

// scanQuery fetches, evaluates and records one watch query. Failures
// are isolated: they are counted and logged but never abort the cycle.
func (s *Scanner) scanQuery(wq *models.WatchQuery) {
	log := s.logger.WithFields(logrus.Fields{
		"watch_query": wq.ID,
		"query":       wq.Query,
		"platform":    wq.Platform,
	})

	snap, err := s.fetchWithRetry(wq)
	if err != nil {
		log.WithError(err).Warn("Scan failed for watch query")
		// still rotate the query to the back of the staleness order,
		// otherwise queries on a broken source monopolize the bounded
		// due batch and starve healthy ones
		if merr := s.registry.MarkAttempted(wq.ID); merr != nil && !errors.Is(merr, registry.ErrNotFound) {
			log.WithError(merr).Error("Failed to mark watch query attempted")
			s.recordError("registry_failed")
		}
		return
	}

	ev, err := s.engine.Evaluate(snap, wq.TargetPrice)
	if err != nil {
		log.WithError(err).Warn("Snapshot evaluation failed")
		s.recordError("invalid_snapshot")
		return
	}

	found := 0
	if s.qualifies(wq, snap, ev) {
		created, err := s.recordOpportunity(wq, snap, ev)
		if err != nil {
			log.WithError(err).Error("Failed to record opportunity")
			s.recordError("store_failed")
			return
		}
		found = 1
		if created {
			log.WithFields(logrus.Fields{
				"deal_score": ev.DealScore,
				"verdict":    ev.Verdict,
			}).Info("New opportunity found")
		}
	}

	if err := s.registry.MarkScanned(wq.ID, found); err != nil && !errors.Is(err, registry.ErrNotFound) {
		log.WithError(err).Error("Failed to mark watch query scanned")
		s.recordError("registry_failed")
	}

	s.statusMu.Lock()
	s.status.QueriesScanned++
	s.status.OpportunitiesFound += found
	s.statusMu.Unlock()
}

// fetchWithRetry pulls a snapshot through the per-source rate limiter
// and circuit breaker, retrying transient failures with exponential
// backoff. An open breaker skips the source outright.
func (s *Scanner) fetchWithRetry(wq *models.WatchQuery) (*models.MarketSnapshot, error) {
	breaker := s.breakerFor(wq.Platform)
	limiter := s.limiterFor(wq.Platform)
	timeout := time.Duration(s.cfg.Scanner.FetchTimeoutSeconds) * time.Second
	backoff := time.Duration(s.cfg.Scanner.RetryBackoffSeconds) * time.Second

	var lastErr error
	for attempt := 0; attempt <= s.cfg.Scanner.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff << (attempt - 1))
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := limiter.Wait(ctx); err != nil {
			cancel()
			s.recordError("fetch_timeout")
			return nil, err
		}

		result, err := breaker.Execute(func() (interface{}, error) {
			snap, err := s.aggregator.FetchSnapshot(ctx, wq.Query, wq.Platform)
			if errors.Is(err, market.ErrPartialData) {
				// usable at low confidence; not a source failure
				return snap, nil
			}
			return snap, err
		})
		cancel()

		if err == nil {
			snap := result.(*models.MarketSnapshot)
			if snap.Partial {
				s.recordError("partial_data")
			}
			return snap, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			// source is cooling down, do not retry against it
			s.recordError("circuit_open")
			return nil, err
		case errors.Is(err, market.ErrRateLimited):
			s.recordError("rate_limited")
		case errors.Is(err, market.ErrSourceUnavailable):
			s.recordError("source_unavailable")
		default:
			s.recordError("fetch_failed")
			return nil, err
		}
	}
	return nil, lastErr
}

// qualifies applies the watch query's thresholds: minimum deal score,
// and when a target price is set, the cheapest live listing must be at
// or under it. No live listing means nothing to buy.
func (s *Scanner) qualifies(wq *models.WatchQuery, snap *models.MarketSnapshot, ev *pricing.Evaluation) bool {
	if ev.DealScore < wq.MinDealScore {
		return false
	}
	best := snap.BestActivePrice()
	if best == 0 {
		return false
	}
	if wq.TargetPrice != nil && best > *wq.TargetPrice {
		return false
	}
	return true
}

// recordOpportunity upserts the cheapest live listing as an
// opportunity and publishes newly created ones to the event queue.
func (s *Scanner) recordOpportunity(wq *models.WatchQuery, snap *models.MarketSnapshot, ev *pricing.Evaluation) (bool, error) {
	best := s.bestActive(snap)

	opp := &models.Opportunity{
		WatchQueryID:        wq.ID,
		Fingerprint:         opportunity.Fingerprint(best.Title, best.Price, snap.Platform, s.cfg.Pricing.PriceBucketSize),
		Platform:            snap.Platform,
		Title:               best.Title,
		URL:                 best.URL,
		ImageURL:            best.ImageURL,
		Condition:           best.Condition,
		Seller:              best.Seller,
		CurrentPrice:        best.Price,
		SellThroughRate:     ev.SellThroughRate,
		Liquidity:           string(ev.Liquidity),
		AvgDaysToSell:       ev.AvgDaysToSell,
		RecommendedBuyPrice: ev.RecommendedBuyPrice,
		EstimatedSellPrice:  ev.EstimatedSellPrice,
		EstimatedProfit:     ev.EstimatedProfit,
		DealScore:           ev.DealScore,
		Verdict:             string(ev.Verdict),
	}

	created, err := s.store.UpsertFound(opp)
	if err != nil {
		return false, err
	}

	if created && s.events != nil {
		if err := s.events.Push(opp); err != nil {
			s.logger.WithError(err).Warn("Dropped opportunity event")
		}
	}
	return created, nil
}

func (s *Scanner) bestActive(snap *models.MarketSnapshot) models.ListingSample {
	var best models.ListingSample
	for _, l := range snap.Active {
		if l.Price <= 0 {
			continue
		}
		if best.Price == 0 || l.Price < best.Price {
			best = l
		}
	}
	return best
}

func (s *Scanner) breakerFor(platform models.Platform) *gobreaker.CircuitBreaker {
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()

	if cb, ok := s.breakers[platform]; ok {
		return cb
	}

	threshold := uint32(s.cfg.Scanner.BreakerThreshold)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    string(platform),
		Timeout: s.cfg.Scanner.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.WithFields(logrus.Fields{
				"source": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Source circuit breaker state changed")
		},
	})
	s.breakers[platform] = cb
	return cb
}

func (s *Scanner) limiterFor(platform models.Platform) *rate.Limiter {
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()

	if l, ok := s.limiters[platform]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.Scanner.SourceRateLimit), 1)
	s.limiters[platform] = l
	return l
}

func (s *Scanner) recordError(kind string) {
	s.statusMu.Lock()
	s.status.ErrorsByKind[kind]++
	s.statusMu.Unlock()
}
