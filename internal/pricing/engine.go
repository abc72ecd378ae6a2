package pricing

import (
	"errors"
	"math"
	"sort"

	"flipradar/server/internal/models"
)

// ErrInvalidSnapshot is returned when a snapshot is structurally invalid
var ErrInvalidSnapshot = errors.New("invalid market snapshot")

// Liquidity rates how quickly a category of item sells
type Liquidity string

const (
	LiquidityHot     Liquidity = "hot"
	LiquiditySteady  Liquidity = "steady"
	LiquiditySlow    Liquidity = "slow"
	LiquidityDead    Liquidity = "dead"
	LiquidityUnknown Liquidity = "unknown"
)

// Rank orders liquidity ratings from dead (0) to hot (3); unknown ranks
// below dead so it never wins a tie.
func (l Liquidity) Rank() int {
	switch l {
	case LiquidityHot:
		return 3
	case LiquiditySteady:
		return 2
	case LiquiditySlow:
		return 1
	case LiquidityDead:
		return 0
	default:
		return -1
	}
}

// Verdict is the buy recommendation derived from the deal score
type Verdict string

const (
	VerdictHotDeal  Verdict = "HOT DEAL"
	VerdictGoodDeal Verdict = "GOOD DEAL"
	VerdictOkay     Verdict = "OKAY"
	VerdictPass     Verdict = "PASS"
)

// VerdictForScore maps a deal score to its verdict. The thresholds are
// fixed: 75 and above is a hot deal, 55 a good deal, 35 okay, below that
// a pass.
func VerdictForScore(score int) Verdict {
	switch {
	case score >= 75:
		return VerdictHotDeal
	case score >= 55:
		return VerdictGoodDeal
	case score >= 35:
		return VerdictOkay
	default:
		return VerdictPass
	}
}

var verdictSummaries = map[Verdict]string{
	VerdictHotDeal:  "Strong profit margin with solid demand. Buy with confidence.",
	VerdictGoodDeal: "Decent profit potential. Worth picking up at the right price.",
	VerdictOkay:     "Marginal opportunity. Only buy if priced well below the max.",
	VerdictPass:     "Low margin or poor sell-through. Skip this one.",
}

// Config holds the pricing assumptions and classification thresholds.
// All values are configuration rather than hardwired constants.
type Config struct {
	// FeePct is the marketplace selling fee as a fraction of sale price
	FeePct float64
	// ShippingCost is the average outbound shipping cost
	ShippingCost float64
	// TargetMargin is the target profit margin on the buy price
	TargetMargin float64

	// Liquidity thresholds on the sell-through rate
	HotSTR    float64
	SteadySTR float64
	SlowSTR   float64
	// HotMaxDays caps average days to sell for a hot rating
	HotMaxDays float64

	// SpreadCVLimit is the sold-price coefficient of variation above
	// which the buy price gets a spread haircut
	SpreadCVLimit float64
}

// DefaultConfig returns the standard reseller assumptions: 13% fees,
// $7 shipping, 40% target margin.
func DefaultConfig() Config {
	return Config{
		FeePct:        0.13,
		ShippingCost:  7.00,
		TargetMargin:  0.40,
		HotSTR:        0.60,
		SteadySTR:     0.35,
		SlowSTR:       0.15,
		HotMaxDays:    21,
		SpreadCVLimit: 0.5,
	}
}

// PriceSummary describes the distribution of observed prices
type PriceSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
}

// Breakdown carries the sub-scores behind a deal score, each in [0,100].
// Risk is reported as computed: higher means riskier.
type Breakdown struct {
	Profit     int `json:"profit"`
	Demand     int `json:"demand"`
	Confidence int `json:"confidence"`
	Risk       int `json:"risk"`
}

// Evaluation is the full output of one pricing pass over a snapshot
type Evaluation struct {
	SellThroughRate     float64      `json:"sell_through_rate"`
	AvgDaysToSell       float64      `json:"avg_days_to_sell"` // 0 when unknown
	Liquidity           Liquidity    `json:"liquidity"`
	LowConfidence       bool         `json:"low_confidence"`
	Asking              PriceSummary `json:"asking_price"`
	SoldPrices          PriceSummary `json:"sold_price"`
	EstimatedSellPrice  float64      `json:"estimated_sell_price"`
	RecommendedBuyPrice float64      `json:"recommended_buy_price"`
	EstimatedProfit     float64      `json:"estimated_profit"`
	ROI                 float64      `json:"roi_percent"`
	SupplyDemandNote    string       `json:"supply_demand_note,omitempty"`
	Breakdown           Breakdown    `json:"breakdown"`
	DealScore           int          `json:"deal_score"`
	Verdict             Verdict      `json:"verdict"`
	Summary             string       `json:"summary"`
}

// Engine turns market snapshots into buy recommendations. Evaluate is a
// pure function of its inputs; the engine holds only configuration.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate analyzes a market snapshot and returns the pricing metrics,
// sub-scores, composite deal score and verdict. A target price, when
// supplied, caps the recommended buy price. Sparse or partial data
// degrades to a low-confidence evaluation; only a structurally invalid
// snapshot returns ErrInvalidSnapshot.
func (e *Engine) Evaluate(snap *models.MarketSnapshot, targetPrice *float64) (*Evaluation, error) {
	if snap == nil {
		return nil, ErrInvalidSnapshot
	}
	if snap.TotalActive < 0 || snap.TotalSold < 0 {
		return nil, ErrInvalidSnapshot
	}

	activePrices := usablePrices(snap.Active)
	soldPrices := usablePrices(snap.Sold)

	ev := &Evaluation{
		Asking:     summarize(activePrices),
		SoldPrices: summarize(soldPrices),
	}

	soldCount := len(snap.Sold)
	activeCount := len(snap.Active)
	if snap.TotalSold > soldCount {
		soldCount = snap.TotalSold
	}
	if snap.TotalActive > activeCount {
		activeCount = snap.TotalActive
	}

	// Sell-through rate; defined as 0 with low confidence when the
	// snapshot is empty, never a division by zero.
	if soldCount+activeCount > 0 {
		ev.SellThroughRate = float64(soldCount) / float64(soldCount+activeCount)
	} else {
		ev.LowConfidence = true
	}
	if snap.Partial || len(soldPrices) == 0 {
		ev.LowConfidence = true
	}

	ev.AvgDaysToSell = avgDaysToSell(snap.Sold)
	ev.Liquidity = e.classifyLiquidity(ev.SellThroughRate, ev.AvgDaysToSell, soldCount+activeCount)
	ev.SupplyDemandNote = supplyDemandNote(activeCount, soldCount)

	// Reference sell price: median sold, falling back to median asking
	refPrice := ev.SoldPrices.Median
	if refPrice == 0 {
		refPrice = ev.Asking.Median
	}
	ev.EstimatedSellPrice = refPrice

	if refPrice == 0 {
		// No usable prices at all: degrade to a zero-score pass
		ev.LowConfidence = true
		ev.Liquidity = LiquidityUnknown
		ev.Verdict = VerdictPass
		ev.Summary = verdictSummaries[VerdictPass]
		return ev, nil
	}

	cv := coefficientOfVariation(soldPrices)
	ev.RecommendedBuyPrice = e.recommendBuyPrice(refPrice, cv, ev.Liquidity, targetPrice)
	if ev.RecommendedBuyPrice > 0 {
		ev.ROI = (refPrice - ev.RecommendedBuyPrice) / ev.RecommendedBuyPrice * 100
	}
	ev.EstimatedProfit = math.Max(refPrice*(1-e.cfg.FeePct)-e.cfg.ShippingCost-ev.RecommendedBuyPrice, 0)

	ev.Breakdown = Breakdown{
		Profit:     profitScore(ev.ROI),
		Demand:     demandScore(ev.SellThroughRate, ev.Liquidity),
		Confidence: confidenceScore(len(soldPrices)),
		Risk:       riskScore(cv, len(soldPrices), ev.Liquidity),
	}
	ev.DealScore = compositeScore(ev.Breakdown)
	ev.Verdict = VerdictForScore(ev.DealScore)
	ev.Summary = verdictSummaries[ev.Verdict]

	return ev, nil
}

// classifyLiquidity derives the four-way rating from STR and average
// days to sell. A hot rating additionally requires a short average
// days-to-sell when one is known.
func (e *Engine) classifyLiquidity(str, avgDays float64, sampleCount int) Liquidity {
	if sampleCount == 0 {
		return LiquidityUnknown
	}
	switch {
	case str >= e.cfg.HotSTR:
		if avgDays > 0 && avgDays > e.cfg.HotMaxDays {
			return LiquiditySteady
		}
		return LiquidityHot
	case str >= e.cfg.SteadySTR:
		return LiquiditySteady
	case str >= e.cfg.SlowSTR:
		return LiquiditySlow
	default:
		return LiquidityDead
	}
}

// recommendBuyPrice works backwards from the reference sell price:
// deduct fees and shipping, divide by the target margin, then apply
// haircuts for price spread and weak liquidity. The result never goes
// negative and never exceeds the user's target price.
func (e *Engine) recommendBuyPrice(refPrice, cv float64, liquidity Liquidity, targetPrice *float64) float64 {
	netAfterFees := refPrice*(1-e.cfg.FeePct) - e.cfg.ShippingCost
	buy := netAfterFees / (1 + e.cfg.TargetMargin)

	if cv > e.cfg.SpreadCVLimit {
		buy *= 0.80
	}
	switch liquidity {
	case LiquiditySlow:
		buy *= 0.85
	case LiquidityDead:
		buy *= 0.60
	}

	if buy < 0 {
		buy = 0
	}
	if targetPrice != nil && buy > *targetPrice {
		buy = *targetPrice
	}
	return math.Round(buy*100) / 100
}

// profitScore is a saturating ladder over expected ROI percent
func profitScore(roi float64) int {
	switch {
	case roi >= 100:
		return 100
	case roi >= 60:
		return 80
	case roi >= 40:
		return 60
	case roi >= 20:
		return 40
	case roi > 0:
		return int(math.Round(roi))
	default:
		return 0
	}
}

// demandScore grows with STR; the liquidity rating breaks ties between
// equal sell-through rates.
func demandScore(str float64, liquidity Liquidity) int {
	score := math.Min(str*150, 100)
	switch liquidity {
	case LiquidityHot:
		score += 10
	case LiquiditySlow:
		score -= 10
	case LiquidityDead:
		score -= 25
	}
	return clampScore(int(math.Round(score)))
}

// confidenceScore saturates with the sold-sample count; zero sold
// samples score zero.
func confidenceScore(soldSamples int) int {
	switch {
	case soldSamples >= 10:
		return 100
	case soldSamples >= 5:
		return 60
	case soldSamples >= 1:
		return 25
	default:
		return 0
	}
}

// riskScore grows with sold-price dispersion; thin history defaults to
// a middling risk and weak liquidity adds a penalty. Higher is riskier.
func riskScore(cv float64, soldSamples int, liquidity Liquidity) int {
	risk := 50.0
	if soldSamples >= 3 {
		risk = math.Min(cv*100, 100)
	}
	switch liquidity {
	case LiquiditySlow:
		risk += 10
	case LiquidityDead:
		risk += 20
	}
	return clampScore(int(math.Round(risk)))
}

// compositeScore is the fixed weighting of the sub-scores:
// 40% profit, 35% demand, 15% confidence, 10% inverse risk.
func compositeScore(b Breakdown) int {
	score := 0.40*float64(b.Profit) +
		0.35*float64(b.Demand) +
		0.15*float64(b.Confidence) +
		0.10*float64(100-b.Risk)
	return clampScore(int(math.Round(score)))
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// avgDaysToSell averages the listing-to-sale interval over sold samples.
// Samples missing either timestamp are excluded from the average but
// still count toward the sell-through rate.
func avgDaysToSell(sold []models.ListingSample) float64 {
	var total float64
	var n int
	for _, s := range sold {
		if s.SoldAt == nil || s.ListedAt.IsZero() {
			continue
		}
		days := s.SoldAt.Sub(s.ListedAt).Hours() / 24
		if days < 0 {
			continue
		}
		total += days
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(total/float64(n)*10) / 10
}

func supplyDemandNote(activeCount, soldCount int) string {
	if activeCount == 0 || soldCount == 0 {
		return ""
	}
	ratio := float64(soldCount) / float64(activeCount)
	switch {
	case ratio > 1.5:
		return "High demand, low supply"
	case ratio > 0.7:
		return "Balanced market"
	case ratio > 0.3:
		return "Moderate supply"
	default:
		return "Oversaturated market with lots of competition"
	}
}

func usablePrices(samples []models.ListingSample) []float64 {
	prices := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Price > 0 {
			prices = append(prices, s.Price)
		}
	}
	return prices
}

func summarize(prices []float64) PriceSummary {
	if len(prices) == 0 {
		return PriceSummary{}
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, p := range sorted {
		sum += p
	}
	return PriceSummary{
		Count:   len(sorted),
		Average: math.Round(sum/float64(len(sorted))*100) / 100,
		Median:  median(sorted),
		Low:     sorted[0],
		High:    sorted[len(sorted)-1],
	}
}

// median expects a sorted slice
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func coefficientOfVariation(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices) - 1)
	return math.Sqrt(variance) / mean
}
