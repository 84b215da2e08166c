package highvol

import (
	"fmt"
	"sync"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
)

// EntryStatus is the lifecycle state of one pooled symbol (§4.6).
type EntryStatus string

const (
	StatusPooled  EntryStatus = "pooled"
	StatusReady   EntryStatus = "ready"
	StatusPriced  EntryStatus = "priced"
	StatusRetired EntryStatus = "retired"
	StatusEvicted EntryStatus = "evicted"
)

// BreakoutQuality bundles the confirmation indicators computed once on the
// pooled->ready transition (§4.6 "On ready").
type BreakoutQuality struct {
	CVDStrength float64
	CVDDivergent bool
	EfficiencyRatio float64
	Hurst       float64
}

// Entry is one symbol held in the high-volatility pool.
type Entry struct {
	Symbol          string
	Side            domain.Side
	Status          EntryStatus
	EnteredAt       time.Time
	LastTickAt      time.Time
	ReadinessScore  float64
	HealthScore     float64
	Quality         *BreakoutQuality
	AIReviewCount   int
	PricedOrderID   string
	PricedEntry     float64
	PricedSL        float64
	PricedTP        float64
	PricedAt        time.Time
	RetireReason    string

	// Snapshot taken at admission, the baseline the health score (§4.6
	// "Health") diffs against each tick: BB regime change, RSI shift, and
	// price drift are all relative-to-entry, not absolute, readings.
	EntryPrice   float64
	EntryBBWidth float64
	EntryRSI     float64
	SRAnchor     float64
}

// Pool holds the independent high-volatility observation set (§4.6).
type Pool struct {
	mu      sync.Mutex
	cfg     config.HighVolConfig
	entries map[string]*Entry
}

// New builds an empty Pool bounded by cfg.PoolCapacity.
func New(cfg config.HighVolConfig) *Pool {
	return &Pool{cfg: cfg, entries: make(map[string]*Entry)}
}

func (p *Pool) capacity() int {
	if p.cfg.PoolCapacity <= 0 {
		return 10
	}
	return p.cfg.PoolCapacity
}

// Admit adds symbol to the pool if it passes the hard filter and capacity
// allows it. Returns (admitted, reason-if-rejected).
func (p *Pool) Admit(symbol string, side domain.Side, in HardFilterInput, now time.Time) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[symbol]; exists {
		return false, "already_pooled"
	}
	if len(p.entries) >= p.capacity() {
		return false, "pool_at_capacity"
	}
	ok, reason := PassesHardFilter(in, p.cfg)
	if !ok {
		return false, reason
	}
	p.entries[symbol] = &Entry{
		Symbol: symbol, Side: side, Status: StatusPooled,
		EnteredAt: now, LastTickAt: now,
		EntryPrice: in.Metrics.Price, EntryBBWidth: in.Metrics.BBWidth, EntryRSI: in.Metrics.RSI,
		SRAnchor: anchorLevel(in.Candles, side),
	}
	return true, ""
}

// Tick updates readiness/health for a pooled entry and returns the entry's
// status transition for this cycle. Callers compute BreakoutQuality and
// call MarkReady separately when Tick reports a pooled->ready crossing.
func (p *Pool) Tick(symbol string, readiness, health float64, now time.Time) (EntryStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[symbol]
	if !ok {
		return "", false
	}
	e.LastTickAt = now
	e.ReadinessScore = readiness
	e.HealthScore = health

	if health < p.cfg.HealthEvictThreshold {
		e.Status = StatusEvicted
		e.RetireReason = "health_below_threshold"
		return e.Status, true
	}

	crossedToReady := e.Status == StatusPooled && readiness >= 75
	if crossedToReady {
		e.Status = StatusReady
	}
	return e.Status, crossedToReady
}

// MarkReady attaches the breakout-quality bundle computed once at the
// pooled->ready transition.
func (p *Pool) MarkReady(symbol string, q BreakoutQuality) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[symbol]; ok {
		e.Quality = &q
	}
}

// MarkPriced records the limit order placed for a ready entry.
func (p *Pool) MarkPriced(symbol, orderID string, entry, sl, tp float64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[symbol]; ok {
		e.Status = StatusPriced
		e.PricedOrderID = orderID
		e.PricedEntry, e.PricedSL, e.PricedTP = entry, sl, tp
		e.PricedAt = now
	}
}

// IncrementAIReviews bumps the re-pricing attempt counter and reports
// whether the entry has exhausted its allowance (§4.6 "Limit-order
// lifecycle").
func (p *Pool) IncrementAIReviews(symbol string) (count int, exhausted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[symbol]
	if !ok {
		return 0, true
	}
	e.AIReviewCount++
	max := p.cfg.MaxAIReviews
	if max <= 0 {
		max = 3
	}
	return e.AIReviewCount, e.AIReviewCount >= max
}

// Retire removes an entry from the pool (unfilled-expired, AI-review
// exhaustion, manual eviction, or successful promotion to C7).
func (p *Pool) Retire(symbol, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, symbol)
	_ = reason
}

// Entries returns a snapshot copy of all pooled entries.
func (p *Pool) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, *e)
	}
	return out
}

// Len reports the current pool occupancy.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// ComputeBreakoutQuality runs the one-time confirmation bundle (§4.6 "On
// ready"): CVD divergence, efficiency ratio, Hurst exponent.
func ComputeBreakoutQuality(candles domain.Candles) BreakoutQuality {
	closes := candles.Closes()
	q := BreakoutQuality{}
	if cvd := indicators.CVD(candles, 20); cvd != nil {
		q.CVDStrength = cvd.Strength
		q.CVDDivergent = cvd.Divergent
	}
	if er := indicators.EfficiencyRatio(closes, 20); er != nil {
		q.EfficiencyRatio = *er
	}
	if h := indicators.HurstExponent(closes); h != nil {
		q.Hurst = *h
	}
	return q
}

// PricingCapFromFDI derives the minimum limit-order pullback offset from
// the fractal dimension index (§4.6 "Pricing"): a choppier tape (higher
// FDI) demands a wider offset before entry is trusted.
func PricingCapFromFDI(fdi float64) (minOffsetPercent float64) {
	switch {
	case fdi >= 1.40:
		return 2.0
	case fdi <= 1.25:
		return 1.5
	default:
		return 1.5 + (fdi-1.25)/(1.40-1.25)*0.5
	}
}

// StopLossPercentForATR buckets the stop-loss percentage by ATR% for the
// high-volatility track, hard-capped at 2% (§4.6 "Pricing").
func StopLossPercentForATR(atrPercent float64) float64 {
	switch {
	case atrPercent < 1.0:
		return 1.2
	case atrPercent < 2.0:
		return 1.6
	default:
		return 2.0
	}
}

// PositionSize computes margin and contract count (§4.6 "Sizing").
// volatility24hPercent is the absolute 24h change used to detect the
// 20-40% band that halves position size.
func PositionSize(cfg config.HighVolConfig, entryPrice, volatility24hPercent float64) (marginUSDT, contracts float64) {
	margin := cfg.TotalCapitalUSDT * cfg.MaxPositionPercent
	if cfg.MaxPositionUSDT > 0 && margin > cfg.MaxPositionUSDT {
		margin = cfg.MaxPositionUSDT
	}
	if margin < cfg.MinPositionUSDT {
		margin = cfg.MinPositionUSDT
	}
	v := volatility24hPercent
	if v < 0 {
		v = -v
	}
	if v >= 20 && v <= 40 {
		margin /= 2
	}
	if entryPrice == 0 {
		return margin, 0
	}
	leverage := cfg.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	contracts = margin * leverage / entryPrice
	return margin, contracts
}

// BuildPricingPrompt constructs the pricing-plus-quality AI prompt (§4.6
// "Pricing"). The LLM is expected to answer with a direction (or
// "unclear"), an entry offset percent, a take-profit percent, and a
// confidence score.
func BuildPricingPrompt(e Entry, m domain.Metrics, btc domain.BTCSnapshot) string {
	q := e.Quality
	quality := "unknown"
	if q != nil {
		quality = fmt.Sprintf("cvd_strength=%.1f cvd_divergent=%v efficiency_ratio=%.2f hurst=%.2f",
			q.CVDStrength, q.CVDDivergent, q.EfficiencyRatio, q.Hurst)
	}
	return fmt.Sprintf(
		"track=high_volatility symbol=%s candidate_side=%s price=%.6f change_24h=%.2f "+
			"volume_ratio=%.2f bb_width=%.3f rsi=%.1f adx=%.1f atr_pct=%.2f readiness=%.1f "+
			"breakout_quality{%s} btc_trend=%s btc_change_1h=%.2f\n"+
			"Respond with JSON: {\"direction\": \"long\"|\"short\"|\"unclear\", "+
			"\"entry_offset_pct\": number, \"take_profit_pct\": number, \"confidence\": number 0-1, "+
			"\"reasoning\": string}. Use \"unclear\" if the breakout does not look tradeable.",
		e.Symbol, e.Side, m.Price, m.Change24h, m.VolumeRatio, m.BBWidth, m.RSI, m.ADX, m.ATRPercent,
		e.ReadinessScore, quality, btc.Trend, btc.Change1h,
	)
}
