// Package domain holds the shared record types that flow between the
// signal pipeline and position lifecycle components. Per design note §9,
// these replace the ad-hoc dict "payloads" the original implementation
// passed between layers with strongly-typed records; JSON is used only at
// the persistence boundary.
package domain

import "time"

// Side is the direction of a candidate, order, or position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// SignalKind is the tagged variant of detector that produced a candidate.
// Per design note §9 this replaces conditional blocks over a string kind
// with a small capability-bearing type.
type SignalKind string

const (
	KindReversal         SignalKind = "reversal"
	KindTrendAnticipation SignalKind = "trend_anticipation"
	KindHighVolAccumulation SignalKind = "high_vol_accumulation"
)

// ObservationStatus is the lifecycle status of a watcher row (§3).
type ObservationStatus string

const (
	ObsWatching        ObservationStatus = "watching"
	ObsReady           ObservationStatus = "ready"
	ObsTriggered       ObservationStatus = "triggered"
	ObsExpired         ObservationStatus = "expired"
	ObsAbandoned       ObservationStatus = "abandoned"
	ObsDuplicateSkipped ObservationStatus = "duplicate_skipped"
)

// HighVolStatus is the lifecycle status of a high-volatility track row (§3).
type HighVolStatus string

const (
	HVWatching    HighVolStatus = "watching"
	HVReady       HighVolStatus = "ready"
	HVLimitPlaced HighVolStatus = "limit_placed"
	HVFilled      HighVolStatus = "filled"
	HVExpired     HighVolStatus = "expired"
	HVAbandoned   HighVolStatus = "abandoned"
	HVStopped     HighVolStatus = "stopped"
	HVProfit      HighVolStatus = "profit"
	HVTimeout     HighVolStatus = "timeout"
)

// OrderStatus tracks the life of an emitted-signal row's order (§3).
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderClosed    OrderStatus = "closed"
)

// StrategyTag identifies which pipeline produced a live position (§3).
type StrategyTag string

const (
	StrategyReversal      StrategyTag = "reversal"
	StrategyTrend         StrategyTag = "trend"
	StrategyHighVolatility StrategyTag = "high_volatility"
	StrategySynced        StrategyTag = "synced"
)

// BTCVolatilityRegime labels the BTC context used by adaptive stops and gates.
type BTCVolatilityRegime string

const (
	BTCRegimeLow     BTCVolatilityRegime = "low"
	BTCRegimeNormal  BTCVolatilityRegime = "normal"
	BTCRegimeHigh    BTCVolatilityRegime = "high"
	BTCRegimeExtreme BTCVolatilityRegime = "extreme"
)

// BTCTrendLabel is a coarse market-regime tag attached to the BTC snapshot.
type BTCTrendLabel string

const (
	BTCTrendCrash   BTCTrendLabel = "crash"
	BTCTrendBearish BTCTrendLabel = "bearish"
	BTCTrendNeutral BTCTrendLabel = "neutral"
	BTCTrendBullish BTCTrendLabel = "bullish"
	BTCTrendMoon    BTCTrendLabel = "moon"
)

// BTCSnapshot is the one-cycle-stable BTC context produced by C1 (§4.1).
type BTCSnapshot struct {
	Price             float64
	Change1h          float64
	Change4h          float64
	Trend             BTCTrendLabel
	RSI               float64
	Momentum15m       float64
	VolatilityRegime  BTCVolatilityRegime
	ReversalRiskTag   string
	RecommendedAction string
	Dominance         *float64 // optional enrichment, never a gate (§9 open questions)
	UpdatedAt         time.Time
	Updated           bool   // false when served from stale cache
	CacheAgeSec       int64
}

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Candles is a time-ordered (oldest first) slice of bars for one symbol.
type Candles []Candle

// Closes returns the closing prices in the same order as the candles.
func (c Candles) Closes() []float64 {
	out := make([]float64, len(c))
	for i, candle := range c {
		out[i] = candle.Close
	}
	return out
}

// Volumes returns the volumes in the same order as the candles.
func (c Candles) Volumes() []float64 {
	out := make([]float64, len(c))
	for i, candle := range c {
		out[i] = candle.Volume
	}
	return out
}

// Metrics bundles the per-symbol indicator readings computed once per cycle
// and threaded through detectors, the hard-rule gate, and the LLM prompts.
type Metrics struct {
	Symbol        string
	Price         float64
	RSI           float64
	ADX           float64
	VolumeRatio   float64
	BBWidth       float64
	ATR           float64
	ATRPercent    float64
	MACDHist      float64
	MACDCrossUp   bool
	MACDCrossDown bool
	Change24h     float64
	QuoteVolume24h float64
	FundingRate   float64
	OrderBookBidShare float64
	OIChange      float64
	Momentum5m    float64
	Momentum15m   float64
}

// AdaptiveStops is the output of the pure stop/TP sizing function (§4.9).
type AdaptiveStops struct {
	StopLossPercent   float64
	TakeProfitPercent float64
	StopLossPrice     float64
	TakeProfitPrice   float64
	MaxLeverage       int
	Category          string
	RiskRewardRatio   float64
	Provenance        []string
}

// Candidate is the transient output of a signal detector (§3).
type Candidate struct {
	Symbol        string
	Side          Side
	Kind          SignalKind
	Score         float64
	DetectedPrice float64
	Metrics       Metrics
	Stops         AdaptiveStops
	Momentum5m    float64
	Momentum15m   float64
	BTC           BTCSnapshot
	DetectedAt    time.Time

	// Quality context, computed lazily per-kind and carried for LLM prompts.
	CVD            *CVDResult
	FundingZScore  *float64
	FDI            *float64
	SmartMoney     *SmartMoneyClass
	Rationale      []string
}

// CVDResult is the cumulative-volume-delta divergence read (§4.4.2).
type CVDResult struct {
	Strength       float64
	FakeBreakout   bool
	Divergent      bool
	DivergencePolarity Side
}

// SmartMoneyClass classifies (price, OI, volume) interaction (glossary).
type SmartMoneyClass string

const (
	SmartMoneyAccumulation SmartMoneyClass = "accumulation"
	SmartMoneyDistribution SmartMoneyClass = "distribution"
	SmartMoneySqueeze      SmartMoneyClass = "squeeze"
	SmartMoneyLiquidation  SmartMoneyClass = "liquidation"
	SmartMoneyNeutral      SmartMoneyClass = "neutral"
)

// ObservationRow is the C5 watcher state for one approved candidate (§3).
type ObservationRow struct {
	ID              int64
	Symbol          string
	Side            Side
	Kind            SignalKind
	DetectedPrice   float64
	DetectedRSI     float64
	DetectedADX     float64
	InitialSL       float64
	InitialTP       float64
	CandidatePayload []byte // opaque JSON, §9 "JSON only at the store boundary"
	CreatedAt       time.Time
	ExpiryMinutes   int
	LastCheckAt     time.Time
	Status          ObservationStatus
	SignalRowID     int64
}

// HighVolSignal is the C6 track state for one symbol (§3).
type HighVolSignal struct {
	ID                int64
	Symbol            string
	Side              Side
	SignalPrice       float64
	ProposedEntry     float64
	SL                float64
	TP                float64
	Change24h         float64
	QuoteVolume24h    float64
	ATRPercent        float64
	ReadinessScore    float64
	ReadinessRationale []string
	HealthScore       float64
	PeakReadinessScore float64
	BBTrendTag        string
	VolumeTrendTag    string
	MomentumTrendTag  string
	WarningCount      int
	CVDDivergenceTag  string
	CVDScore          float64
	EfficiencyRatio   float64
	Hurst             float64
	BreakoutQuality   float64
	FakeBreakout      bool
	Status            HighVolStatus
	LimitOrderID      string
	FilledAt          *time.Time
	CurrentPnLFraction float64
	StrategyTag       StrategyTag
	AIReviewCount     int
	EntryPoolPrice    float64
	CreatedAt         time.Time
}

// PositionRecord is the C7 supervised-position state (§3).
type PositionRecord struct {
	Symbol               string
	Side                 Side
	EntryPrice           float64
	Contracts            float64
	OriginalSL           float64
	OriginalTP           float64
	CurrentSL            float64
	CurrentTP            float64
	HighestFavorablePrice float64
	HighestPnLFraction   float64
	CurrentTierIndex     int // -1 = none
	BreakevenSet         bool
	TrailingActivated    bool
	TPExtended           bool
	TPTightened          bool
	LastMomentumCheckAt  time.Time
	LastAIReviewAt       time.Time
	Strategy             StrategyTag
	SignalRowID          int64
	OpenedAt             time.Time
}

// PnLFraction computes unrealized PnL as a fraction of entry price,
// positive favorable regardless of side.
func (p *PositionRecord) PnLFraction(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideLong {
		return (currentPrice - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - currentPrice) / p.EntryPrice
}

// EmittedSignalRow is written by C4 on approval and updated across the
// lifecycle by C5/C7/C8 (§3).
type EmittedSignalRow struct {
	ID              int64
	Symbol          string
	Side            Side
	Kind            SignalKind
	Entry           float64
	SL              float64
	TP              float64
	RSI             float64
	ADX             float64
	Score           float64
	EntryAISource   string
	TimingAISource  string
	OrderType       string
	OrderStatus     OrderStatus
	FillPrice       *float64
	FillTime        *time.Time
	ExitPrice       *float64
	ExitTime        *time.Time
	ExitReason      string
	FinalPnLPercent *float64
	HoldingMinutes  *float64
	CreatedAt       time.Time
}

// AlgoOrderIDs is the cached (SL id, TP id) pair protecting a live position (§3).
type AlgoOrderIDs struct {
	SLID string
	TPID string
}

// FundingSample is one point in the per-symbol funding-history tail (§3).
type FundingSample struct {
	Symbol string
	Rate   float64
	At     time.Time
}

// DedupRecord is the last-seen state the deduplicator keeps per symbol (§3).
type DedupRecord struct {
	Symbol    string
	Kind      SignalKind
	Score     float64
	Side      Side
	Timestamp time.Time
}

// RuleSeverity is the severity of a hard-rule outcome (§4.4.1).
type RuleSeverity string

const (
	SeverityBlock RuleSeverity = "block"
	SeverityWarn  RuleSeverity = "warn"
)

// RuleOutcome is the result of evaluating one hard rule.
type RuleOutcome struct {
	Rule     string
	Category string
	Severity RuleSeverity
	Passed   bool
	Reason   string
}

// ReviewResult is the outcome of the LLM reviewer (§4.4.2) or the pricing
// LLM (§4.5/§4.6); optional fields are populated depending on which prompt
// variant produced it.
type ReviewResult struct {
	Approved   bool
	Confidence float64
	Side       Side
	Reasoning  string
	Source     string // which model answered ("cheap" or "premium")

	// Pricing-variant fields (§4.5).
	Decision  PricingDecision
	OrderType string
	Entry     float64
	SL        float64
	TP        float64

	// Position-review-variant fields (§4.7 step 9).
	Action      PositionAction
	NewSLPrice  *float64
	NewTPPrice  *float64
}

// PricingDecision is the watcher's final-pricing LLM decision (§4.5).
type PricingDecision string

const (
	DecisionExecuteLimit  PricingDecision = "EXECUTE_LIMIT"
	DecisionExecuteMarket PricingDecision = "EXECUTE_MARKET"
	DecisionAbandon       PricingDecision = "ABANDON"
)

// TimingDecision is the hard-rules timing gate outcome (§4.5 step 2).
type TimingDecision string

const (
	TimingYes     TimingDecision = "YES"
	TimingWait    TimingDecision = "WAIT"
	TimingAbandon TimingDecision = "ABANDON"
)

// PositionAction is the AI position-review action (§4.7 step 9).
type PositionAction string

const (
	ActionHold      PositionAction = "hold"
	ActionClose     PositionAction = "close"
	ActionTightenSL PositionAction = "tighten_sl"
	ActionExtendTP  PositionAction = "extend_tp"
	ActionBreakeven PositionAction = "breakeven"
)
