// Package detectors implements the signal detectors of C2: the reversal
// detector (§4.2.1) and the trend-anticipation detector (§4.2.2). Each
// detector is a pure function of per-symbol metrics, candle history, and
// BTC context, producing zero or one domain.Candidate.
package detectors

import (
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
	"github.com/kairoslabs/perpsentinel/internal/modules/stops"
)

// ScoreWeights configures the reversal detector's sub-score deltas (§4.2.1).
type ScoreWeights struct {
	Sentiment float64
	Funding   float64
	Macro     float64
	Orderbook float64
	OI        float64
}

// ReversalInput bundles everything the reversal detector reads.
type ReversalInput struct {
	Metrics      domain.Metrics
	Candles      domain.Candles
	BTC          domain.BTCSnapshot
	Weights      ScoreWeights
	Correlation  *float64 // optional correlation-analysis adjustment
	MinScore     float64
	MinVolRatio  float64
}

// DetectReversal implements §4.2.1. It returns nil when no candidate fires.
func DetectReversal(in ReversalInput) *domain.Candidate {
	m := in.Metrics

	if m.ADX < 15 && m.VolumeRatio < 1.5 {
		return nil
	}

	var side domain.Side
	extreme := false
	switch {
	case m.RSI <= 15:
		side, extreme = domain.SideLong, true
	case m.RSI <= 20:
		side = domain.SideLong
	case m.RSI >= 85:
		side, extreme = domain.SideShort, true
	case m.RSI >= 80:
		side = domain.SideShort
	default:
		return nil
	}

	closes := in.Candles.Closes()
	stillTrending := stillTrending(closes, side)
	momentumWeakening := momentumWeakening(closes, side)
	cvd := indicators.CVD(in.Candles, 20)
	matchingDivergence := cvd != nil && cvd.Divergent && cvd.DivergencePolarity == side

	emit := false
	switch {
	case extreme:
		emit = momentumWeakening || matchingDivergence || m.VolumeRatio > 1.5
	default:
		strongDivergence := matchingDivergence && cvd.Strength > 0.4
		emit = strongDivergence || (m.VolumeRatio > 2.0 && momentumWeakening)
		if stillTrending && !matchingDivergence {
			emit = false
		}
	}
	if !emit {
		return nil
	}

	score := 0.75
	score += (clamp01(m.OrderBookBidShare) - 0.5) * in.Weights.Orderbook
	score += (fundingScore(m.FundingRate) - 0.5) * in.Weights.Funding
	score += (macroScore(in.BTC, side) - 0.5) * in.Weights.Macro
	score += (sentimentScore(m) - 0.5) * in.Weights.Sentiment
	score += (oiScore(m.OIChange) - 0.5) * in.Weights.OI
	if in.Correlation != nil {
		score += *in.Correlation
	}
	if in.MinScore > 0 && score < in.MinScore {
		return nil
	}
	if in.MinVolRatio > 0 && m.VolumeRatio < in.MinVolRatio {
		return nil
	}

	// §4.2.1 only calls for attaching the adaptive stops computed externally
	// (§4.9); unlike the trend-anticipation detector this one does not
	// override them with the SR-anchored formula.
	adaptive := stops.Compute(stops.Input{
		Price:      m.Price,
		ATRPercent: m.ATRPercent,
		Side:       side,
		BTC:        in.BTC,
		Candles:    in.Candles,
		SnapToSR:   true,
	})

	return &domain.Candidate{
		Symbol:        m.Symbol,
		Side:          side,
		Kind:          domain.KindReversal,
		Score:         score,
		DetectedPrice: m.Price,
		Metrics:       m,
		Stops:         adaptive,
		Momentum5m:    m.Momentum5m,
		Momentum15m:   m.Momentum15m,
		BTC:           in.BTC,
		DetectedAt:    time.Now(),
		CVD:           cvd,
		Rationale:     rationale(extreme, stillTrending, momentumWeakening, matchingDivergence),
	}
}

// srStopsCapped computes support/resistance ± 0.5% buffer, clamped to a
// hard 2% max stop-loss, with a flat 6% take-profit. Only the
// trend-anticipation detector uses it (§4.2.2 "Stops").
func srStopsCapped(candles domain.Candles, price float64, side domain.Side) (slPct, tpPct float64) {
	window := candles
	if len(window) > 100 {
		window = window[len(window)-100:]
	}

	var anchor float64
	if side == domain.SideLong {
		anchor = percentile(lowsOf(window), 0.20)
	} else {
		anchor = percentile(highsOf(window), 0.80)
	}
	if anchor == 0 || price == 0 {
		return 2.0, 6.0
	}

	dist := (price - anchor) / price * 100
	if dist < 0 {
		dist = -dist
	}
	slPct = dist + 0.5
	if slPct > 2.0 {
		slPct = 2.0
	}
	if slPct < 0.1 {
		slPct = 0.1
	}
	return slPct, 6.0
}

func stopTPPrices(price float64, side domain.Side, slPct, tpPct float64) (slPrice, tpPrice float64) {
	if side == domain.SideLong {
		return price * (1 - slPct/100), price * (1 + tpPct/100)
	}
	return price * (1 + slPct/100), price * (1 - tpPct/100)
}

func stillTrending(closes []float64, side domain.Side) bool {
	if len(closes) < 10 {
		return false
	}
	last10 := closes[len(closes)-10:]
	prev5 := last10[:5]
	last5 := last10[5:]
	if side == domain.SideLong {
		return minOf(last5) < minOf(prev5)
	}
	return maxOf(last5) > maxOf(prev5)
}

// momentumWeakening implements the stated intent from §4.2.1: of the last 6
// inter-candle changes, at least 3 show decaying magnitude in the
// against-direction, and at least 1 of the most recent 2 comparisons does.
func momentumWeakening(closes []float64, side domain.Side) bool {
	if len(closes) < 7 {
		return false
	}
	tail := closes[len(closes)-7:]
	deltas := make([]float64, 6)
	for i := 1; i < len(tail); i++ {
		deltas[i-1] = tail[i] - tail[i-1]
	}

	isAgainst := func(d float64) bool {
		if side == domain.SideLong {
			return d < 0
		}
		return d > 0
	}

	decayCount := 0
	recentDecay := 0
	for i := 1; i < len(deltas); i++ {
		prev, cur := deltas[i-1], deltas[i]
		if !isAgainst(prev) || !isAgainst(cur) {
			continue
		}
		if absF(cur) < absF(prev) {
			decayCount++
			if i >= len(deltas)-2 {
				recentDecay++
			}
		}
	}

	return decayCount >= 3 && recentDecay >= 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func fundingScore(rate float64) float64 {
	// Neutral funding scores 0.5; progressively extreme funding (in either
	// direction) is scored away from neutral, capped at [0,1].
	return clamp01(0.5 - rate*20)
}

func macroScore(btc domain.BTCSnapshot, side domain.Side) float64 {
	aligned := (side == domain.SideLong && btc.Change1h >= 0) || (side == domain.SideShort && btc.Change1h <= 0)
	if aligned {
		return 0.65
	}
	return 0.35
}

func sentimentScore(m domain.Metrics) float64 {
	return clamp01(0.5 + m.MACDHist/10)
}

func oiScore(oiChange float64) float64 {
	return clamp01(0.5 + oiChange/20)
}

func rationale(extreme, stillTrending, momentumWeakening, divergence bool) []string {
	var out []string
	if extreme {
		out = append(out, "extreme_rsi")
	}
	if stillTrending {
		out = append(out, "still_trending")
	}
	if momentumWeakening {
		out = append(out, "momentum_weakening")
	}
	if divergence {
		out = append(out, "matching_divergence")
	}
	return out
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
