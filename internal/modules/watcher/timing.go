// Package watcher implements the Observation Queue (C5): holding an
// approved candidate for a short tactical window, re-checking fast
// deterministic rules each tick, and asking the premium LLM for a final
// pricing decision only once they pass (§4.5).
package watcher

import (
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// VolatilityMultiplier derives the per-row scaling factor from ATR%
// (§4.5 step 2). Trend-anticipation rows are excluded from scaling by
// default.
func VolatilityMultiplier(kind domain.SignalKind, atrPercent float64) float64 {
	if kind == domain.KindTrendAnticipation {
		return 1.0
	}
	switch {
	case atrPercent < 1.5:
		return 0.8
	case atrPercent < 2.5:
		return 1.0
	case atrPercent < 3.5:
		return 1.5
	default:
		return 2.0
	}
}

// Snapshot is the "full realtime snapshot" read each tick (§4.5 step 1).
type Snapshot struct {
	Price            float64
	RSI              float64
	VolumeRatio      float64
	ATRPercent       float64
	ADX              float64
	MACDCrossUp      bool
	MACDCrossDown    bool
	OrderBookBidShare float64
	BTC5BarTrend     float64
}

// TimingThresholds configures the abandon/miss pullback percentages that
// get scaled by the volatility multiplier.
type TimingThresholds struct {
	PriceAbandonPercent float64
	PriceMissPercent    float64
}

// DefaultThresholds returns the base (pre-multiplier) thresholds per kind,
// matching the spec's implied reversal/trend split (§4.5 step 2).
func DefaultThresholds(kind domain.SignalKind, extreme bool) TimingThresholds {
	if kind == domain.KindTrendAnticipation {
		return TimingThresholds{PriceAbandonPercent: 1.5, PriceMissPercent: 1.0}
	}
	if extreme {
		return TimingThresholds{PriceAbandonPercent: 2.0, PriceMissPercent: 1.2}
	}
	return TimingThresholds{PriceAbandonPercent: 1.2, PriceMissPercent: 0.8}
}

// EvaluateTiming runs the hard-rules timing gate for one row (§4.5 step 2).
func EvaluateTiming(row domain.ObservationRow, snap Snapshot, extreme bool) (domain.TimingDecision, string) {
	mult := VolatilityMultiplier(row.Kind, snap.ATRPercent)
	th := DefaultThresholds(row.Kind, extreme)
	abandonPct := th.PriceAbandonPercent * mult
	missPct := th.PriceMissPercent * mult

	moveAgainst, moveWith := directionalMoves(row.Side, row.DetectedPrice, snap.Price)

	if row.Kind == domain.KindTrendAnticipation {
		if moveAgainst > abandonPct {
			return domain.TimingAbandon, "price_moved_against_beyond_abandon"
		}
		if moveWith > missPct {
			return domain.TimingAbandon, "entry_missed_price_ran_beyond_threshold"
		}
		if row.Side == domain.SideLong && snap.RSI > 75 {
			return domain.TimingAbandon, "rsi_drifted_past_long_sanity"
		}
		if row.Side == domain.SideShort && snap.RSI < 25 {
			return domain.TimingAbandon, "rsi_drifted_past_short_sanity"
		}
		return domain.TimingYes, ""
	}

	// Reversal: kind-split (extreme/normal already folded into thresholds)
	// plus an RSI-recovery abandon check.
	if moveAgainst > abandonPct {
		return domain.TimingAbandon, "price_moved_against_beyond_abandon"
	}
	if moveWith > missPct {
		return domain.TimingAbandon, "entry_missed_price_ran_beyond_threshold"
	}

	recoveryLong, recoveryShort := 55.0, 45.0
	if extreme {
		recoveryLong, recoveryShort = 60.0, 40.0
	}
	if row.Side == domain.SideLong && snap.RSI > recoveryLong {
		return domain.TimingAbandon, "rsi_mean_reverted_past_recovery_band"
	}
	if row.Side == domain.SideShort && snap.RSI < recoveryShort {
		return domain.TimingAbandon, "rsi_mean_reverted_past_recovery_band"
	}

	return domain.TimingYes, ""
}

// directionalMoves returns (against, with) percentage moves from the
// detected price, both as positive magnitudes.
func directionalMoves(side domain.Side, detected, current float64) (against, with float64) {
	if detected == 0 {
		return 0, 0
	}
	changePct := (current - detected) / detected * 100
	if side == domain.SideLong {
		if changePct < 0 {
			return -changePct, 0
		}
		return 0, changePct
	}
	if changePct > 0 {
		return changePct, 0
	}
	return 0, -changePct
}
