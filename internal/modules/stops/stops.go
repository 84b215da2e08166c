// Package stops computes adaptive stop-loss/take-profit sizing as a pure
// function of ATR, price, side, and BTC context (§4.9). It has no
// dependency on the database or any client, so every detector and the
// high-vol track can call it without an import cycle.
package stops

import (
	"sort"

	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// categoryBand maps ATR% to a named volatility category and its
// base (SL multiplier, TP multiplier) pair (§4.9).
type categoryBand struct {
	name        string
	maxATRPct   float64 // exclusive upper bound; last band has no upper bound
	slMult      float64
	tpMult      float64
}

var bands = []categoryBand{
	{"ultra_stable", 1.5, 2.0, 4.0},
	{"stable", 3.0, 2.5, 5.0},
	{"normal", 5.0, 3.0, 6.0},
	{"volatile", 8.0, 3.5, 7.0},
	{"extreme", -1, 4.0, 8.0}, // no upper bound
}

const (
	minSLPercent = 0.8
	maxSLPercent = 20.0
	minTPPercent = 1.5
	maxTPPercent = 50.0
	minRiskReward = 1.8
)

// Input bundles everything the sizing function needs.
type Input struct {
	Price          float64
	ATRPercent     float64
	Side           domain.Side
	BTC            domain.BTCSnapshot
	Candles        domain.Candles // used only for the optional S/R snap
	SnapToSR       bool
}

// Compute returns the adaptive stop/TP sizing for Input, following the
// category bands, environment multipliers, clamps, and optional S/R snap
// named in §4.9. ATR% exactly at a band boundary belongs to the *next*
// (wider) band, per the boundary-behaviour test in §8.
func Compute(in Input) domain.AdaptiveStops {
	band := categoryFor(in.ATRPercent)

	slPct := in.ATRPercent * band.slMult
	tpPct := in.ATRPercent * band.tpMult
	provenance := []string{"category:" + band.name}

	slPct, tpPct, envProv := applyEnvironment(slPct, tpPct, in.BTC)
	provenance = append(provenance, envProv...)

	slPct = clamp(slPct, minSLPercent, maxSLPercent)
	tpPct = clamp(tpPct, minTPPercent, maxTPPercent)

	if slPct > 0 && tpPct/slPct < minRiskReward {
		adjustedTP := slPct * minRiskReward
		if adjustedTP <= maxTPPercent {
			tpPct = adjustedTP
			provenance = append(provenance, "rr_adjust:tp_up")
		} else {
			tpPct = maxTPPercent
			slPct = clamp(tpPct/minRiskReward, minSLPercent, maxSLPercent)
			provenance = append(provenance, "rr_adjust:sl_down")
		}
	}

	slPrice, tpPrice := pricesFor(in.Price, in.Side, slPct, tpPct)

	if in.SnapToSR && len(in.Candles) >= 2 {
		if snapped, ok := snapToSupportResistance(in.Price, in.Side, slPrice, in.Candles); ok {
			newSLPct := percentDistance(in.Price, snapped)
			if newSLPct >= minSLPercent && newSLPct <= maxSLPercent {
				slPrice = snapped
				slPct = newSLPct
				provenance = append(provenance, "sr_snap")
			}
		}
	}

	riskReward := 0.0
	if slPct > 0 {
		riskReward = tpPct / slPct
	}

	return domain.AdaptiveStops{
		StopLossPercent:   slPct,
		TakeProfitPercent: tpPct,
		StopLossPrice:     slPrice,
		TakeProfitPrice:   tpPrice,
		MaxLeverage:       maxLeverageFor(band.name),
		Category:          band.name,
		RiskRewardRatio:   riskReward,
		Provenance:        provenance,
	}
}

func categoryFor(atrPct float64) categoryBand {
	for _, b := range bands {
		if b.maxATRPct < 0 || atrPct < b.maxATRPct {
			return b
		}
	}
	return bands[len(bands)-1]
}

func applyEnvironment(slPct, tpPct float64, btc domain.BTCSnapshot) (float64, float64, []string) {
	var provenance []string

	switch btc.VolatilityRegime {
	case domain.BTCRegimeExtreme:
		slPct *= 1.5
		tpPct *= 0.8
		provenance = append(provenance, "btc_vol:extreme")
	case domain.BTCRegimeHigh:
		slPct *= 1.3
		tpPct *= 0.9
		provenance = append(provenance, "btc_vol:high")
	case domain.BTCRegimeLow:
		slPct *= 0.8
		provenance = append(provenance, "btc_vol:low")
	}

	if btc.Trend == domain.BTCTrendCrash || btc.Trend == domain.BTCTrendMoon {
		slPct *= 1.2
		provenance = append(provenance, "btc_trend:"+string(btc.Trend))
	}

	return slPct, tpPct, provenance
}

func maxLeverageFor(category string) int {
	switch category {
	case "ultra_stable":
		return 20
	case "stable":
		return 15
	case "normal":
		return 10
	case "volatile":
		return 5
	default:
		return 3
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pricesFor(price float64, side domain.Side, slPct, tpPct float64) (slPrice, tpPrice float64) {
	if side == domain.SideLong {
		return price * (1 - slPct/100), price * (1 + tpPct/100)
	}
	return price * (1 + slPct/100), price * (1 - tpPct/100)
}

func percentDistance(price, target float64) float64 {
	if price == 0 {
		return 0
	}
	diff := price - target
	if diff < 0 {
		diff = -diff
	}
	return diff / price * 100
}

// snapToSupportResistance snaps the candidate SL to the nearest support
// (20th percentile low, long side) or resistance (80th percentile high,
// short side) over the trailing window (capped at 100 bars) if the
// candidate SL crosses it by more than 2%.
func snapToSupportResistance(price float64, side domain.Side, candidateSL float64, candles domain.Candles) (float64, bool) {
	window := candles
	if len(window) > 100 {
		window = window[len(window)-100:]
	}

	if side == domain.SideLong {
		support := percentileOfLows(window, 0.20)
		if support == 0 {
			return 0, false
		}
		crossPct := percentDistance(support, candidateSL)
		if candidateSL < support && crossPct > 2 {
			return support * 0.98, true
		}
		return 0, false
	}

	resistance := percentileOfHighs(window, 0.80)
	if resistance == 0 {
		return 0, false
	}
	crossPct := percentDistance(resistance, candidateSL)
	if candidateSL > resistance && crossPct > 2 {
		return resistance * 1.02, true
	}
	return 0, false
}

func percentileOfLows(candles domain.Candles, p float64) float64 {
	lows := make([]float64, len(candles))
	for i, c := range candles {
		lows[i] = c.Low
	}
	return percentileOf(lows, p)
}

func percentileOfHighs(candles domain.Candles, p float64) float64 {
	highs := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
	}
	return percentileOf(highs, p)
}

func percentileOf(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
