package detectors

import (
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
	"github.com/kairoslabs/perpsentinel/internal/modules/stops"
)

// TrendAnticipationInput bundles everything the trend-anticipation detector reads.
type TrendAnticipationInput struct {
	Metrics domain.Metrics
	Candles domain.Candles
	BTC     domain.BTCSnapshot
}

const trendAnticipationMinScore = 0.75

// DetectTrendAnticipation implements §4.2.2. Returns nil when no candidate fires.
func DetectTrendAnticipation(in TrendAnticipationInput) *domain.Candidate {
	m := in.Metrics

	var side domain.Side
	switch {
	case m.RSI >= 15 && m.RSI <= 25:
		side = domain.SideLong
	case m.RSI >= 75 && m.RSI <= 85:
		side = domain.SideShort
	default:
		return nil
	}

	if side == domain.SideLong {
		if in.BTC.Change1h < -2 {
			return nil
		}
		if in.BTC.Change1h < -1 {
			return nil
		}
	}

	closes := in.Candles.Closes()
	if len(closes) < 35 {
		return nil
	}

	fdi := indicators.FractalDimensionIndex(closes[len(closes)-30:])
	if fdi != nil && *fdi >= 1.45 {
		return nil
	}

	conditions := 1 // RSI-band is automatic
	decelerating := momentumDecelerating(closes)
	if decelerating {
		conditions++
	}
	nearSR := nearSupportResistance(in.Candles, m.Price, side)
	if nearSR {
		conditions++
	}
	btcSupportive := (absF(in.BTC.Change1h) < 0.3) || (side == domain.SideLong && in.BTC.Change1h >= 0) || (side == domain.SideShort && in.BTC.Change1h <= 0)
	if btcSupportive {
		conditions++
	}
	volOK := m.VolumeRatio >= 1.0
	if volOK {
		conditions++
	}
	adxOK := m.ADX >= 22
	if adxOK {
		conditions++
	}
	squeeze := m.BBWidth < 2.5
	if squeeze {
		conditions++
	}
	startup := startupConfirmation(in.Candles, side)
	if startup {
		conditions++
	}

	if conditions < 3 {
		return nil
	}

	smartMoney := indicators.ClassifySmartMoney(m.Change24h, m.OIChange, m.VolumeRatio)

	score := 0.55
	if nearSR {
		score += 0.15
	}
	score += candlestickBonus(in.Candles, side)
	score += volumeStructureBonus(m.VolumeRatio)
	score += multiTimeframeBonus(m)
	score += btcAlignmentBonus(in.BTC, side)
	score += extraConditionsBonus(conditions)
	if squeeze {
		score += 0.05
	}
	if startup {
		score += 0.08
	}
	score += fdiTierBonus(fdi)
	if smartMoney == domain.SmartMoneyAccumulation || smartMoney == domain.SmartMoneySqueeze {
		score += 0.06
	}

	if score < trendAnticipationMinScore {
		return nil
	}

	slPct, tpPct := srStopsTrendAnticipation(in.Candles, m.Price, side)
	adaptive := stops.Compute(stops.Input{
		Price:      m.Price,
		ATRPercent: m.ATRPercent,
		Side:       side,
		BTC:        in.BTC,
	})
	adaptive.StopLossPercent = slPct
	adaptive.TakeProfitPercent = tpPct
	adaptive.StopLossPrice, adaptive.TakeProfitPrice = stopTPPrices(m.Price, side, slPct, tpPct)

	var fdiPtr *float64
	if fdi != nil {
		f := *fdi
		fdiPtr = &f
	}
	sm := smartMoney

	return &domain.Candidate{
		Symbol:        m.Symbol,
		Side:          side,
		Kind:          domain.KindTrendAnticipation,
		Score:         score,
		DetectedPrice: m.Price,
		Metrics:       m,
		Stops:         adaptive,
		Momentum5m:    m.Momentum5m,
		Momentum15m:   m.Momentum15m,
		BTC:           in.BTC,
		DetectedAt:    time.Now(),
		FDI:           fdiPtr,
		SmartMoney:    &sm,
	}
}

func momentumDecelerating(closes []float64) bool {
	if len(closes) < 6 {
		return false
	}
	tail := closes[len(closes)-6:]
	first := absF(tail[1] - tail[0])
	last := absF(tail[len(tail)-1] - tail[len(tail)-2])
	return last < first
}

func nearSupportResistance(candles domain.Candles, price float64, side domain.Side) bool {
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
		return false
	}
	dist := (price - anchor) / price * 100
	if dist < 0 {
		dist = -dist
	}
	return dist <= 2.0
}

func startupConfirmation(candles domain.Candles, side domain.Side) bool {
	if len(candles) < 6 {
		return false
	}
	last5 := candles[len(candles)-6 : len(candles)-1]
	current := candles[len(candles)-1]

	avgVol := 0.0
	for _, c := range last5 {
		avgVol += c.Volume
	}
	avgVol /= float64(len(last5))
	volOK := current.Volume > 1.5*avgVol

	if side == domain.SideLong {
		return volOK && current.Close > maxOf(closesOf(last5))
	}
	return volOK && current.Close < minOf(closesOf(last5))
}

func closesOf(candles domain.Candles) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func candlestickBonus(candles domain.Candles, side domain.Side) float64 {
	if len(candles) < 2 {
		return 0
	}
	last := candles[len(candles)-1]
	body := absF(last.Close - last.Open)
	rng := last.High - last.Low
	if rng == 0 {
		return 0
	}
	bodyRatio := body / rng
	if bodyRatio > 0.6 {
		return 0.12
	}
	if bodyRatio > 0.3 {
		return 0.06
	}
	return 0
}

func volumeStructureBonus(volRatio float64) float64 {
	switch {
	case volRatio >= 2.0:
		return 0.10
	case volRatio >= 1.5:
		return 0.06
	case volRatio >= 1.0:
		return 0.03
	default:
		return 0
	}
}

func multiTimeframeBonus(m domain.Metrics) float64 {
	aligned := 0
	if m.Momentum5m > 0 == (m.Momentum15m > 0) {
		aligned++
	}
	if m.MACDCrossUp || m.MACDCrossDown {
		aligned++
	}
	return float64(aligned) * 0.075
}

func btcAlignmentBonus(btc domain.BTCSnapshot, side domain.Side) float64 {
	aligned := (side == domain.SideLong && btc.Trend == domain.BTCTrendBullish) ||
		(side == domain.SideShort && btc.Trend == domain.BTCTrendBearish)
	if aligned {
		return 0.10
	}
	return 0
}

func extraConditionsBonus(conditions int) float64 {
	extra := conditions - 3
	if extra <= 0 {
		return 0
	}
	bonus := float64(extra) * 0.015
	if bonus > 0.06 {
		return 0.06
	}
	return bonus
}

func fdiTierBonus(fdi *float64) float64 {
	if fdi == nil {
		return 0
	}
	switch {
	case *fdi <= 1.25:
		return 0.08
	case *fdi <= 1.35:
		return 0.03
	case *fdi >= 1.42:
		return -0.05
	default:
		return 0
	}
}

// srStopsTrendAnticipation implements §4.2.2 "Stops": SL = support/resistance
// ± 0.5% buffer clamped at 2% max; TP = 6%.
func srStopsTrendAnticipation(candles domain.Candles, price float64, side domain.Side) (slPct, tpPct float64) {
	return srStopsCapped(candles, price, side)
}
