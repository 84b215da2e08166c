package indicators

import (
	"math"

	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// CVD estimates cumulative volume delta from candle OHLCV bars using the
// close-position-in-range proxy (no trade-level tape is available from the
// venue's REST candles), then flags price/CVD divergence — a classic
// "fake breakout" tell used as a quality indicator in the hard-rule gate
// (§4.4.2).
func CVD(candles domain.Candles, lookback int) *domain.CVDResult {
	if len(candles) < lookback+1 {
		return nil
	}
	window := candles[len(candles)-lookback:]

	var cumDelta float64
	deltas := make([]float64, 0, len(window))
	for _, c := range window {
		rng := c.High - c.Low
		var delta float64
		if rng > 0 {
			// close near the high -> buy-side pressure; near the low -> sell-side.
			closePos := (c.Close - c.Low) / rng
			delta = (closePos*2 - 1) * c.Volume
		}
		cumDelta += delta
		deltas = append(deltas, cumDelta)
	}

	priceChange := window[len(window)-1].Close - window[0].Close
	cvdChange := deltas[len(deltas)-1] - deltas[0]

	result := &domain.CVDResult{
		Strength: math.Abs(cvdChange),
	}

	priceUp := priceChange > 0
	cvdUp := cvdChange > 0
	if priceChange != 0 && cvdChange != 0 && priceUp != cvdUp {
		result.Divergent = true
		result.FakeBreakout = true
		if priceUp {
			result.DivergencePolarity = domain.SideShort // price up, CVD down: bearish divergence
		} else {
			result.DivergencePolarity = domain.SideLong
		}
	}

	return result
}
