// Package highvol implements the High-Volatility Track (C6): an
// independent observation pool with its own hard filters, readiness/health
// scoring, and limit-order lifecycle (§4.6).
package highvol

import (
	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
)

// HardFilterInput bundles what the admission filter needs.
type HardFilterInput struct {
	Metrics      domain.Metrics
	Candles      domain.Candles
	Move5mPercent float64
}

// PassesHardFilter implements §4.6's admission gate. Returns (true, "") on
// admission, else (false, reason).
func PassesHardFilter(in HardFilterInput, cfg config.HighVolConfig) (bool, string) {
	m := in.Metrics

	change := m.Change24h
	if change < 0 {
		change = -change
	}
	if change < cfg.MinChange24hPercent || change > cfg.MaxChange24hPercent {
		return false, "24h_change_outside_band"
	}
	if m.QuoteVolume24h < cfg.MinQuoteVolume24h {
		return false, "quote_volume_below_floor"
	}

	move5m := in.Move5mPercent
	if move5m < 0 {
		move5m = -move5m
	}
	if move5m > cfg.Max5mMovePercent {
		return false, "already_broken_out_5m"
	}

	closes := in.Candles.Closes()
	bb := indicators.Bollinger(closes, 20, 2, 2)
	if bb != nil {
		meanWidth := meanBBWidth(closes)
		if meanWidth > 0 && bb.Width > cfg.BBWidthBreakoutMult*meanWidth {
			return false, "bb_already_broken_out"
		}
	}

	cvd := indicators.CVD(in.Candles, 20)
	if cvd != nil && cvd.FakeBreakout && cvd.Strength > 60 {
		return false, "fake_breakout_cvd_divergence"
	}

	er := indicators.EfficiencyRatio(closes, 20)
	if er != nil && *er < 0.2 {
		return false, "efficiency_ratio_too_low"
	}

	return true, ""
}

func meanBBWidth(closes []float64) float64 {
	if len(closes) < 40 {
		return 0
	}
	window := closes
	if len(closes) > 100 {
		window = closes[len(closes)-100:]
	}
	sum := 0.0
	count := 0
	for i := 20; i < len(window); i++ {
		bb := indicators.Bollinger(window[:i+1], 20, 2, 2)
		if bb != nil {
			sum += bb.Width
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
