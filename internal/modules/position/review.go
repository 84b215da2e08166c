package position

import (
	"fmt"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// ShouldReview implements the AI-review gate (§4.7 step 9). Two hard gates
// must clear first: a small cooldown since the last review
// (min_review_interval_seconds, independent of the full review cadence) and
// a minimum holding time. Past those, a review fires on any one of: PnL
// sitting in the "awkward" band [-1%, +2%], BTC moving fast, volume
// spiking, the full review_interval_seconds cadence having elapsed, or
// there never having been a review at all.
func ShouldReview(pos domain.PositionRecord, now time.Time, pnlPercent, btc5BarTrendPercent, volumeRatio float64, cfg config.PositionConfig) bool {
	minInterval := time.Duration(cfg.MinReviewIntervalSeconds) * time.Second
	if minInterval <= 0 {
		minInterval = 120 * time.Second
	}
	hasReviewed := !pos.LastAIReviewAt.IsZero()
	if hasReviewed && now.Sub(pos.LastAIReviewAt) < minInterval {
		return false
	}

	heldMinutes := now.Sub(pos.OpenedAt).Minutes()
	if heldMinutes < float64(cfg.MinHoldingMinutes) {
		return false
	}

	interestingPnL := pnlPercent >= -1.0 && pnlPercent <= 2.0
	btcMoving := btc5BarTrendPercent >= 1.0 || btc5BarTrendPercent <= -1.0
	volSpiking := volumeRatio >= 2.0
	if interestingPnL || btcMoving || volSpiking {
		return true
	}

	if !hasReviewed {
		return true
	}

	fullInterval := time.Duration(cfg.ReviewIntervalSeconds) * time.Second
	if fullInterval <= 0 {
		fullInterval = 300 * time.Second
	}
	return now.Sub(pos.LastAIReviewAt) >= fullInterval
}

// BuildReviewPrompt constructs the periodic position-review AI prompt
// (§4.7 step 9).
func BuildReviewPrompt(pos domain.PositionRecord, currentPrice, pnlPercent float64, btc domain.BTCSnapshot) string {
	return fmt.Sprintf(
		"symbol=%s side=%s strategy=%s entry=%.6f current=%.6f pnl_pct=%.2f "+
			"current_sl=%.6f current_tp=%.6f tier_index=%d btc_trend=%s btc_change_1h=%.2f\n"+
			"Respond with JSON: {\"action\": \"hold\"|\"close\"|\"tighten_sl\"|\"extend_tp\"|\"breakeven\", "+
			"\"new_sl_price\": number|null, \"new_tp_price\": number|null, \"reasoning\": string}.",
		pos.Symbol, pos.Side, pos.Strategy, pos.EntryPrice, currentPrice, pnlPercent,
		pos.CurrentSL, pos.CurrentTP, pos.CurrentTierIndex, btc.Trend, btc.Change1h,
	)
}

// ApplyReviewAction interprets the AI's response per §4.7 step 9's
// safety rewrites: a raw "close" action is downgraded to a tight SL
// rather than trusted outright, and "breakeven" is only honored once the
// position is already in solid profit.
func ApplyReviewAction(pos domain.PositionRecord, currentPrice, pnlPercent float64, result *domain.ReviewResult) (action domain.PositionAction, newSL *float64) {
	if result == nil {
		return domain.ActionHold, nil
	}

	switch result.Action {
	case domain.ActionClose:
		tight := currentPrice * 1.003
		if pos.Side == domain.SideLong {
			tight = currentPrice * 0.997
		}
		return domain.ActionTightenSL, &tight

	case domain.ActionBreakeven:
		if pnlPercent <= 1.0 {
			return domain.ActionHold, nil
		}
		return domain.ActionBreakeven, result.NewSLPrice

	default:
		return result.Action, result.NewSLPrice
	}
}
