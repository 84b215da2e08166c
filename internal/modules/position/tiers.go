// Package position implements the Position Supervisor (C7): per-tick
// emergency stop, SL verification, tiered/trailing stop management,
// dynamic take-profit, reversal exit, and periodic AI review (§4.7).
package position

import (
	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// TierResult is the outcome of evaluating the trailing-stop tier table for
// one tick.
type TierResult struct {
	NewTierIndex int
	NewSL        float64
	Advanced     bool
}

// EvaluateTiers implements §4.7 step 4: the tier table is walked in
// ascending trigger order: once PnL% clears a tier's trigger, the stop
// locks to that tier's lock percent above entry (long) / below entry
// (short). Tier index only ever advances, and the locked SL only ever
// tightens in the position's favor.
func EvaluateTiers(pos domain.PositionRecord, pnlPercent float64, table []config.TierEntry) TierResult {
	if len(table) == 0 {
		return TierResult{NewTierIndex: pos.CurrentTierIndex, NewSL: pos.CurrentSL}
	}

	best := pos.CurrentTierIndex
	for i, tier := range table {
		if pnlPercent >= tier.TriggerPercent && i > best {
			best = i
		}
	}
	if best == pos.CurrentTierIndex || best < 0 {
		return TierResult{NewTierIndex: pos.CurrentTierIndex, NewSL: pos.CurrentSL}
	}

	lockPct := table[best].LockPercent
	newSL := lockedSL(pos.Side, pos.EntryPrice, lockPct)
	return TierResult{NewTierIndex: best, NewSL: newSL, Advanced: true}
}

func lockedSL(side domain.Side, entry, lockPercent float64) float64 {
	if side == domain.SideLong {
		return entry * (1 + lockPercent/100)
	}
	return entry * (1 - lockPercent/100)
}

// EvaluateBreakeven implements §4.7 step 5: only relevant when tiered
// stops are disabled. Moves SL to entry +/- a small buffer once price has
// moved in favor by the trigger percent, and only ever fires once.
func EvaluateBreakeven(pos domain.PositionRecord, pnlPercent float64, cfg config.PositionConfig) (newSL float64, fire bool) {
	if cfg.TieredStopEnabled || pos.BreakevenSet {
		return pos.CurrentSL, false
	}
	if pnlPercent < cfg.BreakevenTriggerPercent {
		return pos.CurrentSL, false
	}
	if pos.Side == domain.SideLong {
		return pos.EntryPrice * (1 + cfg.BreakevenBufferPercent/100), true
	}
	return pos.EntryPrice * (1 - cfg.BreakevenBufferPercent/100), true
}

// EvaluateTrailing implements §4.7 step 6: also gated on tiered stops
// being disabled. Once activated, the stop only ever rises (long) or
// falls (short) — it tracks the highest favorable price seen, minus/plus
// the trailing distance, and never retreats.
func EvaluateTrailing(pos domain.PositionRecord, currentPrice float64, cfg config.PositionConfig) (newSL float64, newHighest float64, activated bool) {
	if cfg.TieredStopEnabled {
		return pos.CurrentSL, pos.HighestFavorablePrice, pos.TrailingActivated
	}

	highest := pos.HighestFavorablePrice
	favorable := false
	if pos.Side == domain.SideLong {
		if currentPrice > highest {
			highest = currentPrice
		}
		favorable = highest > pos.EntryPrice
	} else {
		if highest == 0 || currentPrice < highest {
			highest = currentPrice
		}
		favorable = highest < pos.EntryPrice
	}

	activated = pos.TrailingActivated || favorable
	if !activated {
		return pos.CurrentSL, highest, false
	}

	candidate := trailingSL(pos.Side, highest, cfg.TrailingDistancePercent)
	newSL = pos.CurrentSL
	if pos.Side == domain.SideLong && candidate > newSL {
		newSL = candidate
	} else if pos.Side == domain.SideShort && (newSL == 0 || candidate < newSL) {
		newSL = candidate
	}
	return newSL, highest, true
}

func trailingSL(side domain.Side, highest, distancePercent float64) float64 {
	if side == domain.SideLong {
		return highest * (1 - distancePercent/100)
	}
	return highest * (1 + distancePercent/100)
}
