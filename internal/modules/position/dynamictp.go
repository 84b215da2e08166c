package position

import (
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// TPAdjustment is the outcome of the dynamic take-profit check (§4.7 step 7).
type TPAdjustment struct {
	NewTP     float64
	Extended  bool
	Tightened bool
}

// EvaluateDynamicTP extends TP by 15% further out when momentum is still
// accelerating in the position's favor, or tightens it to +/-1% from the
// current price when momentum has stalled — each transition is sticky and
// fires at most once per position (the TPExtended/TPTightened flags on
// PositionRecord).
func EvaluateDynamicTP(pos domain.PositionRecord, currentPrice, momentumScore float64) TPAdjustment {
	switch {
	case momentumScore >= 0.7 && !pos.TPExtended:
		extended := pos.CurrentTP
		if pos.Side == domain.SideLong {
			distance := pos.CurrentTP - pos.EntryPrice
			extended = pos.CurrentTP + distance*0.15
		} else {
			distance := pos.EntryPrice - pos.CurrentTP
			extended = pos.CurrentTP - distance*0.15
		}
		return TPAdjustment{NewTP: extended, Extended: true}

	case momentumScore <= 0.2 && !pos.TPTightened:
		var tightened float64
		if pos.Side == domain.SideLong {
			tightened = currentPrice * 1.01
		} else {
			tightened = currentPrice * 0.99
		}
		return TPAdjustment{NewTP: tightened, Tightened: true}

	default:
		return TPAdjustment{NewTP: pos.CurrentTP}
	}
}
