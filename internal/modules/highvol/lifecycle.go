package highvol

import (
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
)

// OrderAge reports how long a priced (unfilled) limit order has been
// outstanding.
func OrderAge(e Entry, now time.Time) time.Duration {
	if e.PricedAt.IsZero() {
		return 0
	}
	return now.Sub(e.PricedAt)
}

// ShouldCancelUnfilled reports whether a priced order has outlived its
// valid_seconds window and should be cancelled so the cycle can decide
// whether to re-price or retire (§4.6 "Limit-order lifecycle").
func ShouldCancelUnfilled(cfg config.HighVolConfig, e Entry, now time.Time) bool {
	valid := cfg.ValidSeconds
	if valid <= 0 {
		valid = 300
	}
	return e.Status == StatusPriced && OrderAge(e, now) > time.Duration(valid)*time.Second
}

// CounterTradeEligible decides whether a reversed-direction re-entry is
// allowed after a high-volatility position closes, per the resolved
// ordering: capacity, then balance, then realized profit (Open Question
// decision, see DESIGN.md).
func CounterTradeEligible(cfg config.HighVolConfig, poolHasCapacity bool, balanceAvailable, requiredMargin, realizedPnLPercent float64) (bool, string) {
	if !poolHasCapacity {
		return false, "pool_at_capacity"
	}
	if balanceAvailable < requiredMargin {
		return false, "insufficient_balance"
	}
	min := cfg.CounterTradeMinProfitPercent
	if realizedPnLPercent < min {
		return false, "prior_trade_profit_below_floor"
	}
	return true, ""
}
