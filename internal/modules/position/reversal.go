package position

import (
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// ReversalSignal bundles the tick-level indicators the reversal-exit check
// needs (§4.7 step 8).
type ReversalSignal struct {
	RSI            float64
	MACDCrossUp    bool
	MACDCrossDown  bool
}

// DetectReversalExit implements §4.7 step 8: RSI crossing into the
// opposite-side extreme band, or MACD crossing against the position's
// side, triggers a reversal_exit. Longs watch the 65/75 band, shorts the
// 35/25 band.
func DetectReversalExit(pos domain.PositionRecord, sig ReversalSignal) (exit bool, reason string) {
	if pos.Side == domain.SideLong {
		if sig.RSI >= 75 {
			return true, "rsi_extreme_overbought"
		}
		if sig.RSI >= 65 && sig.MACDCrossDown {
			return true, "rsi_elevated_macd_cross_down"
		}
		if sig.MACDCrossDown {
			return true, "macd_cross_against_long"
		}
		return false, ""
	}

	if sig.RSI <= 25 {
		return true, "rsi_extreme_oversold"
	}
	if sig.RSI <= 35 && sig.MACDCrossUp {
		return true, "rsi_depressed_macd_cross_up"
	}
	if sig.MACDCrossUp {
		return true, "macd_cross_against_short"
	}
	return false, ""
}
