package indicators

import "github.com/kairoslabs/perpsentinel/internal/domain"

// ClassifySmartMoney reads the interaction between price direction, open
// interest change, and volume to label the likely dominant participant
// behavior behind a move (glossary: "smart money classification").
//
//	price up,   OI up,   volume up   -> accumulation (fresh longs building)
//	price down, OI up,   volume up   -> distribution (fresh shorts building)
//	price flat, OI up,   volume up   -> squeeze (positioning without direction)
//	price move, OI down, volume up   -> liquidation (positions closing into the move)
//	anything else                    -> neutral
func ClassifySmartMoney(priceChangePercent, oiChangePercent, volumeRatio float64) domain.SmartMoneyClass {
	const flatThreshold = 0.15
	const activeOI = 1.0
	const activeVolume = 1.2

	if oiChangePercent >= activeOI && volumeRatio >= activeVolume {
		switch {
		case priceChangePercent > flatThreshold:
			return domain.SmartMoneyAccumulation
		case priceChangePercent < -flatThreshold:
			return domain.SmartMoneyDistribution
		default:
			return domain.SmartMoneySqueeze
		}
	}

	if oiChangePercent <= -activeOI && volumeRatio >= activeVolume {
		return domain.SmartMoneyLiquidation
	}

	return domain.SmartMoneyNeutral
}
