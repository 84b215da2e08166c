package highvol

import (
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// ReadinessInput bundles what the readiness score (§4.6 "Readiness") needs.
type ReadinessInput struct {
	Metrics   domain.Metrics
	Candles   domain.Candles
	BTC       domain.BTCSnapshot
	Side      domain.Side
	BBWidthHistory []float64 // most recent last
}

// Readiness computes the 0-100 readiness score as four equally weighted
// (25 pt) components: Bollinger squeeze percentile, short/mid volume ratio,
// distance to nearest support/resistance, BTC-regime alignment.
func Readiness(in ReadinessInput) float64 {
	score := 0.0
	score += squeezeComponent(in.BBWidthHistory, in.Metrics.BBWidth)
	score += volumeComponent(in.Metrics.VolumeRatio)
	score += srDistanceComponent(in.Candles, in.Metrics.Price)
	score += btcAlignmentComponent(in.BTC, in.Side)
	return score
}

// squeezeComponent rewards a tight Bollinger band relative to its own
// recent history: the tighter the current width sits in the low percentile
// of its history, the more "coiled" the move looks.
func squeezeComponent(history []float64, current float64) float64 {
	if len(history) < 10 {
		return 12.5 // half credit, insufficient history to rank
	}
	below := 0
	for _, w := range history {
		if w <= current {
			below++
		}
	}
	pct := float64(below) / float64(len(history))
	// Lower percentile (tighter band) scores higher.
	return (1 - pct) * 25
}

func volumeComponent(volumeRatio float64) float64 {
	switch {
	case volumeRatio >= 3.0:
		return 25
	case volumeRatio >= 2.0:
		return 20
	case volumeRatio >= 1.5:
		return 12
	case volumeRatio >= 1.0:
		return 6
	default:
		return 0
	}
}

func srDistanceComponent(candles domain.Candles, price float64) float64 {
	closes := candles.Closes()
	if len(closes) < 20 || price == 0 {
		return 12.5
	}
	window := closes
	if len(window) > 100 {
		window = window[len(window)-100:]
	}
	support := percentileOf(window, 0.20)
	resistance := percentileOf(window, 0.80)

	distSupport := abs((price - support) / price * 100)
	distResistance := abs((resistance - price) / price * 100)
	nearest := distSupport
	if distResistance < nearest {
		nearest = distResistance
	}
	// Closer to a level scores higher: within 0.5% => full credit, fading
	// to zero credit by 5% away.
	switch {
	case nearest <= 0.5:
		return 25
	case nearest >= 5:
		return 0
	default:
		return 25 * (1 - nearest/5)
	}
}

// anchorLevel picks the support (for a long) or resistance (for a short)
// level a pooled symbol is anchored to at admission time, the level the
// health score later checks for a break (§4.6 "Health").
func anchorLevel(candles domain.Candles, side domain.Side) float64 {
	closes := candles.Closes()
	if len(closes) < 20 {
		return 0
	}
	window := closes
	if len(window) > 100 {
		window = window[len(window)-100:]
	}
	if side == domain.SideLong {
		return percentileOf(window, 0.20)
	}
	return percentileOf(window, 0.80)
}

func btcAlignmentComponent(btc domain.BTCSnapshot, side domain.Side) float64 {
	aligned := (side == domain.SideLong && btc.Trend != domain.BTCTrendBearish) ||
		(side == domain.SideShort && btc.Trend != domain.BTCTrendBullish)
	if btc.VolatilityRegime == domain.BTCRegimeExtreme {
		return 5 // extreme BTC regime drags alignment credit down regardless
	}
	if aligned {
		return 25
	}
	return 5
}

func percentileOf(series []float64, p float64) float64 {
	sorted := append([]float64(nil), series...)
	sortFloats(sorted)
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortFloats(s []float64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// HealthInput bundles the five health signals named in §4.6 "Health": BB
// regime change, volume dying/surging, RSI-shift momentum reversal, break
// of the anchoring S/R, and drift vs the pool-entry price. Each reading is
// relative to the snapshot taken when the symbol entered the pool
// (Entry.EntryBBWidth/EntryRSI/SRAnchor/EntryPrice), not an absolute level.
type HealthInput struct {
	Side domain.Side

	BBWidth      float64
	EntryBBWidth float64

	VolumeRatio float64

	RSI      float64
	EntryRSI float64

	Price    float64
	SRAnchor float64

	EntryPrice float64
}

// Health computes a 0-100 health score across the five signals, each worth
// 20 points. A pooled symbol is evicted once health drops below the
// configured threshold.
func Health(in HealthInput) float64 {
	score := 0.0
	score += bbRegimeComponent(in.BBWidth, in.EntryBBWidth)
	score += volumeHealthComponent(in.VolumeRatio)
	score += rsiShiftComponent(in.RSI, in.EntryRSI, in.Side)
	score += srBreakComponent(in.Price, in.SRAnchor, in.Side)
	score += entryDriftComponent(in.Price, in.EntryPrice, in.Side)
	return score
}

// bbRegimeComponent rewards a band that is still expanding (or has held its
// expansion) since entry; a band collapsing back toward its entry width
// means the breakout regime is fading.
func bbRegimeComponent(current, entry float64) float64 {
	if entry <= 0 {
		return 10 // no baseline to diff against, half credit
	}
	ratio := current / entry
	switch {
	case ratio >= 1.0:
		return 20
	case ratio >= 0.7:
		return 10
	default:
		return 0
	}
}

// volumeHealthComponent is volume dying/surging on the health score's
// 20-point scale (distinct from readiness's 25-point volumeComponent).
func volumeHealthComponent(volumeRatio float64) float64 {
	switch {
	case volumeRatio >= 1.5:
		return 20
	case volumeRatio >= 1.0:
		return 12
	default:
		return 4
	}
}

// rsiShiftComponent checks that momentum has kept moving in the pool's
// expected direction since entry rather than reversing.
func rsiShiftComponent(rsi, entryRSI float64, side domain.Side) float64 {
	shift := rsi - entryRSI
	if side == domain.SideShort {
		shift = -shift
	}
	switch {
	case shift >= 0:
		return 20
	case shift >= -5:
		return 10
	default:
		return 0
	}
}

// srBreakComponent checks whether price has broken through the S/R level
// anchored at admission (support for a long, resistance for a short).
func srBreakComponent(price, anchor float64, side domain.Side) float64 {
	if anchor <= 0 || price == 0 {
		return 10
	}
	breachPercent := (anchor - price) / price * 100
	if side == domain.SideShort {
		breachPercent = -breachPercent
	}
	switch {
	case breachPercent <= 0:
		return 20 // anchor not yet breached
	case breachPercent <= 0.5:
		return 10
	default:
		return 0
	}
}

// entryDriftComponent scores favourable-or-flat drift from the pool-entry
// price highest, and clear adverse drift lowest.
func entryDriftComponent(price, entryPrice float64, side domain.Side) float64 {
	if entryPrice == 0 {
		return 10
	}
	drift := (price - entryPrice) / entryPrice * 100
	if side == domain.SideShort {
		drift = -drift
	}
	switch {
	case drift >= 0:
		return 20
	case drift >= -1:
		return 10
	default:
		return 0
	}
}
