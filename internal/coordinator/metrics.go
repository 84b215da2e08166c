// Package coordinator owns the per-cycle orchestration that wires C1
// through C8 together: the market snapshot cache, both detectors, the
// deduplicator, the reviewer, the observation queue, the high-volatility
// pool, the position supervisor, and the order executor, plus the
// internal/store persistence calls and internal/events emissions that mark
// each lifecycle transition (§5, design note §9).
package coordinator

import (
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
)

func highsOf(c domain.Candles) []float64 {
	out := make([]float64, len(c))
	for i, k := range c {
		out[i] = k.High
	}
	return out
}

func lowsOf(c domain.Candles) []float64 {
	out := make([]float64, len(c))
	for i, k := range c {
		out[i] = k.Low
	}
	return out
}

// buildMetrics computes the once-per-cycle indicator bundle for one
// symbol's candle history, the venue 24h ticker, funding rate, order-book
// depth share, and open-interest change (§4.1, §4.2).
func buildMetrics(symbol string, candles domain.Candles, ticker *domain.Ticker, funding, obDepth, oiChange, momentum5m, momentum15m float64) domain.Metrics {
	closes := candles.Closes()
	highs := highsOf(candles)
	lows := lowsOf(candles)
	volumes := candles.Volumes()

	m := domain.Metrics{
		Symbol:            symbol,
		FundingRate:       funding,
		OrderBookBidShare: obDepth,
		OIChange:          oiChange,
		Momentum5m:        momentum5m,
		Momentum15m:       momentum15m,
	}
	if len(closes) > 0 {
		m.Price = closes[len(closes)-1]
	}
	if ticker != nil {
		m.Price = ticker.LastPrice
		m.Change24h = ticker.Change24h
		m.QuoteVolume24h = ticker.QuoteVolume24h
	}
	if rsi := indicators.RSI(closes, 14); rsi != nil {
		m.RSI = *rsi
	}
	if adx := indicators.ADX(highs, lows, closes, 14); adx != nil {
		m.ADX = *adx
	}
	if vr := indicators.VolumeRatio(volumes, 20); vr != nil {
		m.VolumeRatio = *vr
	}
	if bb := indicators.Bollinger(closes, 20, 2, 2); bb != nil {
		m.BBWidth = bb.Width
	}
	if atr := indicators.ATR(highs, lows, closes, 14); atr != nil {
		m.ATR = *atr
	}
	if atrPct := indicators.ATRPercent(highs, lows, closes, 14); atrPct != nil {
		m.ATRPercent = *atrPct
	}
	if macd := indicators.MACD(closes, 12, 26, 9); macd != nil {
		m.MACDHist = macd.Histogram
		m.MACDCrossUp = macd.Histogram > 0 && macd.MACD > macd.Signal
		m.MACDCrossDown = macd.Histogram < 0 && macd.MACD < macd.Signal
	}
	return m
}

func move5mPercent(candles domain.Candles) float64 {
	if len(candles) < 7 {
		return 0
	}
	closes := candles.Closes()
	last := closes[len(closes)-1]
	ref := closes[len(closes)-7]
	if ref == 0 {
		return 0
	}
	return (last - ref) / ref * 100
}
