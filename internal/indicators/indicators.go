// Package indicators wraps go-talib pure functions for the technical
// readings threaded through the detectors, the hard-rule gate, and the
// adaptive-stop sizing function. Every function returns nil on
// insufficient data rather than panicking or returning a zero value that
// could be mistaken for a real reading.
package indicators

import (
	"github.com/markcheno/go-talib"
)

func isNaN(f float64) bool {
	return f != f
}

func last(series []float64) *float64 {
	if len(series) == 0 || isNaN(series[len(series)-1]) {
		return nil
	}
	v := series[len(series)-1]
	return &v
}

// RSI returns the current Relative Strength Index over length periods.
func RSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}
	return last(talib.Rsi(closes, length))
}

// ADX returns the current Average Directional Index over length periods.
func ADX(highs, lows, closes []float64, length int) *float64 {
	if len(closes) < length*2 {
		return nil
	}
	return last(talib.Adx(highs, lows, closes, length))
}

// MACDResult bundles the three MACD series' latest values.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD returns the latest (macd, signal, histogram) triple, or nil if there
// isn't enough history for the slow EMA plus the signal smoothing to settle.
func MACD(closes []float64, fast, slow, signal int) *MACDResult {
	if len(closes) < slow+signal {
		return nil
	}
	macd, sig, hist := talib.Macd(closes, fast, slow, signal)
	m, s, h := last(macd), last(sig), last(hist)
	if m == nil || s == nil || h == nil {
		return nil
	}
	return &MACDResult{MACD: *m, Signal: *s, Histogram: *h}
}

// BollingerResult bundles the latest Bollinger Band reading.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64 // (upper-lower)/middle, a volatility-squeeze proxy
}

// Bollinger returns the latest Bollinger Band reading over length periods
// at devUp/devDown standard deviations.
func Bollinger(closes []float64, length int, devUp, devDown float64) *BollingerResult {
	if len(closes) < length {
		return nil
	}
	upper, middle, lower := talib.BBands(closes, length, devUp, devDown, talib.SMA)
	u, m, l := last(upper), last(middle), last(lower)
	if u == nil || m == nil || l == nil || *m == 0 {
		return nil
	}
	return &BollingerResult{Upper: *u, Middle: *m, Lower: *l, Width: (*u - *l) / *m}
}

// ATR returns the current Average True Range over length periods.
func ATR(highs, lows, closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}
	return last(talib.Atr(highs, lows, closes, length))
}

// ATRPercent returns ATR expressed as a percentage of the latest close.
func ATRPercent(highs, lows, closes []float64, length int) *float64 {
	atr := ATR(highs, lows, closes, length)
	if atr == nil || len(closes) == 0 || closes[len(closes)-1] == 0 {
		return nil
	}
	pct := *atr / closes[len(closes)-1] * 100
	return &pct
}

// VolumeRatio compares the latest volume to the mean of the preceding
// lookback volumes, used by both detectors as a participation filter.
func VolumeRatio(volumes []float64, lookback int) *float64 {
	if len(volumes) < lookback+1 {
		return nil
	}
	window := volumes[len(volumes)-1-lookback : len(volumes)-1]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))
	if mean == 0 {
		return nil
	}
	ratio := volumes[len(volumes)-1] / mean
	return &ratio
}
