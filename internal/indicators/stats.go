package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ZScore returns how many standard deviations the latest value in series
// sits from the mean of the series, used for the funding-rate quality
// indicator (§4.4.2).
func ZScore(series []float64) *float64 {
	if len(series) < 3 {
		return nil
	}
	mean, std := stat.MeanStdDev(series, nil)
	if std == 0 {
		return nil
	}
	z := (series[len(series)-1] - mean) / std
	return &z
}

// Percentile returns the percentile rank (0-1) of the latest value within
// series, used for readiness-score normalization in the high-vol track.
func Percentile(series []float64) *float64 {
	if len(series) < 2 {
		return nil
	}
	sorted := append([]float64(nil), series...)
	// Sort a copy to leave caller's slice intact.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	target := series[len(series)-1]
	count := 0
	for _, v := range sorted {
		if v <= target {
			count++
		}
	}
	p := float64(count) / float64(len(sorted))
	return &p
}

// HurstExponent estimates the Hurst exponent of a price series via
// rescaled-range analysis, used to distinguish trending (H>0.5) from
// mean-reverting (H<0.5) regimes in the high-vol track's breakout-quality
// bundle (§4.6, glossary: "Hurst exponent").
func HurstExponent(closes []float64) *float64 {
	n := len(closes)
	if n < 20 {
		return nil
	}

	logReturns := make([]float64, n-1)
	for i := 1; i < n; i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return nil
		}
		logReturns[i-1] = math.Log(closes[i] / closes[i-1])
	}

	lags := []int{2, 4, 8, 16}
	var logLags, logRS []float64
	for _, lag := range lags {
		if lag >= len(logReturns) {
			continue
		}
		rs := rescaledRange(logReturns, lag)
		if rs <= 0 {
			continue
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logRS = append(logRS, math.Log(rs))
	}
	if len(logLags) < 2 {
		return nil
	}

	_, slope := stat.LinearRegression(logLags, logRS, nil, false)
	h := slope
	return &h
}

// rescaledRange computes the mean rescaled range over non-overlapping
// windows of the given lag length.
func rescaledRange(series []float64, lag int) float64 {
	var sumRS float64
	windows := 0
	for start := 0; start+lag <= len(series); start += lag {
		window := series[start : start+lag]
		mean := stat.Mean(window, nil)

		var cum, minCum, maxCum float64
		for i, v := range window {
			cum += v - mean
			if i == 0 || cum < minCum {
				minCum = cum
			}
			if i == 0 || cum > maxCum {
				maxCum = cum
			}
		}
		r := maxCum - minCum
		_, std := stat.MeanStdDev(window, nil)
		if std == 0 {
			continue
		}
		sumRS += r / std
		windows++
	}
	if windows == 0 {
		return 0
	}
	return sumRS / float64(windows)
}

// FractalDimensionIndex derives the fractal dimension index from the Hurst
// exponent (FDI = 2 - H), used alongside Hurst in the breakout-quality
// bundle to flag choppy, low-persistence moves (glossary: "FDI").
func FractalDimensionIndex(closes []float64) *float64 {
	h := HurstExponent(closes)
	if h == nil {
		return nil
	}
	fdi := 2 - *h
	return &fdi
}

// EfficiencyRatio is Kaufman's Efficiency Ratio: net directional move over
// the sum of absolute bar-to-bar moves across the window, used to separate
// genuine breakouts from chop (§4.6).
func EfficiencyRatio(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}
	window := closes[len(closes)-length-1:]
	netMove := math.Abs(window[len(window)-1] - window[0])

	var pathLength float64
	for i := 1; i < len(window); i++ {
		pathLength += math.Abs(window[i] - window[i-1])
	}
	if pathLength == 0 {
		return nil
	}
	er := netMove / pathLength
	return &er
}
