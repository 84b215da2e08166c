package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI_InsufficientData(t *testing.T) {
	closes := []float64{1, 2, 3}
	assert.Nil(t, RSI(closes, 14))
}

func TestRSI_Computes(t *testing.T) {
	closes := make([]float64, 0, 30)
	price := 100.0
	for i := 0; i < 30; i++ {
		price += 1
		closes = append(closes, price)
	}
	rsi := RSI(closes, 14)
	require.NotNil(t, rsi)
	// Monotone rising series saturates RSI near 100.
	assert.Greater(t, *rsi, 90.0)
}

func TestVolumeRatio(t *testing.T) {
	volumes := []float64{10, 10, 10, 10, 30}
	ratio := VolumeRatio(volumes, 4)
	require.NotNil(t, ratio)
	assert.InDelta(t, 3.0, *ratio, 0.001)
}

func TestZScore(t *testing.T) {
	series := []float64{1, 1, 1, 1, 5}
	z := ZScore(series)
	require.NotNil(t, z)
	assert.Greater(t, *z, 1.5)
}

func TestEfficiencyRatio_TrendingVsChoppy(t *testing.T) {
	trending := []float64{100, 101, 102, 103, 104, 105}
	choppy := []float64{100, 105, 100, 105, 100, 105}

	erTrend := EfficiencyRatio(trending, 5)
	erChop := EfficiencyRatio(choppy, 5)
	require.NotNil(t, erTrend)
	require.NotNil(t, erChop)
	assert.Greater(t, *erTrend, *erChop)
}

func TestHurstExponent_InsufficientData(t *testing.T) {
	assert.Nil(t, HurstExponent(make([]float64, 5)))
}
