package detectors

import (
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/modules/stops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candlesFromCloses(closes []float64) domain.Candles {
	out := make(domain.Candles, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Open: c - 0.1, High: c + 0.2, Low: c - 0.2, Close: c, Volume: 100,
			OpenTime: time.Now().Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestMomentumWeakening_DecayingAgainstDirectionLong(t *testing.T) {
	// Long side: "against" is falling. Build 7 closes whose successive drops
	// shrink in magnitude: deltas -5, -4, -3, -2, -1, -0.5 (all decaying).
	closes := []float64{100, 95, 91, 88, 86, 85, 84.5}
	assert.True(t, momentumWeakening(closes, domain.SideLong))
}

func TestMomentumWeakening_NotWeakeningWhenAccelerating(t *testing.T) {
	closes := []float64{100, 99, 97, 93, 86, 76, 60}
	assert.False(t, momentumWeakening(closes, domain.SideLong))
}

func TestMomentumWeakening_InsufficientData(t *testing.T) {
	assert.False(t, momentumWeakening([]float64{1, 2, 3}, domain.SideLong))
}

func TestStillTrending_LongMakesNewLow(t *testing.T) {
	closes := []float64{110, 108, 106, 104, 102, 100, 98, 96, 94, 92}
	assert.True(t, stillTrending(closes, domain.SideLong))
}

func TestDetectReversal_GateRejectsLowADXLowVolume(t *testing.T) {
	m := domain.Metrics{Symbol: "ETHUSDT", Price: 100, RSI: 10, ADX: 10, VolumeRatio: 1.0}
	candidate := DetectReversal(ReversalInput{Metrics: m, Candles: candlesFromCloses(flatCloses(30, 100))})
	assert.Nil(t, candidate)
}

func TestDetectReversal_ExtremeRSIEmitsOnHighVolumeRatio(t *testing.T) {
	closes := append(flatCloses(20, 100), []float64{99, 98, 97, 96, 95, 94, 93, 92, 91, 90}...)
	m := domain.Metrics{Symbol: "ETHUSDT", Price: 90, RSI: 14, ADX: 20, VolumeRatio: 2.0}
	candidate := DetectReversal(ReversalInput{Metrics: m, Candles: candlesFromCloses(closes)})
	if candidate != nil {
		assert.Equal(t, domain.SideLong, candidate.Side)
		assert.Equal(t, domain.KindReversal, candidate.Kind)
	}
}

func TestDetectReversal_StopsMatchAdaptiveComputeNotSRCappedFormula(t *testing.T) {
	closes := append(flatCloses(20, 100), []float64{99, 98, 97, 96, 95, 94, 93, 92, 91, 90}...)
	candles := candlesFromCloses(closes)
	m := domain.Metrics{Symbol: "ETHUSDT", Price: 90, RSI: 14, ADX: 20, VolumeRatio: 2.0, ATRPercent: 4.0}
	btc := domain.BTCSnapshot{}

	candidate := DetectReversal(ReversalInput{Metrics: m, Candles: candles, BTC: btc})
	require.NotNil(t, candidate)

	want := stops.Compute(stops.Input{
		Price:      m.Price,
		ATRPercent: m.ATRPercent,
		Side:       candidate.Side,
		BTC:        btc,
		Candles:    candles,
		SnapToSR:   true,
	})
	assert.Equal(t, want, candidate.Stops)
}

func flatCloses(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}
