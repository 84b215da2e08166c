package watcher

import (
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolatilityMultiplier_TrendAnticipationExcluded(t *testing.T) {
	assert.Equal(t, 1.0, VolatilityMultiplier(domain.KindTrendAnticipation, 10))
}

func TestVolatilityMultiplier_Buckets(t *testing.T) {
	assert.Equal(t, 0.8, VolatilityMultiplier(domain.KindReversal, 1.0))
	assert.Equal(t, 1.0, VolatilityMultiplier(domain.KindReversal, 2.0))
	assert.Equal(t, 1.5, VolatilityMultiplier(domain.KindReversal, 3.0))
	assert.Equal(t, 2.0, VolatilityMultiplier(domain.KindReversal, 5.0))
}

func TestEvaluateTiming_AbandonsOnAgainstMove(t *testing.T) {
	row := domain.ObservationRow{Kind: domain.KindReversal, Side: domain.SideLong, DetectedPrice: 100}
	snap := Snapshot{Price: 96, RSI: 40, ATRPercent: 2.0} // -4% against at normal vol mult 1.0, threshold 1.2
	decision, reason := EvaluateTiming(row, snap, false)
	assert.Equal(t, domain.TimingAbandon, decision)
	assert.NotEmpty(t, reason)
}

func TestEvaluateTiming_YesWhenWithinBand(t *testing.T) {
	row := domain.ObservationRow{Kind: domain.KindReversal, Side: domain.SideLong, DetectedPrice: 100}
	snap := Snapshot{Price: 100.2, RSI: 30, ATRPercent: 2.0}
	decision, _ := EvaluateTiming(row, snap, false)
	assert.Equal(t, domain.TimingYes, decision)
}

func TestEvaluateTiming_RSIRecoveryAbandonsLong(t *testing.T) {
	row := domain.ObservationRow{Kind: domain.KindReversal, Side: domain.SideLong, DetectedPrice: 100}
	snap := Snapshot{Price: 100, RSI: 60, ATRPercent: 2.0}
	decision, reason := EvaluateTiming(row, snap, false)
	assert.Equal(t, domain.TimingAbandon, decision)
	assert.Contains(t, reason, "recovery")
}

func TestIsExpired_BoundaryExactlyAtExpiry(t *testing.T) {
	now := time.Now()
	row := &domain.ObservationRow{CreatedAt: now.Add(-8 * time.Minute), ExpiryMinutes: 8}
	assert.False(t, IsExpired(row, now)) // exactly at boundary is not yet expired (strictly over)

	rowOver := &domain.ObservationRow{CreatedAt: now.Add(-8*time.Minute - time.Second), ExpiryMinutes: 8}
	assert.True(t, IsExpired(rowOver, now))
}

func TestQueue_InsertEnforcesUniquenessWindow(t *testing.T) {
	q := New(config.WatcherConfig{UniquenessWindowMinutes: 10, ExpiryMinutes: map[string]int{}})
	c := &domain.Candidate{Symbol: "ETHUSDT", Side: domain.SideLong, Kind: domain.KindReversal, Metrics: domain.Metrics{RSI: 18}}

	first := q.Insert(c, 1, nil)
	require.Equal(t, domain.ObsWatching, first.Status)

	second := q.Insert(c, 2, nil)
	assert.Equal(t, domain.ObsDuplicateSkipped, second.Status)
}

func TestQueue_ExpiryMinutesPerKind(t *testing.T) {
	q := New(config.WatcherConfig{ExpiryMinutes: map[string]int{"trend_anticipation": 8, "reversal_extreme": 5, "reversal_normal": 8}})

	extreme := &domain.Candidate{Symbol: "A", Side: domain.SideLong, Kind: domain.KindReversal, Metrics: domain.Metrics{RSI: 10}}
	row := q.Insert(extreme, 1, nil)
	assert.Equal(t, 5, row.ExpiryMinutes)

	normal := &domain.Candidate{Symbol: "B", Side: domain.SideLong, Kind: domain.KindReversal, Metrics: domain.Metrics{RSI: 19}}
	row2 := q.Insert(normal, 2, nil)
	assert.Equal(t, 8, row2.ExpiryMinutes)

	trend := &domain.Candidate{Symbol: "C", Side: domain.SideLong, Kind: domain.KindTrendAnticipation, Metrics: domain.Metrics{RSI: 20}}
	row3 := q.Insert(trend, 3, nil)
	assert.Equal(t, 8, row3.ExpiryMinutes)
}

func TestPricingOffset_ScalesWithDrift(t *testing.T) {
	assert.Equal(t, 0.3, PricingOffset(100, 100.2))
	assert.Equal(t, 0.5, PricingOffset(100, 100.9))
	assert.Equal(t, 0.8, PricingOffset(100, 102))
}
