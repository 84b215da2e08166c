package review

import (
	"testing"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseCandidate() *domain.Candidate {
	return &domain.Candidate{
		Symbol: "ETHUSDT",
		Side:   domain.SideLong,
		Kind:   domain.KindReversal,
		Score:  0.9,
		Metrics: domain.Metrics{
			RSI: 18, ADX: 25, VolumeRatio: 2.5, BBWidth: 2.0, ATRPercent: 1.0,
			FundingRate: 0.0001, OrderBookBidShare: 0.6, Change24h: 5, MACDCrossUp: true,
		},
		Stops: domain.AdaptiveStops{StopLossPercent: 3.0},
		BTC:   domain.BTCSnapshot{Change1h: 0.1},
	}
}

func defaultHardRuleConfig() config.HardRuleConfig {
	return config.HardRuleConfig{
		MinScoreReversal:          0.75,
		MinScoreTrendAnticipation: 0.75,
		MinVolumeRatioReversal:    2.0,
		MinVolumeRatioTrend:       1.0,
		Extreme24hMovePercent:     60,
		Elevated24hMovePercent:    40,
		ElevatedRequiredScore:     0.86,
		ElevatedRequiredVolRatio:  1.0,
		MaxFundingRateAbs:         0.01,
		MinOrderBookDepth:         0.40,
		MaxSlippageFractionOfSL:   0.60,
	}
}

func TestGate_ApprovesCleanCandidate(t *testing.T) {
	gate := NewGate(defaultHardRuleConfig())
	approved, outcomes, reason := gate.Evaluate(baseCandidate())
	require.True(t, approved, reason)
	assert.NotEmpty(t, outcomes)
}

func TestGate_BlocksOnExtreme24hMove(t *testing.T) {
	c := baseCandidate()
	c.Metrics.Change24h = 65
	gate := NewGate(defaultHardRuleConfig())
	approved, _, reason := gate.Evaluate(c)
	assert.False(t, approved)
	assert.Equal(t, "extreme_24h_move_exceeds_limit", reason)
}

func TestGate_BlocksOnInsufficientVolumeRatio(t *testing.T) {
	c := baseCandidate()
	c.Metrics.VolumeRatio = 1.0
	gate := NewGate(defaultHardRuleConfig())
	approved, _, reason := gate.Evaluate(c)
	assert.False(t, approved)
	assert.Contains(t, reason, "volume_ratio")
}

func TestGate_ElevatedMoveRaisesRequiredScore(t *testing.T) {
	c := baseCandidate()
	c.Metrics.Change24h = 45 // elevated but not extreme
	c.Score = 0.80           // above base min but below elevated-required 0.86
	gate := NewGate(defaultHardRuleConfig())
	approved, _, reason := gate.Evaluate(c)
	assert.False(t, approved)
	assert.Contains(t, reason, "score")
}

func TestGate_WarnSeverityDoesNotBlock(t *testing.T) {
	c := baseCandidate()
	c.Metrics.FundingRate = 0.05 // exceeds cap but funding rule is warn-severity
	gate := NewGate(defaultHardRuleConfig())
	approved, outcomes, _ := gate.Evaluate(c)
	assert.True(t, approved)

	found := false
	for _, o := range outcomes {
		if o.Rule == "funding_rate_cap" {
			found = true
			assert.False(t, o.Passed)
		}
	}
	assert.True(t, found)
}

func TestGate_RuleCanBeDisabled(t *testing.T) {
	c := baseCandidate()
	c.Metrics.Change24h = 65 // would block extreme_24h_move
	cfg := defaultHardRuleConfig()
	cfg.EnabledRules = map[string]bool{"extreme_24h_move": false}
	gate := NewGate(cfg)
	approved, _, reason := gate.Evaluate(c)
	assert.True(t, approved, reason)
}
