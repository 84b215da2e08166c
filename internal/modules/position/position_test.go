package position

import (
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tierTable() []config.TierEntry {
	return []config.TierEntry{
		{TriggerPercent: 1.0, LockPercent: 0.2},
		{TriggerPercent: 2.0, LockPercent: 0.8},
		{TriggerPercent: 4.0, LockPercent: 2.0},
	}
}

func TestEvaluateTiers_AdvancesToHighestClearedTier(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, CurrentTierIndex: -1}
	res := EvaluateTiers(pos, 2.5, tierTable())
	assert.Equal(t, 1, res.NewTierIndex)
	assert.InDelta(t, 100.8, res.NewSL, 0.001)
	assert.True(t, res.Advanced)
}

func TestEvaluateTiers_NeverRegresses(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, CurrentTierIndex: 2, CurrentSL: 102}
	res := EvaluateTiers(pos, 1.5, tierTable()) // would only clear tier 0 now
	assert.Equal(t, 2, res.NewTierIndex)
	assert.Equal(t, 102.0, res.NewSL)
	assert.False(t, res.Advanced)
}

func TestEvaluateTiers_ShortLocksBelowEntry(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideShort, EntryPrice: 100, CurrentTierIndex: -1}
	res := EvaluateTiers(pos, 1.5, tierTable())
	assert.Equal(t, 0, res.NewTierIndex)
	assert.InDelta(t, 99.8, res.NewSL, 0.001)
}

func TestEvaluateBreakeven_FiresOnceAboveTrigger(t *testing.T) {
	cfg := config.PositionConfig{BreakevenTriggerPercent: 1.0, BreakevenBufferPercent: 0.1}
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100}
	sl, fire := EvaluateBreakeven(pos, 1.5, cfg)
	assert.True(t, fire)
	assert.InDelta(t, 100.1, sl, 0.001)
}

func TestEvaluateBreakeven_SkippedWhenTieredEnabled(t *testing.T) {
	cfg := config.PositionConfig{TieredStopEnabled: true, BreakevenTriggerPercent: 1.0}
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100}
	_, fire := EvaluateBreakeven(pos, 5, cfg)
	assert.False(t, fire)
}

func TestEvaluateBreakeven_SkippedOnceAlreadySet(t *testing.T) {
	cfg := config.PositionConfig{BreakevenTriggerPercent: 1.0}
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, BreakevenSet: true}
	_, fire := EvaluateBreakeven(pos, 5, cfg)
	assert.False(t, fire)
}

func TestEvaluateTrailing_RisesOnlyNeverFalls(t *testing.T) {
	cfg := config.PositionConfig{TrailingDistancePercent: 1.0}
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, HighestFavorablePrice: 110, CurrentSL: 108.9, TrailingActivated: true}
	sl, highest, activated := EvaluateTrailing(pos, 105, cfg) // price pulled back, highest unchanged
	assert.True(t, activated)
	assert.Equal(t, 110.0, highest)
	assert.Equal(t, 108.9, sl) // unchanged, never retreats
}

func TestEvaluateTrailing_AdvancesWithNewHigh(t *testing.T) {
	cfg := config.PositionConfig{TrailingDistancePercent: 1.0}
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, HighestFavorablePrice: 110, CurrentSL: 108.9, TrailingActivated: true}
	sl, highest, _ := EvaluateTrailing(pos, 120, cfg)
	assert.Equal(t, 120.0, highest)
	assert.InDelta(t, 118.8, sl, 0.001)
}

func TestEvaluateDynamicTP_ExtendsOnStrongMomentum(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, CurrentTP: 110}
	adj := EvaluateDynamicTP(pos, 105, 0.8)
	assert.True(t, adj.Extended)
	assert.InDelta(t, 111.5, adj.NewTP, 0.001)
}

func TestEvaluateDynamicTP_TightensOnStalledMomentum(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, CurrentTP: 110}
	adj := EvaluateDynamicTP(pos, 105, 0.1)
	assert.True(t, adj.Tightened)
	assert.InDelta(t, 106.05, adj.NewTP, 0.001)
}

func TestEvaluateDynamicTP_SkipsOnceAlreadyExtended(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100, CurrentTP: 110, TPExtended: true}
	adj := EvaluateDynamicTP(pos, 105, 0.9)
	assert.False(t, adj.Extended)
	assert.Equal(t, 110.0, adj.NewTP)
}

func TestDetectReversalExit_LongExtremeRSI(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong}
	exit, reason := DetectReversalExit(pos, ReversalSignal{RSI: 80})
	assert.True(t, exit)
	assert.Equal(t, "rsi_extreme_overbought", reason)
}

func TestDetectReversalExit_ShortMACDCrossOpposite(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideShort}
	exit, reason := DetectReversalExit(pos, ReversalSignal{RSI: 50, MACDCrossUp: true})
	assert.True(t, exit)
	assert.Equal(t, "macd_cross_against_short", reason)
}

func TestDetectReversalExit_HoldsOnNeutralSignal(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong}
	exit, _ := DetectReversalExit(pos, ReversalSignal{RSI: 50})
	assert.False(t, exit)
}

func TestShouldReview_RespectsIntervalThrottle(t *testing.T) {
	cfg := config.PositionConfig{ReviewIntervalSeconds: 300, MinHoldingMinutes: 10}
	now := time.Now()
	pos := domain.PositionRecord{OpenedAt: now.Add(-20 * time.Minute), LastAIReviewAt: now.Add(-30 * time.Second)}
	assert.False(t, ShouldReview(pos, now, 0, 0, 1, cfg))
}

func TestShouldReview_FiresWhenHeldLongEnough(t *testing.T) {
	cfg := config.PositionConfig{ReviewIntervalSeconds: 300, MinHoldingMinutes: 10}
	now := time.Now()
	pos := domain.PositionRecord{OpenedAt: now.Add(-20 * time.Minute)}
	assert.True(t, ShouldReview(pos, now, 0, 0, 1, cfg))
}

func TestShouldReview_FiresOnVolumeSpike(t *testing.T) {
	cfg := config.PositionConfig{ReviewIntervalSeconds: 300, MinHoldingMinutes: 10}
	now := time.Now()
	pos := domain.PositionRecord{OpenedAt: now.Add(-20 * time.Minute), LastAIReviewAt: now.Add(-200 * time.Second)}
	assert.True(t, ShouldReview(pos, now, 10, 0, 3.0, cfg)) // PnL well outside the awkward band; volume spike is the trigger
}

func TestShouldReview_WithholdsUntilMinimumHoldingTimeRegardlessOfVolumeSpike(t *testing.T) {
	cfg := config.PositionConfig{ReviewIntervalSeconds: 300, MinHoldingMinutes: 30}
	now := time.Now()
	pos := domain.PositionRecord{OpenedAt: now.Add(-1 * time.Minute)}
	assert.False(t, ShouldReview(pos, now, 0, 0, 3.0, cfg))
}

func TestShouldReview_FiresOnFirstReviewEvenOutsideAwkwardBand(t *testing.T) {
	cfg := config.PositionConfig{ReviewIntervalSeconds: 300, MinHoldingMinutes: 10}
	now := time.Now()
	pos := domain.PositionRecord{OpenedAt: now.Add(-20 * time.Minute)}
	assert.True(t, ShouldReview(pos, now, 10, 0, 1.0, cfg))
}

func TestShouldReview_WithholdsWhenNoTriggerConditionHolds(t *testing.T) {
	cfg := config.PositionConfig{ReviewIntervalSeconds: 300, MinHoldingMinutes: 10}
	now := time.Now()
	pos := domain.PositionRecord{OpenedAt: now.Add(-20 * time.Minute), LastAIReviewAt: now.Add(-200 * time.Second)}
	assert.False(t, ShouldReview(pos, now, 10, 0, 1.0, cfg)) // PnL outside band, BTC flat, volume normal, periodic interval not yet elapsed
}

func TestApplyReviewAction_CloseDowngradesToTightenSL(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100}
	action, sl := ApplyReviewAction(pos, 105, 5, &domain.ReviewResult{Action: domain.ActionClose})
	assert.Equal(t, domain.ActionTightenSL, action)
	require.NotNil(t, sl)
	assert.InDelta(t, 104.685, *sl, 0.001)
}

func TestApplyReviewAction_BreakevenRejectedBelowProfitFloor(t *testing.T) {
	pos := domain.PositionRecord{Side: domain.SideLong, EntryPrice: 100}
	action, _ := ApplyReviewAction(pos, 100.5, 0.5, &domain.ReviewResult{Action: domain.ActionBreakeven})
	assert.Equal(t, domain.ActionHold, action)
}

func TestSupervisor_ReconcileAdoptsUntrackedVenuePositions(t *testing.T) {
	s := New(config.PositionConfig{})
	venuePositions := []domain.VenuePosition{{Symbol: "ETHUSDT", Side: domain.SideLong, Quantity: 1, EntryPrice: 2000}}
	algoOrders := map[string][]domain.VenueOrder{
		"ETHUSDT": {{Type: "stop_loss", Price: 1950}, {Type: "take_profit", Price: 2100}},
	}
	adopted := s.Reconcile(venuePositions, algoOrders, time.Now())
	require.Len(t, adopted, 1)
	assert.Equal(t, 1950.0, adopted[0].CurrentSL)
	assert.Equal(t, 2100.0, adopted[0].CurrentTP)
	assert.Equal(t, domain.StrategySynced, adopted[0].Strategy)
}

func TestSupervisor_ReconcileDefaultsStopsWhenNoAlgoOrder(t *testing.T) {
	s := New(config.PositionConfig{})
	venuePositions := []domain.VenuePosition{{Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 1, EntryPrice: 50000}}
	adopted := s.Reconcile(venuePositions, map[string][]domain.VenueOrder{}, time.Now())
	require.Len(t, adopted, 1)
	assert.InDelta(t, 49000, adopted[0].CurrentSL, 0.01)
	assert.InDelta(t, 53000, adopted[0].CurrentTP, 0.01)
}

func TestSupervisor_ReconcileSkipsAlreadyTracked(t *testing.T) {
	s := New(config.PositionConfig{})
	s.Adopt(&domain.PositionRecord{Symbol: "ETHUSDT"})
	adopted := s.Reconcile([]domain.VenuePosition{{Symbol: "ETHUSDT"}}, nil, time.Now())
	assert.Len(t, adopted, 0)
}

func TestSupervisor_AtMostOneRecordPerSymbol(t *testing.T) {
	s := New(config.PositionConfig{})
	s.Adopt(&domain.PositionRecord{Symbol: "ETHUSDT", EntryPrice: 1})
	s.Adopt(&domain.PositionRecord{Symbol: "ETHUSDT", EntryPrice: 2})
	assert.Equal(t, 1, s.Len())
	rec, ok := s.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 2.0, rec.EntryPrice)
}

func TestEmergencyStopTriggered_BreachesDefaultThreshold(t *testing.T) {
	assert.True(t, EmergencyStopTriggered(-0.025, config.PositionConfig{}))
	assert.False(t, EmergencyStopTriggered(-0.01, config.PositionConfig{}))
}

func TestNeedsSLVerification_DueAfterInterval(t *testing.T) {
	cfg := config.PositionConfig{StopVerifySeconds: 60}
	now := time.Now()
	assert.True(t, NeedsSLVerification(time.Time{}, now, cfg))
	assert.False(t, NeedsSLVerification(now.Add(-30*time.Second), now, cfg))
	assert.True(t, NeedsSLVerification(now.Add(-61*time.Second), now, cfg))
}
