package dedup

import (
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		CooldownMinutes:       30,
		EmitOnOppositeSide:    true,
		ScoreImprovementDelta: 0.05,
		KindPriority:          []string{"trend_anticipation", "reversal", "trend_explosion", "trend_continuation"},
	}
}

func TestShouldEmit_NoPriorRecordEmits(t *testing.T) {
	d := New(testConfig())
	emit, reason := d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)
	assert.True(t, emit)
	assert.Equal(t, "no_prior_record", reason)
}

func TestShouldEmit_SuppressesWithinCooldownSameScore(t *testing.T) {
	d := New(testConfig())
	_, _ = d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)

	emit, reason := d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.81, domain.SideLong)
	assert.False(t, emit)
	assert.Equal(t, "suppressed_within_cooldown", reason)
}

func TestShouldEmit_OppositeSideEmits(t *testing.T) {
	d := New(testConfig())
	_, _ = d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)

	emit, reason := d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideShort)
	assert.True(t, emit)
	assert.Equal(t, "opposite_side", reason)
}

func TestShouldEmit_HigherPriorityKindEmits(t *testing.T) {
	d := New(testConfig())
	_, _ = d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)

	emit, reason := d.ShouldEmit("ETHUSDT", domain.KindTrendAnticipation, 0.6, domain.SideLong)
	assert.True(t, emit)
	assert.Equal(t, "higher_priority_kind", reason)
}

func TestShouldEmit_ScoreImprovementEmits(t *testing.T) {
	d := New(testConfig())
	_, _ = d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)

	emit, reason := d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.86, domain.SideLong)
	assert.True(t, emit)
	assert.Equal(t, "score_improvement", reason)
}

func TestShouldEmit_LazyEvictionAfterDoubleCooldown(t *testing.T) {
	d := New(testConfig())
	_, _ = d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)

	d.mu.Lock()
	rec := d.records["ETHUSDT"]
	rec.Timestamp = time.Now().Add(-61 * time.Minute) // > 2x30min cooldown
	d.records["ETHUSDT"] = rec
	d.mu.Unlock()

	emit, reason := d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.5, domain.SideLong)
	assert.True(t, emit)
	assert.Equal(t, "no_prior_record", reason)
}

func TestShouldEmit_IdempotentDoubleCallSameArgsSuppressesSecond(t *testing.T) {
	d := New(testConfig())
	first, _ := d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)
	require.True(t, first)

	second, _ := d.ShouldEmit("ETHUSDT", domain.KindReversal, 0.8, domain.SideLong)
	assert.False(t, second)
}
