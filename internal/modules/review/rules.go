// Package review implements the AI Reviewer (C4): a deterministic
// hard-rule gate followed by a single LLM review (§4.4).
package review

import (
	"fmt"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// Rule is a named, independently toggleable predicate over a Candidate.
type Rule struct {
	Name     string
	Category string
	Severity domain.RuleSeverity
	Check    func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string)
}

// Gate evaluates the minimum hard-rule set (§4.4.1).
type Gate struct {
	cfg   config.HardRuleConfig
	rules []Rule
}

// NewGate builds a Gate with the full minimum rule set from config.
func NewGate(cfg config.HardRuleConfig) *Gate {
	return &Gate{cfg: cfg, rules: defaultRules()}
}

// Evaluate runs every enabled rule in order. The first block-severity miss
// short-circuits with its reason; warn misses accumulate alongside a pass.
func (g *Gate) Evaluate(c *domain.Candidate) (approved bool, outcomes []domain.RuleOutcome, blockReason string) {
	for _, rule := range g.rules {
		if enabled, ok := g.cfg.EnabledRules[rule.Name]; ok && !enabled {
			continue
		}
		passed, reason := rule.Check(c, g.cfg)
		outcome := domain.RuleOutcome{Rule: rule.Name, Category: rule.Category, Severity: rule.Severity, Passed: passed, Reason: reason}
		outcomes = append(outcomes, outcome)

		if !passed && rule.Severity == domain.SeverityBlock {
			return false, outcomes, reason
		}
	}
	return true, outcomes, ""
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name: "rsi_band", Category: "signal_quality", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if c.Kind != domain.KindReversal {
					return true, ""
				}
				if c.Side == domain.SideLong && c.Metrics.RSI <= 20 {
					return true, ""
				}
				if c.Side == domain.SideShort && c.Metrics.RSI >= 80 {
					return true, ""
				}
				return false, "rsi_not_in_reversal_band"
			},
		},
		{
			Name: "min_score", Category: "signal_quality", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				required := cfg.MinScoreReversal
				if c.Kind == domain.KindTrendAnticipation {
					required = cfg.MinScoreTrendAnticipation
				}
				if absChange24h(c) > cfg.Elevated24hMovePercent {
					if cfg.ElevatedRequiredScore > required {
						required = cfg.ElevatedRequiredScore
					}
				}
				if c.Score < required {
					return false, fmt.Sprintf("score_%.3f_below_required_%.3f", c.Score, required)
				}
				return true, ""
			},
		},
		{
			Name: "min_volume_ratio", Category: "liquidity", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				required := cfg.MinVolumeRatioReversal
				if c.Kind == domain.KindTrendAnticipation {
					required = cfg.MinVolumeRatioTrend
				}
				if absChange24h(c) > cfg.Elevated24hMovePercent && cfg.ElevatedRequiredVolRatio > required {
					required = cfg.ElevatedRequiredVolRatio
				}
				if c.Metrics.VolumeRatio < required {
					return false, fmt.Sprintf("volume_ratio_%.2f_below_required_%.2f", c.Metrics.VolumeRatio, required)
				}
				return true, ""
			},
		},
		{
			Name: "extreme_24h_move", Category: "volatility", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if absChange24h(c) > cfg.Extreme24hMovePercent {
					return false, "extreme_24h_move_exceeds_limit"
				}
				return true, ""
			},
		},
		{
			Name: "adx_dead_zone", Category: "momentum", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if c.Metrics.ADX < 15 && c.Metrics.VolumeRatio < 1.2 {
					return false, "adx_dead_zone_low_volume"
				}
				return true, ""
			},
		},
		{
			Name: "adx_trend_exhaustion", Category: "momentum", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if c.Metrics.ADX >= 40 && c.Metrics.BBWidth < 1.5 && c.Metrics.VolumeRatio < 1.2 {
					return false, "trend_exhaustion_narrow_bb_low_volume"
				}
				return true, ""
			},
		},
		{
			Name: "bollinger_squeeze_trap", Category: "volatility", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if c.Metrics.BBWidth < 0.01 && c.Metrics.VolumeRatio < 1.5 {
					return false, "squeeze_trap_insufficient_volume"
				}
				return true, ""
			},
		},
		{
			Name: "reversal_confirmation", Category: "signal_quality", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if c.Kind != domain.KindReversal {
					return true, ""
				}
				macdMatch := (c.Side == domain.SideLong && c.Metrics.MACDCrossUp) || (c.Side == domain.SideShort && c.Metrics.MACDCrossDown)
				divergenceMatch := c.CVD != nil && c.CVD.Divergent && c.CVD.DivergencePolarity == c.Side
				extremeVolConfirm := (c.Metrics.RSI <= 15 || c.Metrics.RSI >= 85) && c.Metrics.VolumeRatio >= 3
				if macdMatch || divergenceMatch || extremeVolConfirm {
					return true, ""
				}
				return false, "no_reversal_confirmation"
			},
		},
		{
			Name: "sl_sanity_vs_atr", Category: "risk", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				required := 1.5 * c.Metrics.ATRPercent
				if c.Metrics.BBWidth < 1.5 || c.Metrics.OrderBookBidShare < 0.4 {
					required *= 1.3
				}
				if c.Stops.StopLossPercent < required {
					return false, fmt.Sprintf("sl_pct_%.2f_below_atr_floor_%.2f", c.Stops.StopLossPercent, required)
				}
				return true, ""
			},
		},
		{
			Name: "funding_rate_cap", Category: "risk", Severity: domain.SeverityWarn,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if absF(c.Metrics.FundingRate) > cfg.MaxFundingRateAbs {
					return false, "funding_rate_exceeds_cap"
				}
				return true, ""
			},
		},
		{
			Name: "order_book_depth_floor", Category: "liquidity", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if c.Metrics.OrderBookBidShare < cfg.MinOrderBookDepth {
					return false, "order_book_depth_below_floor"
				}
				return true, ""
			},
		},
		{
			Name: "estimated_slippage", Category: "execution", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				estimatedSlippagePct := (1 - c.Metrics.OrderBookBidShare) * c.Metrics.ATRPercent
				if c.Stops.StopLossPercent == 0 {
					return true, ""
				}
				if estimatedSlippagePct/c.Stops.StopLossPercent > cfg.MaxSlippageFractionOfSL {
					return false, "estimated_slippage_exceeds_fraction_of_sl"
				}
				return true, ""
			},
		},
		{
			Name: "trend_anticipation_specific", Category: "signal_quality", Severity: domain.SeverityBlock,
			Check: func(c *domain.Candidate, cfg config.HardRuleConfig) (bool, string) {
				if c.Kind != domain.KindTrendAnticipation {
					return true, ""
				}
				if c.FDI != nil && *c.FDI >= 1.45 {
					return false, "fdi_too_high_for_trend_anticipation"
				}
				if c.Side == domain.SideLong && c.BTC.Change1h < -1 {
					return false, "btc_direction_against_long"
				}
				if c.Side == domain.SideShort && c.BTC.Change1h > 1 {
					return false, "btc_direction_against_short"
				}
				if c.Metrics.VolumeRatio < 1.0 {
					return false, "volume_floor_not_met"
				}
				if c.Metrics.BBWidth >= 2.5 {
					return false, "bb_squeeze_floor_not_met"
				}
				return true, ""
			},
		},
	}
}

func absChange24h(c *domain.Candidate) float64 {
	return absF(c.Metrics.Change24h)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
