package review

import (
	"context"
	"fmt"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// Reviewer composes the hard-rule gate with the single LLM review (§4.4).
type Reviewer struct {
	gate *Gate
	llm  domain.Reviewer
	log  zerolog.Logger
}

// New builds a Reviewer.
func New(gate *Gate, llm domain.Reviewer, log zerolog.Logger) *Reviewer {
	return &Reviewer{gate: gate, llm: llm, log: log.With().Str("component", "reviewer").Logger()}
}

// Result bundles the composed outcome of both gates for the caller.
type Result struct {
	Approved bool
	Reason   string
	Outcomes []domain.RuleOutcome
	AI       *domain.ReviewResult
}

// Review runs the hard-rule gate, then (if it passes) the cheap-then-premium
// LLM review, producing a single composed Result (§4.4).
func (r *Reviewer) Review(ctx context.Context, c *domain.Candidate) Result {
	approved, outcomes, blockReason := r.gate.Evaluate(c)
	if !approved {
		return Result{Approved: false, Reason: blockReason, Outcomes: outcomes}
	}

	prompt := buildPrompt(c)

	ai, err := r.llm.ReviewSignal(ctx, prompt, true)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("cheap reviewer failed, falling back to premium")
		ai, err = r.llm.ReviewSignal(ctx, prompt, false)
	}
	if err != nil {
		r.log.Error().Err(err).Str("symbol", c.Symbol).Msg("both reviewers unavailable")
		return Result{Approved: false, Reason: "AI unavailable", Outcomes: outcomes}
	}

	if !ai.Approved {
		return Result{Approved: false, Reason: ai.Reasoning, Outcomes: outcomes, AI: ai}
	}

	return Result{Approved: true, Outcomes: outcomes, AI: ai}
}

func buildPrompt(c *domain.Candidate) string {
	base := fmt.Sprintf(
		"kind=%s symbol=%s side=%s score=%.3f price=%.6f rsi=%.2f adx=%.2f vol_ratio=%.2f atr_pct=%.2f funding=%.5f btc_trend=%s btc_change_1h=%.2f",
		c.Kind, c.Symbol, c.Side, c.Score, c.DetectedPrice, c.Metrics.RSI, c.Metrics.ADX, c.Metrics.VolumeRatio,
		c.Metrics.ATRPercent, c.Metrics.FundingRate, c.BTC.Trend, c.BTC.Change1h,
	)
	if c.CVD != nil {
		base += fmt.Sprintf(" cvd_strength=%.3f cvd_fake_breakout=%t", c.CVD.Strength, c.CVD.FakeBreakout)
	}
	if c.FundingZScore != nil {
		base += fmt.Sprintf(" funding_zscore=%.3f", *c.FundingZScore)
	}
	if c.Kind == domain.KindTrendAnticipation {
		if c.FDI != nil {
			base += fmt.Sprintf(" fdi=%.3f", *c.FDI)
		}
		if c.SmartMoney != nil {
			base += fmt.Sprintf(" smart_money=%s", *c.SmartMoney)
		}
	}
	return base + ". Respond as JSON {approved, confidence, side, reasoning}."
}
