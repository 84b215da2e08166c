package coordinator

import (
	"context"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
	"github.com/kairoslabs/perpsentinel/internal/modules/position"
	"github.com/kairoslabs/perpsentinel/internal/store"
)

// Reconcile implements §4.7 step 1: on startup, adopt every venue position
// not already under supervision, recovering its SL/TP from the live algo
// orders when present.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	venuePositions, err := c.exchange.OpenPositions(ctx)
	if err != nil {
		return err
	}

	algoOrders := make(map[string][]domain.VenueOrder)
	for _, vp := range venuePositions {
		orders, err := c.exchange.OpenOrders(ctx, vp.Symbol)
		if err != nil {
			c.bus.EmitError("coordinator", err, map[string]interface{}{"symbol": vp.Symbol, "step": "reconcile_open_orders"})
			continue
		}
		algoOrders[vp.Symbol] = orders
	}

	adopted := c.supervisor.Reconcile(venuePositions, algoOrders, time.Now())
	for _, rec := range adopted {
		var ids domain.AlgoOrderIDs
		for _, order := range algoOrders[rec.Symbol] {
			switch order.Type {
			case "stop_loss":
				ids.SLID = order.OrderID
			case "take_profit":
				ids.TPID = order.OrderID
			}
		}
		c.executor.CacheAlgoOrders(rec.Symbol, ids)
		c.bus.Emit(events.PositionOpened, "position", map[string]interface{}{"symbol": rec.Symbol, "reconciled": true})
	}
	return nil
}

// supervisePositions implements C7's ordered per-tick algorithm (§4.7 steps
// 2-9) plus the C8 close-out hand-off once a position fully exits.
func (c *Coordinator) supervisePositions(ctx context.Context, btc domain.BTCSnapshot) error {
	now := time.Now()
	for _, symbol := range c.supervisor.Symbols() {
		rec, ok := c.supervisor.Get(symbol)
		if !ok {
			continue
		}
		if err := c.superviseOne(ctx, rec, btc, now); err != nil {
			c.bus.EmitError("coordinator", err, map[string]interface{}{"symbol": symbol, "step": "position_supervision"})
		}
	}
	return nil
}

func (c *Coordinator) superviseOne(ctx context.Context, rec *domain.PositionRecord, btc domain.BTCSnapshot, now time.Time) error {
	candles, err := c.exchange.Candles(ctx, rec.Symbol, "5m", 60)
	if err != nil || len(candles) < 20 {
		return err
	}
	ticker, err := c.exchange.Ticker24h(ctx, rec.Symbol)
	if err != nil || ticker == nil {
		return err
	}
	currentPrice := ticker.LastPrice
	pnlFraction := rec.PnLFraction(currentPrice)
	pnlPercent := pnlFraction * 100

	// Step 2: emergency flat takes priority over every other check.
	if position.EmergencyStopTriggered(pnlFraction, c.cfg.Position) {
		return c.closePosition(ctx, rec, currentPrice, pnlFraction, "emergency_stop", true)
	}

	// Step 3: SL verification, on its own cadence.
	if position.NeedsSLVerification(rec.LastMomentumCheckAt, now, c.cfg.Position) {
		if _, err := c.executor.UpdateStopLoss(ctx, rec.Symbol, rec.Side, rec.Contracts, rec.CurrentSL); err != nil {
			c.bus.Emit(events.StopLossUpdateFailed, "position", map[string]interface{}{"symbol": rec.Symbol, "error": err.Error()})
		} else {
			c.bus.Emit(events.StopLossUpdated, "position", map[string]interface{}{"symbol": rec.Symbol, "sl": rec.CurrentSL})
		}
		rec.LastMomentumCheckAt = now
	}

	closes := candles.Closes()

	// Step 4: tier table.
	if tier := position.EvaluateTiers(*rec, pnlPercent, c.cfg.Position.TierTable); tier.Advanced {
		c.applySLChange(ctx, rec, tier.NewSL)
		rec.CurrentTierIndex = tier.NewTierIndex
	}

	// Step 5: breakeven, only relevant when tiered stops are off.
	if newSL, fire := position.EvaluateBreakeven(*rec, pnlPercent, c.cfg.Position); fire {
		c.applySLChange(ctx, rec, newSL)
		rec.BreakevenSet = true
	}

	// Step 6: trailing stop.
	if newSL, newHighest, activated := position.EvaluateTrailing(*rec, currentPrice, c.cfg.Position); activated {
		if newSL != rec.CurrentSL {
			c.applySLChange(ctx, rec, newSL)
		}
		rec.HighestFavorablePrice = newHighest
		rec.TrailingActivated = true
	}

	// Step 7: dynamic take-profit, driven by momentum.
	momentum := momentumScore(closes)
	if adj := position.EvaluateDynamicTP(*rec, currentPrice, momentum); adj.Extended || adj.Tightened {
		rec.CurrentTP = adj.NewTP
		rec.TPExtended = rec.TPExtended || adj.Extended
		rec.TPTightened = rec.TPTightened || adj.Tightened
	}

	// Step 8: reversal exit.
	sig := position.ReversalSignal{}
	if rsi := indicators.RSI(closes, 14); rsi != nil {
		sig.RSI = *rsi
	}
	if macd := indicators.MACD(closes, 12, 26, 9); macd != nil {
		sig.MACDCrossUp = macd.Histogram > 0 && macd.MACD > macd.Signal
		sig.MACDCrossDown = macd.Histogram < 0 && macd.MACD < macd.Signal
	}
	if exit, reason := position.DetectReversalExit(*rec, sig); exit {
		return c.closePosition(ctx, rec, currentPrice, pnlFraction, reason, false)
	}

	// Step 9: periodic AI review.
	volRatio := 0.0
	if vr := indicators.VolumeRatio(candles.Volumes(), 20); vr != nil {
		volRatio = *vr
	}
	if position.ShouldReview(*rec, now, pnlPercent, btc.Change1h, volRatio, c.cfg.Position) {
		c.runPositionReview(ctx, rec, currentPrice, pnlPercent, btc, now)
	}

	return nil
}

func (c *Coordinator) applySLChange(ctx context.Context, rec *domain.PositionRecord, newSL float64) {
	if newSL <= 0 || newSL == rec.CurrentSL {
		return
	}
	if _, err := c.executor.UpdateStopLoss(ctx, rec.Symbol, rec.Side, rec.Contracts, newSL); err != nil {
		c.bus.Emit(events.StopLossUpdateFailed, "position", map[string]interface{}{"symbol": rec.Symbol, "error": err.Error()})
		return
	}
	rec.CurrentSL = newSL
	c.bus.Emit(events.StopLossUpdated, "position", map[string]interface{}{"symbol": rec.Symbol, "sl": newSL})
}

func (c *Coordinator) runPositionReview(ctx context.Context, rec *domain.PositionRecord, currentPrice, pnlPercent float64, btc domain.BTCSnapshot, now time.Time) {
	prompt := position.BuildReviewPrompt(*rec, currentPrice, pnlPercent, btc)
	result, err := c.reviewWithFallback(ctx, prompt)
	rec.LastAIReviewAt = now
	if err != nil {
		return
	}

	action, newSL := position.ApplyReviewAction(*rec, currentPrice, pnlPercent, result)
	switch action {
	case domain.ActionClose:
		_ = c.closePosition(ctx, rec, currentPrice, rec.PnLFraction(currentPrice), "ai_review_close", false)
	case domain.ActionTightenSL, domain.ActionBreakeven:
		if newSL != nil {
			c.applySLChange(ctx, rec, *newSL)
		}
	case domain.ActionExtendTP:
		if result.NewTPPrice != nil {
			rec.CurrentTP = *result.NewTPPrice
		}
	}
}

// closePosition implements C8's close-out: cancel the algo legs, market-close
// the position, persist the trade outcome, and drop it from supervision.
func (c *Coordinator) closePosition(ctx context.Context, rec *domain.PositionRecord, exitPrice, pnlFraction float64, reason string, emergency bool) error {
	if err := c.executor.HandleOppositeSide(ctx, rec.Symbol, rec.Side, rec.Contracts); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"symbol": rec.Symbol, "step": "close_position"})
		return err
	}
	c.executor.ClearAlgoOrders(rec.Symbol)
	c.supervisor.Close(rec.Symbol)
	c.executor.RecordTrade(time.Now(), pnlFraction*100)

	if tradeID, ok := c.tradeIDFor(rec.Symbol); ok {
		if err := store.CloseAutoTrade(c.stores.Signals, tradeID, exitPrice, pnlFraction); err != nil {
			c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "close_auto_trade"})
		}
		if err := store.InsertOutcome(c.stores.Signals, tradeID, reason, pnlFraction); err != nil {
			c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "insert_outcome"})
		}
		c.forgetTradeID(rec.Symbol)
	}

	if emergency {
		c.bus.Emit(events.EmergencyFlat, "position", map[string]interface{}{"symbol": rec.Symbol, "pnl_fraction": pnlFraction})
	}
	c.bus.Emit(events.PositionClosed, "position", map[string]interface{}{
		"symbol": rec.Symbol, "reason": reason, "pnl_fraction": pnlFraction, "exit_price": exitPrice,
	})
	return nil
}

// momentumScore maps the direction consistency of the last 3 close-to-close
// moves onto the 0-1 band EvaluateDynamicTP expects: the share of those moves
// that go the same way as the first. Sustained same-direction moves score
// high and chop scores low; the size of each move is not weighed, so a
// decelerating one-way run still scores 1.
func momentumScore(closes []float64) float64 {
	if len(closes) < 4 {
		return 0.5
	}
	recent := closes[len(closes)-4:]
	sameDirection := 0
	for i := 1; i < len(recent); i++ {
		if (recent[i] > recent[i-1]) == (recent[1] > recent[0]) {
			sameDirection++
		}
	}
	return float64(sameDirection) / float64(len(recent)-1)
}
