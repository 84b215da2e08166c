package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
	"github.com/kairoslabs/perpsentinel/internal/modules/watcher"
	"github.com/kairoslabs/perpsentinel/internal/store"
)

// tickWatcher implements C5's per-tick algorithm (§4.5): expire stale rows,
// re-check the ones due, and hand the ones that clear timing to the final
// pricing LLM, placing the order on EXECUTE_* and abandoning on ABANDON.
func (c *Coordinator) tickWatcher(ctx context.Context, btc domain.BTCSnapshot) error {
	now := time.Now()

	for _, row := range c.watchQ.Rows() {
		if watcher.IsExpired(&row, now) {
			c.watchQ.MarkExpired(row.ID)
			c.persistWatchTransition(row.ID, domain.ObsExpired, "")
			c.bus.Emit(events.ObservationExpired, "watcher", map[string]interface{}{"symbol": row.Symbol})
		}
	}

	for _, row := range c.watchQ.EligibleRows(now) {
		snap, ok := c.buildWatcherSnapshot(ctx, row, btc)
		if !ok {
			c.watchQ.MarkWait(row.ID, now)
			continue
		}

		extreme := row.DetectedRSI <= 15 || row.DetectedRSI >= 85
		decision, reason := watcher.EvaluateTiming(*row, snap, extreme)
		if decision == domain.TimingAbandon {
			c.watchQ.MarkAbandoned(row.ID, reason)
			c.persistWatchTransition(row.ID, domain.ObsAbandoned, reason)
			c.bus.Emit(events.ObservationAbandoned, "watcher", map[string]interface{}{"symbol": row.Symbol, "reason": reason})
			continue
		}

		c.watchQ.MarkWait(row.ID, now)
		if decision != domain.TimingYes {
			continue
		}

		if err := c.priceAndExecuteWatchRow(ctx, row, snap, btc); err != nil {
			c.bus.EmitError("coordinator", err, map[string]interface{}{"symbol": row.Symbol, "step": "watcher_pricing"})
		}
	}
	return nil
}

func (c *Coordinator) persistWatchTransition(rowID int64, status domain.ObservationStatus, reason string) {
	dbID, ok := c.watchDBIDFor(rowID)
	if !ok {
		return
	}
	if err := store.UpdateWatchSignalStatus(c.stores.WatchSignals, dbID, status, reason); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "update_watch_signal_status"})
	}
}

// buildWatcherSnapshot fetches a fresh read for one row's symbol. Fetch
// failure reports ok=false so the caller waits rather than acting on stale
// data (§4.5 step 1 "full realtime snapshot").
func (c *Coordinator) buildWatcherSnapshot(ctx context.Context, row *domain.ObservationRow, btc domain.BTCSnapshot) (watcher.Snapshot, bool) {
	candles, err := c.exchange.Candles(ctx, row.Symbol, "5m", 60)
	if err != nil || len(candles) < 20 {
		return watcher.Snapshot{}, false
	}
	closes := candles.Closes()
	highs := highsOf(candles)
	lows := lowsOf(candles)

	snap := watcher.Snapshot{
		Price:        closes[len(closes)-1],
		BTC5BarTrend: btc.Change1h,
	}
	if rsi := indicators.RSI(closes, 14); rsi != nil {
		snap.RSI = *rsi
	}
	if vr := indicators.VolumeRatio(candles.Volumes(), 20); vr != nil {
		snap.VolumeRatio = *vr
	}
	if atrPct := indicators.ATRPercent(highs, lows, closes, 14); atrPct != nil {
		snap.ATRPercent = *atrPct
	}
	if adx := indicators.ADX(highs, lows, closes, 14); adx != nil {
		snap.ADX = *adx
	}
	if macd := indicators.MACD(closes, 12, 26, 9); macd != nil {
		snap.MACDCrossUp = macd.Histogram > 0 && macd.MACD > macd.Signal
		snap.MACDCrossDown = macd.Histogram < 0 && macd.MACD < macd.Signal
	}
	if depth, err := c.exchange.OrderBookDepth(ctx, row.Symbol); err == nil {
		snap.OrderBookBidShare = depth
	}
	return snap, true
}

func buildWatcherPricingPrompt(row *domain.ObservationRow, snap watcher.Snapshot, btc domain.BTCSnapshot) string {
	offset := watcher.PricingOffset(row.DetectedPrice, snap.Price)
	return fmt.Sprintf(
		"track=watcher symbol=%s side=%s kind=%s detected_price=%.6f current_price=%.6f rsi=%.1f adx=%.1f "+
			"vol_ratio=%.2f atr_pct=%.2f suggested_offset_pct=%.2f btc_trend=%s btc_change_1h=%.2f\n"+
			"Respond with JSON: {\"decision\": \"EXECUTE_LIMIT\"|\"EXECUTE_MARKET\"|\"ABANDON\", "+
			"\"entry\": number, \"sl\": number, \"tp\": number, \"confidence\": number 0-1, \"reasoning\": string}.",
		row.Symbol, row.Side, row.Kind, row.DetectedPrice, snap.Price, snap.RSI, snap.ADX,
		snap.VolumeRatio, snap.ATRPercent, offset, btc.Trend, btc.Change1h,
	)
}

// priceAndExecuteWatchRow implements §4.5 steps 4-6: ask the final pricing
// LLM, then place (or abandon) the order.
func (c *Coordinator) priceAndExecuteWatchRow(ctx context.Context, row *domain.ObservationRow, snap watcher.Snapshot, btc domain.BTCSnapshot) error {
	prompt := buildWatcherPricingPrompt(row, snap, btc)
	ai, err := c.reviewWithFallback(ctx, prompt)
	if err != nil {
		return nil // stays watching; tried again next eligible tick
	}

	if ai.Decision == domain.DecisionAbandon || ai.Decision == "" {
		c.watchQ.MarkAbandoned(row.ID, "ai_pricing_abandon")
		c.persistWatchTransition(row.ID, domain.ObsAbandoned, "ai_pricing_abandon")
		c.bus.Emit(events.ObservationAbandoned, "watcher", map[string]interface{}{"symbol": row.Symbol, "reason": "ai_pricing_abandon"})
		return nil
	}

	entry, sl, tp := ai.Entry, ai.SL, ai.TP
	if entry == 0 {
		entry = snap.Price
	}
	if sl == 0 {
		sl = row.InitialSL
	}
	if tp == 0 {
		tp = row.InitialTP
	}

	prec, err := c.exchange.SymbolPrecision(ctx, row.Symbol)
	if err != nil {
		return fmt.Errorf("symbol precision: %w", err)
	}
	quantity := 0.0
	if entry > 0 {
		quantity = c.cfg.HighVol.MinPositionUSDT / entry // conservative default sizing for watcher-originated entries
	}
	rounded := roundOrSkip(row.Symbol, entry, quantity, *prec)
	if rounded.Skip {
		c.watchQ.MarkAbandoned(row.ID, rounded.SkipReason)
		c.persistWatchTransition(row.ID, domain.ObsAbandoned, rounded.SkipReason)
		return nil
	}

	if c.isObserveOnly() {
		c.log.Info().Str("symbol", row.Symbol).Msg("observe-only: skipping live order placement")
		return nil
	}

	market := ai.Decision == domain.DecisionExecuteMarket
	res := c.executor.CreateOrderWithSLTP(ctx, row.Symbol, row.Side, rounded.Quantity, rounded.Price, sl, tp, market, 300)
	if !res.Success {
		c.bus.Emit(events.OrderFailed, "orders", map[string]interface{}{"symbol": row.Symbol, "error": errString(res.Err)})
		c.watchQ.MarkAbandoned(row.ID, "order_failed")
		c.persistWatchTransition(row.ID, domain.ObsAbandoned, "order_failed")
		return res.Err
	}

	c.watchQ.MarkTriggered(row.ID)
	c.persistWatchTransition(row.ID, domain.ObsTriggered, "")
	c.bus.Emit(events.ObservationTriggered, "watcher", map[string]interface{}{"symbol": row.Symbol})
	c.bus.Emit(events.OrderPlaced, "orders", map[string]interface{}{"symbol": row.Symbol, "order_id": res.OrderResult.OrderID})

	rec := &domain.PositionRecord{
		Symbol: row.Symbol, Side: row.Side, EntryPrice: rounded.Price, Contracts: rounded.Quantity,
		OriginalSL: sl, OriginalTP: tp, CurrentSL: sl, CurrentTP: tp, CurrentTierIndex: -1,
		Strategy: strategyFor(row.Kind), SignalRowID: row.SignalRowID, OpenedAt: time.Now(),
	}
	c.supervisor.Adopt(rec)

	dbID, _ := c.dbIDForSignal(row.SignalRowID)
	tradeID, err := store.InsertAutoTrade(c.stores.Signals, dbID, rec, res.OrderResult.OrderID, "", "")
	if err == nil {
		c.rememberTradeID(row.Symbol, tradeID)
	}
	c.bus.Emit(events.PositionOpened, "position", map[string]interface{}{"symbol": row.Symbol, "side": row.Side, "entry": rounded.Price})
	return nil
}

func strategyFor(kind domain.SignalKind) domain.StrategyTag {
	if kind == domain.KindTrendAnticipation {
		return domain.StrategyTrend
	}
	if kind == domain.KindHighVolAccumulation {
		return domain.StrategyHighVolatility
	}
	return domain.StrategyReversal
}

func (c *Coordinator) isObserveOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observeOnly
}

func (c *Coordinator) dbIDForSignal(seq int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.signalDBID[seq]
	return id, ok
}
