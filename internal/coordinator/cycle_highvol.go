package coordinator

import (
	"context"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/modules/highvol"
	"github.com/kairoslabs/perpsentinel/internal/store"
)

// tickHighVol implements C6 (§4.6): admit new pool candidates, tick
// readiness/health on the pooled set, price ready entries, and reap
// unfilled/expired/evicted ones.
func (c *Coordinator) tickHighVol(ctx context.Context, btc domain.BTCSnapshot, candles map[string]domain.Candles) error {
	now := time.Now()

	pooled := make(map[string]bool)
	for _, e := range c.hvPool.Entries() {
		pooled[e.Symbol] = true
	}

	for symbol, cdl := range candles {
		if pooled[symbol] || len(cdl) < 25 {
			continue
		}
		obDepth, oiChange := c.fetchSideData(ctx, symbol)
		m5 := momentumFromCandles(cdl, 1)
		m15 := momentumFromCandles(cdl, 3)
		metrics := buildMetrics(symbol, cdl, nil, 0, obDepth, oiChange, m5, m15)
		if ticker, err := c.exchange.Ticker24h(ctx, symbol); err == nil && ticker != nil {
			metrics.Price, metrics.Change24h, metrics.QuoteVolume24h = ticker.LastPrice, ticker.Change24h, ticker.QuoteVolume24h
		}

		side := domain.SideLong
		if metrics.Change24h < 0 {
			side = domain.SideShort
		}

		ok, reason := c.hvPool.Admit(symbol, side, highvol.HardFilterInput{
			Metrics: metrics, Candles: cdl, Move5mPercent: move5mPercent(cdl),
		}, now)
		if !ok {
			continue
		}
		_ = reason
		if err := store.UpsertHighVolSignal(c.stores.HighVolTrack, symbol, string(highvol.StatusPooled), 0, 0); err != nil {
			c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "upsert_high_vol_signal"})
		}
		c.bus.Emit(events.HighVolEntered, "high_vol", map[string]interface{}{"symbol": symbol, "side": side})
	}

	for _, entry := range c.hvPool.Entries() {
		cdl, ok := candles[entry.Symbol]
		if !ok {
			continue
		}
		c.tickHighVolEntry(ctx, entry, cdl, btc, now)
	}
	return nil
}

func (c *Coordinator) tickHighVolEntry(ctx context.Context, entry highvol.Entry, cdl domain.Candles, btc domain.BTCSnapshot, now time.Time) {
	obDepth, oiChange := c.fetchSideData(ctx, entry.Symbol)
	m5 := momentumFromCandles(cdl, 1)
	m15 := momentumFromCandles(cdl, 3)
	metrics := buildMetrics(entry.Symbol, cdl, nil, 0, obDepth, oiChange, m5, m15)
	if ticker, err := c.exchange.Ticker24h(ctx, entry.Symbol); err == nil && ticker != nil {
		metrics.Price, metrics.Change24h, metrics.QuoteVolume24h = ticker.LastPrice, ticker.Change24h, ticker.QuoteVolume24h
	}

	bbWidth := metrics.BBWidth
	history := c.pushBBWidth(entry.Symbol, bbWidth)

	readiness := highvol.Readiness(highvol.ReadinessInput{
		Metrics: metrics, Candles: cdl, BTC: btc, Side: entry.Side, BBWidthHistory: history,
	})
	health := highvol.Health(highvol.HealthInput{
		Side:         entry.Side,
		BBWidth:      bbWidth,
		EntryBBWidth: entry.EntryBBWidth,
		VolumeRatio:  metrics.VolumeRatio,
		RSI:          metrics.RSI,
		EntryRSI:     entry.EntryRSI,
		Price:        metrics.Price,
		SRAnchor:     entry.SRAnchor,
		EntryPrice:   entry.EntryPrice,
	})

	status, transitioned := c.hvPool.Tick(entry.Symbol, readiness, health, now)
	_ = store.UpsertHighVolSignal(c.stores.HighVolTrack, entry.Symbol, string(status), health, readiness)

	if status == highvol.StatusEvicted {
		c.hvPool.Retire(entry.Symbol, "health_below_threshold")
		c.bus.Emit(events.HighVolEvicted, "high_vol", map[string]interface{}{"symbol": entry.Symbol, "health": health})
		return
	}

	if transitioned && status == highvol.StatusReady {
		quality := highvol.ComputeBreakoutQuality(cdl)
		c.hvPool.MarkReady(entry.Symbol, quality)
		entry.Quality = &quality
	}

	if status != highvol.StatusReady {
		if status == highvol.StatusPriced && highvol.ShouldCancelUnfilled(c.cfg.HighVol, entry, now) {
			_ = c.exchange.CancelOrder(ctx, entry.Symbol, entry.PricedOrderID)
			c.hvPool.Retire(entry.Symbol, "unfilled_expired")
			_ = store.UpsertHighVolSignal(c.stores.HighVolTrack, entry.Symbol, "expired", health, readiness)
			c.bus.Emit(events.HighVolEvicted, "high_vol", map[string]interface{}{"symbol": entry.Symbol, "reason": "unfilled_expired"})
		}
		return
	}

	if c.isObserveOnly() {
		return
	}

	if err := c.priceAndExecuteHighVolEntry(ctx, entry, metrics, btc); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"symbol": entry.Symbol, "step": "high_vol_pricing"})
	}
}

func (c *Coordinator) priceAndExecuteHighVolEntry(ctx context.Context, entry highvol.Entry, metrics domain.Metrics, btc domain.BTCSnapshot) error {
	count, exhausted := c.hvPool.IncrementAIReviews(entry.Symbol)
	if exhausted {
		c.hvPool.Retire(entry.Symbol, "ai_reviews_exhausted")
		_ = store.UpsertHighVolSignal(c.stores.HighVolTrack, entry.Symbol, "abandoned", entry.HealthScore, entry.ReadinessScore)
		return nil
	}

	prompt := highvol.BuildPricingPrompt(entry, metrics, btc)
	ai, err := c.reviewWithFallback(ctx, prompt)
	if err != nil {
		return nil // retried on a future tick, up to MaxAIReviews
	}
	if ai.Decision == domain.DecisionAbandon || ai.Decision == "" {
		c.hvPool.Retire(entry.Symbol, "ai_pricing_abandon")
		_ = store.UpsertHighVolSignal(c.stores.HighVolTrack, entry.Symbol, "abandoned", entry.HealthScore, entry.ReadinessScore)
		return nil
	}

	entryPrice := ai.Entry
	if entryPrice == 0 {
		entryPrice = metrics.Price
	}
	slPct := highvol.StopLossPercentForATR(metrics.ATRPercent)
	sl, tp := highvol.PricingCapFromFDI(0), ai.TP
	_ = sl // unused: no FDI-based offset bound is applied; the entry price is the AI's entry, or the last price when it gives none
	slPrice := entryPrice * (1 - slPct/100)
	if entry.Side == domain.SideShort {
		slPrice = entryPrice * (1 + slPct/100)
	}
	tpPrice := tp
	if tpPrice == 0 {
		tpPrice = entryPrice * 1.06
		if entry.Side == domain.SideShort {
			tpPrice = entryPrice * 0.94
		}
	}

	_, contracts := highvol.PositionSize(c.cfg.HighVol, entryPrice, metrics.Change24h)
	prec, err := c.exchange.SymbolPrecision(ctx, entry.Symbol)
	if err != nil {
		return err
	}
	rounded := roundOrSkip(entry.Symbol, entryPrice, contracts, *prec)
	if rounded.Skip {
		c.hvPool.Retire(entry.Symbol, rounded.SkipReason)
		return nil
	}

	market := ai.Decision == domain.DecisionExecuteMarket
	res := c.executor.CreateOrderWithSLTP(ctx, entry.Symbol, entry.Side, rounded.Quantity, rounded.Price, slPrice, tpPrice, market, c.cfg.HighVol.ValidSeconds)
	if !res.Success {
		c.bus.Emit(events.OrderFailed, "orders", map[string]interface{}{"symbol": entry.Symbol, "ai_review": count})
		return res.Err
	}

	c.hvPool.MarkPriced(entry.Symbol, res.OrderResult.OrderID, rounded.Price, slPrice, tpPrice, time.Now())
	if err := store.RecordHighVolPricing(c.stores.HighVolTrack, entry.Symbol, rounded.Price, slPrice, tpPrice, res.OrderResult.OrderID, time.Now().Add(time.Duration(c.cfg.HighVol.ValidSeconds)*time.Second), count); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "record_high_vol_pricing"})
	}
	c.bus.Emit(events.OrderPlaced, "orders", map[string]interface{}{"symbol": entry.Symbol, "order_id": res.OrderResult.OrderID})

	if market {
		c.hvPool.Retire(entry.Symbol, "filled_promoted_to_supervisor")
		rec := &domain.PositionRecord{
			Symbol: entry.Symbol, Side: entry.Side, EntryPrice: rounded.Price, Contracts: rounded.Quantity,
			OriginalSL: slPrice, OriginalTP: tpPrice, CurrentSL: slPrice, CurrentTP: tpPrice, CurrentTierIndex: -1,
			Strategy: domain.StrategyHighVolatility, OpenedAt: time.Now(),
		}
		c.supervisor.Adopt(rec)
		tradeID, err := store.InsertAutoTrade(c.stores.Signals, "", rec, res.OrderResult.OrderID, "", "")
		if err == nil {
			c.rememberTradeID(entry.Symbol, tradeID)
		}
		c.bus.Emit(events.HighVolFilled, "high_vol", map[string]interface{}{"symbol": entry.Symbol})
		c.bus.Emit(events.PositionOpened, "position", map[string]interface{}{"symbol": entry.Symbol, "side": entry.Side})
	}
	return nil
}
