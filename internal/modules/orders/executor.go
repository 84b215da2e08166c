package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/retry"
	"github.com/rs/zerolog"
)

// Executor places and maintains entry/SL/TP orders against one
// domain.ExchangeClient (§4.8).
type Executor struct {
	exchange domain.ExchangeClient
	cfg      config.OrdersConfig
	log      zerolog.Logger

	mu        sync.Mutex
	algoCache map[string]domain.AlgoOrderIDs // symbol -> (SL id, TP id)

	dailyMu     sync.Mutex
	dailyTrades int
	dailyPnL    float64
	dailyDate   string
}

// New builds an Executor.
func New(exchange domain.ExchangeClient, cfg config.OrdersConfig, log zerolog.Logger) *Executor {
	return &Executor{
		exchange:  exchange,
		cfg:       cfg,
		log:       log.With().Str("component", "orders").Logger(),
		algoCache: make(map[string]domain.AlgoOrderIDs),
	}
}

// CreateResult is the outcome of CreateOrderWithSLTP.
type CreateResult struct {
	Success    bool
	OrderResult *domain.OrderResult
	SkipReason string
	RolledBack bool
	Err        error
}

// CreateOrderWithSLTP implements §4.8's atomic entry: place the entry
// order, then atomically attach the protective OCO. If the OCO leg fails,
// roll back — market-close the entry if it filled, otherwise cancel it —
// and only cache the SL/TP ids once both legs succeed.
func (e *Executor) CreateOrderWithSLTP(ctx context.Context, symbol string, side domain.Side, quantity, entryPrice, slPrice, tpPrice float64, market bool, validSec int) CreateResult {
	var entry *domain.OrderResult
	var err error

	if market {
		err = retry.Do(ctx, retry.Default, func(ctx context.Context) error {
			var innerErr error
			entry, innerErr = e.exchange.PlaceMarketOrder(ctx, symbol, side, quantity)
			return innerErr
		})
	} else {
		err = retry.Do(ctx, retry.Default, func(ctx context.Context) error {
			var innerErr error
			entry, innerErr = e.exchange.PlaceLimitOrder(ctx, symbol, side, quantity, entryPrice, validSec)
			return innerErr
		})
	}
	if err != nil {
		return CreateResult{Success: false, Err: fmt.Errorf("place entry: %w", err)}
	}

	ids, err := e.attachProtectiveOrders(ctx, symbol, side, quantity, slPrice, tpPrice)
	if err != nil {
		e.rollback(ctx, symbol, side, entry, "oco_leg_failed")
		return CreateResult{Success: false, RolledBack: true, Err: err}
	}

	e.mu.Lock()
	e.algoCache[symbol] = *ids
	e.mu.Unlock()

	return CreateResult{Success: true, OrderResult: entry}
}

// attachProtectiveOrders implements §4.8 step 2: try the venue's atomic OCO
// primitive first so there is never a window with only one leg live; only
// on its failure fall back to placing SL and TP as two separate calls.
func (e *Executor) attachProtectiveOrders(ctx context.Context, symbol string, side domain.Side, quantity, slPrice, tpPrice float64) (*domain.AlgoOrderIDs, error) {
	if ids, err := e.exchange.PlaceOCO(ctx, symbol, side, quantity, slPrice, tpPrice); err == nil {
		return ids, nil
	}

	slResult, slErr := e.exchange.PlaceStopLoss(ctx, symbol, side, quantity, slPrice)
	if slErr != nil {
		return nil, fmt.Errorf("place sl: %w", slErr)
	}

	tpResult, tpErr := e.exchange.PlaceTakeProfit(ctx, symbol, side, quantity, tpPrice)
	if tpErr != nil {
		_ = e.exchange.CancelOrder(ctx, symbol, slResult.OrderID)
		return nil, fmt.Errorf("place tp: %w", tpErr)
	}

	return &domain.AlgoOrderIDs{SLID: slResult.OrderID, TPID: tpResult.OrderID}, nil
}

// rollback implements the OCO-failure recovery (§4.8): market-close the
// entry if it already filled, otherwise cancel it outright.
func (e *Executor) rollback(ctx context.Context, symbol string, side domain.Side, entry *domain.OrderResult, reason string) {
	log := e.log.With().Str("symbol", symbol).Str("reason", reason).Logger()
	if entry != nil && entry.FilledQty > 0 {
		opposite := domain.SideShort
		if side == domain.SideShort {
			opposite = domain.SideLong
		}
		if _, err := e.exchange.PlaceMarketOrder(ctx, symbol, opposite, entry.FilledQty); err != nil {
			log.Error().Err(err).Msg("rollback market-close failed")
		}
		return
	}
	if entry != nil {
		if err := e.exchange.CancelOrder(ctx, symbol, entry.OrderID); err != nil {
			log.Error().Err(err).Msg("rollback cancel failed")
		}
	}
}

// HandleOppositeSide implements §4.8's opposite-side rule: an incoming
// signal on the side opposite an already-open position cancels that
// position's algo orders and market-closes it with reduceOnly; same-side
// signals are skipped entirely (handled upstream, not here).
func (e *Executor) HandleOppositeSide(ctx context.Context, symbol string, existingSide domain.Side, quantity float64) error {
	e.mu.Lock()
	ids, hasAlgo := e.algoCache[symbol]
	delete(e.algoCache, symbol)
	e.mu.Unlock()

	if hasAlgo {
		_ = e.exchange.CancelOrder(ctx, symbol, ids.SLID)
		_ = e.exchange.CancelOrder(ctx, symbol, ids.TPID)
	}

	opposite := domain.SideShort
	if existingSide == domain.SideShort {
		opposite = domain.SideLong
	}
	_, err := e.exchange.PlaceMarketOrder(ctx, symbol, opposite, quantity)
	return err
}

// UpdateStopLoss implements §4.8's update_stop_loss: cancel the cached SL
// (tolerant of "not found" — it may already have triggered), recreate it
// at the new price, retrying up to UpdateSLMaxRetries times with
// UpdateSLRetryDelayMs between attempts. If no SL id is cached, nothing is
// cancelled and the venue's live orders are not queried: a new SL is placed
// and its id cached.
func (e *Executor) UpdateStopLoss(ctx context.Context, symbol string, side domain.Side, quantity, newPrice float64) (*domain.OrderResult, error) {
	if newPrice <= 0 {
		return nil, fmt.Errorf("refusing to set a non-positive stop loss")
	}

	e.mu.Lock()
	ids, ok := e.algoCache[symbol]
	e.mu.Unlock()

	maxRetries := e.cfg.UpdateSLMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delay := time.Duration(e.cfg.UpdateSLRetryDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if ok && ids.SLID != "" {
			_ = e.exchange.CancelOrder(ctx, symbol, ids.SLID) // tolerant: may already be gone
		}

		result, err := e.exchange.PlaceStopLoss(ctx, symbol, side, quantity, newPrice)
		if err == nil {
			e.mu.Lock()
			cached := e.algoCache[symbol]
			cached.SLID = result.OrderID
			e.algoCache[symbol] = cached
			e.mu.Unlock()
			return result, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("update stop loss: exhausted retries: %w", lastErr)
}

// CacheAlgoOrders seeds the algo-order cache directly, used by the
// position supervisor's startup reconciliation when it adopts an
// already-live position.
func (e *Executor) CacheAlgoOrders(symbol string, ids domain.AlgoOrderIDs) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.algoCache[symbol] = ids
}

// ClearAlgoOrders drops a symbol's cached SL/TP ids once a position is
// fully closed.
func (e *Executor) ClearAlgoOrders(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.algoCache, symbol)
}

// AlgoOrders returns the cached ids for symbol, if any.
func (e *Executor) AlgoOrders(symbol string) (domain.AlgoOrderIDs, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids, ok := e.algoCache[symbol]
	return ids, ok
}

// ResetDailyCountersIfNewDay resets the daily-trade/loss counters at UTC
// day rollover.
func (e *Executor) resetDailyCountersIfNewDay(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if e.dailyDate != day {
		e.dailyDate = day
		e.dailyTrades = 0
		e.dailyPnL = 0
	}
}

// RecordTrade registers one filled trade against the daily throttle
// counters.
func (e *Executor) RecordTrade(now time.Time, pnlPercent float64) {
	e.dailyMu.Lock()
	defer e.dailyMu.Unlock()
	e.resetDailyCountersIfNewDay(now)
	e.dailyTrades++
	e.dailyPnL += pnlPercent
}

// PreTradeCheck implements §4.8's daily-throttle and balance gates: reject
// new entries once the daily trade count or daily loss percent is
// breached, once max open positions is reached, or once available
// balance (after the configured margin buffer) can't cover the required
// margin.
func (e *Executor) PreTradeCheck(now time.Time, openPositions int, balance, requiredMargin float64) (bool, string) {
	e.dailyMu.Lock()
	defer e.dailyMu.Unlock()
	e.resetDailyCountersIfNewDay(now)

	if e.cfg.MaxDailyTrades > 0 && e.dailyTrades >= e.cfg.MaxDailyTrades {
		return false, "max_daily_trades_reached"
	}
	if e.cfg.MaxDailyLossPercent > 0 && e.dailyPnL <= -e.cfg.MaxDailyLossPercent {
		return false, "max_daily_loss_reached"
	}
	if e.cfg.MaxPositions > 0 && openPositions >= e.cfg.MaxPositions {
		return false, "max_positions_reached"
	}
	buffer := e.cfg.BalanceMarginBuffer
	if buffer <= 0 {
		buffer = 1.1
	}
	if balance < requiredMargin*buffer {
		return false, "insufficient_balance_margin_buffer"
	}
	return true, ""
}
