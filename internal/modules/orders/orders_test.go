package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchange struct {
	domain.ExchangeClient

	entryResult *domain.OrderResult
	entryErr    error

	slErr        error
	tpErr        error
	slOrderID    string
	tpOrderID    string

	cancelCalls   []string
	marketCalls   []string
	placedSLPrices []float64
	placeSLCallCount int
	placeSLFailTimes int

	ocoIDs *domain.AlgoOrderIDs
}

func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (*domain.OrderResult, error) {
	f.marketCalls = append(f.marketCalls, symbol)
	if f.entryErr != nil {
		return nil, f.entryErr
	}
	if f.entryResult != nil {
		return f.entryResult, nil
	}
	return &domain.OrderResult{OrderID: "entry-1", FilledQty: quantity, FilledPrice: 100}, nil
}

func (f *fakeExchange) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64, validSec int) (*domain.OrderResult, error) {
	if f.entryErr != nil {
		return nil, f.entryErr
	}
	if f.entryResult != nil {
		return f.entryResult, nil
	}
	return &domain.OrderResult{OrderID: "entry-1", FilledQty: 0}, nil
}

func (f *fakeExchange) PlaceStopLoss(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (*domain.OrderResult, error) {
	f.placeSLCallCount++
	f.placedSLPrices = append(f.placedSLPrices, price)
	if f.placeSLCallCount <= f.placeSLFailTimes {
		return nil, errors.New("transient sl failure")
	}
	if f.slErr != nil {
		return nil, f.slErr
	}
	id := f.slOrderID
	if id == "" {
		id = "sl-1"
	}
	return &domain.OrderResult{OrderID: id}, nil
}

func (f *fakeExchange) PlaceTakeProfit(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (*domain.OrderResult, error) {
	if f.tpErr != nil {
		return nil, f.tpErr
	}
	id := f.tpOrderID
	if id == "" {
		id = "tp-1"
	}
	return &domain.OrderResult{OrderID: id}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.cancelCalls = append(f.cancelCalls, orderID)
	return nil
}

// PlaceOCO declines unless a test opts in via ocoIDs, so every other test
// below exercises the two-call fallback path deliberately.
func (f *fakeExchange) PlaceOCO(ctx context.Context, symbol string, side domain.Side, quantity, slPrice, tpPrice float64) (*domain.AlgoOrderIDs, error) {
	if f.ocoIDs != nil {
		return f.ocoIDs, nil
	}
	return nil, errors.New("oco not supported by fake")
}

func TestApplyPrecision_RoundsToTickAndStep(t *testing.T) {
	prec := domain.SymbolPrecision{TickSize: 0.01, StepSize: 0.001, MinNotional: 5, MinQuantity: 0.001}
	res := ApplyPrecision("ETHUSDT", 2000.457, 0.0034, prec)
	assert.False(t, res.Skip)
	assert.InDelta(t, 2000.46, res.Price, 0.001)
	assert.InDelta(t, 0.003, res.Quantity, 0.0001)
}

func TestApplyPrecision_RejectsBelowMinNotional(t *testing.T) {
	prec := domain.SymbolPrecision{TickSize: 0.01, StepSize: 0.001, MinNotional: 1000, MinQuantity: 0.0001}
	res := ApplyPrecision("ETHUSDT", 10, 0.01, prec)
	assert.True(t, res.Skip)
	assert.Equal(t, "skipped_min_amount", res.SkipReason)
}

func TestApplyPrecision_RejectsDeliveryContract(t *testing.T) {
	prec := domain.SymbolPrecision{TickSize: 0.01, StepSize: 0.001}
	res := ApplyPrecision("BTCUSD_250627", 50000, 0.01, prec)
	assert.True(t, res.Skip)
	assert.Equal(t, "skipped_delivery", res.SkipReason)
}

func TestCreateOrderWithSLTP_SuccessCachesAlgoIDs(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{}, zerolog.Nop())
	res := e.CreateOrderWithSLTP(context.Background(), "ETHUSDT", domain.SideLong, 1, 2000, 1960, 2100, true, 0)
	require.True(t, res.Success)
	ids, ok := e.AlgoOrders("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, "sl-1", ids.SLID)
	assert.Equal(t, "tp-1", ids.TPID)
}

func TestCreateOrderWithSLTP_UsesAtomicOCOWhenVenueSupportsIt(t *testing.T) {
	fx := &fakeExchange{ocoIDs: &domain.AlgoOrderIDs{SLID: "algo-1", TPID: "algo-1"}}
	e := New(fx, config.OrdersConfig{}, zerolog.Nop())
	res := e.CreateOrderWithSLTP(context.Background(), "ETHUSDT", domain.SideLong, 1, 2000, 1960, 2100, true, 0)
	require.True(t, res.Success)
	ids, ok := e.AlgoOrders("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, "algo-1", ids.SLID)
	assert.Equal(t, "algo-1", ids.TPID)
	assert.Equal(t, 0, fx.placeSLCallCount) // the fallback two-call path never ran
}

func TestCreateOrderWithSLTP_RollsBackMarketCloseWhenSLFailsAfterFill(t *testing.T) {
	fx := &fakeExchange{
		entryResult: &domain.OrderResult{OrderID: "entry-1", FilledQty: 1},
		slErr:       errors.New("sl rejected"),
	}
	e := New(fx, config.OrdersConfig{}, zerolog.Nop())
	res := e.CreateOrderWithSLTP(context.Background(), "ETHUSDT", domain.SideLong, 1, 2000, 1960, 2100, true, 0)
	assert.False(t, res.Success)
	assert.True(t, res.RolledBack)
	require.Len(t, fx.marketCalls, 2) // original entry + rollback close
	_, cached := e.AlgoOrders("ETHUSDT")
	assert.False(t, cached)
}

func TestCreateOrderWithSLTP_RollsBackCancelWhenSLFailsUnfilled(t *testing.T) {
	fx := &fakeExchange{
		entryResult: &domain.OrderResult{OrderID: "entry-1", FilledQty: 0},
		slErr:       errors.New("sl rejected"),
	}
	e := New(fx, config.OrdersConfig{}, zerolog.Nop())
	res := e.CreateOrderWithSLTP(context.Background(), "ETHUSDT", domain.SideLong, 1, 2000, 1960, 2100, false, 60)
	assert.False(t, res.Success)
	assert.True(t, res.RolledBack)
	assert.Contains(t, fx.cancelCalls, "entry-1")
}

func TestCreateOrderWithSLTP_RollsBackWhenTPFails(t *testing.T) {
	fx := &fakeExchange{
		entryResult: &domain.OrderResult{OrderID: "entry-1", FilledQty: 1},
		tpErr:       errors.New("tp rejected"),
	}
	e := New(fx, config.OrdersConfig{}, zerolog.Nop())
	res := e.CreateOrderWithSLTP(context.Background(), "ETHUSDT", domain.SideLong, 1, 2000, 1960, 2100, true, 0)
	assert.False(t, res.Success)
	assert.True(t, res.RolledBack)
	assert.Contains(t, fx.cancelCalls, "sl-1") // SL leg cancelled before rollback
}

func TestHandleOppositeSide_CancelsAlgoAndMarketCloses(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{}, zerolog.Nop())
	e.CacheAlgoOrders("ETHUSDT", domain.AlgoOrderIDs{SLID: "sl-x", TPID: "tp-x"})

	err := e.HandleOppositeSide(context.Background(), "ETHUSDT", domain.SideLong, 1)
	require.NoError(t, err)
	assert.Contains(t, fx.cancelCalls, "sl-x")
	assert.Contains(t, fx.cancelCalls, "tp-x")
	_, cached := e.AlgoOrders("ETHUSDT")
	assert.False(t, cached)
}

func TestUpdateStopLoss_RetriesThenSucceeds(t *testing.T) {
	fx := &fakeExchange{placeSLFailTimes: 2}
	e := New(fx, config.OrdersConfig{UpdateSLMaxRetries: 3, UpdateSLRetryDelayMs: 1}, zerolog.Nop())
	e.CacheAlgoOrders("ETHUSDT", domain.AlgoOrderIDs{SLID: "sl-old"})

	result, err := e.UpdateStopLoss(context.Background(), "ETHUSDT", domain.SideLong, 1, 1950)
	require.NoError(t, err)
	assert.Equal(t, "sl-1", result.OrderID)
	assert.Equal(t, 3, fx.placeSLCallCount)
}

func TestUpdateStopLoss_ExhaustsRetriesAndReturnsError(t *testing.T) {
	fx := &fakeExchange{placeSLFailTimes: 10}
	e := New(fx, config.OrdersConfig{UpdateSLMaxRetries: 2, UpdateSLRetryDelayMs: 1}, zerolog.Nop())
	_, err := e.UpdateStopLoss(context.Background(), "ETHUSDT", domain.SideLong, 1, 1950)
	assert.Error(t, err)
}

func TestUpdateStopLoss_RejectsNonPositivePrice(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{}, zerolog.Nop())
	_, err := e.UpdateStopLoss(context.Background(), "ETHUSDT", domain.SideLong, 1, 0)
	assert.Error(t, err)
}

func TestPreTradeCheck_BlocksOnDailyTradeCap(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{MaxDailyTrades: 1}, zerolog.Nop())
	now := time.Now()
	e.RecordTrade(now, 1.0)
	ok, reason := e.PreTradeCheck(now, 0, 10000, 100)
	assert.False(t, ok)
	assert.Equal(t, "max_daily_trades_reached", reason)
}

func TestPreTradeCheck_BlocksOnDailyLossCap(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{MaxDailyLossPercent: 3}, zerolog.Nop())
	now := time.Now()
	e.RecordTrade(now, -2.0)
	e.RecordTrade(now, -1.5)
	ok, reason := e.PreTradeCheck(now, 0, 10000, 100)
	assert.False(t, ok)
	assert.Equal(t, "max_daily_loss_reached", reason)
}

func TestPreTradeCheck_BlocksOnInsufficientBalanceWithBuffer(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{BalanceMarginBuffer: 1.1}, zerolog.Nop())
	ok, reason := e.PreTradeCheck(time.Now(), 0, 105, 100) // 100*1.1=110 > 105
	assert.False(t, ok)
	assert.Equal(t, "insufficient_balance_margin_buffer", reason)
}

func TestPreTradeCheck_AllowsWithinAllLimits(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{MaxDailyTrades: 5, MaxPositions: 5, BalanceMarginBuffer: 1.1}, zerolog.Nop())
	ok, _ := e.PreTradeCheck(time.Now(), 1, 1000, 100)
	assert.True(t, ok)
}

func TestPreTradeCheck_ResetsCountersOnNewDay(t *testing.T) {
	fx := &fakeExchange{}
	e := New(fx, config.OrdersConfig{MaxDailyTrades: 1}, zerolog.Nop())
	yesterday := time.Now().Add(-48 * time.Hour)
	e.RecordTrade(yesterday, 5.0)
	ok, _ := e.PreTradeCheck(time.Now(), 0, 10000, 100)
	assert.True(t, ok)
}
