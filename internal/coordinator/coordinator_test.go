package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange implements domain.ExchangeClient by embedding it (nil) and
// overriding only what each test needs, mirroring the teacher's own
// orders_test.go fake shape.
type fakeExchange struct {
	domain.ExchangeClient

	candles   domain.Candles
	ticker    *domain.Ticker
	obDepth   float64
	oiChange  float64
	precision *domain.SymbolPrecision

	venuePositions []domain.VenuePosition
	venueOrders    map[string][]domain.VenueOrder

	placedMarket []string
	placedLimit  []string
	cancelled    []string
}

func (f *fakeExchange) Candles(ctx context.Context, symbol, interval string, limit int) (domain.Candles, error) {
	return f.candles, nil
}
func (f *fakeExchange) Ticker24h(ctx context.Context, symbol string) (*domain.Ticker, error) {
	return f.ticker, nil
}
func (f *fakeExchange) OrderBookDepth(ctx context.Context, symbol string) (float64, error) {
	return f.obDepth, nil
}
func (f *fakeExchange) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	return f.oiChange, nil
}
func (f *fakeExchange) SymbolPrecision(ctx context.Context, symbol string) (*domain.SymbolPrecision, error) {
	if f.precision != nil {
		return f.precision, nil
	}
	return &domain.SymbolPrecision{TickSize: 0.01, StepSize: 0.001, MinNotional: 1, MinQuantity: 0.001}, nil
}
func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (*domain.OrderResult, error) {
	f.placedMarket = append(f.placedMarket, symbol)
	return &domain.OrderResult{OrderID: "mkt-1", FilledQty: quantity, FilledPrice: 100}, nil
}
func (f *fakeExchange) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64, validSec int) (*domain.OrderResult, error) {
	f.placedLimit = append(f.placedLimit, symbol)
	return &domain.OrderResult{OrderID: "lmt-1"}, nil
}
func (f *fakeExchange) PlaceStopLoss(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (*domain.OrderResult, error) {
	return &domain.OrderResult{OrderID: "sl-1"}, nil
}
func (f *fakeExchange) PlaceTakeProfit(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (*domain.OrderResult, error) {
	return &domain.OrderResult{OrderID: "tp-1"}, nil
}
func (f *fakeExchange) PlaceOCO(ctx context.Context, symbol string, side domain.Side, quantity, slPrice, tpPrice float64) (*domain.AlgoOrderIDs, error) {
	return nil, errors.New("oco not supported by fake")
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}
func (f *fakeExchange) OpenPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	return f.venuePositions, nil
}
func (f *fakeExchange) OpenOrders(ctx context.Context, symbol string) ([]domain.VenueOrder, error) {
	return f.venueOrders[symbol], nil
}

// fakeReviewer always answers with a fixed result regardless of tier.
type fakeReviewer struct {
	result *domain.ReviewResult
	err    error
}

func (f *fakeReviewer) ReviewSignal(ctx context.Context, prompt string, useCheap bool) (*domain.ReviewResult, error) {
	return f.result, f.err
}

func flatCandles(n int, price float64) domain.Candles {
	out := make(domain.Candles, n)
	now := time.Now().Add(-time.Duration(n) * 5 * time.Minute)
	for i := range out {
		out[i] = domain.Candle{OpenTime: now.Add(time.Duration(i) * 5 * time.Minute), Open: price, High: price * 1.001, Low: price * 0.999, Close: price, Volume: 100}
	}
	return out
}

func newTestCoordinator(t *testing.T, exchange domain.ExchangeClient, llm domain.Reviewer) *Coordinator {
	t.Helper()
	stores, err := database.OpenStores(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	cfg := config.Default()
	bus := events.NewBus(zerolog.Nop())
	return New(cfg, zerolog.Nop(), exchange, llm, stores, bus)
}

func TestMomentumFromCandles_ComputesPercentChange(t *testing.T) {
	candles := domain.Candles{
		{Close: 100}, {Close: 102}, {Close: 110},
	}
	got := momentumFromCandles(candles, 1)
	assert.InDelta(t, (110.0-102.0)/102.0*100, got, 0.001)
}

func TestMomentumFromCandles_ZeroOnInsufficientHistory(t *testing.T) {
	candles := domain.Candles{{Close: 100}}
	assert.Equal(t, 0.0, momentumFromCandles(candles, 3))
}

func TestMove5mPercent_ComputesSixBarChange(t *testing.T) {
	candles := make(domain.Candles, 7)
	for i := range candles {
		candles[i] = domain.Candle{Close: 100 + float64(i)}
	}
	got := move5mPercent(candles)
	assert.InDelta(t, (106.0-100.0)/100.0*100, got, 0.001)
}

func TestMove5mPercent_ZeroWhenTooFewCandles(t *testing.T) {
	assert.Equal(t, 0.0, move5mPercent(flatCandles(3, 100)))
}

func TestMomentumScore_FullCreditOnMonotoneRun(t *testing.T) {
	closes := []float64{100, 101, 102, 103}
	assert.Equal(t, 1.0, momentumScore(closes))
}

func TestMomentumScore_NeutralOnInsufficientHistory(t *testing.T) {
	assert.Equal(t, 0.5, momentumScore([]float64{100, 101}))
}

func TestBuildMetrics_OverlaysTickerWhenPresent(t *testing.T) {
	candles := flatCandles(30, 100)
	ticker := &domain.Ticker{LastPrice: 105, Change24h: 3.2, QuoteVolume24h: 50_000_000}
	m := buildMetrics("BTCUSDT", candles, ticker, 0.001, 0.5, 0.1, 1.0, 2.0)
	assert.Equal(t, 105.0, m.Price)
	assert.Equal(t, 3.2, m.Change24h)
	assert.Equal(t, 50_000_000.0, m.QuoteVolume24h)
	assert.Equal(t, 0.001, m.FundingRate)
}

func TestBuildMetrics_FallsBackToLastCloseWithoutTicker(t *testing.T) {
	candles := flatCandles(30, 100)
	m := buildMetrics("BTCUSDT", candles, nil, 0, 0, 0, 0, 0)
	assert.Equal(t, 100.0, m.Price)
}

func TestRunCycle_SkipsWhenAlreadyLocked(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{candles: flatCandles(30, 100)}, &fakeReviewer{result: &domain.ReviewResult{Approved: false}})
	require.NoError(t, c.lockMgr.Acquire("cycle"))
	defer c.lockMgr.Release("cycle")

	err := c.RunCycle(context.Background())
	assert.NoError(t, err)
	assert.True(t, c.lastCycleAt.IsZero(), "locked cycle must not have run the body")
}

func TestStatus_ReportsComponentSnapshots(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &fakeReviewer{})
	st := c.Status()
	assert.Equal(t, 0, st.WatchQueueDepth)
	assert.Equal(t, 0, st.HighVolPoolSize)
	assert.Equal(t, 0, st.OpenPositions)
	assert.False(t, st.CycleLockHeld)
}

func TestSignalSeqAndDBIDCorrelation_RoundTrips(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &fakeReviewer{})
	seq := c.nextSignalSeq()
	c.rememberSignalDBID(seq, "uuid-123")
	got, ok := c.dbIDForSignal(seq)
	require.True(t, ok)
	assert.Equal(t, "uuid-123", got)
}

func TestTradeIDBookkeeping_RememberAndForget(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &fakeReviewer{})
	c.rememberTradeID("ETHUSDT", "trade-1")
	id, ok := c.tradeIDFor("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, "trade-1", id)

	c.forgetTradeID("ETHUSDT")
	_, ok = c.tradeIDFor("ETHUSDT")
	assert.False(t, ok)
}

func TestPushBBWidth_CapsHistoryAt60Entries(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &fakeReviewer{})
	var hist []float64
	for i := 0; i < 70; i++ {
		hist = c.pushBBWidth("ETHUSDT", float64(i))
	}
	assert.Len(t, hist, 60)
	assert.Equal(t, 69.0, hist[len(hist)-1])
}

func TestReviewWithFallback_FallsBackToPremiumOnCheapFailure(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &flakyCheapReviewer{})
	result, err := c.reviewWithFallback(context.Background(), "prompt")
	require.NoError(t, err)
	assert.True(t, result.Approved)
}

// flakyCheapReviewer fails the cheap tier once, then succeeds on premium.
type flakyCheapReviewer struct{}

func (f *flakyCheapReviewer) ReviewSignal(ctx context.Context, prompt string, useCheap bool) (*domain.ReviewResult, error) {
	if useCheap {
		return nil, assertErr{}
	}
	return &domain.ReviewResult{Approved: true, Source: "premium"}, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "cheap tier unavailable" }
