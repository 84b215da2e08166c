package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/modules/highvol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breakoutCandles() domain.Candles {
	candles := make(domain.Candles, 40)
	now := time.Now().Add(-200 * time.Minute)
	for i := range candles {
		price := 100.0 + float64(i)*0.05
		candles[i] = domain.Candle{
			OpenTime: now.Add(time.Duration(i) * 5 * time.Minute),
			Open: price, High: price * 1.002, Low: price * 0.998, Close: price, Volume: 500,
		}
	}
	return candles
}

func TestTickHighVol_AdmitsNewCandidateIntoPool(t *testing.T) {
	fx := &fakeExchange{
		candles: breakoutCandles(),
		ticker:  &domain.Ticker{LastPrice: 108, Change24h: 8.0, QuoteVolume24h: 100_000_000},
		obDepth: 0.6,
	}
	c := newTestCoordinator(t, fx, &fakeReviewer{})

	err := c.tickHighVol(context.Background(), domain.BTCSnapshot{}, map[string]domain.Candles{"ETHUSDT": breakoutCandles()})
	require.NoError(t, err)
	assert.Equal(t, 1, c.hvPool.Len())
}

func TestTickHighVol_DoesNotReadmitAlreadyPooledSymbol(t *testing.T) {
	fx := &fakeExchange{ticker: &domain.Ticker{LastPrice: 108, Change24h: 8.0, QuoteVolume24h: 100_000_000}}
	c := newTestCoordinator(t, fx, &fakeReviewer{})

	candleSet := map[string]domain.Candles{"ETHUSDT": breakoutCandles()}
	require.NoError(t, c.tickHighVol(context.Background(), domain.BTCSnapshot{}, candleSet))
	require.NoError(t, c.tickHighVol(context.Background(), domain.BTCSnapshot{}, candleSet))
	assert.Equal(t, 1, c.hvPool.Len())
}

func TestPriceAndExecuteHighVolEntry_MarketDecisionPromotesToSupervisor(t *testing.T) {
	fx := &fakeExchange{}
	reviewer := &fakeReviewer{result: &domain.ReviewResult{Decision: domain.DecisionExecuteMarket, Entry: 100, TP: 106}}
	c := newTestCoordinator(t, fx, reviewer)

	metrics := domain.Metrics{Symbol: "ETHUSDT", Price: 100, Change24h: 10, QuoteVolume24h: 5_000_000, ATRPercent: 1}
	ok, reason := c.hvPool.Admit("ETHUSDT", domain.SideLong, highvol.HardFilterInput{
		Metrics: metrics, Candles: breakoutCandles(), Move5mPercent: 0,
	}, time.Now())
	require.True(t, ok, reason)

	status, transitioned := c.hvPool.Tick("ETHUSDT", 80, 80, time.Now())
	require.Equal(t, highvol.StatusReady, status)
	require.True(t, transitioned)
	c.hvPool.MarkReady("ETHUSDT", highvol.BreakoutQuality{})

	entries := c.hvPool.Entries()
	require.Len(t, entries, 1)

	err := c.priceAndExecuteHighVolEntry(context.Background(), entries[0], metrics, domain.BTCSnapshot{})
	require.NoError(t, err)
	assert.Len(t, fx.placedMarket, 1)
	assert.Equal(t, 1, c.supervisor.Len())
	assert.Equal(t, 0, c.hvPool.Len()) // Retire removes the promoted entry from the pool
}

func TestPriceAndExecuteHighVolEntry_AbandonDecisionRetiresWithoutOrder(t *testing.T) {
	fx := &fakeExchange{}
	reviewer := &fakeReviewer{result: &domain.ReviewResult{Decision: domain.DecisionAbandon}}
	c := newTestCoordinator(t, fx, reviewer)

	metrics := domain.Metrics{Symbol: "ETHUSDT", Price: 100, Change24h: 10, QuoteVolume24h: 5_000_000, ATRPercent: 1}
	ok, reason := c.hvPool.Admit("ETHUSDT", domain.SideLong, highvol.HardFilterInput{
		Metrics: metrics, Candles: breakoutCandles(), Move5mPercent: 0,
	}, time.Now())
	require.True(t, ok, reason)
	c.hvPool.Tick("ETHUSDT", 80, 80, time.Now())
	c.hvPool.MarkReady("ETHUSDT", highvol.BreakoutQuality{})

	entries := c.hvPool.Entries()
	require.Len(t, entries, 1)

	err := c.priceAndExecuteHighVolEntry(context.Background(), entries[0], metrics, domain.BTCSnapshot{})
	require.NoError(t, err)
	assert.Empty(t, fx.placedMarket)
	assert.Equal(t, 0, c.supervisor.Len())
}
