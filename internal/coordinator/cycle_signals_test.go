package coordinator

import (
	"context"
	"testing"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSignalDetection_FlatMarketProducesNoCandidates(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &fakeReviewer{})

	candles := map[string]domain.Candles{
		"ETHUSDT": flatCandles(200, 100),
	}
	funding := map[string]float64{"ETHUSDT": 0}

	err := c.runSignalDetection(context.Background(), domain.BTCSnapshot{}, candles, funding)
	require.NoError(t, err)
	assert.Empty(t, c.watchQ.Rows())
}

func TestRunSignalDetection_ShortHistorySkipsSymbolWithoutError(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &fakeReviewer{})

	candles := map[string]domain.Candles{
		"ETHUSDT": flatCandles(3, 100),
	}
	funding := map[string]float64{"ETHUSDT": 0}

	err := c.runSignalDetection(context.Background(), domain.BTCSnapshot{}, candles, funding)
	require.NoError(t, err)
	assert.Empty(t, c.watchQ.Rows())
}

func TestRunSignalDetection_ContextCancellationStopsTheLoop(t *testing.T) {
	c := newTestCoordinator(t, &fakeExchange{}, &fakeReviewer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	candles := map[string]domain.Candles{
		"ETHUSDT": flatCandles(200, 100),
	}
	err := c.runSignalDetection(ctx, domain.BTCSnapshot{}, candles, map[string]float64{})
	assert.ErrorIs(t, err, context.Canceled)
}
