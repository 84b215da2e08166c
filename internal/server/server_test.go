package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/coordinator"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange implements domain.ExchangeClient by embedding it (nil), so a
// test only needs to satisfy the handful of calls the coordinator actually
// makes during Reconcile/Status.
type fakeExchange struct {
	domain.ExchangeClient
}

func (f *fakeExchange) OpenPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	return nil, nil
}

func (f *fakeExchange) OpenOrders(ctx context.Context, symbol string) ([]domain.VenueOrder, error) {
	return nil, nil
}

type fakeReviewer struct{}

func (f *fakeReviewer) ReviewSignal(ctx context.Context, prompt string, cheap bool) (*domain.ReviewResult, error) {
	return &domain.ReviewResult{Approved: false}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	stores, err := database.OpenStores(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	cfg := config.Default()
	bus := events.NewBus(zerolog.Nop())
	coord := coordinator.New(cfg, zerolog.Nop(), &fakeExchange{}, &fakeReviewer{}, stores, bus)

	return New(Config{
		Port:        0,
		Log:         zerolog.Nop(),
		Stores:      stores,
		Coordinator: coord,
		Bus:         bus,
		Config:      cfg,
		DevMode:     true,
	})
}

func TestHandleHealth_ReportsHealthy(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleSystemStatus_ReportsCoordinatorSnapshot(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "watch_queue_depth")
	assert.Contains(t, body, "cycle_lock_held")
}

func TestHandleOpenPositions_ReportsEmptySnapshotWhenNoneSupervised(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/positions/", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body []domain.PositionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body)
}

func TestHandleTradeHistory_ReportsEmptyWhenNoOpenTrades(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/trades/", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleDailySummary_ReportsZeroTradesOnEmptyLedger(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/trades/summary", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["trade_count"])
}
