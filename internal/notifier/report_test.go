package notifier

import (
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyReport_SummarizesClosedTradesWithinWindow(t *testing.T) {
	stores, err := database.OpenStores(t.TempDir())
	require.NoError(t, err)
	defer stores.Close()

	rec := &domain.PositionRecord{Symbol: "ETHUSDT", Side: domain.SideLong, Strategy: domain.StrategyReversal, EntryPrice: 100, Contracts: 1, CurrentSL: 98, CurrentTP: 106}
	tradeID, err := store.InsertAutoTrade(stores.Signals, "", rec, "order-1", "sl-1", "tp-1")
	require.NoError(t, err)
	require.NoError(t, store.CloseAutoTrade(stores.Signals, tradeID, 106, 0.06))

	text, err := DailyReport(stores, time.Now())
	require.NoError(t, err)
	assert.Contains(t, text, "Daily report")
	assert.Contains(t, text, "1 closed trades")
	assert.Contains(t, text, "6.00%")
}

func TestWeeklyReport_ExcludesTradesOlderThanSevenDays(t *testing.T) {
	stores, err := database.OpenStores(t.TempDir())
	require.NoError(t, err)
	defer stores.Close()

	rec := &domain.PositionRecord{Symbol: "ETHUSDT", Side: domain.SideLong, Strategy: domain.StrategyReversal, EntryPrice: 100, Contracts: 1, CurrentSL: 98, CurrentTP: 106}
	tradeID, err := store.InsertAutoTrade(stores.Signals, "", rec, "order-1", "sl-1", "tp-1")
	require.NoError(t, err)
	require.NoError(t, store.CloseAutoTrade(stores.Signals, tradeID, 106, 0.06))
	_, err = stores.Signals.Exec(`UPDATE auto_trades SET closed_at = ? WHERE id = ?`, time.Now().AddDate(0, 0, -10).Format(time.RFC3339), tradeID)
	require.NoError(t, err)

	text, err := WeeklyReport(stores, time.Now())
	require.NoError(t, err)
	assert.Contains(t, text, "0 closed trades")
}
