// Package store holds the thin SQL persistence helpers the coordinator
// uses to read/write the four SQLite stores, following the migrations
// schema declared in internal/database. These are deliberately plain
// query/exec wrappers, not a repository-pattern abstraction — the
// pipeline components themselves stay pure and DB-free; only the
// coordinator writes through this package, while the HTTP handlers and the
// notifier's reports read through it.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// InsertSignal writes one detected-and-reviewed candidate to signals.db's
// signals table, returning its generated id.
func InsertSignal(db *database.DB, c *domain.Candidate) (string, error) {
	id := uuid.NewString()
	rationale, _ := json.Marshal(c.Rationale)
	_, err := db.Exec(
		`INSERT INTO signals (id, symbol, kind, side, score, price, rationale, detected_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.Symbol, string(c.Kind), string(c.Side), c.Score, c.DetectedPrice, string(rationale), c.DetectedAt.UTC().Format(time.RFC3339),
	)
	return id, err
}

// InsertPushedSignal records a C4 review outcome against its parent signal.
func InsertPushedSignal(db *database.DB, signalID, outcome, tier string, warnings []domain.RuleOutcome) error {
	id := uuid.NewString()
	warningsJSON, _ := json.Marshal(warnings)
	_, err := db.Exec(
		`INSERT INTO pushed_signals (id, signal_id, review_outcome, reviewer_tier, rule_warnings) VALUES (?, ?, ?, ?, ?)`,
		id, signalID, outcome, tier, string(warningsJSON),
	)
	return err
}

// InsertAutoTrade records a freshly opened position.
func InsertAutoTrade(db *database.DB, signalID string, pos *domain.PositionRecord, orderID, slOrderID, tpOrderID string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO auto_trades (id, signal_id, symbol, side, strategy_tag, entry_price, quantity, stop_loss, take_profit, order_id, sl_order_id, tp_order_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, signalID, pos.Symbol, string(pos.Side), string(pos.Strategy), pos.EntryPrice, pos.Contracts,
		pos.CurrentSL, pos.CurrentTP, orderID, slOrderID, tpOrderID,
	)
	return id, err
}

// CloseAutoTrade marks a trade closed with its exit price and realized PnL.
func CloseAutoTrade(db *database.DB, tradeID string, exitPrice, pnlFraction float64) error {
	_, err := db.Exec(
		`UPDATE auto_trades SET status='closed', closed_at=datetime('now'), exit_price=?, pnl_fraction=? WHERE id=?`,
		exitPrice, pnlFraction, tradeID,
	)
	return err
}

// InsertOutcome records the exit-reason side channel used for reporting.
func InsertOutcome(db *database.DB, tradeID, exitReason string, pnlFraction float64) error {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO outcomes (id, trade_id, exit_reason, pnl_fraction) VALUES (?, ?, ?, ?)`,
		id, tradeID, exitReason, pnlFraction,
	)
	return err
}

// OpenTrade is a row read back from auto_trades for the trades endpoint.
type OpenTrade struct {
	ID         string
	SignalID   sql.NullString
	Symbol     string
	Side       string
	Strategy   string
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit sql.NullFloat64
	OrderID    sql.NullString
	SLOrderID  sql.NullString
	TPOrderID  sql.NullString
	OpenedAt   string
}

// OpenTrades returns every trade still marked open, served by the
// /api/trades endpoint. Startup reconciliation reads the venue, not this
// table.
func OpenTrades(db *database.DB) ([]OpenTrade, error) {
	rows, err := db.Query(`SELECT id, signal_id, symbol, side, strategy_tag, entry_price, quantity, stop_loss, take_profit, order_id, sl_order_id, tp_order_id, opened_at FROM auto_trades WHERE status='open'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OpenTrade
	for rows.Next() {
		var t OpenTrade
		if err := rows.Scan(&t.ID, &t.SignalID, &t.Symbol, &t.Side, &t.Strategy, &t.EntryPrice, &t.Quantity,
			&t.StopLoss, &t.TakeProfit, &t.OrderID, &t.SLOrderID, &t.TPOrderID, &t.OpenedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DailyPnLSummary counts the trades closed at or after sinceUTC and sums
// their realized PnL fractions, used by the daily/weekly reports and the
// trades summary endpoint.
func DailyPnLSummary(db *database.DB, sinceUTC time.Time) (tradeCount int, totalPnLFraction float64, err error) {
	row := db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(pnl_fraction), 0) FROM auto_trades WHERE status='closed' AND closed_at >= ?`,
		sinceUTC.UTC().Format("2006-01-02 15:04:05"), // same text layout as datetime('now') in CloseAutoTrade
	)
	err = row.Scan(&tradeCount, &totalPnLFraction)
	return
}
