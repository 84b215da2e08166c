package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// InsertWatchSignal persists a freshly queued observation row.
func InsertWatchSignal(db *database.DB, row *domain.ObservationRow) (string, error) {
	id := uuid.NewString()
	expires := row.CreatedAt.Add(time.Duration(row.ExpiryMinutes) * time.Minute)
	_, err := db.Exec(
		`INSERT INTO watch_signals (id, symbol, kind, side, score, trigger_price, status, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, row.Symbol, string(row.Kind), string(row.Side), 0.0, row.DetectedPrice, string(row.Status), expires.UTC().Format(time.RFC3339),
	)
	return id, err
}

// UpdateWatchSignalStatus transitions a watch_signals row's status, and
// optionally stamps triggered_at / abandoned_reason.
func UpdateWatchSignalStatus(db *database.DB, id string, status domain.ObservationStatus, abandonedReason string) error {
	if status == domain.ObsTriggered {
		_, err := db.Exec(`UPDATE watch_signals SET status=?, triggered_at=datetime('now') WHERE id=?`, string(status), id)
		return err
	}
	_, err := db.Exec(`UPDATE watch_signals SET status=?, abandoned_reason=? WHERE id=?`, string(status), abandonedReason, id)
	return err
}

// UpsertHighVolSignal writes or refreshes one high-volatility pool entry's
// scoring snapshot.
func UpsertHighVolSignal(db *database.DB, symbol, status string, health, readiness float64) error {
	var exists string
	err := db.QueryRow(`SELECT id FROM high_vol_signals WHERE symbol=? AND status NOT IN ('retired','evicted')`, symbol).Scan(&exists)
	if err == nil {
		_, err = db.Exec(
			`UPDATE high_vol_signals SET status=?, health_score=?, readiness_score=?, updated_at=datetime('now') WHERE id=?`,
			status, health, readiness, exists,
		)
		return err
	}

	id := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO high_vol_signals (id, symbol, status, health_score, readiness_score) VALUES (?, ?, ?, ?, ?)`,
		id, symbol, status, health, readiness,
	)
	return err
}

// RecordHighVolPricing stamps a pool entry with its priced limit order.
func RecordHighVolPricing(db *database.DB, symbol string, entry, sl, tp float64, orderID string, validUntil time.Time, aiReviewCount int) error {
	_, err := db.Exec(
		`UPDATE high_vol_signals SET entry_price=?, stop_loss=?, take_profit=?, order_id=?, valid_until=?, ai_review_count=?, status='priced', updated_at=datetime('now')
		 WHERE symbol=? AND status NOT IN ('retired','evicted')`,
		entry, sl, tp, orderID, validUntil.UTC().Format(time.RFC3339), aiReviewCount, symbol,
	)
	return err
}
