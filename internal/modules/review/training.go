package review

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// TrainingRecorder writes a data-collection side-channel to
// xgboost_training.db, independent of live trading (§6).
type TrainingRecorder struct {
	db *database.DB
}

// NewTrainingRecorder wraps the xgboost_training.db handle.
func NewTrainingRecorder(db *database.DB) *TrainingRecorder {
	return &TrainingRecorder{db: db}
}

// RecordCandidate stores a pending training sample keyed by the review's
// outcome and feature snapshot; label is filled in later once the signal's
// horizon outcome is known.
func (t *TrainingRecorder) RecordCandidate(c *domain.Candidate, result Result) error {
	features := map[string]interface{}{
		"symbol":       c.Symbol,
		"kind":         c.Kind,
		"side":         c.Side,
		"score":        c.Score,
		"rsi":          c.Metrics.RSI,
		"adx":          c.Metrics.ADX,
		"volume_ratio": c.Metrics.VolumeRatio,
		"atr_pct":      c.Metrics.ATRPercent,
		"approved":     result.Approved,
		"reject_reason": result.Reason,
	}
	raw, err := json.Marshal(features)
	if err != nil {
		return err
	}

	_, err = t.db.Exec(
		`INSERT INTO training_samples (id, signal_id, features_json) VALUES (?, ?, ?)`,
		uuid.NewString(), fmt.Sprintf("%s-%d", c.Symbol, c.DetectedAt.UnixNano()), string(raw))
	return err
}

// Finalize records the realized label (e.g. horizon PnL) for a previously
// recorded sample.
func (t *TrainingRecorder) Finalize(signalID string, label float64) error {
	res, err := t.db.Exec(
		`UPDATE training_samples SET label = ?, finalized = 1, finalized_at = datetime('now') WHERE signal_id = ? AND finalized = 0`,
		label, signalID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
