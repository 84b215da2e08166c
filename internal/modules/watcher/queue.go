package watcher

import (
	"sync"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// Queue holds the in-memory observation rows for one cycle. Persistence to
// watch_signals.db is handled by the coordinator's store layer; Queue
// itself only implements the lifecycle rules (§4.5).
type Queue struct {
	mu   sync.Mutex
	cfg  config.WatcherConfig
	rows map[int64]*domain.ObservationRow

	// recentInserts guards the 10-minute (symbol, side) uniqueness window.
	recentInserts map[string]time.Time
	nextID        int64
}

// New builds an empty Queue.
func New(cfg config.WatcherConfig) *Queue {
	return &Queue{
		cfg:           cfg,
		rows:          make(map[int64]*domain.ObservationRow),
		recentInserts: make(map[string]time.Time),
	}
}

func uniquenessKey(symbol string, side domain.Side) string {
	return symbol + "|" + string(side)
}

// Insert enforces the 10-minute (symbol, side) uniqueness guard (§4.5 "On
// insert"). A duplicate insert returns a row marked duplicate_skipped and
// is not added to the live queue.
func (q *Queue) Insert(candidate *domain.Candidate, signalRowID int64, payload []byte) *domain.ObservationRow {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := uniquenessKey(candidate.Symbol, candidate.Side)
	window := time.Duration(q.cfg.UniquenessWindowMinutes) * time.Minute
	if last, ok := q.recentInserts[key]; ok && time.Since(last) < window {
		return &domain.ObservationRow{
			Symbol: candidate.Symbol, Side: candidate.Side, Kind: candidate.Kind,
			Status: domain.ObsDuplicateSkipped, CreatedAt: time.Now(),
		}
	}

	q.nextID++
	row := &domain.ObservationRow{
		ID:               q.nextID,
		Symbol:           candidate.Symbol,
		Side:             candidate.Side,
		Kind:             candidate.Kind,
		DetectedPrice:    candidate.DetectedPrice,
		DetectedRSI:      candidate.Metrics.RSI,
		DetectedADX:      candidate.Metrics.ADX,
		InitialSL:        candidate.Stops.StopLossPrice,
		InitialTP:        candidate.Stops.TakeProfitPrice,
		CandidatePayload: payload,
		CreatedAt:        time.Now(),
		ExpiryMinutes:    q.expiryMinutesFor(candidate),
		LastCheckAt:      time.Time{},
		Status:           domain.ObsWatching,
		SignalRowID:      signalRowID,
	}
	q.rows[row.ID] = row
	q.recentInserts[key] = time.Now()
	return row
}

func (q *Queue) expiryMinutesFor(c *domain.Candidate) int {
	if c.Kind == domain.KindTrendAnticipation {
		if v, ok := q.cfg.ExpiryMinutes["trend_anticipation"]; ok {
			return v
		}
		return 8
	}
	if isExtremeRSI(c) {
		if v, ok := q.cfg.ExpiryMinutes["reversal_extreme"]; ok {
			return v
		}
		return 5
	}
	if v, ok := q.cfg.ExpiryMinutes["reversal_normal"]; ok {
		return v
	}
	return 8
}

func isExtremeRSI(c *domain.Candidate) bool {
	return c.Metrics.RSI <= 15 || c.Metrics.RSI >= 85
}

// EligibleRows returns rows that are due for a tick check (now - last_check
// >= tick interval), skipping rows already terminal.
func (q *Queue) EligibleRows(now time.Time) []*domain.ObservationRow {
	q.mu.Lock()
	defer q.mu.Unlock()

	tick := time.Duration(q.cfg.TickSeconds) * time.Second
	var out []*domain.ObservationRow
	for _, row := range q.rows {
		if row.Status != domain.ObsWatching {
			continue
		}
		if !row.LastCheckAt.IsZero() && now.Sub(row.LastCheckAt) < tick {
			continue
		}
		out = append(out, row)
	}
	return out
}

// IsExpired reports whether row has exceeded its effective expiry window,
// measured from created_at in UTC (§4.5 per-tick step 1).
func IsExpired(row *domain.ObservationRow, now time.Time) bool {
	elapsed := now.UTC().Sub(row.CreatedAt.UTC())
	return elapsed > time.Duration(row.ExpiryMinutes)*time.Minute
}

// MarkExpired transitions row to expired.
func (q *Queue) MarkExpired(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if row, ok := q.rows[id]; ok {
		row.Status = domain.ObsExpired
	}
}

// MarkWait updates last_check without changing status (§4.5 step 3).
func (q *Queue) MarkWait(id int64, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if row, ok := q.rows[id]; ok {
		row.LastCheckAt = now
	}
}

// MarkAbandoned transitions row to abandoned with a machine-readable reason.
func (q *Queue) MarkAbandoned(id int64, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if row, ok := q.rows[id]; ok {
		row.Status = domain.ObsAbandoned
	}
	_ = reason // surfaced via the notifier/event bus by the caller, not stored inline on the row
}

// MarkTriggered transitions row to triggered once C8 has a priced order to pick up.
func (q *Queue) MarkTriggered(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if row, ok := q.rows[id]; ok {
		row.Status = domain.ObsTriggered
	}
}

// Rows returns a snapshot copy of all rows, for diagnostics/reporting.
func (q *Queue) Rows() []domain.ObservationRow {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.ObservationRow, 0, len(q.rows))
	for _, row := range q.rows {
		out = append(out, *row)
	}
	return out
}

// PricingOffset computes the limit-order pullback offset (§4.5 step 5):
// defaults 0.3-0.8% depending on how far price has already drifted versus
// detection; further drift away requests a larger pullback.
func PricingOffset(detected, current float64) float64 {
	if detected == 0 {
		return 0.3
	}
	driftPct := (current - detected) / detected * 100
	if driftPct < 0 {
		driftPct = -driftPct
	}
	switch {
	case driftPct >= 1.5:
		return 0.8
	case driftPct >= 0.8:
		return 0.5
	default:
		return 0.3
	}
}
