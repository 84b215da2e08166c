package position

import (
	"sync"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// Supervisor owns the live set of supervised positions and runs the
// ordered per-tick algorithm (§4.7). It holds no exchange/LLM clients
// directly — those are injected per call by the coordinator so this
// package stays testable with fakes.
type Supervisor struct {
	mu        sync.Mutex
	cfg       config.PositionConfig
	positions map[string]*domain.PositionRecord
}

// New builds an empty Supervisor.
func New(cfg config.PositionConfig) *Supervisor {
	return &Supervisor{cfg: cfg, positions: make(map[string]*domain.PositionRecord)}
}

// Reconcile implements §4.7 step 1 (startup reconciliation): every venue
// position not already tracked is adopted into a synthesized
// PositionRecord, recovering SL/TP from the live algo order when present,
// or else defaulting to +/-2%/+/-6% off entry.
func (s *Supervisor) Reconcile(venuePositions []domain.VenuePosition, algoOrders map[string][]domain.VenueOrder, now time.Time) []*domain.PositionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var adopted []*domain.PositionRecord
	for _, vp := range venuePositions {
		if _, exists := s.positions[vp.Symbol]; exists {
			continue
		}
		sl, tp := defaultStops(vp.Side, vp.EntryPrice)
		for _, order := range algoOrders[vp.Symbol] {
			switch order.Type {
			case "stop_loss":
				sl = order.Price
			case "take_profit":
				tp = order.Price
			}
		}
		rec := &domain.PositionRecord{
			Symbol: vp.Symbol, Side: vp.Side, EntryPrice: vp.EntryPrice, Contracts: vp.Quantity,
			OriginalSL: sl, OriginalTP: tp, CurrentSL: sl, CurrentTP: tp,
			CurrentTierIndex: -1, Strategy: domain.StrategySynced, OpenedAt: now,
		}
		s.positions[vp.Symbol] = rec
		adopted = append(adopted, rec)
	}
	return adopted
}

func defaultStops(side domain.Side, entry float64) (sl, tp float64) {
	if side == domain.SideLong {
		return entry * 0.98, entry * 1.06
	}
	return entry * 1.02, entry * 0.94
}

// Adopt registers a freshly opened position (called by C8 right after a
// successful create_order_with_sl_tp).
func (s *Supervisor) Adopt(rec *domain.PositionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.CurrentTierIndex = -1
	s.positions[rec.Symbol] = rec
}

// Get returns the tracked record for symbol, if any.
func (s *Supervisor) Get(symbol string) (*domain.PositionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.positions[symbol]
	return rec, ok
}

// Close removes symbol from supervision (position fully closed).
func (s *Supervisor) Close(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, symbol)
}

// Symbols returns every currently supervised symbol, for iteration by the
// cycle orchestrator.
func (s *Supervisor) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		out = append(out, sym)
	}
	return out
}

// Len reports how many positions are under supervision (one record per
// symbol, enforced by the map key).
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

// EmergencyStopTriggered implements §4.7 step 2: an unconditional flat-out
// once unrealized loss breaches emergency_sl_percent, ahead of every other
// check in the per-tick ordering.
func EmergencyStopTriggered(pnlFraction float64, cfg config.PositionConfig) bool {
	threshold := cfg.EmergencySLPercent
	if threshold <= 0 {
		threshold = 2.0
	}
	return pnlFraction*100 <= -threshold
}

// NeedsSLVerification implements §4.7 step 3: the live algo order for the
// stop loss is re-checked on its own cadence, independent of the other
// per-tick steps.
func NeedsSLVerification(lastVerifiedAt time.Time, now time.Time, cfg config.PositionConfig) bool {
	interval := time.Duration(cfg.StopVerifySeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return lastVerifiedAt.IsZero() || now.Sub(lastVerifiedAt) >= interval
}
