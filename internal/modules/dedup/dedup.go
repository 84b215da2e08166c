// Package dedup implements the Signal Deduplicator (C3): a per-symbol
// last-seen cache deciding whether a newly detected candidate should be
// emitted, replacing a prior record, or suppressed (§4.3).
package dedup

import (
	"sync"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// Config controls cooldown, opposite-side handling, and kind priority.
type Config struct {
	CooldownMinutes       int
	EmitOnOppositeSide    bool
	ScoreImprovementDelta float64
	KindPriority          []string // highest priority first
}

// Deduplicator holds the per-symbol dedup cache.
type Deduplicator struct {
	mu       sync.Mutex
	cfg      Config
	priority map[domain.SignalKind]int
	records  map[string]domain.DedupRecord
}

// New builds a Deduplicator from Config.
func New(cfg Config) *Deduplicator {
	priority := make(map[domain.SignalKind]int, len(cfg.KindPriority))
	for i, k := range cfg.KindPriority {
		priority[domain.SignalKind(k)] = len(cfg.KindPriority) - i
	}
	return &Deduplicator{
		cfg:      cfg,
		priority: priority,
		records:  make(map[string]domain.DedupRecord),
	}
}

// ShouldEmit implements should_emit(symbol, kind, score, side) per §4.3's
// six ordered rules, evicting the prior record lazily on this call.
func (d *Deduplicator) ShouldEmit(symbol string, kind domain.SignalKind, score float64, side domain.Side) (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cooldown := time.Duration(d.cfg.CooldownMinutes) * time.Minute

	prior, ok := d.records[symbol]
	if ok && time.Since(prior.Timestamp) > 2*cooldown {
		delete(d.records, symbol)
		ok = false
	}

	decide := func(emit bool, reason string) (bool, string) {
		if emit {
			d.records[symbol] = domain.DedupRecord{Symbol: symbol, Kind: kind, Score: score, Side: side, Timestamp: time.Now()}
		}
		return emit, reason
	}

	if !ok {
		return decide(true, "no_prior_record")
	}

	if time.Since(prior.Timestamp) >= cooldown {
		return decide(true, "cooldown_elapsed")
	}

	if d.cfg.EmitOnOppositeSide && side != prior.Side {
		return decide(true, "opposite_side")
	}

	if d.priority[kind] > d.priority[prior.Kind] {
		return decide(true, "higher_priority_kind")
	}

	if d.priority[kind] == d.priority[prior.Kind] && score >= prior.Score+d.cfg.ScoreImprovementDelta {
		return decide(true, "score_improvement")
	}

	return decide(false, "suppressed_within_cooldown")
}

// Snapshot returns a copy of the current dedup cache, for diagnostics.
func (d *Deduplicator) Snapshot() map[string]domain.DedupRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]domain.DedupRecord, len(d.records))
	for k, v := range d.records {
		out[k] = v
	}
	return out
}
