package coordinator

import (
	"context"
	"encoding/json"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/modules/detectors"
	"github.com/kairoslabs/perpsentinel/internal/store"
)

// runSignalDetection implements C2->C5's admission path: detect candidates
// over the track-1 universe, deduplicate, run the hard-rule + LLM review,
// and queue approved candidates onto the watcher (§4.2, §4.3, §4.4, §4.5).
func (c *Coordinator) runSignalDetection(ctx context.Context, btc domain.BTCSnapshot, candles map[string]domain.Candles, funding map[string]float64) error {
	for symbol, cdl := range candles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m5 := momentumFromCandles(cdl, 1)
		m15 := momentumFromCandles(cdl, 3)
		obDepth, oiChange := c.fetchSideData(ctx, symbol)
		metrics := buildMetrics(symbol, cdl, nil, funding[symbol], obDepth, oiChange, m5, m15)
		if ticker, err := c.exchange.Ticker24h(ctx, symbol); err == nil && ticker != nil {
			metrics.Price = ticker.LastPrice
			metrics.Change24h = ticker.Change24h
			metrics.QuoteVolume24h = ticker.QuoteVolume24h
		}

		reversal := detectors.DetectReversal(detectors.ReversalInput{
			Metrics:     metrics,
			Candles:     cdl,
			BTC:         btc,
			Weights:     defaultReversalWeights,
			MinScore:    c.cfg.HardRules.MinScoreReversal,
			MinVolRatio: c.cfg.HardRules.MinVolumeRatioReversal,
		})
		trend := detectors.DetectTrendAnticipation(detectors.TrendAnticipationInput{
			Metrics: metrics, Candles: cdl, BTC: btc,
		})

		for _, cand := range []*domain.Candidate{reversal, trend} {
			if cand == nil {
				continue
			}
			if err := c.processCandidate(ctx, cand); err != nil {
				c.bus.EmitError("coordinator", err, map[string]interface{}{"symbol": symbol})
			}
		}
	}
	return nil
}

// processCandidate runs one candidate through C3 (dedup), C4 (review), and
// on approval hands it to C5's watcher queue.
func (c *Coordinator) processCandidate(ctx context.Context, cand *domain.Candidate) error {
	emit, reason := c.dedup.ShouldEmit(cand.Symbol, cand.Kind, cand.Score, cand.Side)
	c.bus.Emit(events.SignalDetected, "detectors", map[string]interface{}{
		"symbol": cand.Symbol, "kind": cand.Kind, "side": cand.Side, "score": cand.Score,
	})
	if !emit {
		c.bus.Emit(events.SignalDeduplicated, "dedup", map[string]interface{}{
			"symbol": cand.Symbol, "reason": reason,
		})
		return nil
	}

	dbID, err := store.InsertSignal(c.stores.Signals, cand)
	if err != nil {
		return err
	}
	seq := c.nextSignalSeq()
	c.rememberSignalDBID(seq, dbID)

	result := c.reviewer.Review(ctx, cand)

	tier := "none"
	if result.AI != nil {
		tier = result.AI.Source
	}
	if err := store.InsertPushedSignal(c.stores.Signals, dbID, outcomeLabel(result.Approved), tier, result.Outcomes); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "insert_pushed_signal"})
	}
	if err := c.training.RecordCandidate(cand, result); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "record_training_sample"})
	}

	if !result.Approved {
		c.bus.Emit(events.SignalRejected, "reviewer", map[string]interface{}{
			"symbol": cand.Symbol, "reason": result.Reason,
		})
		if result.AI == nil && result.Reason == "AI unavailable" {
			c.bus.Emit(events.AIReviewerUnavailable, "reviewer", map[string]interface{}{"symbol": cand.Symbol})
		}
		return nil
	}

	c.bus.Emit(events.SignalApproved, "reviewer", map[string]interface{}{"symbol": cand.Symbol})

	payload, _ := json.Marshal(cand)
	row := c.watchQ.Insert(cand, seq, payload)
	if row.Status == domain.ObsDuplicateSkipped {
		return nil
	}

	watchID, err := store.InsertWatchSignal(c.stores.WatchSignals, row)
	if err != nil {
		return err
	}
	c.rememberWatchDBID(row.ID, watchID)
	c.bus.Emit(events.ObservationCreated, "watcher", map[string]interface{}{
		"symbol": cand.Symbol, "side": cand.Side, "expiry_minutes": row.ExpiryMinutes,
	})
	return nil
}

func outcomeLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}
