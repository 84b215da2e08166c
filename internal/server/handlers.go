package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/store"
)

// handleHealth reports basic liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "perpsentinel",
	})
}

// handleSystemStatus reports the coordinator's per-component snapshot (§2,
// §9's at-most-one-position invariant made observable for an operator).
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		s.writeError(w, http.StatusServiceUnavailable, "coordinator not wired")
		return
	}
	status := s.coord.Status()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_cycle_at":       status.LastCycleAt,
		"last_cycle_err":      status.LastCycleErr,
		"last_cycle_duration": status.LastCycleDuration.String(),
		"watch_queue_depth":   status.WatchQueueDepth,
		"high_vol_pool_size":  status.HighVolPoolSize,
		"open_positions":      status.OpenPositions,
		"cycle_lock_held":     status.CycleLockHeld,
	})
}

// handleOpenPositions reports every currently-supervised position.
func (s *Server) handleOpenPositions(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		s.writeError(w, http.StatusServiceUnavailable, "coordinator not wired")
		return
	}
	s.writeJSON(w, http.StatusOK, s.coord.Positions())
}

// handleTradeHistory returns trades still open in the ledger.
func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	if s.stores == nil {
		s.writeError(w, http.StatusServiceUnavailable, "database not wired")
		return
	}
	trades, err := store.OpenTrades(s.stores.Signals)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// handleDailySummary reports realized PnL over the trailing 24h.
func (s *Server) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	if s.stores == nil {
		s.writeError(w, http.StatusServiceUnavailable, "database not wired")
		return
	}
	count, pnlFraction, err := store.DailyPnLSummary(s.stores.Signals, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trade_count":  count,
		"pnl_fraction": pnlFraction,
		"pnl_percent":  pnlFraction * 100,
		"window_hours": 24,
	})
}

// handleEventStream streams every bus event to the client as SSE, for the
// live dashboard (§6 ambient ops).
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event bus not wired")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan *events.Event, 64)
	unsubscribe := s.bus.Subscribe(nil, func(event *events.Event) {
		select {
		case ch <- event:
		default:
			s.log.Warn().Msg("event stream subscriber too slow, dropping event")
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-ch:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
