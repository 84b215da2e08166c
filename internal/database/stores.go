package database

import "fmt"

// Stores bundles the four store handles the engine opens on startup.
type Stores struct {
	Signals         *DB
	WatchSignals    *DB
	HighVolTrack    *DB
	XGBoostTraining *DB
}

// OpenStores opens all four named stores under dataDir, closing any already
// opened if a later one fails.
func OpenStores(dataDir string) (*Stores, error) {
	s := &Stores{}

	var err error
	if s.Signals, err = Open(dataDir, StoreSignals); err != nil {
		return nil, fmt.Errorf("opening signals store: %w", err)
	}
	if s.WatchSignals, err = Open(dataDir, StoreWatchSignals); err != nil {
		s.Signals.Close()
		return nil, fmt.Errorf("opening watch_signals store: %w", err)
	}
	if s.HighVolTrack, err = Open(dataDir, StoreHighVolTrack); err != nil {
		s.Signals.Close()
		s.WatchSignals.Close()
		return nil, fmt.Errorf("opening high_vol_track store: %w", err)
	}
	if s.XGBoostTraining, err = Open(dataDir, StoreXGBoostTraining); err != nil {
		s.Signals.Close()
		s.WatchSignals.Close()
		s.HighVolTrack.Close()
		return nil, fmt.Errorf("opening xgboost_training store: %w", err)
	}

	return s, nil
}

// Close closes all four stores, returning the first error encountered.
func (s *Stores) Close() error {
	var firstErr error
	for _, db := range []*DB{s.Signals, s.WatchSignals, s.HighVolTrack, s.XGBoostTraining} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// All returns the four stores as a slice, useful for health checks and backups.
func (s *Stores) All() []*DB {
	return []*DB{s.Signals, s.WatchSignals, s.HighVolTrack, s.XGBoostTraining}
}
