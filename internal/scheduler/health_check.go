package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/locking"
	"github.com/rs/zerolog"
)

// HealthCheckJob runs SQLite integrity checks and WAL checkpoint
// monitoring across the four stores, and clears locks left stuck by a
// panicked job. cmd/server schedules it every 15 minutes (§6 ambient ops).
type HealthCheckJob struct {
	log         zerolog.Logger
	lockManager *locking.Manager
	stores      *database.Stores
}

// HealthCheckConfig configures the job.
type HealthCheckConfig struct {
	Log         zerolog.Logger
	LockManager *locking.Manager
	Stores      *database.Stores
}

// NewHealthCheckJob creates a new health check job.
func NewHealthCheckJob(cfg HealthCheckConfig) *HealthCheckJob {
	return &HealthCheckJob{
		log:         cfg.Log.With().Str("job", "health_check").Logger(),
		lockManager: cfg.LockManager,
		stores:      cfg.Stores,
	}
}

// Name returns the job name.
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check.
func (j *HealthCheckJob) Run() error {
	if err := j.lockManager.Acquire("health_check"); err != nil {
		j.log.Warn().Err(err).Msg("health check already running")
		return nil
	}
	defer j.lockManager.Release("health_check")

	j.log.Info().Msg("starting database health check")
	start := time.Now()

	if err := j.checkIntegrity(); err != nil {
		j.log.Error().Err(err).Msg("database integrity check failed")
		return err
	}

	j.checkWALCheckpoints()
	j.clearStuckLocks()

	j.log.Info().Dur("duration", time.Since(start)).Msg("health check completed")
	return nil
}

func (j *HealthCheckJob) namedStores() map[string]*database.DB {
	return map[string]*database.DB{
		"signals":          j.stores.Signals,
		"watch_signals":    j.stores.WatchSignals,
		"high_vol_track":   j.stores.HighVolTrack,
		"xgboost_training": j.stores.XGBoostTraining,
	}
}

func (j *HealthCheckJob) checkIntegrity() error {
	for name, db := range j.namedStores() {
		if db == nil {
			j.log.Warn().Str("database", name).Msg("store not initialized, skipping")
			continue
		}
		if err := checkDatabaseIntegrity(db.Conn()); err != nil {
			return fmt.Errorf("store %s is corrupted: %w", name, err)
		}
		j.log.Debug().Str("database", name).Msg("integrity OK")
	}
	return nil
}

func checkDatabaseIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

func (j *HealthCheckJob) checkWALCheckpoints() {
	for name, db := range j.namedStores() {
		if db == nil {
			continue
		}
		var mode, busy, log, checkpointed int
		if err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&mode, &busy, &log, &checkpointed); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("failed to check WAL checkpoint")
			continue
		}
		if log > 1000 {
			j.log.Warn().Str("database", name).Int("wal_frames", log).Int("checkpointed", checkpointed).
				Msg("WAL file is large, checkpoint may be needed")
		} else {
			j.log.Debug().Str("database", name).Int("wal_frames", log).Msg("WAL checkpoint status OK")
		}
	}
}

func (j *HealthCheckJob) clearStuckLocks() {
	cleared, err := j.lockManager.ClearStuckLocks(1 * time.Hour)
	if err != nil {
		j.log.Error().Err(err).Msg("failed to clear stuck locks")
		return
	}
	if len(cleared) > 0 {
		j.log.Warn().Strs("locks", cleared).Msg("cleared stuck locks")
	} else {
		j.log.Debug().Msg("no stuck locks found")
	}
}
