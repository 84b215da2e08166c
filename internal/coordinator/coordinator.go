package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/locking"
	"github.com/kairoslabs/perpsentinel/internal/modules/dedup"
	"github.com/kairoslabs/perpsentinel/internal/modules/detectors"
	"github.com/kairoslabs/perpsentinel/internal/modules/highvol"
	"github.com/kairoslabs/perpsentinel/internal/modules/marketcache"
	"github.com/kairoslabs/perpsentinel/internal/modules/orders"
	"github.com/kairoslabs/perpsentinel/internal/modules/position"
	"github.com/kairoslabs/perpsentinel/internal/modules/review"
	"github.com/kairoslabs/perpsentinel/internal/modules/watcher"
	"github.com/rs/zerolog"
)

// defaultReversalWeights are the reversal detector's sub-score deltas; the
// spec names the sub-scores but not their exact weights, so this mirrors
// the teacher's flat-default-then-tune posture (§4.2.1).
var defaultReversalWeights = detectors.ScoreWeights{
	Sentiment: 0.08, Funding: 0.06, Macro: 0.08, Orderbook: 0.06, OI: 0.04,
}

// Coordinator owns every long-lived component and runs the fixed-cadence
// cycle (C1 through C8) against them. One Coordinator is built in main and
// driven by the ticker loop in cmd/server (§2, §5).
type Coordinator struct {
	cfg      *config.Config
	log      zerolog.Logger
	exchange domain.ExchangeClient
	llm      domain.Reviewer
	stores   *database.Stores
	bus      *events.Bus
	lockMgr  *locking.Manager

	cache      *marketcache.Cache
	dedup      *dedup.Deduplicator
	reviewer   *review.Reviewer
	training   *review.TrainingRecorder
	watchQ     *watcher.Queue
	hvPool     *highvol.Pool
	supervisor *position.Supervisor
	executor   *orders.Executor

	mu          sync.Mutex
	signalSeq   int64
	signalDBID  map[int64]string // in-process signal row id -> signals.db UUID
	watchDBID   map[int64]string // watcher.Queue row id -> watch_signals.db UUID
	tradeID     map[string]string // symbol -> auto_trades.db UUID, for the open position
	bbWidthHist map[string][]float64
	observeOnly bool

	lastCycleAt       time.Time
	lastCycleErr      error
	lastCycleDuration time.Duration
}

// New builds a Coordinator, wiring every pipeline component from cfg.
func New(cfg *config.Config, log zerolog.Logger, exchange domain.ExchangeClient, llm domain.Reviewer, stores *database.Stores, bus *events.Bus) *Coordinator {
	gate := review.NewGate(cfg.HardRules)
	return &Coordinator{
		cfg:      cfg,
		log:      log.With().Str("component", "coordinator").Logger(),
		exchange: exchange,
		llm:      llm,
		stores:   stores,
		bus:      bus,
		lockMgr:  locking.NewManager(),

		cache: marketcache.New(exchange, marketcache.Config{
			MinCandles:         cfg.Universe.MinCandles,
			Track1CacheMinutes: cfg.Universe.Track1CacheMinutes,
			Track2CacheMinutes: cfg.Universe.Track2CacheMinutes,
			Track2TopN:         cfg.Universe.Track2TopN,
		}, log),
		dedup: dedup.New(dedup.Config{
			CooldownMinutes:       cfg.Dedup.CooldownMinutes,
			EmitOnOppositeSide:    cfg.Dedup.EmitOnOppositeSide,
			ScoreImprovementDelta: cfg.Dedup.ScoreImprovementDelta,
			KindPriority:          cfg.Dedup.KindPriority,
		}),
		reviewer:   review.New(gate, llm, log),
		training:   review.NewTrainingRecorder(stores.XGBoostTraining),
		watchQ:     watcher.New(cfg.Watcher),
		hvPool:     highvol.New(cfg.HighVol),
		supervisor: position.New(cfg.Position),
		executor:   orders.New(exchange, cfg.Orders, log),

		signalDBID:  make(map[int64]string),
		watchDBID:   make(map[int64]string),
		tradeID:     make(map[string]string),
		bbWidthHist: make(map[string][]float64),
	}
}

// SetObserveOnly toggles --observe-only: every step up through the watcher
// and high-vol pricing decision still runs, but C8 never places a live
// order (§6 CLI surface).
func (c *Coordinator) SetObserveOnly(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observeOnly = v
}

// Status is a snapshot of cycle/component health for the status endpoints.
type Status struct {
	LastCycleAt       time.Time
	LastCycleErr      string
	LastCycleDuration time.Duration
	WatchQueueDepth   int
	HighVolPoolSize   int
	OpenPositions     int
	CycleLockHeld     bool
}

// Status reports the coordinator's current snapshot for /status handlers.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	lastAt, lastErr, lastDur := c.lastCycleAt, c.lastCycleErr, c.lastCycleDuration
	c.mu.Unlock()

	errStr := ""
	if lastErr != nil {
		errStr = lastErr.Error()
	}
	return Status{
		LastCycleAt:       lastAt,
		LastCycleErr:      errStr,
		LastCycleDuration: lastDur,
		WatchQueueDepth:   len(c.watchQ.Rows()),
		HighVolPoolSize:   c.hvPool.Len(),
		OpenPositions:     c.supervisor.Len(),
		CycleLockHeld:     c.lockMgr.Held("cycle"),
	}
}

// LockManager exposes the coordinator's lock manager so the health-check
// job can clear a stuck "cycle" lock left behind by a crashed run (§6).
func (c *Coordinator) LockManager() *locking.Manager {
	return c.lockMgr
}

// Positions returns a snapshot of every currently-supervised position, for
// the /api/positions handler.
func (c *Coordinator) Positions() []domain.PositionRecord {
	symbols := c.supervisor.Symbols()
	out := make([]domain.PositionRecord, 0, len(symbols))
	for _, symbol := range symbols {
		if rec, ok := c.supervisor.Get(symbol); ok {
			out = append(out, *rec)
		}
	}
	return out
}

// nextSignalSeq hands out the in-process signal row id used to correlate
// an ObservationRow/EmittedSignalRow back to its signals.db UUID.
func (c *Coordinator) nextSignalSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signalSeq++
	return c.signalSeq
}

func (c *Coordinator) rememberSignalDBID(seq int64, dbID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signalDBID[seq] = dbID
}

func (c *Coordinator) rememberWatchDBID(rowID int64, dbID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchDBID[rowID] = dbID
}

func (c *Coordinator) watchDBIDFor(rowID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.watchDBID[rowID]
	return id, ok
}

func (c *Coordinator) pushBBWidth(symbol string, width float64) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := append(c.bbWidthHist[symbol], width)
	if len(hist) > 60 {
		hist = hist[len(hist)-60:]
	}
	c.bbWidthHist[symbol] = hist
	return hist
}

// RunCycle runs one full C1->C8 pass. It never overlaps itself: a cycle
// already in flight causes this call to return immediately (§5 scheduling
// model, grounded on the teacher's locking.Manager single-flight guard).
func (c *Coordinator) RunCycle(ctx context.Context) error {
	if err := c.lockMgr.Acquire("cycle"); err != nil {
		c.log.Warn().Msg("previous cycle still running, skipping this tick")
		return nil
	}
	defer c.lockMgr.Release("cycle")

	start := time.Now()
	err := c.runCycleLocked(ctx)

	c.mu.Lock()
	c.lastCycleAt = start
	c.lastCycleErr = err
	c.lastCycleDuration = time.Since(start)
	c.mu.Unlock()

	c.bus.Emit(events.CycleCompleted, "coordinator", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
		"error":       errString(err),
	})
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// reviewWithFallback asks the cheap endpoint first, falling back to
// premium on failure, mirroring review.Reviewer.Review's own tiering so
// the watcher and high-vol pricing prompts get the same resilience (§4.4.2).
func (c *Coordinator) reviewWithFallback(ctx context.Context, prompt string) (*domain.ReviewResult, error) {
	result, err := c.llm.ReviewSignal(ctx, prompt, true)
	if err != nil {
		c.bus.Emit(events.AIReviewerUnavailable, "coordinator", map[string]interface{}{"tier": "cheap", "error": err.Error()})
		result, err = c.llm.ReviewSignal(ctx, prompt, false)
	}
	if err != nil {
		c.bus.Emit(events.AIReviewerUnavailable, "coordinator", map[string]interface{}{"tier": "premium", "error": err.Error()})
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) runCycleLocked(ctx context.Context) error {
	workers := c.cfg.Cycle.WorkerPoolSize
	if workers <= 0 {
		workers = 5
	}

	btc := c.cache.SnapshotBTC(ctx)

	universe1 := c.cache.Universe(ctx, 1)
	candles1 := c.cache.SnapshotCandles(ctx, universe1, "5m", 200, workers)
	funding1 := c.cache.SnapshotFunding(ctx, universe1, workers)

	if err := c.runSignalDetection(ctx, btc, candles1, funding1); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "signal_detection"})
	}

	if err := c.tickWatcher(ctx, btc); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "watcher_tick"})
	}

	universe2 := c.cache.Universe(ctx, 2)
	candles2 := c.cache.SnapshotCandles(ctx, universe2, "5m", 200, workers)
	if err := c.tickHighVol(ctx, btc, candles2); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "high_vol_tick"})
	}

	if err := c.supervisePositions(ctx, btc); err != nil {
		c.bus.EmitError("coordinator", err, map[string]interface{}{"step": "position_supervision"})
	}

	return nil
}

// fetchSideData pulls the per-symbol order-book depth and open-interest
// change used to complete the Metrics bundle; fetch failures degrade to
// neutral values rather than dropping the symbol (§4.1 "served stale"
// posture extended to these secondary reads).
func (c *Coordinator) fetchSideData(ctx context.Context, symbol string) (obDepth, oiChange float64) {
	if depth, err := c.exchange.OrderBookDepth(ctx, symbol); err == nil {
		obDepth = depth
	} else {
		obDepth = 0.5
	}
	if oi, err := c.exchange.OpenInterest(ctx, symbol); err == nil {
		oiChange = oi
	}
	return obDepth, oiChange
}

func momentumFromCandles(candles domain.Candles, bars int) float64 {
	closes := candles.Closes()
	if len(closes) <= bars {
		return 0
	}
	ref := closes[len(closes)-1-bars]
	last := closes[len(closes)-1]
	if ref == 0 {
		return 0
	}
	return (last - ref) / ref * 100
}
