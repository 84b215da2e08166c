package database

// migrationsByStore lists, per store, the ordered DDL steps applied on
// first open. Steps are never edited after release; new columns or tables
// arrive as new, higher-versioned steps.
var migrationsByStore = map[StoreName][]migrationStep{
	StoreSignals: {
		{1, "create_signals", `
			CREATE TABLE IF NOT EXISTS signals (
				id                TEXT PRIMARY KEY,
				symbol            TEXT NOT NULL,
				kind              TEXT NOT NULL,
				side              TEXT NOT NULL,
				score             REAL NOT NULL,
				price             REAL NOT NULL,
				rationale         TEXT,
				detected_at       TEXT NOT NULL,
				created_at        TEXT NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX IF NOT EXISTS idx_signals_symbol_kind ON signals(symbol, kind);
			CREATE INDEX IF NOT EXISTS idx_signals_detected_at ON signals(detected_at);
		`},
		{2, "create_pushed_signals", `
			CREATE TABLE IF NOT EXISTS pushed_signals (
				id              TEXT PRIMARY KEY,
				signal_id       TEXT NOT NULL REFERENCES signals(id),
				review_outcome  TEXT NOT NULL,
				reviewer_tier   TEXT NOT NULL,
				rule_warnings   TEXT,
				pushed_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`},
		{3, "create_auto_trades", `
			CREATE TABLE IF NOT EXISTS auto_trades (
				id               TEXT PRIMARY KEY,
				signal_id        TEXT REFERENCES signals(id),
				symbol           TEXT NOT NULL,
				side             TEXT NOT NULL,
				strategy_tag     TEXT NOT NULL,
				entry_price      REAL NOT NULL,
				quantity         REAL NOT NULL,
				stop_loss        REAL NOT NULL,
				take_profit      REAL,
				order_id         TEXT,
				sl_order_id      TEXT,
				tp_order_id      TEXT,
				status           TEXT NOT NULL DEFAULT 'open',
				opened_at        TEXT NOT NULL DEFAULT (datetime('now')),
				closed_at        TEXT,
				exit_price       REAL,
				pnl_fraction     REAL
			);
			CREATE INDEX IF NOT EXISTS idx_auto_trades_status ON auto_trades(status);
		`},
		{4, "create_outcomes", `
			CREATE TABLE IF NOT EXISTS outcomes (
				id            TEXT PRIMARY KEY,
				trade_id      TEXT NOT NULL REFERENCES auto_trades(id),
				exit_reason   TEXT NOT NULL,
				pnl_fraction  REAL NOT NULL,
				recorded_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`},
	},
	StoreWatchSignals: {
		{1, "create_watch_signals", `
			CREATE TABLE IF NOT EXISTS watch_signals (
				id              TEXT PRIMARY KEY,
				symbol          TEXT NOT NULL,
				kind            TEXT NOT NULL,
				side            TEXT NOT NULL,
				score           REAL NOT NULL,
				trigger_price   REAL NOT NULL,
				status          TEXT NOT NULL DEFAULT 'pending',
				expires_at      TEXT NOT NULL,
				triggered_at    TEXT,
				abandoned_reason TEXT,
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX IF NOT EXISTS idx_watch_signals_status ON watch_signals(status);
			CREATE INDEX IF NOT EXISTS idx_watch_signals_symbol ON watch_signals(symbol);
		`},
	},
	StoreHighVolTrack: {
		{1, "create_high_vol_signals", `
			CREATE TABLE IF NOT EXISTS high_vol_signals (
				id                TEXT PRIMARY KEY,
				symbol            TEXT NOT NULL,
				status            TEXT NOT NULL DEFAULT 'observing',
				health_score      REAL,
				readiness_score   REAL,
				entry_price       REAL,
				quantity          REAL,
				stop_loss         REAL,
				take_profit       REAL,
				order_id          TEXT,
				ai_review_count   INTEGER NOT NULL DEFAULT 0,
				valid_until       TEXT,
				created_at        TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX IF NOT EXISTS idx_high_vol_status ON high_vol_signals(status);
		`},
	},
	StoreXGBoostTraining: {
		{1, "create_training_samples", `
			CREATE TABLE IF NOT EXISTS training_samples (
				id             TEXT PRIMARY KEY,
				signal_id      TEXT NOT NULL,
				features_json  TEXT NOT NULL,
				label          REAL,
				finalized      INTEGER NOT NULL DEFAULT 0,
				created_at     TEXT NOT NULL DEFAULT (datetime('now')),
				finalized_at   TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_training_samples_finalized ON training_samples(finalized);
		`},
	},
}
