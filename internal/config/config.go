// Package config loads the engine's single YAML configuration document and
// overlays secrets from the environment, per spec §6: a single YAML file is
// the source of truth for every runtime-visible knob, with secrets supplied
// out-of-band via the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document decoded from config.yaml.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	DevMode  bool   `yaml:"dev_mode"`
	Port     int    `yaml:"port"`

	Cycle     CycleConfig    `yaml:"cycle"`
	Universe  UniverseConfig `yaml:"universe"`
	Dedup     DedupConfig    `yaml:"dedup"`
	HardRules HardRuleConfig `yaml:"hard_rules"`
	Watcher   WatcherConfig  `yaml:"watcher"`
	HighVol   HighVolConfig  `yaml:"high_vol"`
	Position  PositionConfig `yaml:"position"`
	Orders    OrdersConfig   `yaml:"orders"`
	Stops     StopsConfig    `yaml:"stops"`
	LLM       LLMConfig      `yaml:"llm"`
	Exchange  ExchangeConfig `yaml:"exchange"`
	Notifier  NotifierConfig `yaml:"notifier"`
	Backup    BackupConfig   `yaml:"backup"`

	// Secrets, overlaid from environment after YAML decode; never read from YAML.
	ExchangeAPIKey    string `yaml:"-"`
	ExchangeAPISecret string `yaml:"-"`
	LLMCheapAPIKey    string `yaml:"-"`
	LLMPremiumAPIKey  string `yaml:"-"`
	TelegramBotToken  string `yaml:"-"`
	BackupAccessKey   string `yaml:"-"`
	BackupSecretKey   string `yaml:"-"`
}

// CycleConfig governs the fixed-cadence event loop (§2, §5).
type CycleConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	WorkerPoolSize  int `yaml:"worker_pool_size"`
}

// UniverseConfig governs candidate-universe discovery caching (§4.1).
type UniverseConfig struct {
	Track1CacheMinutes int `yaml:"track1_cache_minutes"`
	Track2CacheMinutes int `yaml:"track2_cache_minutes"`
	Track2TopN         int `yaml:"track2_top_n"`
	MinCandles         int `yaml:"min_candles"`
}

// DedupConfig governs the signal deduplicator (§4.3).
type DedupConfig struct {
	CooldownMinutes       int      `yaml:"cooldown_minutes"`
	EmitOnOppositeSide    bool     `yaml:"emit_on_opposite_side"`
	ScoreImprovementDelta float64  `yaml:"score_improvement_delta"`
	KindPriority          []string `yaml:"kind_priority"` // highest first
}

// HardRuleConfig governs the C4 deterministic gate (§4.4.1).
type HardRuleConfig struct {
	MinScoreReversal          float64         `yaml:"min_score_reversal"`
	MinScoreTrendAnticipation float64         `yaml:"min_score_trend_anticipation"`
	MinVolumeRatioReversal    float64         `yaml:"min_volume_ratio_reversal"`
	MinVolumeRatioTrend       float64         `yaml:"min_volume_ratio_trend"`
	Extreme24hMovePercent     float64         `yaml:"extreme_24h_move_percent"`
	Elevated24hMovePercent    float64         `yaml:"elevated_24h_move_percent"`
	ElevatedRequiredScore     float64         `yaml:"elevated_required_score"`
	ElevatedRequiredVolRatio  float64         `yaml:"elevated_required_vol_ratio"`
	MaxFundingRateAbs         float64         `yaml:"max_funding_rate_abs"`
	MinOrderBookDepth         float64         `yaml:"min_order_book_depth"`
	MaxSlippageFractionOfSL   float64         `yaml:"max_slippage_fraction_of_sl"`
	EnabledRules              map[string]bool `yaml:"enabled_rules"`
}

// WatcherConfig governs the C5 observation queue (§4.5).
type WatcherConfig struct {
	TickSeconds             int            `yaml:"tick_seconds"`
	UniquenessWindowMinutes int            `yaml:"uniqueness_window_minutes"`
	ExpiryMinutes           map[string]int `yaml:"expiry_minutes"`
}

// HighVolConfig governs the C6 track (§4.6).
type HighVolConfig struct {
	PoolCapacity                 int     `yaml:"pool_capacity"`
	MinChange24hPercent          float64 `yaml:"min_change_24h_percent"`
	MaxChange24hPercent          float64 `yaml:"max_change_24h_percent"`
	MinQuoteVolume24h            float64 `yaml:"min_quote_volume_24h"`
	Max5mMovePercent             float64 `yaml:"max_5m_move_percent"`
	BBWidthBreakoutMult          float64 `yaml:"bb_width_breakout_mult"`
	HealthEvictThreshold         float64 `yaml:"health_evict_threshold"`
	ValidSeconds                 int     `yaml:"valid_seconds"`
	MaxAIReviews                 int     `yaml:"max_ai_reviews"`
	CounterTradeMinProfitPercent float64 `yaml:"counter_trade_min_profit_percent"`
	TotalCapitalUSDT             float64 `yaml:"total_capital_usdt"`
	MaxPositionPercent           float64 `yaml:"max_position_percent"`
	MaxPositionUSDT              float64 `yaml:"max_position_usdt"`
	MinPositionUSDT              float64 `yaml:"min_position_usdt"`
	Leverage                     float64 `yaml:"leverage"`
}

// PositionConfig governs the C7 supervisor (§4.7).
type PositionConfig struct {
	EmergencySLPercent      float64     `yaml:"emergency_sl_percent"`
	StopVerifySeconds       int         `yaml:"stop_verify_seconds"`
	TierTable               []TierEntry `yaml:"tier_table"`
	TieredStopEnabled       bool        `yaml:"tiered_stop_enabled"`
	BreakevenTriggerPercent float64     `yaml:"breakeven_trigger_percent"`
	BreakevenBufferPercent  float64     `yaml:"breakeven_buffer_percent"`
	TrailingDistancePercent float64     `yaml:"trailing_distance_percent"`
	DynamicTPSeconds        int         `yaml:"dynamic_tp_seconds"`
	ReviewIntervalSeconds   int         `yaml:"review_interval_seconds"`
	MinReviewIntervalSeconds int        `yaml:"min_review_interval_seconds"`
	MinHoldingMinutes       int         `yaml:"min_holding_minutes"`
}

// TierEntry is one (trigger, lock) pair in the trailing-stop tier table (§4.7 step 4).
type TierEntry struct {
	TriggerPercent float64 `yaml:"trigger_percent"`
	LockPercent    float64 `yaml:"lock_percent"`
}

// OrdersConfig governs the C8 executor (§4.8).
type OrdersConfig struct {
	MaxDailyTrades       int     `yaml:"max_daily_trades"`
	MaxDailyLossPercent  float64 `yaml:"max_daily_loss_percent"`
	MaxPositions         int     `yaml:"max_positions"`
	BalanceMarginBuffer  float64 `yaml:"balance_margin_buffer"`
	UpdateSLMaxRetries   int     `yaml:"update_sl_max_retries"`
	UpdateSLRetryDelayMs int     `yaml:"update_sl_retry_delay_ms"`
}

// StopsConfig governs the adaptive-stops pure function (§4.9).
type StopsConfig struct {
	SnapToSupportResistance bool `yaml:"snap_to_support_resistance"`
}

// LLMConfig governs the two JSON-only review endpoints (§6).
type LLMConfig struct {
	CheapModel      string  `yaml:"cheap_model"`
	PremiumModel    string  `yaml:"premium_model"`
	CheapBaseURL    string  `yaml:"cheap_base_url"`
	PremiumBaseURL  string  `yaml:"premium_base_url"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// ExchangeConfig governs the venue REST client (§6).
type ExchangeConfig struct {
	BaseURL         string  `yaml:"base_url"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// NotifierConfig governs the Telegram-style notifier (§6).
type NotifierConfig struct {
	Enabled bool     `yaml:"enabled"`
	ChatIDs []string `yaml:"chat_ids"`
}

// BackupConfig governs the S3-compatible SQLite backup job (SPEC_FULL §2).
type BackupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Schedule string `yaml:"schedule"`
}

// Load reads config.yaml from path, then overlays secrets from the
// environment (loading an optional .env first), matching the teacher's
// layered precedence: YAML for knobs, environment for secrets.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.overlaySecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) overlaySecrets() {
	c.ExchangeAPIKey = getEnv("EXCHANGE_API_KEY", c.ExchangeAPIKey)
	c.ExchangeAPISecret = getEnv("EXCHANGE_API_SECRET", c.ExchangeAPISecret)
	c.LLMCheapAPIKey = getEnv("LLM_CHEAP_API_KEY", c.LLMCheapAPIKey)
	c.LLMPremiumAPIKey = getEnv("LLM_PREMIUM_API_KEY", c.LLMPremiumAPIKey)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.BackupAccessKey = getEnv("BACKUP_ACCESS_KEY", c.BackupAccessKey)
	c.BackupSecretKey = getEnv("BACKUP_SECRET_KEY", c.BackupSecretKey)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks required fields, mirroring the teacher's Config.Validate.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Cycle.IntervalSeconds < 10 {
		return fmt.Errorf("cycle.interval_seconds must be >= 10, got %d", c.Cycle.IntervalSeconds)
	}
	if len(c.Position.TierTable) == 0 {
		return fmt.Errorf("position.tier_table must not be empty")
	}
	return nil
}

// Default returns a Config pre-populated with the defaults named throughout
// spec.md §4, so a minimal config.yaml only needs to override what differs.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		LogLevel: "info",
		Port:     8010,
		Cycle: CycleConfig{
			IntervalSeconds: 60,
			WorkerPoolSize:  5,
		},
		Universe: UniverseConfig{
			Track1CacheMinutes: 30,
			Track2CacheMinutes: 5,
			Track2TopN:         150,
			MinCandles:         50,
		},
		Dedup: DedupConfig{
			CooldownMinutes:       30,
			EmitOnOppositeSide:    true,
			ScoreImprovementDelta: 0.05,
			KindPriority:          []string{"trend_anticipation", "reversal", "high_vol_accumulation", "trend_explosion", "trend_continuation"},
		},
		HardRules: HardRuleConfig{
			MinScoreReversal:          0.75,
			MinScoreTrendAnticipation: 0.75,
			MinVolumeRatioReversal:    2.0,
			MinVolumeRatioTrend:       1.0,
			Extreme24hMovePercent:     60,
			Elevated24hMovePercent:    40,
			ElevatedRequiredScore:     0.86,
			ElevatedRequiredVolRatio:  1.0,
			MaxFundingRateAbs:         0.003,
			MinOrderBookDepth:         0.40,
			MaxSlippageFractionOfSL:   0.60,
			EnabledRules:              map[string]bool{},
		},
		Watcher: WatcherConfig{
			TickSeconds:             60,
			UniquenessWindowMinutes: 10,
			ExpiryMinutes: map[string]int{
				"trend_anticipation": 8,
				"reversal_extreme":   5,
				"reversal_normal":    8,
			},
		},
		HighVol: HighVolConfig{
			PoolCapacity:                 10,
			MinChange24hPercent:          8,
			MaxChange24hPercent:          40,
			MinQuoteVolume24h:            2_000_000,
			Max5mMovePercent:             3,
			BBWidthBreakoutMult:          1.3,
			HealthEvictThreshold:         40,
			ValidSeconds:                 300,
			MaxAIReviews:                 3,
			CounterTradeMinProfitPercent: 0.5,
			TotalCapitalUSDT:             10_000,
			MaxPositionPercent:           0.1,
			MaxPositionUSDT:              2_000,
			MinPositionUSDT:              50,
			Leverage:                     5,
		},
		Position: PositionConfig{
			EmergencySLPercent:      2.0,
			StopVerifySeconds:       60,
			TieredStopEnabled:       true,
			BreakevenTriggerPercent: 1.0,
			BreakevenBufferPercent:  0.2,
			TrailingDistancePercent: 1.0,
			DynamicTPSeconds:        30,
			ReviewIntervalSeconds:    300,
			MinReviewIntervalSeconds: 120,
			MinHoldingMinutes:       10,
			TierTable: []TierEntry{
				{TriggerPercent: 0.4, LockPercent: 0.1},
				{TriggerPercent: 1.0, LockPercent: 0.3},
				{TriggerPercent: 2.0, LockPercent: 1.2},
				{TriggerPercent: 4.0, LockPercent: 2.5},
				{TriggerPercent: 8.0, LockPercent: 6.0},
				{TriggerPercent: 15.0, LockPercent: 12.0},
				{TriggerPercent: 25.0, LockPercent: 22.0},
				{TriggerPercent: 40.0, LockPercent: 39.0},
				{TriggerPercent: 50.0, LockPercent: 48.0},
			},
		},
		Orders: OrdersConfig{
			MaxDailyTrades:       20,
			MaxDailyLossPercent:  5,
			MaxPositions:         10,
			BalanceMarginBuffer:  1.1,
			UpdateSLMaxRetries:   3,
			UpdateSLRetryDelayMs: 1000,
		},
		Stops: StopsConfig{
			SnapToSupportResistance: true,
		},
		LLM: LLMConfig{
			CheapModel:      "cheap-review-v1",
			PremiumModel:    "premium-review-v1",
			TimeoutSeconds:  45,
			RateLimitPerSec: 2,
		},
		Exchange: ExchangeConfig{
			TimeoutSeconds:  30,
			RateLimitPerSec: 5,
		},
		Notifier: NotifierConfig{
			Enabled: false,
		},
		Backup: BackupConfig{
			Enabled:  false,
			Schedule: "0 0 3 * * *",
		},
	}
}

// CycleInterval returns the cycle period as a time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Cycle.IntervalSeconds) * time.Second
}
