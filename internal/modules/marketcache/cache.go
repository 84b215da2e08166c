// Package marketcache implements the Market Snapshot Cache (C1): the
// one-cycle-stable views of universe candles, BTC context, funding rates,
// and universe discovery that every downstream component reads instead of
// hitting the exchange client directly.
package marketcache

import (
	"context"
	"sync"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/errclass"
	"github.com/kairoslabs/perpsentinel/internal/indicators"
	"github.com/kairoslabs/perpsentinel/internal/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// staticMajors is the built-in fallback universe used when discovery fails
// entirely and no cache exists (§4.1).
var staticMajors = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "LINKUSDT", "LTCUSDT",
}

// Cache holds the per-cycle snapshot state. One Cache is owned by the
// coordinator and shared read-write across a single cycle's components.
type Cache struct {
	exchange domain.ExchangeClient
	log      zerolog.Logger

	minCandles int
	track1TTL  time.Duration
	track2TTL  time.Duration
	track2TopN int

	mu          sync.Mutex
	btc         *domain.BTCSnapshot
	universe1   []string
	universe1At time.Time
	universe2   []string
	universe2At time.Time
}

// Config configures a new Cache.
type Config struct {
	MinCandles         int
	Track1CacheMinutes int
	Track2CacheMinutes int
	Track2TopN         int
}

// New builds a Cache backed by exchange.
func New(exchange domain.ExchangeClient, cfg Config, log zerolog.Logger) *Cache {
	return &Cache{
		exchange:   exchange,
		log:        log.With().Str("component", "market_cache").Logger(),
		minCandles: cfg.MinCandles,
		track1TTL:  time.Duration(cfg.Track1CacheMinutes) * time.Minute,
		track2TTL:  time.Duration(cfg.Track2CacheMinutes) * time.Minute,
		track2TopN: cfg.Track2TopN,
	}
}

// SnapshotBTC returns the one-cycle-stable BTC context. TTL is 60s; on
// fetch failure it serves the last cached record annotated with
// updated=false and cache_age_sec, or a neutral "unknown" record if no
// cache exists at all (§4.1).
func (c *Cache) SnapshotBTC(ctx context.Context) domain.BTCSnapshot {
	c.mu.Lock()
	cached := c.btc
	c.mu.Unlock()

	if cached != nil && time.Since(cached.UpdatedAt) < 60*time.Second {
		snap := *cached
		snap.Updated = true
		snap.CacheAgeSec = int64(time.Since(cached.UpdatedAt).Seconds())
		return snap
	}

	fresh, err := c.fetchBTC(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("btc snapshot fetch failed, falling back")
		if cached != nil {
			stale := *cached
			stale.Updated = false
			stale.CacheAgeSec = int64(time.Since(cached.UpdatedAt).Seconds())
			return stale
		}
		return neutralBTC()
	}

	c.mu.Lock()
	c.btc = fresh
	c.mu.Unlock()

	snap := *fresh
	snap.Updated = true
	snap.CacheAgeSec = 0
	return snap
}

func neutralBTC() domain.BTCSnapshot {
	return domain.BTCSnapshot{
		Trend:             domain.BTCTrendNeutral,
		VolatilityRegime:  domain.BTCRegimeNormal,
		ReversalRiskTag:   "unknown",
		RecommendedAction: "neutral",
		UpdatedAt:         time.Now(),
		Updated:           false,
	}
}

func (c *Cache) fetchBTC(ctx context.Context) (*domain.BTCSnapshot, error) {
	var candles domain.Candles
	err := retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		var err error
		candles, err = c.exchange.Candles(ctx, "BTCUSDT", "1h", 50)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(candles) < 20 {
		return nil, errclass.ErrTransportFatal
	}

	closes := candles.Closes()
	price := closes[len(closes)-1]
	change1h := pctChange(closes, 1)
	change4h := pctChange(closes, 4)
	rsi := 50.0
	if v := indicators.RSI(closes, 14); v != nil {
		rsi = *v
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, cdl := range candles {
		highs[i] = cdl.High
		lows[i] = cdl.Low
	}
	atrPct := 0.0
	if v := indicators.ATRPercent(highs, lows, closes, 14); v != nil {
		atrPct = *v
	}

	return &domain.BTCSnapshot{
		Price:             price,
		Change1h:          change1h,
		Change4h:          change4h,
		Trend:             trendFor(change1h, change4h),
		RSI:               rsi,
		Momentum15m:       pctChange(closes, 1) / 4, // 15m proxy from the 1h series' latest leg
		VolatilityRegime:  regimeFor(atrPct),
		ReversalRiskTag:   reversalRiskTag(rsi),
		RecommendedAction: recommendedAction(change1h, rsi),
		UpdatedAt:         time.Now(),
		Updated:           true,
	}, nil
}

func pctChange(closes []float64, barsBack int) float64 {
	if len(closes) <= barsBack {
		return 0
	}
	prev := closes[len(closes)-1-barsBack]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prev) / prev * 100
}

func trendFor(change1h, change4h float64) domain.BTCTrendLabel {
	switch {
	case change4h <= -5:
		return domain.BTCTrendCrash
	case change4h >= 5:
		return domain.BTCTrendMoon
	case change1h <= -1:
		return domain.BTCTrendBearish
	case change1h >= 1:
		return domain.BTCTrendBullish
	default:
		return domain.BTCTrendNeutral
	}
}

func regimeFor(atrPct float64) domain.BTCVolatilityRegime {
	switch {
	case atrPct >= 3:
		return domain.BTCRegimeExtreme
	case atrPct >= 1.5:
		return domain.BTCRegimeHigh
	case atrPct < 0.5:
		return domain.BTCRegimeLow
	default:
		return domain.BTCRegimeNormal
	}
}

func reversalRiskTag(rsi float64) string {
	switch {
	case rsi <= 20 || rsi >= 80:
		return "elevated"
	default:
		return "normal"
	}
}

func recommendedAction(change1h, rsi float64) string {
	switch {
	case change1h <= -2:
		return "defensive"
	case change1h >= 2:
		return "opportunistic"
	case rsi <= 25 || rsi >= 75:
		return "cautious"
	default:
		return "neutral"
	}
}

// SnapshotCandles fetches candles for symbols concurrently with bounded
// parallelism (workers); symbols whose candle count falls below the
// configured minimum are dropped. Partial failure is tolerated — the
// cycle never aborts because one symbol's fetch failed.
func (c *Cache) SnapshotCandles(ctx context.Context, symbols []string, timeframe string, limit, workers int) map[string]domain.Candles {
	if workers <= 0 {
		workers = 1
	}

	out := make(map[string]domain.Candles, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			var candles domain.Candles
			err := retry.Do(gctx, retry.Default, func(ctx context.Context) error {
				var err error
				candles, err = c.exchange.Candles(ctx, symbol, timeframe, limit)
				return err
			})
			if err != nil {
				c.log.Debug().Err(err).Str("symbol", symbol).Msg("candle fetch failed, dropping symbol")
				return nil
			}
			if len(candles) < c.minCandles {
				return nil
			}
			mu.Lock()
			out[symbol] = candles
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-symbol errors are swallowed above; g.Wait() only surfaces ctx cancellation

	return out
}

// SnapshotFunding fetches funding rates for symbols. It prefers a single
// bulk call conceptually but the venue here only exposes a per-symbol
// endpoint, so it fans out with the same bounded pool and falls back to a
// neutral (0 rate) entry per symbol that fails, rather than aborting.
func (c *Cache) SnapshotFunding(ctx context.Context, symbols []string, workers int) map[string]float64 {
	if workers <= 0 {
		workers = 1
	}

	out := make(map[string]float64, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			rate, err := c.exchange.FundingRate(gctx, symbol)
			if err != nil {
				rate = 0
			}
			mu.Lock()
			out[symbol] = rate
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Universe returns the cached discovery universe for the requested track
// (1 = narrow/primary cadence, 2 = wide/secondary cadence), refreshing it
// if the cache has expired. Discovery failure falls back to the last cached
// universe for that track, or to the static majors list when none is cached,
// rather than returning an empty universe.
func (c *Cache) Universe(ctx context.Context, track int) []string {
	c.mu.Lock()
	var cached []string
	var cachedAt time.Time
	var ttl time.Duration
	if track == 2 {
		cached, cachedAt, ttl = c.universe2, c.universe2At, c.track2TTL
	} else {
		cached, cachedAt, ttl = c.universe1, c.universe1At, c.track1TTL
	}
	c.mu.Unlock()

	if cached != nil && time.Since(cachedAt) < ttl {
		return cached
	}

	fresh, err := c.exchange.Universe(ctx)
	if err != nil || len(fresh) == 0 {
		c.log.Warn().Err(err).Int("track", track).Msg("universe discovery failed, falling back to static majors")
		if cached != nil {
			return cached
		}
		return staticMajors
	}

	if track == 2 && c.track2TopN > 0 && len(fresh) > c.track2TopN {
		fresh = fresh[:c.track2TopN]
	}

	c.mu.Lock()
	if track == 2 {
		c.universe2, c.universe2At = fresh, time.Now()
	} else {
		c.universe1, c.universe1At = fresh, time.Now()
	}
	c.mu.Unlock()

	return fresh
}
