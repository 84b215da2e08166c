package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/clients/exchange"
	"github.com/kairoslabs/perpsentinel/internal/clients/llm"
	"github.com/kairoslabs/perpsentinel/internal/config"
	"github.com/kairoslabs/perpsentinel/internal/coordinator"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/notifier"
	"github.com/kairoslabs/perpsentinel/internal/reliability"
	"github.com/kairoslabs/perpsentinel/internal/scheduler"
	"github.com/kairoslabs/perpsentinel/internal/server"
	"github.com/kairoslabs/perpsentinel/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	runLoop := flag.Bool("run-loop", false, "run the fixed-cadence cycle loop and HTTP server")
	interval := flag.Int("interval", 0, "override cycle.interval_seconds (minimum 10)")
	observeOnly := flag.Bool("observe-only", false, "run every step through pricing but never place a live order")
	dailyReport := flag.Bool("daily-report", false, "send the trailing 24h PnL report and exit")
	weeklyReport := flag.Bool("weekly-report", false, "send the trailing 7d PnL report and exit")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting perpsentinel")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *interval > 0 {
		if *interval < 10 {
			log.Fatal().Int("interval", *interval).Msg("--interval must be >= 10")
		}
		cfg.Cycle.IntervalSeconds = *interval
	}

	stores, err := database.OpenStores(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open databases")
	}
	defer stores.Close()

	notif, err := notifier.New(cfg.TelegramBotToken, parseChatIDs(cfg.Notifier.ChatIDs, log), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init notifier")
	}

	if *dailyReport {
		runReport(notif, stores, log, notifier.DailyReport)
		return
	}
	if *weeklyReport {
		runReport(notif, stores, log, notifier.WeeklyReport)
		return
	}

	exchangeClient := exchange.New(exchange.Config{
		BaseURL:         cfg.Exchange.BaseURL,
		APIKey:          cfg.ExchangeAPIKey,
		APISecret:       cfg.ExchangeAPISecret,
		TimeoutSeconds:  cfg.Exchange.TimeoutSeconds,
		RateLimitPerSec: cfg.Exchange.RateLimitPerSec,
	}, log)

	llmClient := llm.New(llm.Config{
		CheapBaseURL:    cfg.LLM.CheapBaseURL,
		PremiumBaseURL:  cfg.LLM.PremiumBaseURL,
		CheapAPIKey:     cfg.LLMCheapAPIKey,
		PremiumAPIKey:   cfg.LLMPremiumAPIKey,
		CheapModel:      cfg.LLM.CheapModel,
		PremiumModel:    cfg.LLM.PremiumModel,
		TimeoutSeconds:  cfg.LLM.TimeoutSeconds,
		RateLimitPerSec: cfg.LLM.RateLimitPerSec,
	}, log)

	bus := events.NewBus(log)
	if notif != nil && cfg.Notifier.Enabled {
		defer notif.Attach(bus)()
	}

	coord := coordinator.New(cfg, log, exchangeClient, llmClient, stores, bus)
	coord.SetObserveOnly(*observeOnly)

	reconcileCtx, reconcileCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := coord.Reconcile(reconcileCtx); err != nil {
		log.Error().Err(err).Msg("startup reconciliation failed, continuing with an empty position book")
	}
	reconcileCancel()

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := registerJobs(sched, coord, stores, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("failed to register background jobs")
	}

	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		Stores:      stores,
		Coordinator: coord,
		Bus:         bus,
		Config:      cfg,
		DevMode:     cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *runLoop {
		go runCycleLoop(ctx, coord, cfg, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}

// runCycleLoop ticks RunCycle at cfg.Cycle.IntervalSeconds until ctx is
// cancelled, the engine's bare-ticker run mode alongside the scheduler's
// cron jobs (§5 scheduling model).
func runCycleLoop(ctx context.Context, coord *coordinator.Coordinator, cfg *config.Config, log zerolog.Logger) {
	interval := time.Duration(cfg.Cycle.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := coord.RunCycle(ctx); err != nil {
				log.Error().Err(err).Msg("cycle failed")
			}
		}
	}
}

// registerJobs wires the scheduler's cron jobs: the SQLite backup (only
// when configured) and the periodic health check (§6 ambient ops).
func registerJobs(sched *scheduler.Scheduler, coord *coordinator.Coordinator, stores *database.Stores, cfg *config.Config, log zerolog.Logger) error {
	healthJob := scheduler.NewHealthCheckJob(scheduler.HealthCheckConfig{
		Log:         log,
		LockManager: coord.LockManager(),
		Stores:      stores,
	})
	if err := sched.AddJob("0 */15 * * * *", healthJob); err != nil {
		return err
	}

	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(
			cfg.Backup.Endpoint, cfg.Backup.Region,
			cfg.BackupAccessKey, cfg.BackupSecretKey, cfg.Backup.Bucket, log,
		)
		if err != nil {
			return err
		}
		backupJob := reliability.New(stores, s3Client, cfg.DataDir, log)
		if err := sched.AddJob(cfg.Backup.Schedule, backupJob); err != nil {
			return err
		}
	}

	return nil
}

func runReport(notif *notifier.Notifier, stores *database.Stores, log zerolog.Logger, build func(*database.Stores, time.Time) (string, error)) {
	text, err := build(stores, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build report")
	}
	if notif == nil {
		log.Info().Str("report", text).Msg("notifier disabled, printing report")
		return
	}
	notif.SendText(text)
}

func parseChatIDs(raw []string, log zerolog.Logger) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			log.Warn().Str("chat_id", s).Msg("skipping malformed telegram chat id")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
