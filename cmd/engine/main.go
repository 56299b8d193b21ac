// Package main is the entry point for the engagement progress engine.
//
// The engine ingests engagement events (article reads, comments, highlights),
// maintains per-user daily streaks with an at-risk grace phase and paid-style
// recovery, evaluates counter achievements, projects alert flags for client
// badges, and serves streak leaderboards.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: streak, achievement, alert and leaderboard logic, no external deps
// - Application: use case orchestration (Commands/Queries/Event handlers)
// - Infrastructure: PostgreSQL and Redis persistence, event bus, scheduler
// - Interface: HTTP API
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pagefeed/engagement-engine/config"
	"github.com/pagefeed/engagement-engine/internal/application/command"
	"github.com/pagefeed/engagement-engine/internal/application/eventhandler"
	"github.com/pagefeed/engagement-engine/internal/application/query"
	"github.com/pagefeed/engagement-engine/internal/domain/achievement"
	"github.com/pagefeed/engagement-engine/internal/domain/alert"
	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/messaging"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/persistence/memory"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/persistence/postgres"
	redisstore "github.com/pagefeed/engagement-engine/internal/infrastructure/persistence/redis"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/scheduler"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/pagefeed/engagement-engine/internal/interface/http"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────

	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting engagement engine",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE (PostgreSQL, in-memory fallback for local development)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		dbConn *postgres.Connection

		streakRepo   streak.Repository
		recoveryLog  streak.RecoveryLog
		defRepo      achievement.DefinitionRepository
		progressRepo achievement.ProgressRepository
		alertRepo    alert.Repository
		boardReader  leaderboard.Reader
	)

	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if err := dbConn.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		log.Info("database connection established")

		if cfg.Database.Migrate {
			log.Info("running database migrations...")
			if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed")
		}

		streakRepo = postgres.NewStreakRepository(dbConn)
		recoveryLog = postgres.NewRecoveryLog(dbConn)
		defRepo = postgres.NewDefinitionRepository(dbConn)
		progressRepo = postgres.NewProgressRepository(dbConn)
		alertRepo = postgres.NewAlertRepository(dbConn)
		boardReader = postgres.NewLeaderboardReader(dbConn)
	} else {
		if cfg.IsProduction() {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL not set, using in-memory storage (state is lost on restart)")

		memStreaks := memory.NewStreakRepository()
		streakRepo = memStreaks
		recoveryLog = memory.NewRecoveryLog()
		defRepo = memory.NewDefinitionRepository()
		progressRepo = memory.NewProgressRepository()
		alertRepo = memory.NewAlertRepository()
		boardReader = memory.NewLeaderboardReader(memStreaks)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (event dedup, leaderboard cache)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisClient *redisstore.Client
		dedupStore  command.DedupStore
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisClient, err = redisstore.NewClient(redisstore.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection...")
			_ = redisClient.Close()
		}()
		log.Info("Redis connection established")

		dedupStore = redisstore.NewDedupStore(redisClient)
		boardReader = redisstore.NewLeaderboardCache(redisClient, boardReader)
	} else {
		if cfg.IsProduction() {
			return fmt.Errorf("Redis is required in production: duplicate suppression must survive restarts")
		}
		log.Warn("Redis disabled, using in-memory event dedup")
		dedupStore = memory.NewDedupStore()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ACHIEVEMENT CATALOG
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("seeding achievement catalog...")
	if err := defRepo.Seed(ctx, defaultCatalog()); err != nil {
		return fmt.Errorf("failed to seed achievement catalog: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS AND PROJECTIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	transitions := eventhandler.NewOnStreakTransitionHandler(alertRepo, log)
	for _, et := range transitions.EventTypes() {
		if err := eventBus.Subscribe(et, transitions.Handle); err != nil {
			return fmt.Errorf("failed to subscribe streak projector: %w", err)
		}
	}
	unlocks := eventhandler.NewOnAchievementUnlockedHandler(alertRepo, log)
	if err := eventBus.Subscribe(unlocks.EventType(), unlocks.Handle); err != nil {
		return fmt.Errorf("failed to subscribe unlock projector: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	activityHandler := command.NewRecordActivityHandler(streakRepo, eventBus, cfg.Engine.Milestones)
	engagementHandler := command.NewRecordEngagementEventHandler(defRepo, progressRepo, eventBus)
	ingestHandler := command.NewIngestEventHandler(
		dedupStore,
		activityHandler,
		engagementHandler,
		cfg.Engine.QualifyingEventTypes,
		cfg.Engine.DedupTTL,
	)
	recoverHandler := command.NewRecoverStreakHandler(
		streakRepo,
		recoveryLog,
		eventBus,
		cfg.Engine.RecoveryWindow,
	)
	acknowledgeHandler := command.NewAcknowledgeAlertHandler(alertRepo)

	getStreak := query.NewGetStreakHandler(streakRepo)
	getLeaderboard := query.NewGetLeaderboardHandler(boardReader)
	getAlertFlags := query.NewGetAlertFlagsHandler(alertRepo)
	getAchievements := query.NewGetAchievementsHandler(defRepo, progressRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SCHEDULER (at-risk expiry sweep)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		log.Info("starting scheduler...", "sweep_interval", cfg.Scheduler.SweepInterval)
		sched, err := scheduler.NewScheduler(scheduler.Config{Logger: log})
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}

		sweep := jobs.NewExpireAtRiskJob(streakRepo, eventBus, log)
		if err := sched.RegisterInterval(sweep, cfg.Scheduler.SweepInterval); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
	} else {
		log.Warn("scheduler disabled, at-risk streaks will not lapse automatically")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpserver.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.EnableCORS = cfg.HTTP.EnableCORS
	serverConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverConfig.EnableMetrics = cfg.HTTP.EnableMetrics
	serverConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpserver.NewServer(serverConfig, httpserver.Dependencies{
		IngestEventHandler:      ingestHandler,
		RecoverStreakHandler:    recoverHandler,
		AcknowledgeAlertHandler: acknowledgeHandler,
		GetStreakHandler:        getStreak,
		GetLeaderboardHandler:   getLeaderboard,
		GetAlertFlagsHandler:    getAlertFlags,
		GetAchievementsHandler:  getAchievements,
		Logger:                  log,
		HealthChecker:           &storeHealth{db: dbConn, cache: redisClient},
	})

	log.Info("starting HTTP server...", "address", serverConfig.Address())
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}

	log.Info("engagement engine stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Observability.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if cfg.App.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// defaultCatalog is the achievement catalog seeded on startup. Seeding never
// overwrites rows that already exist, so live edits survive redeploys.
func defaultCatalog() []*achievement.Definition {
	now := time.Now().UTC()
	counter := func(id, name, desc string, points int, rarity, unit, eventType string, target int) *achievement.Definition {
		return &achievement.Definition{
			ID:          id,
			Name:        name,
			Description: desc,
			Points:      points,
			Rarity:      rarity,
			Unit:        unit,
			Criteria: achievement.Criteria{
				Kind:        achievement.KindCounter,
				EventType:   eventType,
				TargetCount: target,
			},
			CreatedAt: now,
		}
	}

	return []*achievement.Definition{
		counter("first-read", "First Read", "Read your first article",
			10, achievement.RarityCommon, "articles", "article.read", 1),
		counter("bookworm", "Bookworm", "Read 50 articles",
			50, achievement.RarityRare, "articles", "article.read", 50),
		counter("centurion", "Centurion", "Read 100 articles",
			100, achievement.RarityEpic, "articles", "article.read", 100),
		counter("first-comment", "Breaking the Ice", "Post your first comment",
			10, achievement.RarityCommon, "comments", "comment.posted", 1),
		counter("conversationalist", "Conversationalist", "Post 25 comments",
			50, achievement.RarityRare, "comments", "comment.posted", 25),
		counter("first-highlight", "Marker in Hand", "Create your first highlight",
			10, achievement.RarityCommon, "highlights", "highlight.created", 1),
		counter("archivist", "Archivist", "Create 100 highlights",
			75, achievement.RarityEpic, "highlights", "highlight.created", 100),
	}
}

// storeHealth reports backing-store health for the readiness endpoints.
// Nil members mean the store is not configured and is skipped.
type storeHealth struct {
	db    *postgres.Connection
	cache *redisstore.Client
}

func (h *storeHealth) Check(ctx context.Context) httpserver.HealthStatus {
	status := httpserver.HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]string),
		CheckedAt: time.Now().UTC(),
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status.Healthy = false
			status.Checks["postgres"] = err.Error()
		} else {
			status.Checks["postgres"] = "ok"
		}
	} else {
		status.Checks["postgres"] = "in-memory"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status.Healthy = false
			status.Checks["redis"] = err.Error()
		} else {
			status.Checks["redis"] = "ok"
		}
	} else {
		status.Checks["redis"] = "disabled"
	}

	if !status.Healthy {
		status.Message = "one or more backing stores are unavailable"
	}
	return status
}
