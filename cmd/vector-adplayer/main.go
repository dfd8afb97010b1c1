package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/radiusdt/vector-adplayer/internal/config"
	"github.com/radiusdt/vector-adplayer/internal/database"
	"github.com/radiusdt/vector-adplayer/internal/httpserver"
	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"github.com/radiusdt/vector-adplayer/internal/middleware"
	"github.com/radiusdt/vector-adplayer/internal/session"
	"github.com/radiusdt/vector-adplayer/internal/storage"
	"github.com/radiusdt/vector-adplayer/internal/tracking"
	"github.com/radiusdt/vector-adplayer/internal/vast"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting Vector ad player",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.Strings("delivery_sinks", cfg.DeliveryLog.Sinks),
		zap.Float64("handoff_skew_seconds", cfg.Playback.HandoffSkewSeconds),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Metrics.Namespace, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize backing stores. Each one is optional; the service runs on
	// the in-memory delivery log when none is reachable.
	checks := make(map[string]httpserver.HealthChecker)

	var db *database.PostgresDB
	if cfg.Database.Enabled {
		db, err = database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available, using in-memory delivery log", zap.Error(err))
			db = nil
		} else {
			defer db.Close()
			checks["postgres"] = db
		}
	}

	var rdb *database.RedisDB
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, beacon counters disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			checks["redis"] = rdb
		}
	}

	var ch *database.ClickHouseDB
	if cfg.ClickHouse.Enabled {
		ch, err = database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("ClickHouse not available, analytics sink disabled", zap.Error(err))
			ch = nil
		} else {
			defer ch.Close()
			checks["clickhouse"] = ch
		}
	}

	// Compose the delivery log
	memLog := storage.NewInMemoryDeliveryLog()
	var primary storage.DeliveryLog = memLog
	pruneMemory := true
	if db != nil && cfg.HasSink("postgres") {
		primary = storage.NewPostgresDeliveryLog(db.Pool)
		pruneMemory = false
	}

	var recorders []storage.DeliveryRecorder
	var counter *storage.RedisDeliveryCounter
	if rdb != nil && cfg.HasSink("redis") {
		counter = storage.NewRedisDeliveryCounter(rdb.Client, cfg.Redis.CounterTTL)
		recorders = append(recorders, storage.Instrument("redis", counter, m))
	}
	if ch != nil && cfg.HasSink("clickhouse") {
		recorders = append(recorders, storage.Instrument("clickhouse", storage.NewClickHouseDeliveryLog(ch.Conn), m))
	}
	deliveries := storage.NewMultiLog(primary, recorders...)

	// Wire the player stack
	loader := vast.NewLoader(cfg.Manifest, logger, m)
	sender := tracking.NewHTTPBeaconSender(cfg.Beacon, deliveries, m, logger)
	sessions := session.NewManager(cfg, loader, sender, deliveries, logger, m)
	limiter := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)

	deps := &httpserver.Dependencies{
		Sessions:    sessions,
		Deliveries:  deliveries,
		RateLimiter: limiter,
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		Gatherer:    reg,
		Checks:      checks,
	}
	if counter != nil {
		deps.Counter = counter
	}

	handler := httpserver.NewServer(deps)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background housekeeping
	go runCleanup(ctx, limiter, memLog, pruneMemory, logger)
	go sessions.RunReaper(ctx, cfg.Server.SessionIdleTTL)

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	sessions.CloseAll()

	// let in-flight beacons finish before the stores close
	done := make(chan struct{})
	go func() {
		sender.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("beacon delivery did not drain before shutdown timeout")
	}

	logger.Info("server stopped")
}

// runCleanup evicts idle per-IP limiters and, when memory is the primary
// log, drops deliveries older than a day.
func runCleanup(
	ctx context.Context,
	limiter *middleware.RateLimitMiddleware,
	memLog *storage.InMemoryDeliveryLog,
	pruneMemory bool,
	logger *zap.Logger,
) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.CleanupIPLimiters(time.Hour); n > 0 {
				logger.Debug("evicted idle rate limiters", zap.Int("count", n))
			}
			if !pruneMemory {
				continue
			}
			n, err := memLog.CleanupBefore(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				logger.Warn("delivery log cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned delivery log", zap.Int64("count", n))
			}
		}
	}
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
	}

	// Set log level
	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
