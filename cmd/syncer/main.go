package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/api"
	"github.com/sunwatch/solarsync/internal/config"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/metrics"
	"github.com/sunwatch/solarsync/internal/syncer"
	"github.com/sunwatch/solarsync/internal/tokencache"
	"github.com/sunwatch/solarsync/internal/vendors"
)

func main() {
	// Load .env if present, then configuration
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Database connection + migrations
	if err := db.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	database, err := db.NewConnection(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	repo := db.NewRepository(database)

	// Per-vendor token cache
	tokens := tokencache.NewRedisStore(cfg.Redis.URL)
	defer tokens.Close()

	// Metrics collector
	collector := metrics.NewCollector(cfg.Mimir)

	// Adapter factory; token writes only happen on refresh, so counting
	// them here covers every vendor login.
	factory := func(v *db.Vendor) (vendors.Adapter, error) {
		return vendors.New(v, countedTokens{tokens, collector}, logger)
	}

	orchestrator := syncer.NewOrchestrator(repo, factory, collector, logger, &cfg.Sync)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Operational HTTP surface
	server := api.NewServer(cfg, orchestrator, repo, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start ops server", zap.Error(err))
		}
	}()

	// Metrics remote write
	go collector.StartRemoteWrite(ctx)

	// Pipeline schedules
	go runOnTicker(ctx, cfg, server, logger, "plants", cfg.Sync.PlantInterval, orchestrator.SyncPlants)
	go runOnTicker(ctx, cfg, server, logger, "telemetry", cfg.Sync.TelemetryInterval, orchestrator.SyncTelemetry)
	go runOnTicker(ctx, cfg, server, logger, "alerts", cfg.Sync.AlertInterval, orchestrator.SyncAlerts)

	logger.Info("Syncer started",
		zap.String("port", cfg.Server.Port),
		zap.Duration("plant_interval", cfg.Sync.PlantInterval),
		zap.Duration("telemetry_interval", cfg.Sync.TelemetryInterval),
		zap.Duration("alert_interval", cfg.Sync.AlertInterval),
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down syncer...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops server shutdown failed", zap.Error(err))
	}

	logger.Info("Syncer stopped")
}

// countedTokens wraps the token store so each refreshed token bumps the
// refresh counter for its vendor.
type countedTokens struct {
	tokencache.Store
	collector *metrics.Collector
}

func (c countedTokens) Put(ctx context.Context, vendorID string, token *tokencache.Token) error {
	c.collector.RecordTokenRefresh(vendorID)
	return c.Store.Put(ctx, vendorID, token)
}

// runOnTicker fires one pipeline on its interval. The working window is
// checked once per tick; a run already in flight when the window closes
// finishes normally.
func runOnTicker(ctx context.Context, cfg *config.Config, server *api.Server, logger *zap.Logger, name string, interval time.Duration, run func(context.Context) (*syncer.Summary, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !cfg.Sync.InWorkingWindow(time.Now()) {
				logger.Debug("Outside working window, skipping run", zap.String("pipeline", name))
				continue
			}

			summary, err := run(ctx)
			server.Record(summary)
			if err != nil {
				logger.Error("Sync run finished with failures",
					zap.String("pipeline", name),
					zap.Error(err),
				)
			}
		}
	}
}
