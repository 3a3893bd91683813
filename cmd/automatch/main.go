// AutoMatch - deterministic NMTC deal/CDE compatibility scoring.
// Copyright (c) 2025 nmtc.exchange
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nmtc-exchange/automatch/internal/api"
	"github.com/nmtc-exchange/automatch/internal/bus"
	"github.com/nmtc-exchange/automatch/internal/cache"
	"github.com/nmtc-exchange/automatch/internal/domain"
	"github.com/nmtc-exchange/automatch/internal/enrich"
	"github.com/nmtc-exchange/automatch/internal/match"
	"github.com/nmtc-exchange/automatch/internal/repository"
	"github.com/nmtc-exchange/automatch/internal/scan"
	"github.com/nmtc-exchange/automatch/internal/screen"
	"github.com/nmtc-exchange/automatch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("AUTOMATCH_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting automatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("AUTOMATCH_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Enrichment Service
	enricher := enrich.NewService(repo, cacheImpl, cfg.Cache.LocalTTL)
	slog.Info("enrichment service initialized")

	// Initialize Scoring Engine
	engine := match.NewEngine(match.DefaultTables(), cfg.Engine.MaxWorkers)
	slog.Info("scoring engine initialized",
		"engine_version", match.EngineVersion,
		"max_workers", cfg.Engine.MaxWorkers,
	)

	// Initialize Screen Engine
	screens, err := screen.NewEngine()
	if err != nil {
		slog.Error("failed to initialize screen engine", "error", err)
		os.Exit(1)
	}

	// Load screens from database (no hardcoded defaults - configure via API)
	if err := loadScreensFromDatabase(ctx, repo, screens); err != nil {
		slog.Error("failed to load screens", "error", err)
		os.Exit(1)
	}
	slog.Info("screen engine initialized", "screens_count", screens.ScreensCount())

	// Initialize Scan Pipeline
	scanner := scan.NewService(repo, engine, screens, enricher, busImpl, scan.Config{
		DefaultMinScore:   cfg.Engine.DefaultMinScore,
		DefaultMaxResults: cfg.Engine.DefaultMaxResults,
	})
	slog.Info("scan pipeline initialized",
		"default_min_score", cfg.Engine.DefaultMinScore,
		"default_max_results", cfg.Engine.DefaultMaxResults,
	)

	// Initialize async Worker
	asyncWorker := worker.NewWorker(busImpl, scanner, enricher)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, screens, scanner, Version, cfg.Engine.ReasonCap)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("automatch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("automatch shutdown complete")
}

// loadScreensFromDatabase loads compliance screens from the database into the
// engine. All screens are configured via POST /screens - no hardcoded defaults.
func loadScreensFromDatabase(ctx context.Context, repo domain.Repository, screens *screen.Engine) error {
	configs, err := repo.ListScreenConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list screens from database", "error", err)
		return nil // Start with empty screens - they can be added via API
	}

	if len(configs) > 0 {
		slog.Info("loading screens from database", "count", len(configs))
		return screens.LoadScreens(configs)
	}

	slog.Info("no screens in database - configure via POST /screens API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                 AUTOMATCH")
	fmt.Println("       NMTC Deal/CDE Compatibility Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /match              - Score one deal against one CDE")
	fmt.Println("    POST /scan/deal          - Scan a deal against all active CDEs")
	fmt.Println("    POST /scan/cde           - Scan a CDE against all open deals")
	fmt.Println("    GET  /deals              - List open deals")
	fmt.Println("    POST /deals              - Create a deal")
	fmt.Println("    GET  /deals/{id}         - Get deal by ID")
	fmt.Println("    GET  /deals/{id}/matches - Persisted matches for a deal")
	fmt.Println("    GET  /cdes               - List active CDEs")
	fmt.Println("    POST /cdes               - Create a CDE")
	fmt.Println("    PUT  /cdes/{id}          - Update a CDE")
	fmt.Println("    GET  /matches/{id}       - Get match by ID")
	fmt.Println("    GET  /screens            - List compliance screens")
	fmt.Println("    POST /screens            - Create a compliance screen")
	fmt.Println("    GET  /screens/{id}       - Get a stored screen")
	fmt.Println("    POST /screens/reload     - Hot-reload screens from database")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
