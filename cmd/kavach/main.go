// Kavach - Transaction risk scoring and behavioral anomaly detection.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kavach/internal/api"
	"github.com/opensource-finance/kavach/internal/behavior"
	"github.com/opensource-finance/kavach/internal/bus"
	"github.com/opensource-finance/kavach/internal/cache"
	"github.com/opensource-finance/kavach/internal/config"
	"github.com/opensource-finance/kavach/internal/domain"
	"github.com/opensource-finance/kavach/internal/metrics"
	"github.com/opensource-finance/kavach/internal/parser"
	"github.com/opensource-finance/kavach/internal/pipeline"
	"github.com/opensource-finance/kavach/internal/repository"
	"github.com/opensource-finance/kavach/internal/risk"
	"github.com/opensource-finance/kavach/internal/rules"
	"github.com/opensource-finance/kavach/internal/traces"
	"github.com/opensource-finance/kavach/internal/velocity"
	"github.com/opensource-finance/kavach/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting kavach",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"profiles", cfg.Profiles.Store,
		"velocity", cfg.Scoring.VelocitySource,
		"async", cfg.Server.Async,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Tracing
	shutdownTracing, err := traces.Init(ctx, cfg.Tracing.ServiceName, Version, cfg.Tracing.Endpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	go metrics.StartDBStatsCollector(ctx, repo.DB(), 15*time.Second)

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Scorers. Config.Validate already rejected unknown mode names.
	timeBands, _ := risk.ParseTimeBandMode(cfg.Scoring.TimeBands)
	trustTiering, _ := behavior.ParseTrustTiering(cfg.Scoring.TrustTiering)
	failurePolicy, _ := behavior.ParseFailurePolicy(cfg.Profiles.FailurePolicy)

	riskThresholds := risk.DefaultThresholds()
	riskThresholds.TimeBands = timeBands
	riskThresholds.VelocityThreshold = cfg.Scoring.VelocityThreshold
	scorer := risk.NewScorer(riskThresholds)

	behaviorThresholds := behavior.DefaultThresholds()
	behaviorThresholds.TrustTiering = trustTiering
	behaviorThresholds.VelocityThreshold = cfg.Scoring.BehaviorVelocityThreshold
	behaviorThresholds.AmountChecksNeedHistory = cfg.Scoring.AmountChecksNeedHistory

	var profiles domain.ProfileStore = repo
	if cfg.Profiles.Store == "cache" {
		profiles = cache.NewProfileStore(cacheImpl)
	}
	detector := behavior.NewDetector(profiles, behavior.Config{
		Thresholds:    behaviorThresholds,
		FailurePolicy: failurePolicy,
		OnStoreError:  metrics.StoreError,
	})
	slog.Info("scorers initialized",
		"time_bands", timeBands,
		"trust_tiering", trustTiering,
		"amount_checks_need_history", behaviorThresholds.AmountChecksNeedHistory,
		"failure_policy", failurePolicy,
	)

	// Velocity
	var counter velocity.Counter
	if cfg.Scoring.VelocitySource == "repository" {
		counter = repo
	}
	velocitySvc := velocity.NewService(counter, cacheImpl, cfg.Scoring.VelocityWindow)
	slog.Info("velocity service initialized", "window", velocitySvc.Window())

	// Operator rules
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	metrics.RulesLoaded.Set(float64(engine.RulesCount()))
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	processor := pipeline.NewProcessor(pipeline.Config{
		Scorer:   scorer,
		Detector: detector,
		Velocity: velocitySvc,
		Rules:    engine,
		Store:    repo,
		Bus:      busImpl,
		Version:  Version,
	})

	// Async worker
	var asyncWorker *worker.Worker
	if cfg.Server.Async {
		asyncWorker = worker.NewWorker(busImpl, processor)
		workerCfg := worker.Config{
			WorkerCount: cfg.Server.WorkerCount,
			QueueSize:   cfg.Server.WorkerCount * 64,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			os.Exit(1)
		}
		slog.Info("async worker started", "workers", cfg.Server.WorkerCount)
	}

	srv := api.NewServer(cfg, api.Dependencies{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Scorer:   scorer,
		Detector: detector,
		Pipeline: processor,
		Engine:   engine,
		Parser:   parser.New(),
	}, Version)
	srv.StartMaintenance(ctx)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kavach is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop taking new work before draining the worker
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
		stats := asyncWorker.GetStats()
		slog.Info("async worker stopped", "processed", stats.Processed, "failed", stats.Failed)
	}

	slog.Info("kavach shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRulesFromDatabase loads stored operator rules into the engine.
// An empty table is fine; rules can be added with POST /rules.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil
	}

	if len(stored) > 0 {
		slog.Info("loading rules from database", "count", len(stored))
		return engine.LoadRules(stored)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 KAVACH                    |")
	fmt.Println("  |   Transaction Risk & Behavior Scoring     |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /risk/analyze            - Score a transaction (stateless)")
	fmt.Println("    POST /risk/report             - Score and build a report")
	fmt.Println("    POST /behavior/init           - Load or create a profile")
	fmt.Println("    POST /behavior/analyze        - Check a transaction against a profile")
	fmt.Println("    POST /behavior/update         - Fold a transaction into a profile")
	fmt.Println("    GET  /behavior/insights       - Summarize a profile")
	fmt.Println("    POST /transactions            - Run the full pipeline")
	fmt.Println("    POST /transactions/parse      - Parse a bank SMS")
	fmt.Println("    POST /fraud/report            - Report fraud")
	fmt.Println("    GET  /fraud/stats             - Fraud statistics")
	fmt.Println("    POST /rules                   - Create an operator rule")
	fmt.Println("    GET  /health, /ready, /metrics")
	fmt.Println()
}
