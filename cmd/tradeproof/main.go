// Tradeproof - Trade document verification with a tamper-evident audit trail.
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
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/tradeproof/internal/api"
	"github.com/opensource-finance/tradeproof/internal/audit"
	"github.com/opensource-finance/tradeproof/internal/bus"
	"github.com/opensource-finance/tradeproof/internal/cache"
	"github.com/opensource-finance/tradeproof/internal/crosscheck"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/metrics"
	"github.com/opensource-finance/tradeproof/internal/ratelimit"
	"github.com/opensource-finance/tradeproof/internal/report"
	"github.com/opensource-finance/tradeproof/internal/repository"
	"github.com/opensource-finance/tradeproof/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := domain.LoadConfig(os.Getenv("TRADEPROOF_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting tradeproof",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	m := metrics.New(prometheus.DefaultRegisterer)

	rules, err := crosscheck.NewRuleSet()
	if err != nil {
		slog.Error("failed to initialize rule set", "error", err)
		os.Exit(1)
	}
	loadRulesFromDatabase(ctx, repo, rules)

	engine := crosscheck.NewEngine(crosscheck.WithRules(rules))
	chain := audit.NewChain(repo, m)
	processor := report.NewProcessor()

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit, cacheImpl)
		slog.Info("rate limiting enabled",
			"requests", cfg.RateLimit.Requests,
			"window", cfg.RateLimit.Window(),
			"distributed", cfg.RateLimit.Distributed,
		)
	}

	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		pipeline := report.NewPipeline(engine, processor, repo, cacheImpl, chain, m)
		asyncWorker = worker.NewWorker(busImpl, pipeline)

		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Tenants}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(cfg.Tenants))
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Processor: processor,
		Chain:     chain,
		Metrics:   m,
		Limiter:   limiter,
		Version:   Version,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("tradeproof is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// The worker stops first so no pipeline run races the closing repository.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("tradeproof shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRulesFromDatabase loads every enabled corridor rule. A failure leaves
// the set empty; rules can be reloaded later via POST /rules/reload.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, rules *crosscheck.RuleSet) {
	dbRules, err := repo.ListAllRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return
	}

	if len(dbRules) == 0 {
		slog.Info("no corridor rules in database - configure via POST /rules API")
		return
	}

	if err := rules.LoadAll(dbRules); err != nil {
		slog.Warn("failed to load corridor rules", "error", err)
		return
	}
	slog.Info("corridor rules loaded", "count", rules.Count())
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  TRADEPROOF")
	fmt.Println("  Trade document verification engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /crosscheck                 - Cross-check documents against LC terms")
	fmt.Println("    POST /crosscheck/async           - Queue a cross-check")
	fmt.Println("    GET  /reports/{id}               - Get a report")
	fmt.Println("    GET  /trades/{tradeId}/reports   - List a trade's reports")
	fmt.Println("    POST /readiness                  - Score compliance readiness")
	fmt.Println("    POST /readiness/{id}/recheck     - Rescore a stored assessment")
	fmt.Println("    POST /trades/{tradeId}/events    - Append an audit event")
	fmt.Println("    GET  /trades/{tradeId}/verify    - Verify a trade's audit chain")
	fmt.Println("    POST /audit/verify               - Verify several chains")
	fmt.Println("    GET  /rules                      - List corridor rules")
	fmt.Println("    POST /rules                      - Create a corridor rule")
	fmt.Println("    POST /rules/reload               - Hot-reload rules from database")
	fmt.Println("    GET  /metrics                    - Prometheus metrics")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println()
}
