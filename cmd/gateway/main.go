package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/eternisai/multiai-gateway/internal/api"
	"github.com/eternisai/multiai-gateway/internal/breaker"
	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/config"
	"github.com/eternisai/multiai-gateway/internal/fanout"
	"github.com/eternisai/multiai-gateway/internal/inspect"
	"github.com/eternisai/multiai-gateway/internal/ledger"
	"github.com/eternisai/multiai-gateway/internal/logger"
	"github.com/eternisai/multiai-gateway/internal/retry"
	"github.com/eternisai/multiai-gateway/internal/telemetry"
	"github.com/eternisai/multiai-gateway/internal/upstream"
)

// shutdownTimeout bounds how long in-flight requests get to drain once a
// shutdown signal arrives, mirroring the teacher's
// ServerShutdownTimeoutSeconds config option.
const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "multiai-gateway",
		Usage: "local OpenAI-compatible gateway over free-tier ollama/open_code_zen/openrouter models",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.IntFlag{Name: "port", Usage: "HTTP listen port (overrides config/env)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg := config.Load(c.String("config"))
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}

	log := logger.New(logger.FromLevelAndFormat(cfg.LogLevel, cfg.LogFormat))

	cat := catalog.New(cfg.ScannerTTL, log,
		catalog.NewOllamaAdapter("http://localhost:11434", nil),
		catalog.NewOpenCodeZenAdapter(cfg.OpenCodeZenAllowList),
		catalog.NewOpenRouterAdapter("https://openrouter.ai/api/v1", cfg.OpenRouterAPIKey, nil),
	)

	b := breaker.New(breaker.Config{FailureThreshold: cfg.CircuitFailureThreshold, ResetDelay: cfg.CircuitResetDelay}, nil)
	retryPolicy := retry.New(retry.Config{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay, MaxDelay: cfg.RetryMaxDelay})

	var sink telemetry.Sink
	if cfg.TelemetryEndpoint != "" {
		sink = telemetry.NewHTTPSink(cfg.TelemetryEndpoint, nil)
	}
	tel := telemetry.New(telemetry.Config{
		BatchSize:     cfg.TelemetryBatchSize,
		FlushInterval: cfg.TelemetryFlushInterval,
		QueueCapacity: telemetry.DefaultConfig().QueueCapacity,
		AppVersion:    "multiai-gateway",
		Platform:      "server",
	}, sink, log)
	defer tel.Close()

	creds := upstream.NewCredentials()
	creds.Set(catalog.SourceOpenRouter, cfg.OpenRouterAPIKey)
	creds.Set(catalog.SourceOpenCodeZen, cfg.OpenCodeZenAPIKey)

	client := upstream.New(http.DefaultClient, b, retryPolicy, tel, creds)
	router := fanout.New(client, cfg.FanoutMaxModels)

	store := ledger.NewFileStore(ledgerStorePath())
	spendingLedger, err := ledger.New(ledger.Config{
		DailyCap:      cfg.SpendingDailyCap,
		MonthlyCap:    cfg.SpendingMonthlyCap,
		WarnAtPercent: cfg.SpendingWarnAtPercent,
	}, store, tel, log, nil)
	if err != nil {
		log.Error("failed to load spending ledger", "error", err.Error())
		return err
	}

	resetScheduler := cron.New()
	if err := spendingLedger.RegisterResetSweep(resetScheduler); err != nil {
		log.Error("failed to register ledger reset sweep", "error", err.Error())
		return err
	}
	resetScheduler.Start()
	defer resetScheduler.Stop()

	inspector := inspect.New(cfg.InspectorMaxTransactions, true)

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	startCatalogRefresher(refreshCtx, cat, cfg.ScannerTTL, log)

	server := api.New(log, cat, router, b, spendingLedger, inspector, creds)
	engine := server.NewEngine()

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: engine,
	}

	go func() {
		log.Info("gateway listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", "error", err.Error())
	}

	log.Info("gateway exited")
	return nil
}

// startCatalogRefresher runs one periodic goroutine per source adapter,
// mirroring the teacher's fallbackWorker.run per-policy ticker loop, so the
// catalog stays warm even for sources nobody has listed recently.
func startCatalogRefresher(ctx context.Context, cat *catalog.Catalog, ttl time.Duration, log *logger.Logger) {
	for _, src := range cat.Sources() {
		src := src
		go func() {
			ticker := time.NewTicker(ttl)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cat.RefreshSource(ctx, src)
					if log != nil {
						log.Info("catalog source refreshed", "source", string(src))
					}
				}
			}
		}()
	}
}

// ledgerStorePath returns the small keyed-store file path (spec.md §6's
// "Persisted state") for the spending ledger.
func ledgerStorePath() string {
	if path := os.Getenv("MULTIAI_LEDGER_PATH"); path != "" {
		return path
	}
	return "ledger_state.json"
}
