package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/web3-frozen/wallet-telemetry/internal/config"
	"github.com/web3-frozen/wallet-telemetry/internal/dedup"
	"github.com/web3-frozen/wallet-telemetry/internal/handler"
	"github.com/web3-frozen/wallet-telemetry/internal/httpclient"
	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
	"github.com/web3-frozen/wallet-telemetry/internal/middleware"
	"github.com/web3-frozen/wallet-telemetry/internal/monitor"
	"github.com/web3-frozen/wallet-telemetry/internal/oracle"
	"github.com/web3-frozen/wallet-telemetry/internal/publisher"
	"github.com/web3-frozen/wallet-telemetry/internal/scheduler"
	"github.com/web3-frozen/wallet-telemetry/internal/telegram"
	"github.com/web3-frozen/wallet-telemetry/internal/tracing"
	"github.com/web3-frozen/wallet-telemetry/internal/wallet"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	trigger := scheduler.Trigger{Hour: cfg.ReportHour, Minute: cfg.ReportMinute, Location: cfg.Location}
	logger.Info("configuration loaded",
		"allowed_users", len(cfg.AllowedUserIDs),
		"endpoints", len(cfg.APIURLs),
		"trigger", trigger.String(),
		"total_mode", string(cfg.TotalMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := tracing.Init(cfg.OTelEndpoint, "wallet-telemetry", logger)
	defer shutdownTracing()

	// Outbound HTTP
	httpOpts := httpclient.DefaultOptions()
	httpOpts.Timeout = cfg.HTTPTimeout
	httpOpts.RetryMax = cfg.HTTPRetryMax
	hc := httpclient.New(httpOpts, logger)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.SourceRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SourceRateLimit), 1)
	}

	// Ledger
	stats := ledger.NewFileLedger(cfg.StatsFile)
	if _, err := stats.Entries(ctx); err != nil {
		logger.Error("ledger unreadable, refusing to start", "path", stats.Path(), "error", err)
		os.Exit(1)
	}
	logger.Info("ledger ready", "path", stats.Path())

	prices := oracle.NewBinance(hc, logger)
	aggregator := wallet.NewAggregator(
		wallet.NewClient(hc, limiter, logger),
		prices,
		stats,
		wallet.Options{
			PrimaryAddress: cfg.MainWalletAddress,
			PrimaryLabel:   cfg.MainWalletName,
			Symbol:         cfg.PriceSymbol,
			Mode:           cfg.TotalMode,
			Location:       cfg.Location,
		},
		logger,
	)

	// Telegram bot
	bot := telegram.NewBot(telegram.Options{
		Token:          cfg.BotToken,
		AllowedUserIDs: cfg.AllowedUserIDs,
		Symbol:         cfg.PriceSymbol,
	}, logger)

	deps := monitor.Deps{
		Collector: aggregator,
		Ledger:    stats,
		Prices:    prices,
		Rates:     oracle.NewFloatRates(hc, logger),
		Scheduler: scheduler.New(logger, scheduler.WithFireOnArm(cfg.FireOnArm)),
		Deliver:   bot.Deliver,
		Logger:    logger,
	}

	// Redis dedup is optional; without it the monthly announcement is not
	// deduplicated across restarts.
	if cfg.RedisURL != "" {
		dd, err := dedup.New(cfg.RedisURL, cfg.RedisPassword, logger)
		if err != nil {
			logger.Warn("redis unavailable, announcement dedup disabled", "error", err)
		} else {
			defer dd.Close()
			deps.Dedup = dd
			logger.Info("redis connected for announcement dedup")
		}
	}

	if cfg.MQTTBroker != "" {
		pub, err := publisher.New(publisher.Config{
			Broker:      cfg.MQTTBroker,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		})
		if err != nil {
			logger.Warn("mqtt unavailable, publishing disabled", "error", err)
		} else {
			defer pub.Close()
			deps.Publisher = pub
			logger.Info("mqtt connected", "topic", pub.Topic())
		}
	}

	// Monitoring engine
	engine := monitor.NewEngine(monitor.Config{
		Endpoints: cfg.APIURLs,
		Trigger:   trigger,
		Symbol:    cfg.PriceSymbol,
		Fiat:      cfg.FiatCurrency,
	}, deps)
	bot.SetCommands(engine)

	// Start background goroutines
	go bot.Run(ctx)
	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(engineDone)
	}()
	if cfg.AutoArm {
		engine.Arm(ctx, cfg.ChatID)
	}

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(stats))

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshots", handler.Snapshots(engine, stats, logger))
		r.Get("/earnings", handler.Earnings(stats, cfg.Location, time.Now, logger))
		r.Get("/schedule", handler.Schedule(engine))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	<-engineDone
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
