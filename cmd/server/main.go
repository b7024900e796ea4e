package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/api"
	"github.com/scrapeforge/scrapeforge/internal/browser"
	"github.com/scrapeforge/scrapeforge/internal/config"
	"github.com/scrapeforge/scrapeforge/internal/export"
	"github.com/scrapeforge/scrapeforge/internal/jobs"
	"github.com/scrapeforge/scrapeforge/internal/mcp"
	"github.com/scrapeforge/scrapeforge/internal/pipeline"
	"github.com/scrapeforge/scrapeforge/internal/ratelimit"
	"github.com/scrapeforge/scrapeforge/internal/rules"
	"github.com/scrapeforge/scrapeforge/internal/session"
	"github.com/scrapeforge/scrapeforge/internal/stream"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// no .env file; system environment only
	}
	cfg := config.Load()

	log, err := newLogger(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	sugar.Infow("starting scrapeforge", "mode", cfg.Mode, "addr", cfg.Addr)

	// Core engine components, constructed once and injected.
	bus := session.NewBus(sugar)
	registry := session.NewRegistry(session.Options{
		MaxSessions:   cfg.MaxSessions,
		DefaultTTL:    cfg.SessionTTL,
		Retention:     cfg.SessionRetention,
		SweepInterval: cfg.SweepInterval,
		DefaultConfig: cfg.DefaultSession,
	}, bus, sugar)
	defer registry.Shutdown()

	tracker := jobs.NewTracker(cfg.JobRetention, cfg.SweepInterval, sugar)
	defer tracker.Shutdown()

	pipelineRegistry := pipeline.NewRegistry()
	cleaner := pipeline.NewCleaner(pipelineRegistry, sugar)
	processor := pipeline.NewProcessor(cleaner, tracker, sugar)

	exporter := export.NewExporter(tracker, export.NewWriters(), cfg.ExportDir, cfg.MaxExports, sugar)
	defer exporter.Close()

	rulebook, err := rules.NewLoader(cfg.RulebookPath, sugar)
	if err != nil {
		sugar.Fatalw("failed to load rulebook", "path", cfg.RulebookPath, "error", err)
	}
	if _, statErr := os.Stat(cfg.RulebookPath); statErr == nil {
		watcher, werr := rules.NewWatcher(rulebook, sugar)
		if werr != nil {
			sugar.Warnw("rulebook watcher unavailable", "error", werr)
		} else {
			defer watcher.Stop()
		}
	}

	fetcher := browser.NewFetcher(
		cfg.DefaultSession.UserAgent,
		time.Duration(cfg.DefaultSession.RequestTimeoutMS)*time.Millisecond,
		sugar,
	)

	var pool *browser.Pool
	if cfg.ChromeEnabled {
		pool, err = browser.NewPool(sugar)
		if err != nil {
			sugar.Fatalw("failed to create browser pool", "error", err)
		}
		defer pool.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if err := pool.EnsureImage(ctx); err != nil {
			sugar.Fatalw("failed to ensure browser image", "error", err)
		}
		cancel()
	}

	if cfg.Mode == "mcp" {
		srv := mcp.NewServer(registry, processor, tracker, exporter, rulebook, fetcher, sugar)
		if err := srv.Serve(); err != nil {
			sugar.Fatalw("mcp server error", "error", err)
		}
		return
	}

	scrapeLimiter := ratelimit.NewPerSecondLimiter(cfg.DefaultSession.RateLimitPerSecond, 1)
	apiLimiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	streamServer := stream.NewServer(registry, sugar)

	handler := api.NewHandler(registry, processor, tracker, exporter, rulebook, fetcher, pool, scrapeLimiter, sugar)
	router := handler.SetupRoutes(streamServer, apiLimiter, cfg.RateLimitPerHour)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sugar.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Errorw("forced shutdown", "error", err)
	}

	// final synchronous sweeps before the deferred teardown
	registry.Cleanup(time.Now())
	tracker.Sweep(time.Now())
	sugar.Info("stopped")
}

// newLogger builds the process logger: JSON in production, console in
// development.
func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
