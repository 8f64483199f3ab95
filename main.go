// Package main runs the activity feed service: it keeps a paginated feed of
// recent transactions in sync with the backend and serves it as a web page.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"activityfeed/cache"
	"activityfeed/config"
	"activityfeed/demo"
	"activityfeed/feed"
	"activityfeed/fetch"
	"activityfeed/server"
	"activityfeed/summary"
	"activityfeed/trigger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	endpoint := cfg.APIEndpoint

	// Local development mode
	if cfg.Local() {
		logger.Info("No FEED_API_ENDPOINT set, defaulting to local development mode", "demo_records", cfg.DemoRecords)
		addr, shutdown, err := startDemoBackend(ctx, cfg.DemoRecords, logger)
		if err != nil {
			return fmt.Errorf("start demo backend: %w", err)
		}
		defer shutdown()
		endpoint = "http://" + addr + demo.Path
	}

	fetcher := fetch.New(
		&http.Client{Timeout: cfg.HTTPTimeout},
		endpoint,
		logger,
		fetch.WithMaxRetries(cfg.MaxRetries),
		fetch.WithBaseDelay(cfg.RetryBaseDelay),
		fetch.WithPageSize(cfg.PageSize),
	)

	view := server.NewView()
	sync := feed.New(feed.Config{RefreshInterval: cfg.RefreshInterval}, fetcher, cache.New(cfg.CacheTTL), view, logger)
	defer sync.Close()

	panel := summary.New(sync, logger)
	defer panel.Close()

	scheduler := trigger.NewScheduler(sync, cfg.RefreshInterval, logger)
	scroll := trigger.NewScroll(sync, logger, trigger.WithThreshold(cfg.ScrollThreshold))

	logger.Info("Starting activity feed",
		"endpoint", endpoint,
		"page_size", cfg.PageSize,
		"refresh_interval", cfg.RefreshInterval.String(),
		"cache_ttl", cfg.CacheTTL.String(),
		"max_retries", cfg.MaxRetries)

	// The error row is already presented; the scheduler retries on its next tick.
	if err := sync.Start(ctx); err != nil {
		logger.Warn("Initial load failed", "error", err)
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := server.New(&server.Config{
		Feed:       sync,
		Summary:    panel,
		Scroller:   scroll,
		Visibility: scheduler,
		View:       view,
		Logger:     logger,
	})
	return srv.ListenAndServe(ctx, cfg.Port)
}

// startDemoBackend serves generated transactions on a loopback port.
func startDemoBackend(ctx context.Context, records int, logger *slog.Logger) (addr string, shutdown func(), err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}

	backend := demo.New(demo.Generate(records, time.Now(), uint64(time.Now().UnixNano())), logger.With("component", "demo"))
	srv := &http.Server{
		Handler:           backend.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Demo backend failed", "error", err)
		}
	}()

	logger.Info("Demo backend listening", "addr", ln.Addr().String(), "records", records)
	return ln.Addr().String(), func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop demo backend", "error", err)
		}
	}, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
