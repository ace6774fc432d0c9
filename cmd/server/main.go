package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "github.com/Ark1369/CBZ-Metadata-Manager/internal/api/http"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/app"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "seriesmatch",
		Endpoint:    cfg.TracingEndpoint,
		SampleRatio: cfg.TracingSampleRatio,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "seriesmatch"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("catalogPath", cfg.CatalogPath),
		slog.String("cachePath", cfg.CachePath),
		slog.String("remoteBaseURL", cfg.RemoteBaseURL),
		slog.Int("remoteCallsPerMinute", cfg.RemoteCallsPerMinute),
		slog.Bool("localOnly", cfg.LocalOnly),
		slog.Bool("indexDisabled", cfg.IndexDisabled),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasScoringConfig", cfg.ScoringConfigPath != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime close error", slog.String("error", err.Error()))
		}
	}()

	handler := apihttp.NewServer(rt.Service,
		apihttp.WithLogger(logger),
		apihttp.WithCatalogReloader(rt),
		apihttp.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Batch requests wait on the remote rate limit and can run for minutes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	go func() {
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-hangup:
				_, _ = rt.ReloadCatalog(rootCtx)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stats := rt.Service.Stats()
	logger.Info("series match service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Int("records", stats.Records),
		slog.Int("canonical", stats.Canonical),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("series match service stopped")
}
