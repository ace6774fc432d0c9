package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/catalog"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/enrichment"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/search"
)

// Runtime holds the wired components shared by the server and the CLI.
type Runtime struct {
	Config   Config
	Engine   *search.QueryEngine
	Service  *search.Service
	Cache    *remote.FileCache
	Remote   *remote.Client
	Enricher *enrichment.Client
	Report   catalog.LoadReport

	logger  *slog.Logger
	closers []func() error
}

// Build loads the catalog and wires the engine, remote client, response cache
// and enrichment client. An unreachable Redis only disables the mirror.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: cfg, logger: logger}

	scoring, err := LoadScoringConfig(cfg.ScoringConfigPath)
	if err != nil {
		return nil, err
	}

	snapshot, report, err := catalog.NewLoader(catalog.WithLogger(logger)).LoadFile(ctx, cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogPath, err)
	}
	rt.Report = report

	rt.Engine = search.NewQueryEngine(snapshot, EngineOptions(cfg, scoring, logger)...)

	cache, closeCache, err := OpenResponseCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.Cache = cache
	rt.closers = append(rt.closers, closeCache)

	// Both upstream services share one call budget.
	limiter := remote.NewLimiter(cfg.RemoteCallsPerMinute)
	retry := remote.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RemoteMaxAttempts

	rt.Remote = remote.NewClient(
		remote.WithHTTPClient(newHTTPClient(cfg.RemoteTimeout)),
		remote.WithBaseURL(cfg.RemoteBaseURL),
		remote.WithHost(cfg.RemoteHost),
		remote.WithUserAgent(cfg.RemoteUserAgent),
		remote.WithLimiter(limiter),
		remote.WithRetryConfig(retry),
		remote.WithCache(rt.Cache),
		remote.WithLogger(logger),
	)
	rt.Enricher = enrichment.NewClient(
		enrichment.WithHTTPClient(newHTTPClient(enrichment.DefaultTimeout)),
		enrichment.WithEndpoint(cfg.EnrichEndpoint),
		enrichment.WithMaxPages(cfg.EnrichMaxPages),
		enrichment.WithLimiter(limiter),
		enrichment.WithRetryConfig(retry),
		enrichment.WithLogger(logger),
	)

	rt.Service = search.NewService(rt.Engine,
		search.WithRemote(rt.Remote),
		search.WithCacheAdmin(rt.Cache),
		search.WithEnricher(rt.Enricher),
		search.WithLocalOnly(cfg.LocalOnly),
		search.WithBatchWorkers(cfg.BatchWorkers),
		search.WithServiceLogger(logger),
	)
	return rt, nil
}

// EngineOptions translates configuration into query engine options.
func EngineOptions(cfg Config, scoring search.ScoringConfig, logger *slog.Logger) []search.EngineOption {
	return []search.EngineOption{
		search.WithEngineLogger(logger),
		search.WithScoringConfig(scoring),
		search.WithDefaultLimit(cfg.SearchLimit),
		search.WithPerfectMatchCutoff(cfg.PerfectMatchCutoff),
		search.WithIndex(!cfg.IndexDisabled),
	}
}

// ReloadCatalog re-reads the catalog file and swaps the engine snapshot.
// The previous snapshot stays active when loading fails.
func (rt *Runtime) ReloadCatalog(ctx context.Context) (catalog.LoadReport, error) {
	snapshot, report, err := catalog.NewLoader(catalog.WithLogger(rt.logger)).LoadFile(ctx, rt.Config.CatalogPath)
	if err != nil {
		rt.logger.Error("catalog reload failed", slog.String("path", rt.Config.CatalogPath), slog.String("error", err.Error()))
		return report, err
	}
	rt.Engine.SetSnapshot(snapshot)
	rt.Report = report
	rt.logger.Info("catalog reloaded", slog.Int("records", report.Loaded), slog.Int("malformed", report.Malformed))
	return report, nil
}

func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// OpenResponseCache opens the JSON response cache with a Redis mirror when
// REDIS_URL points at a reachable server. The returned func releases the
// Redis connection.
func OpenResponseCache(ctx context.Context, cfg Config, logger *slog.Logger) (*remote.FileCache, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	closer := func() error { return nil }
	opts := []remote.FileCacheOption{remote.WithCacheLogger(logger)}
	if mirror, closeRedis := connectRedis(ctx, cfg.RedisURL, logger); mirror != nil {
		opts = append(opts, remote.WithRedisMirror(mirror))
		closer = closeRedis
	}
	cache, err := remote.OpenFileCache(cfg.CachePath, opts...)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return cache, closer, nil
}

func connectRedis(ctx context.Context, redisURL string, logger *slog.Logger) (*remote.RedisCache, func() error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, response cache mirror disabled", slog.String("error", err.Error()))
		return nil, nil
	}
	client := redis.NewClient(redisOpts)
	mirror := remote.NewRedisCache(client)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := mirror.Ping(pingCtx); err != nil {
		logger.Warn("redis not reachable, response cache mirror disabled", slog.String("error", err.Error()))
		_ = client.Close()
		return nil, nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return mirror, client.Close
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}
