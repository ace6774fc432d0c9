package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/enrichment"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/telemetry"
)

var (
	ErrRemoteDisabled     = errors.New("remote lookup is not configured")
	ErrEnrichmentDisabled = errors.New("enrichment is not configured")
	ErrCacheDisabled      = errors.New("response cache is not configured")
)

// RemoteLookup answers titles the local catalog cannot.
type RemoteLookup interface {
	Lookup(ctx context.Context, query string) ([]domain.Metadata, domain.LookupSource, error)
}

// CacheAdmin invalidates remote response cache entries.
type CacheAdmin interface {
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

type Enricher interface {
	Fetch(ctx context.Context, id string) (domain.Credits, error)
}

// Service resolves titles locally first and falls back to the remote
// catalog.
type Service struct {
	engine    *QueryEngine
	remote    RemoteLookup
	cache     CacheAdmin
	enricher  Enricher
	localOnly bool
	workers   int
	logger    *slog.Logger
}

type ServiceOption func(*Service)

func WithRemote(lookup RemoteLookup) ServiceOption {
	return func(s *Service) {
		s.remote = lookup
	}
}

func WithCacheAdmin(cache CacheAdmin) ServiceOption {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithEnricher(enricher Enricher) ServiceOption {
	return func(s *Service) {
		s.enricher = enricher
	}
}

// WithLocalOnly makes local-only the default for requests that do not ask
// for it explicitly.
func WithLocalOnly(localOnly bool) ServiceOption {
	return func(s *Service) {
		s.localOnly = localOnly
	}
}

func WithBatchWorkers(workers int) ServiceOption {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(engine *QueryEngine, opts ...ServiceOption) *Service {
	service := &Service{
		engine:  engine,
		workers: defaultBatchWorkers(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) Engine() *QueryEngine { return s.engine }

// Lookup resolves one title. Empty titles and misses are not errors; remote
// failures are returned after local search came up empty.
func (s *Service) Lookup(ctx context.Context, request domain.LookupRequest) (result domain.LookupResult, err error) {
	startedAt := time.Now()
	title := strings.TrimSpace(request.Title)
	result = domain.LookupResult{Query: title, Source: domain.LookupSourceNone, Items: []domain.MatchedMetadata{}}
	localOnly := request.LocalOnly || s.localOnly || s.remote == nil

	ctx, span := telemetry.Tracer().Start(ctx, "search.lookup")
	defer span.End()
	defer func() {
		result.ElapsedMS = time.Since(startedAt).Milliseconds()
		metrics.LookupsTotal.WithLabelValues(string(result.Source)).Inc()
		span.SetAttributes(
			attribute.String("lookup.source", string(result.Source)),
			attribute.Int("lookup.items", len(result.Items)),
		)
	}()

	if title == "" {
		return result, nil
	}

	if remote.IsURL(title) {
		if localOnly {
			s.logger.Debug("url lookup skipped in local-only mode", slog.String("query", title))
			return result, nil
		}
		return s.lookupRemote(ctx, title, result)
	}

	matches := s.engine.Search(ctx, title, request.Limit)
	if len(matches) > 0 {
		result.Source = domain.LookupSourceLocal
		result.Items = make([]domain.MatchedMetadata, 0, len(matches))
		for _, match := range matches {
			result.Items = append(result.Items, domain.MatchedMetadata{
				Metadata:    domain.MetadataFromRecord(match.Record),
				Score:       match.Score,
				MatchedText: match.MatchedText,
			})
		}
		s.logger.Info("local matches found", slog.String("query", title), slog.Int("items", len(result.Items)))
		return result, nil
	}
	if localOnly {
		s.logger.Info("no local matches", slog.String("query", title), slog.Bool("localOnly", true))
		return result, nil
	}
	return s.lookupRemote(ctx, title, result)
}

func (s *Service) lookupRemote(ctx context.Context, title string, result domain.LookupResult) (domain.LookupResult, error) {
	items, source, err := s.remote.Lookup(ctx, title)
	if err != nil {
		if errors.Is(err, remote.ErrNotRemoteURL) {
			s.logger.Warn("url is not a remote catalog link", slog.String("query", title), slog.String("error", err.Error()))
			return result, nil
		}
		s.logger.Error("remote lookup failed", slog.String("query", title), slog.String("error", err.Error()))
		return result, fmt.Errorf("remote lookup %q: %w", title, err)
	}
	if len(items) == 0 {
		s.logger.Info("no metadata found", slog.String("query", title))
		return result, nil
	}
	result.Source = source
	result.Items = make([]domain.MatchedMetadata, 0, len(items))
	for _, item := range items {
		result.Items = append(result.Items, domain.MatchedMetadata{Metadata: item})
	}
	return result, nil
}

func (s *Service) Stats() domain.CatalogStats {
	return s.engine.Stats()
}

func (s *Service) Canonicalize() []domain.CatalogRecord {
	return s.engine.Canonicalize()
}

// InvalidateCache removes one cached query, or every entry when query is
// blank.
func (s *Service) InvalidateCache(ctx context.Context, query string) error {
	if s.cache == nil {
		return ErrCacheDisabled
	}
	key := remote.CacheKey(query)
	if key == "" {
		s.logger.Info("response cache cleared")
		return s.cache.Clear(ctx)
	}
	s.logger.Info("response cache entry invalidated", slog.String("key", key))
	return s.cache.Delete(ctx, key)
}

// Enrich fetches credits for a numeric id or the first AniList link in a
// link list.
func (s *Service) Enrich(ctx context.Context, idOrLinks string) (domain.Credits, error) {
	if s.enricher == nil {
		return domain.Credits{}, ErrEnrichmentDisabled
	}
	id := strings.TrimSpace(idOrLinks)
	if !isNumeric(id) {
		extracted, err := enrichment.ExtractAniListID(idOrLinks)
		if err != nil {
			return domain.Credits{}, err
		}
		id = extracted
	}
	return s.enricher.Fetch(ctx, id)
}

func isNumeric(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
