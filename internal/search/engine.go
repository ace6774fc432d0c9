package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/catalog"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/telemetry"
)

const DefaultLimit = 30

// QueryEngine ranks catalog records against a free-text title.
type QueryEngine struct {
	snapshot atomic.Pointer[catalog.Snapshot]

	norm      *Normalizer
	scorer    *Scorer
	artifacts *ArtifactCache
	logger    *slog.Logger

	defaultLimit int
	// perfectCutoff stops scoring after this many exact matches. Zero means
	// "use the request limit", negative disables the shortcut.
	perfectCutoff int
	useIndex      bool
	maxHops       int
}

type EngineOption func(*QueryEngine)

func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *QueryEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithNormalizer(norm *Normalizer) EngineOption {
	return func(e *QueryEngine) {
		if norm != nil {
			e.norm = norm
		}
	}
}

func WithScoringConfig(cfg ScoringConfig) EngineOption {
	return func(e *QueryEngine) {
		e.scorer = NewScorer(cfg)
	}
}

func WithDefaultLimit(limit int) EngineOption {
	return func(e *QueryEngine) {
		if limit > 0 {
			e.defaultLimit = limit
		}
	}
}

func WithPerfectMatchCutoff(cutoff int) EngineOption {
	return func(e *QueryEngine) {
		e.perfectCutoff = cutoff
	}
}

// WithIndex toggles the inverted index. Without it every canonical record
// is scored.
func WithIndex(enabled bool) EngineOption {
	return func(e *QueryEngine) {
		e.useIndex = enabled
	}
}

func WithMaxMergeHops(hops int) EngineOption {
	return func(e *QueryEngine) {
		if hops > 0 {
			e.maxHops = hops
		}
	}
}

func NewQueryEngine(snapshot *catalog.Snapshot, opts ...EngineOption) *QueryEngine {
	engine := &QueryEngine{
		norm:         NewNormalizer(),
		scorer:       NewScorer(DefaultScoringConfig()),
		logger:       slog.Default(),
		defaultLimit: DefaultLimit,
		useIndex:     true,
		maxHops:      DefaultMaxMergeHops,
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.artifacts = NewArtifactCache(engine.norm, engine.useIndex, engine.maxHops, engine.logger)
	engine.snapshot.Store(snapshot)
	return engine
}

// SetSnapshot swaps the active snapshot. Artifacts are rebuilt lazily on the
// next search if the content fingerprint changed.
func (e *QueryEngine) SetSnapshot(snapshot *catalog.Snapshot) {
	e.snapshot.Store(snapshot)
}

func (e *QueryEngine) Snapshot() *catalog.Snapshot {
	return e.snapshot.Load()
}

func (e *QueryEngine) Normalizer() *Normalizer { return e.norm }

// Artifacts returns the derived artifacts of the active snapshot, building
// them if needed.
func (e *QueryEngine) Artifacts() *Artifacts {
	return e.artifacts.Get(e.snapshot.Load())
}

// Canonicalize returns the canonical records of the active snapshot.
func (e *QueryEngine) Canonicalize() []domain.CatalogRecord {
	canonical := e.Artifacts().Canonical
	out := make([]domain.CatalogRecord, len(canonical))
	for i, entry := range canonical {
		out[i] = entry.Record
	}
	return out
}

func (e *QueryEngine) Stats() domain.CatalogStats {
	snapshot := e.snapshot.Load()
	return e.artifacts.Get(snapshot).Stats(snapshot.Len())
}

// Search returns accepted matches ordered by descending score. Equal scores
// keep catalog order. An empty title yields no matches.
func (e *QueryEngine) Search(ctx context.Context, title string, limit int) []domain.ScoredMatch {
	query := strings.TrimSpace(title)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = e.defaultLimit
	}

	_, span := telemetry.Tracer().Start(ctx, "search.local")
	defer span.End()
	startedAt := time.Now()

	normalized := e.norm.Normalize(query)
	if normalized == "" {
		return nil
	}
	artifacts := e.Artifacts()

	var ordinals []int
	if artifacts.Index != nil {
		ordinals = artifacts.Index.Candidates(query)
	} else {
		ordinals = make([]int, len(artifacts.Canonical))
		for i := range ordinals {
			ordinals[i] = i
		}
	}

	cutoff := e.perfectCutoff
	if cutoff == 0 {
		cutoff = limit
	}

	var matches []domain.ScoredMatch
	perfect := 0
	for _, ordinal := range ordinals {
		score, matched := e.scorer.Score(normalized, artifacts.Texts[ordinal])
		if !e.scorer.Accepts(score) {
			continue
		}
		matches = append(matches, domain.ScoredMatch{
			Record:      artifacts.Canonical[ordinal].Record,
			Score:       score,
			MatchedText: matched,
		})
		if score >= e.scorer.Config().ExactScore {
			perfect++
			if cutoff > 0 && perfect >= cutoff {
				break
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	elapsed := time.Since(startedAt)
	metrics.LocalSearchDuration.Observe(elapsed.Seconds())
	metrics.LocalCandidates.Observe(float64(len(ordinals)))
	span.SetAttributes(
		attribute.String("search.query", normalized),
		attribute.Int("search.candidates", len(ordinals)),
		attribute.Int("search.matches", len(matches)),
	)

	e.logger.Debug("local search",
		slog.String("query", query),
		slog.String("normalized", normalized),
		slog.Int("candidates", len(ordinals)),
		slog.Int("matches", len(matches)),
		slog.Duration("elapsed", elapsed),
	)
	for i, match := range matches {
		if i >= 5 {
			break
		}
		e.logger.Debug("local search result",
			slog.Int("rank", i),
			slog.String("recordId", match.Record.ID.String()),
			slog.Int("score", match.Score),
			slog.String("matchedText", match.MatchedText),
		)
	}
	return matches
}
