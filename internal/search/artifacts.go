package search

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/catalog"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
)

// Artifacts are the structures derived from one snapshot. They are never
// mutated after build, so concurrent searches share them without locking.
type Artifacts struct {
	Fingerprint string
	Merges      MergeMap
	Canonical   []CanonicalRecord
	// Texts[i] are the text pairs of Canonical[i], aliases included.
	Texts [][]domain.TextPair
	// Index is nil when indexing is disabled.
	Index  *Index
	Active int
}

func (a *Artifacts) Stats(records int) domain.CatalogStats {
	stats := domain.CatalogStats{Records: records}
	if a == nil {
		return stats
	}
	stats.Merged = len(a.Merges)
	stats.Active = a.Active
	stats.Canonical = len(a.Canonical)
	stats.Indexed = a.Index != nil
	stats.IndexKeys = a.Index.Keys()
	stats.Fingerprint = a.Fingerprint
	return stats
}

// ArtifactCache keeps the artifacts of the most recent snapshot, keyed by
// its content fingerprint.
type ArtifactCache struct {
	mu         sync.Mutex
	current    *Artifacts
	norm       *Normalizer
	maxHops    int
	buildIndex bool
	logger     *slog.Logger
}

func NewArtifactCache(norm *Normalizer, buildIndex bool, maxHops int, logger *slog.Logger) *ArtifactCache {
	if norm == nil {
		norm = NewNormalizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactCache{norm: norm, buildIndex: buildIndex, maxHops: maxHops, logger: logger}
}

// Get returns artifacts for snapshot, rebuilding only when the fingerprint
// differs from the cached one.
func (c *ArtifactCache) Get(snapshot *catalog.Snapshot) *Artifacts {
	fingerprint := snapshot.Fingerprint()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.Fingerprint == fingerprint {
		return c.current
	}
	c.current = c.build(snapshot)
	return c.current
}

// Invalidate drops the cached artifacts.
func (c *ArtifactCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *ArtifactCache) build(snapshot *catalog.Snapshot) *Artifacts {
	startedAt := time.Now()
	records := snapshot.Records()

	merges, active := BuildMergeMap(records)
	resolver := NewMergeResolver(merges, c.maxHops, c.logger)
	canonical := resolver.Canonicalize(records, snapshot.Get)

	texts := make([][]domain.TextPair, len(canonical))
	for i, entry := range canonical {
		texts[i] = c.textPairs(snapshot, entry)
	}

	artifacts := &Artifacts{
		Fingerprint: snapshot.Fingerprint(),
		Merges:      merges,
		Canonical:   canonical,
		Texts:       texts,
		Active:      len(active),
	}
	if c.buildIndex {
		artifacts.Index = BuildIndex(texts, c.norm)
	}

	elapsed := time.Since(startedAt)
	metrics.ArtifactBuildsTotal.Inc()
	metrics.ArtifactBuildDuration.Observe(elapsed.Seconds())
	metrics.CatalogRecords.WithLabelValues("total").Set(float64(len(records)))
	metrics.CatalogRecords.WithLabelValues("merged").Set(float64(len(merges)))
	metrics.CatalogRecords.WithLabelValues("canonical").Set(float64(len(canonical)))

	c.logger.Info("search artifacts built",
		slog.String("fingerprint", artifacts.Fingerprint),
		slog.Int("records", len(records)),
		slog.Int("merges", len(merges)),
		slog.Int("active", len(active)),
		slog.Int("canonical", len(canonical)),
		slog.Int("indexKeys", artifacts.Index.Keys()),
		slog.Duration("elapsed", elapsed),
	)
	return artifacts
}

func (c *ArtifactCache) textPairs(snapshot *catalog.Snapshot, entry CanonicalRecord) []domain.TextPair {
	seen := make(map[string]struct{})
	var pairs []domain.TextPair
	add := func(texts []string) {
		for _, text := range texts {
			normalized := c.norm.Normalize(text)
			if normalized == "" {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			pairs = append(pairs, domain.TextPair{Original: text, Normalized: normalized})
		}
	}
	add(entry.Record.SearchableTexts())
	for _, alias := range entry.Aliases {
		if record, ok := snapshot.Get(alias); ok {
			add(record.SearchableTexts())
		}
	}
	return pairs
}
