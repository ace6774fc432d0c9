package search

import (
	"log/slog"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

// DefaultMaxMergeHops bounds how far a merge chain is followed.
const DefaultMaxMergeHops = 10

// MergeMap maps a merged record id to its direct merge target.
type MergeMap map[domain.RecordID]domain.RecordID

// BuildMergeMap walks the records once, collecting merge edges and the set
// of active ids.
func BuildMergeMap(records []domain.CatalogRecord) (MergeMap, map[domain.RecordID]struct{}) {
	merges := make(MergeMap)
	active := make(map[domain.RecordID]struct{})
	for _, record := range records {
		switch {
		case record.IsMerged() && !record.MergedWith.IsZero():
			merges[record.ID] = record.MergedWith
		case record.IsActive():
			active[record.ID] = struct{}{}
		}
	}
	return merges, active
}

// MergeResolver follows merge chains. It never fails: cycles and overlong
// chains are logged and resolved on a best-effort basis.
type MergeResolver struct {
	merges  MergeMap
	maxHops int
	logger  *slog.Logger
}

func NewMergeResolver(merges MergeMap, maxHops int, logger *slog.Logger) *MergeResolver {
	if maxHops <= 0 {
		maxHops = DefaultMaxMergeHops
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MergeResolver{merges: merges, maxHops: maxHops, logger: logger}
}

// Resolve returns the final id reachable from id. On a cycle it returns the
// last id visited before the repeat; past the hop bound it returns the id
// reached at that point.
func (r *MergeResolver) Resolve(id domain.RecordID) domain.RecordID {
	current := id
	visited := map[domain.RecordID]struct{}{current: {}}
	for hops := 1; ; hops++ {
		next, ok := r.merges[current]
		if !ok {
			return current
		}
		if _, seen := visited[next]; seen {
			r.logger.Warn("merge cycle detected",
				slog.String("kind", "cycle_detected"),
				slog.String("recordId", id.String()),
				slog.String("stoppedAt", current.String()),
			)
			return current
		}
		if hops > r.maxHops {
			r.logger.Warn("merge chain exceeds hop bound",
				slog.String("kind", "cycle_detected"),
				slog.String("recordId", id.String()),
				slog.String("stoppedAt", next.String()),
				slog.Int("maxHops", r.maxHops),
			)
			return next
		}
		visited[next] = struct{}{}
		current = next
	}
}

// CanonicalRecord is one surviving record after merge collapsing. Aliases
// are the ids of merged records whose chains end at this record.
type CanonicalRecord struct {
	Record  domain.CatalogRecord
	Aliases []domain.RecordID
}

// Canonicalize drops merged records, resolves the rest and keeps the first
// record seen per final id. Merged records are attached as aliases of their
// resolved target so their titles stay searchable.
func (r *MergeResolver) Canonicalize(records []domain.CatalogRecord, lookup func(domain.RecordID) (domain.CatalogRecord, bool)) []CanonicalRecord {
	out := make([]CanonicalRecord, 0, len(records))
	position := make(map[domain.RecordID]int, len(records))

	for _, record := range records {
		if record.IsMerged() {
			continue
		}
		finalID := r.Resolve(record.ID)
		if _, seen := position[finalID]; seen {
			continue
		}
		target := record
		if finalID != record.ID {
			resolved, ok := lookup(finalID)
			if !ok {
				r.logger.Warn("merge target missing from snapshot",
					slog.String("kind", "unresolved_merge_target"),
					slog.String("recordId", record.ID.String()),
					slog.String("targetId", finalID.String()),
				)
				continue
			}
			target = resolved
		}
		position[finalID] = len(out)
		out = append(out, CanonicalRecord{Record: target})
	}

	for _, record := range records {
		if !record.IsMerged() || record.MergedWith.IsZero() {
			continue
		}
		finalID := r.Resolve(record.ID)
		idx, ok := position[finalID]
		if !ok {
			r.logger.Debug("merged record has no canonical target",
				slog.String("kind", "unresolved_merge_target"),
				slog.String("recordId", record.ID.String()),
				slog.String("targetId", finalID.String()),
			)
			continue
		}
		out[idx].Aliases = append(out[idx].Aliases, record.ID)
	}
	return out
}
