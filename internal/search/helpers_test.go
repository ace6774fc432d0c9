package search

import (
	"io"
	"log/slog"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/catalog"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func active(id, title string) domain.CatalogRecord {
	return domain.CatalogRecord{ID: domain.RecordID(id), Title: title, State: domain.RecordStateActive}
}

func merged(id, title, target string) domain.CatalogRecord {
	return domain.CatalogRecord{
		ID:         domain.RecordID(id),
		Title:      title,
		State:      domain.RecordStateMerged,
		MergedWith: domain.RecordID(target),
	}
}

func newTestEngine(records []domain.CatalogRecord, opts ...EngineOption) *QueryEngine {
	base := []EngineOption{WithEngineLogger(discardLogger())}
	return NewQueryEngine(catalog.NewSnapshot(records), append(base, opts...)...)
}
