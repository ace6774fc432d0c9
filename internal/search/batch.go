package search

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
)

func defaultBatchWorkers() int {
	return max(1, runtime.NumCPU())
}

type BatchRequest struct {
	Items     []domain.BatchItem
	Workers   int
	LocalOnly bool
	Limit     int
}

// Batch looks up every item on a bounded worker pool. Cancelling ctx stops
// new items from starting; lookups already running finish and their results
// are discarded. Per-item failures are reported, never returned.
func (s *Service) Batch(ctx context.Context, request BatchRequest) domain.BatchResponse {
	startedAt := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("runId", runID))

	workers := request.Workers
	if workers <= 0 {
		workers = s.workers
	}
	results := make([]domain.BatchResult, len(request.Items))
	for i, item := range request.Items {
		results[i] = domain.BatchResult{File: item.File, Title: item.Title, Outcome: domain.BatchOutcomeCancelled}
	}

	logger.Info("batch started", slog.Int("items", len(request.Items)), slog.Int("workers", workers))

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	for i, item := range request.Items {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(index int, item domain.BatchItem) {
			defer wg.Done()
			defer sem.Release(1)
			results[index] = s.batchItem(ctx, logger, item, request)
		}(i, item)
	}
	wg.Wait()

	response := domain.BatchResponse{RunID: runID, Results: results}
	for _, result := range results {
		metrics.BatchItemsTotal.WithLabelValues(string(result.Outcome)).Inc()
		if result.Outcome == domain.BatchOutcomeMatched {
			response.Matched++
		} else {
			response.Failed++
		}
	}
	response.ElapsedMS = time.Since(startedAt).Milliseconds()
	logger.Info("batch finished",
		slog.Int("matched", response.Matched),
		slog.Int("failed", response.Failed),
		slog.Bool("cancelled", ctx.Err() != nil),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)
	return response
}

func (s *Service) batchItem(ctx context.Context, logger *slog.Logger, item domain.BatchItem, request BatchRequest) domain.BatchResult {
	result := domain.BatchResult{File: item.File, Title: strings.TrimSpace(item.Title)}
	if result.Title == "" {
		result.Title = TitleFromFilename(item.File)
	}
	if result.Title == "" {
		result.Outcome = domain.BatchOutcomeInvalidTitle
		logger.Warn("batch item has no usable title", slog.String("file", item.File))
		return result
	}

	// Started lookups run to completion even if the batch is cancelled.
	lookup, err := s.Lookup(context.WithoutCancel(ctx), domain.LookupRequest{
		Title:     result.Title,
		Limit:     request.Limit,
		LocalOnly: request.LocalOnly,
	})
	if ctx.Err() != nil {
		result.Outcome = domain.BatchOutcomeCancelled
		return result
	}
	if err != nil {
		result.Outcome = domain.BatchOutcomeNoMatch
		result.Error = err.Error()
		logger.Warn("batch item lookup failed", slog.String("title", result.Title), slog.String("error", err.Error()))
		return result
	}
	result.Source = lookup.Source
	if len(lookup.Items) == 0 {
		result.Outcome = domain.BatchOutcomeNoMatch
		return result
	}
	result.Outcome = domain.BatchOutcomeMatched
	result.Items = lookup.Items
	return result
}
