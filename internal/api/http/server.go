package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/catalog"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/enrichment"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/search"
)

type LookupService interface {
	Lookup(ctx context.Context, request domain.LookupRequest) (domain.LookupResult, error)
	Batch(ctx context.Context, request search.BatchRequest) domain.BatchResponse
	Stats() domain.CatalogStats
	Canonicalize() []domain.CatalogRecord
	InvalidateCache(ctx context.Context, query string) error
	Enrich(ctx context.Context, idOrLinks string) (domain.Credits, error)
}

// CatalogReloader swaps in a freshly loaded catalog snapshot.
type CatalogReloader interface {
	ReloadCatalog(ctx context.Context) (catalog.LoadReport, error)
}

type Server struct {
	search    LookupService
	reloader  CatalogReloader
	logger    *slog.Logger
	rateLimit float64
	rateBurst int
}

const (
	maxQueryLength    = 500
	maxBatchItems     = 1000
	maxBodyBytes      = 1 << 20
	maxCatalogBytes   = 64 << 20
	ndjsonContentType = "application/x-ndjson"
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithCatalogReloader(reloader CatalogReloader) ServerOption {
	return func(s *Server) {
		s.reloader = reloader
	}
}

// WithRateLimit sets the global request budget. Non-positive values keep the
// defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateLimit = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func NewServer(service LookupService, options ...ServerOption) *Server {
	server := &Server{
		search:    service,
		logger:    slog.Default(),
		rateLimit: 50,
		rateBurst: 100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/batch", s.handleBatch)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/catalog/stats", s.handleCatalogStats)
	mux.HandleFunc("/catalog/canonicalize", s.handleCanonicalize)
	mux.HandleFunc("/catalog/reload", s.handleCatalogReload)
	mux.HandleFunc("/enrich", s.handleEnrich)
	mux.HandleFunc("/cache", s.handleCache)
	traced := otelhttp.NewHandler(accessLogMiddleware(s.logger, mux), "seriesmatch",
		otelhttp.WithFilter(func(r *http.Request) bool { return !isInfraPath(r.URL.Path) }),
	)
	return recoveryMiddleware(s.logger,
		requestIDMiddleware(throttleMiddleware(s.rateLimit, s.rateBurst, metricsMiddleware(traced))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if s.search != nil {
		stats := s.search.Stats()
		payload["records"] = stats.Records
		payload["fingerprint"] = stats.Fingerprint
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	result, err := s.search.Lookup(r.Context(), domain.LookupRequest{
		Title:     query,
		Limit:     limit,
		LocalOnly: parseOptionalBool(r.URL.Query().Get("localOnly")),
	})
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		writeLookupError(w, err)
		return
	}

	w.Header().Set(lookupSourceHeader, string(result.Source))
	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.String("source", string(result.Source)),
		slog.Int("items", len(result.Items)),
		slog.Int64("elapsedMs", result.ElapsedMS),
	)
	writeJSON(w, http.StatusOK, result)
}

type batchRequestBody struct {
	Items     []domain.BatchItem `json:"items"`
	Workers   int                `json:"workers"`
	LocalOnly bool               `json:"localOnly"`
	Limit     int                `json:"limit"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body batchRequestBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	switch {
	case len(body.Items) == 0:
		writeError(w, http.StatusBadRequest, "invalid_request", "items are required")
		return
	case len(body.Items) > maxBatchItems:
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("too many items (max %d)", maxBatchItems))
		return
	case body.Workers < 0 || body.Limit < 0:
		writeError(w, http.StatusBadRequest, "invalid_request", "workers and limit must not be negative")
		return
	}

	response := s.search.Batch(r.Context(), search.BatchRequest{
		Items:     body.Items,
		Workers:   body.Workers,
		LocalOnly: body.LocalOnly,
		Limit:     body.Limit,
	})
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCatalogStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.search.Stats())
}

type canonicalizeResponse struct {
	Count  int                 `json:"count"`
	IDs    []domain.RecordID   `json:"ids"`
	Report *catalog.LoadReport `json:"report,omitempty"`
}

// handleCanonicalize collapses merged records of the NDJSON body, or of the
// active catalog when the body is empty. Clients asking for NDJSON get the
// full canonical records, one per line.
func (s *Server) handleCanonicalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var records []domain.CatalogRecord
	var report *catalog.LoadReport
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxCatalogBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "read request body failed")
		return
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		records = s.search.Canonicalize()
	} else {
		loader := catalog.NewLoader(catalog.WithLogger(s.logger))
		snapshot, loaded, err := loader.Load(r.Context(), bytes.NewReader(payload))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		report = &loaded
		engine := search.NewQueryEngine(snapshot, search.WithEngineLogger(s.logger), search.WithIndex(false))
		records = engine.Canonicalize()
	}

	if strings.Contains(r.Header.Get("Accept"), ndjsonContentType) {
		w.Header().Set("Content-Type", ndjsonContentType)
		w.WriteHeader(http.StatusOK)
		encoder := json.NewEncoder(w)
		for _, record := range records {
			if err := encoder.Encode(record); err != nil {
				s.logger.Warn("canonical record write failed", slog.String("error", err.Error()))
				return
			}
		}
		return
	}

	ids := make([]domain.RecordID, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	writeJSON(w, http.StatusOK, canonicalizeResponse{Count: len(ids), IDs: ids, Report: report})
}

func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.reloader == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "catalog reload is not configured")
		return
	}
	report, err := s.reloader.ReloadCatalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog reload failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("id"))
	if target == "" {
		target = strings.TrimSpace(r.URL.Query().Get("url"))
	}
	if target == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id or url is required")
		return
	}

	credits, err := s.search.Enrich(r.Context(), target)
	if err != nil {
		s.logger.Warn("enrichment failed", slog.String("target", truncate(target, 120)), slog.String("error", err.Error()))
		switch {
		case errors.Is(err, search.ErrEnrichmentDisabled):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		case errors.Is(err, enrichment.ErrInvalidID), errors.Is(err, enrichment.ErrNoLink):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, enrichment.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		default:
			writeError(w, http.StatusBadGateway, "upstream_error", "enrichment failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query().Get("q")
	if err := s.search.InvalidateCache(r.Context(), query); err != nil {
		if errors.Is(err, search.ErrCacheDisabled) {
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
			return
		}
		s.logger.Error("cache invalidation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "cache invalidation failed")
		return
	}
	key := remote.CacheKey(query)
	writeJSON(w, http.StatusOK, map[string]any{
		"cleared": key == "",
		"key":     key,
	})
}

func writeLookupError(w http.ResponseWriter, err error) {
	var status *remote.StatusError
	switch {
	case errors.As(err, &status) && status.StatusCode == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "not_found", "entry not found")
	case errors.Is(err, remote.ErrRemoteTransient):
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "remote catalog unavailable")
	case errors.Is(err, remote.ErrRemoteFatal):
		writeError(w, http.StatusBadGateway, "upstream_error", "remote catalog rejected the request")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "lookup did not finish in time")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "lookup failed")
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// writeJSON encodes before writing the header so an encoding failure still
// reaches the client as a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"encode_failed","message":"response could not be encoded"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
