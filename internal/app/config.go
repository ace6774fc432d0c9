package app

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/enrichment"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/search"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	CatalogPath string
	CachePath   string
	RedisURL    string

	RemoteBaseURL        string
	RemoteHost           string
	RemoteTimeout        time.Duration
	RemoteUserAgent      string
	RemoteCallsPerMinute int
	RemoteMaxAttempts    int

	EnrichEndpoint string
	EnrichMaxPages int

	SearchLimit        int
	LocalOnly          bool
	IndexDisabled      bool
	PerfectMatchCutoff int
	BatchWorkers       int
	ScoringConfigPath  string

	HTTPRateLimit float64
	HTTPRateBurst int

	TracingEndpoint    string
	TracingSampleRatio float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8095"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		CatalogPath: getEnv("CATALOG_PATH", "series.jsonl"),
		CachePath:   getEnv("CACHE_PATH", "api_cache.json"),
		RedisURL:    getEnv("REDIS_URL", ""),

		RemoteBaseURL:        getEnv("REMOTE_BASE_URL", remote.DefaultBaseURL),
		RemoteHost:           getEnv("REMOTE_HOST", remote.DefaultHost),
		RemoteTimeout:        time.Duration(getEnvInt("REMOTE_TIMEOUT_SECONDS", 10)) * time.Second,
		RemoteUserAgent:      getEnv("REMOTE_USER_AGENT", remote.DefaultUserAgent),
		RemoteCallsPerMinute: getEnvInt("REMOTE_CALLS_PER_MINUTE", remote.DefaultCallsPerMinute),
		RemoteMaxAttempts:    getEnvInt("REMOTE_MAX_ATTEMPTS", remote.DefaultRetryConfig().MaxAttempts),

		EnrichEndpoint: getEnv("ENRICH_ENDPOINT", enrichment.DefaultEndpoint),
		EnrichMaxPages: getEnvInt("ENRICH_MAX_PAGES", enrichment.DefaultMaxPages),

		SearchLimit:        getEnvInt("SEARCH_LIMIT", search.DefaultLimit),
		LocalOnly:          getEnvBool("SEARCH_LOCAL_ONLY", false),
		IndexDisabled:      getEnvBool("SEARCH_INDEX_DISABLED", false),
		PerfectMatchCutoff: getEnvSignedInt("PERFECT_MATCH_CUTOFF", 0),
		BatchWorkers:       getEnvInt("BATCH_WORKERS", runtime.NumCPU()),
		ScoringConfigPath:  getEnv("SCORING_CONFIG", ""),

		HTTPRateLimit: getEnvFloat("HTTP_RATE_LIMIT", 50),
		HTTPRateBurst: getEnvInt("HTTP_RATE_BURST", 100),

		TracingEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TracingSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
	}
}

// LoadScoringConfig overlays the TOML file at path onto the default scoring
// thresholds. Keys missing from the file keep their defaults.
func LoadScoringConfig(path string) (search.ScoringConfig, error) {
	cfg := search.DefaultScoringConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scoring config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return search.DefaultScoringConfig(), fmt.Errorf("decode scoring config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return search.DefaultScoringConfig(), err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvSignedInt accepts zero and negative values, which carry meaning for
// some settings.
func getEnvSignedInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
