package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/catalog"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/telemetry"
)

const (
	DefaultBaseURL   = "https://mangabaka.dev/api"
	DefaultHost      = "mangabaka.dev"
	DefaultUserAgent = "CBZ-Metadata-Tool/1.0"
	DefaultTimeout   = 10 * time.Second

	maxResponseBytes = 8 * 1024 * 1024
)

// Client looks titles up in the remote catalog. Every outbound request goes
// through the shared limiter; results are cached per query key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	host       string
	userAgent  string
	limiter    *Limiter
	retry      RetryConfig
	sleep      SleepFunc
	cache      Cache
	logger     *slog.Logger
	group      singleflight.Group
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(base string) ClientOption {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
		}
	}
}

// WithHost sets the host fragment a URL must contain to be treated as a
// remote catalog link.
func WithHost(host string) ClientOption {
	return func(c *Client) {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			c.host = host
		}
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent = strings.TrimSpace(userAgent); userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

func WithLimiter(limiter *Limiter) ClientOption {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithSleep replaces the backoff sleeper, mainly for tests.
func WithSleep(sleep SleepFunc) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithCache(cache Cache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL:    DefaultBaseURL,
		host:       DefaultHost,
		userAgent:  DefaultUserAgent,
		retry:      DefaultRetryConfig(),
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.limiter == nil {
		client.limiter = NewLimiter(DefaultCallsPerMinute)
	}
	return client
}

// IsURL reports whether text looks like an http(s) link.
func IsURL(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// EntryIDFromURL extracts the first all-digit path segment of a remote
// catalog URL.
func (c *Client) EntryIDFromURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRemoteURL, err)
	}
	if !strings.Contains(strings.ToLower(parsed.Host), c.host) {
		return "", fmt.Errorf("%w: host %q", ErrNotRemoteURL, parsed.Host)
	}
	for _, part := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if isDigits(part) {
			return part, nil
		}
	}
	return "", fmt.Errorf("%w: no entry id in %q", ErrNotRemoteURL, parsed.Path)
}

// Lookup answers query from the cache or, on a miss, from the remote
// catalog. URLs are fetched as a single entry, anything else is searched.
// Non-empty results are cached under CacheKey(query).
func (c *Client) Lookup(ctx context.Context, query string) ([]domain.Metadata, domain.LookupSource, error) {
	key := CacheKey(query)
	if key == "" {
		return nil, domain.LookupSourceNone, nil
	}
	if c.cache != nil {
		items, found, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("response cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if found {
			c.logger.Info("remote lookup served from cache", slog.String("key", key), slog.Int("items", len(items)))
			return items, domain.LookupSourceCache, nil
		}
	}

	// The shared fetch outlives any single waiter: a caller that goes away
	// stops waiting, the others still get the result.
	shared := context.WithoutCancel(ctx)
	resultCh := c.group.DoChan(key, func() (any, error) {
		return c.fetch(shared, key, query)
	})
	var result singleflight.Result
	select {
	case <-ctx.Done():
		return nil, domain.LookupSourceNone, ctx.Err()
	case result = <-resultCh:
	}
	if result.Err != nil {
		return nil, domain.LookupSourceNone, result.Err
	}
	items, _ := result.Val.([]domain.Metadata)
	if len(items) == 0 {
		return nil, domain.LookupSourceNone, nil
	}
	return items, domain.LookupSourceRemote, nil
}

// fetch performs the network part of Lookup and caches non-empty results.
func (c *Client) fetch(ctx context.Context, key, query string) ([]domain.Metadata, error) {
	var (
		items []domain.Metadata
		err   error
	)
	if IsURL(query) {
		var entry domain.Metadata
		entry, err = c.fetchByURL(ctx, query)
		if err == nil {
			items = []domain.Metadata{entry}
		}
	} else {
		items, err = c.Search(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	if len(items) > 0 && c.cache != nil {
		if err := c.cache.Set(ctx, key, items); err != nil {
			c.logger.Error("response cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		} else {
			c.logger.Info("remote results cached", slog.String("key", key), slog.Int("items", len(items)))
		}
	}
	return items, nil
}

func (c *Client) fetchByURL(ctx context.Context, raw string) (domain.Metadata, error) {
	id, err := c.EntryIDFromURL(raw)
	if err != nil {
		return domain.Metadata{}, err
	}
	return c.FetchEntry(ctx, id)
}

// Search runs a keyword search. Items that cannot be decoded are skipped.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Metadata, error) {
	endpoint := c.baseURL + "/search?" + url.Values{"query": {strings.TrimSpace(query)}}.Encode()
	body, err := c.get(ctx, "search", endpoint)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: search response is not a list: %v", ErrRemoteFatal, err)
	}
	items := make([]domain.Metadata, 0, len(raw))
	for i, entry := range raw {
		record, _, err := catalog.DecodeRecord(entry)
		if err != nil {
			c.logger.Warn("remote result skipped",
				slog.String("kind", "malformed_record"),
				slog.Int("position", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		items = append(items, domain.MetadataFromRecord(record))
	}
	c.logger.Info("remote search finished",
		slog.String("query", query),
		slog.Int("returned", len(raw)),
		slog.Int("kept", len(items)),
	)
	return items, nil
}

// FetchEntry fetches one remote entry by its numeric id.
func (c *Client) FetchEntry(ctx context.Context, id string) (domain.Metadata, error) {
	if !isDigits(id) {
		return domain.Metadata{}, fmt.Errorf("%w: entry id %q is not numeric", ErrRemoteFatal, id)
	}
	body, err := c.get(ctx, "entry", c.baseURL+"/entry?id="+id)
	if err != nil {
		return domain.Metadata{}, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Metadata{}, fmt.Errorf("%w: entry response is not an object", ErrRemoteFatal)
	}
	record, _, err := catalog.DecodeRecord(trimmed)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: %v", ErrRemoteFatal, err)
	}
	return domain.MetadataFromRecord(record), nil
}

// get issues a rate-limited GET with retries and returns the body.
func (c *Client) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "remote."+op)
	defer span.End()
	span.SetAttributes(attribute.String("remote.url", endpoint))

	var body []byte
	attempts := 0
	err := RetryWithBackoff(ctx, c.retry, c.sleep, func() error {
		attempts++
		var payload []byte
		err := c.limiter.Do(ctx, func() error {
			startedAt := time.Now()
			var err error
			payload, err = c.do(ctx, op, endpoint)
			metrics.RemoteRequestDuration.WithLabelValues(op).Observe(time.Since(startedAt).Seconds())
			return err
		})
		if err != nil {
			metrics.RemoteRequestsTotal.WithLabelValues(op, errorStatus(err)).Inc()
			c.logger.Warn("remote request failed",
				slog.String("op", op),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()),
			)
			return err
		}
		metrics.RemoteRequestsTotal.WithLabelValues(op, "ok").Inc()
		body = payload
		return nil
	})
	span.SetAttributes(attribute.Int("remote.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, ErrRemoteFatal) && !errors.Is(err, ErrRemoteTransient) && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %s: %w", ErrRemoteTransient, op, err)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteFatal, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, &RateLimitedError{Op: op, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

// parseRetryAfter reads delay-seconds or an HTTP date. Zero means "use the
// default".
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func errorStatus(err error) string {
	var limited *RateLimitedError
	var status *StatusError
	switch {
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.As(err, &status):
		return strconv.Itoa(status.StatusCode)
	case errors.Is(err, ErrRemoteFatal):
		return "fatal"
	default:
		return "error"
	}
}

func isDigits(value string) bool {
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
