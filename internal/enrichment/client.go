package enrichment

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/telemetry"
)

const (
	DefaultEndpoint  = "https://graphql.anilist.co"
	DefaultMaxPages  = 50
	DefaultUserAgent = "CBZ-Metadata-Tool/2.0"
	DefaultTimeout   = 15 * time.Second
)

var (
	ErrInvalidID = errors.New("invalid enrichment id")
	ErrNotFound  = errors.New("enrichment entry not found")
)

type PageInfo struct {
	HasNextPage bool `json:"hasNextPage"`
	CurrentPage int  `json:"currentPage"`
}

type CharacterNameParts struct {
	First       string   `json:"first"`
	Middle      string   `json:"middle"`
	Last        string   `json:"last"`
	Full        string   `json:"full"`
	Native      string   `json:"native"`
	Alternative []string `json:"alternative"`
}

type CharacterEdge struct {
	Role string `json:"role"`
	Node struct {
		Name CharacterNameParts `json:"name"`
	} `json:"node"`
}

type StaffEdge struct {
	Role string `json:"role"`
	Node struct {
		Name struct {
			Full string `json:"full"`
		} `json:"name"`
	} `json:"node"`
}

type characterConnection struct {
	PageInfo PageInfo        `json:"pageInfo"`
	Edges    []CharacterEdge `json:"edges"`
}

type staffConnection struct {
	PageInfo PageInfo    `json:"pageInfo"`
	Edges    []StaffEdge `json:"edges"`
}

type media struct {
	ID         int                  `json:"id"`
	Characters *characterConnection `json:"characters"`
	Staff      *staffConnection     `json:"staff"`
}

type graphQLResponse struct {
	Data struct {
		Media *media `json:"Media"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const characterSelection = `pageInfo { hasNextPage currentPage }
edges { role node { name { first middle last full native alternative } } }`

const staffSelection = `pageInfo { hasNextPage currentPage }
edges { role node { name { full } } }`

var (
	initialQuery = `query ($id: Int) {
  Media(id: $id, type: MANGA) {
    id
    characters(perPage: 100, sort: FAVOURITES_DESC) { ` + characterSelection + ` }
    staff(perPage: 100, sort: FAVOURITES_DESC) { ` + staffSelection + ` }
  }
}`
	characterPageQuery = `query ($id: Int, $page: Int) {
  Media(id: $id, type: MANGA) {
    characters(page: $page, perPage: 100, sort: FAVOURITES_DESC) { ` + characterSelection + ` }
  }
}`
	staffPageQuery = `query ($id: Int, $page: Int) {
  Media(id: $id, type: MANGA) {
    staff(page: $page, perPage: 100, sort: FAVOURITES_DESC) { ` + staffSelection + ` }
  }
}`
)

// Client fetches contributor and character credits for a series.
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	maxPages   int
	limiter    *remote.Limiter
	retry      remote.RetryConfig
	sleep      remote.SleepFunc
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithMaxPages(pages int) Option {
	return func(c *Client) {
		if pages > 0 {
			c.maxPages = pages
		}
	}
}

// WithLimiter shares a rate limiter with other outbound clients.
func WithLimiter(limiter *remote.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

func WithRetryConfig(cfg remote.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

func WithSleep(sleep remote.SleepFunc) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		endpoint:   DefaultEndpoint,
		userAgent:  DefaultUserAgent,
		maxPages:   DefaultMaxPages,
		retry:      remote.DefaultRetryConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.limiter == nil {
		client.limiter = remote.NewLimiter(remote.DefaultCallsPerMinute)
	}
	return client
}

// Fetch returns the credits of the series with the given numeric id. A
// failing follow-up page ends that collection and keeps what was fetched.
func (c *Client) Fetch(ctx context.Context, id string) (domain.Credits, error) {
	id = strings.TrimSpace(id)
	numericID, err := strconv.Atoi(id)
	if err != nil || numericID <= 0 {
		return domain.Credits{}, fmt.Errorf("%w: %q must be numeric", ErrInvalidID, id)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "enrichment.fetch")
	defer span.End()
	span.SetAttributes(attribute.Int("enrichment.id", numericID))

	first, err := c.query(ctx, initialQuery, map[string]any{"id": numericID})
	if err != nil {
		metrics.EnrichmentPagesTotal.WithLabelValues("initial", "error").Inc()
		return domain.Credits{}, err
	}
	if first == nil {
		metrics.EnrichmentPagesTotal.WithLabelValues("initial", "not_found").Inc()
		return domain.Credits{}, fmt.Errorf("%w: id %d", ErrNotFound, numericID)
	}
	metrics.EnrichmentPagesTotal.WithLabelValues("initial", "ok").Inc()

	staff, staffPages := c.collectStaff(ctx, numericID, first.Staff)
	characters, characterPages := c.collectCharacters(ctx, numericID, first.Characters)

	c.logger.Info("enrichment fetched",
		slog.Int("id", numericID),
		slog.Int("staff", len(staff)),
		slog.Int("staffPages", staffPages),
		slog.Int("characters", len(characters)),
		slog.Int("characterPages", characterPages),
	)
	return BuildCredits(staff, characters), nil
}

func (c *Client) collectStaff(ctx context.Context, id int, conn *staffConnection) ([]StaffEdge, int) {
	if conn == nil {
		return nil, 1
	}
	edges := append([]StaffEdge(nil), conn.Edges...)
	info := conn.PageInfo
	page, fetched := info.CurrentPage, 0
	for info.HasNextPage && fetched < c.maxPages {
		page++
		fetched++
		result, err := c.query(ctx, staffPageQuery, map[string]any{"id": id, "page": page})
		if err != nil || result == nil || result.Staff == nil {
			c.logPageStop("staff", id, page, err)
			break
		}
		metrics.EnrichmentPagesTotal.WithLabelValues("staff", "ok").Inc()
		edges = append(edges, result.Staff.Edges...)
		info = result.Staff.PageInfo
	}
	if fetched >= c.maxPages && info.HasNextPage {
		c.logger.Warn("enrichment page cap reached", slog.String("collection", "staff"), slog.Int("id", id), slog.Int("maxPages", c.maxPages))
	}
	return edges, fetched + 1
}

func (c *Client) collectCharacters(ctx context.Context, id int, conn *characterConnection) ([]CharacterEdge, int) {
	if conn == nil {
		return nil, 1
	}
	edges := append([]CharacterEdge(nil), conn.Edges...)
	info := conn.PageInfo
	page, fetched := info.CurrentPage, 0
	for info.HasNextPage && fetched < c.maxPages {
		page++
		fetched++
		result, err := c.query(ctx, characterPageQuery, map[string]any{"id": id, "page": page})
		if err != nil || result == nil || result.Characters == nil {
			c.logPageStop("characters", id, page, err)
			break
		}
		metrics.EnrichmentPagesTotal.WithLabelValues("characters", "ok").Inc()
		edges = append(edges, result.Characters.Edges...)
		info = result.Characters.PageInfo
	}
	if fetched >= c.maxPages && info.HasNextPage {
		c.logger.Warn("enrichment page cap reached", slog.String("collection", "characters"), slog.Int("id", id), slog.Int("maxPages", c.maxPages))
	}
	return edges, fetched + 1
}

func (c *Client) logPageStop(collection string, id, page int, err error) {
	status := "empty"
	attrs := []any{slog.String("collection", collection), slog.Int("id", id), slog.Int("page", page)}
	if err != nil {
		status = "error"
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	metrics.EnrichmentPagesTotal.WithLabelValues(collection, status).Inc()
	c.logger.Warn("enrichment pagination stopped", attrs...)
}

// query posts one GraphQL request through the shared limiter and retry
// policy. A nil media with a nil error means the entry does not exist.
func (c *Client) query(ctx context.Context, query string, variables map[string]any) (*media, error) {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, err
	}

	var decoded graphQLResponse
	err = remote.RetryWithBackoff(ctx, c.retry, c.sleep, func() error {
		var body []byte
		if err := c.limiter.Do(ctx, func() error {
			var err error
			body, err = c.post(ctx, payload)
			return err
		}); err != nil {
			return err
		}
		decoded = graphQLResponse{}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return fmt.Errorf("%w: decode enrichment response: %v", remote.ErrRemoteFatal, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if decoded.Data.Media == nil && len(decoded.Errors) > 0 {
		c.logger.Debug("enrichment query returned errors", slog.String("error", decoded.Errors[0].Message))
	}
	return decoded.Data.Media, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrRemoteFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		var retryAfter time.Duration
		if seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && seconds >= 0 {
			retryAfter = time.Duration(seconds) * time.Second
		}
		return nil, &remote.RateLimitedError{Op: "enrichment", RetryAfter: retryAfter}
	}
	// AniList answers unknown ids with 404 and a GraphQL error body.
	if resp.StatusCode == http.StatusNotFound {
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &remote.StatusError{Op: "enrichment", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
}
