package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, server *httptest.Server, opts ...ClientOption) (*Client, *recordingSleep) {
	t.Helper()
	rec := &recordingSleep{}
	base := []ClientOption{
		WithHTTPClient(server.Client()),
		WithBaseURL(server.URL),
		WithLimiter(NewLimiter(60000)),
		WithSleep(rec.sleep),
		WithLogger(discardLogger()),
	}
	return NewClient(append(base, opts...)...), rec
}

func TestLookupCachesUnderNormalizedQuery(t *testing.T) {
	var hits atomic.Int32
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotQuery = r.URL.Query().Get("query")
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("unexpected user agent %q", ua)
		}
		_, _ = io.WriteString(w, `[{"id": 10, "title": "Foo Fighters"}, {"id": 11, "title": "Foo Bar"}]`)
	}))
	defer server.Close()

	cache, err := OpenFileCache(filepath.Join(t.TempDir(), "api_cache.json"), WithCacheLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	client, _ := newTestClient(t, server, WithCache(cache))
	ctx := context.Background()

	items, source, err := client.Lookup(ctx, "foo")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if source != domain.LookupSourceRemote || len(items) != 2 {
		t.Fatalf("expected 2 remote items, got %d from %s", len(items), source)
	}
	if gotQuery != "foo" {
		t.Fatalf("expected query param foo, got %q", gotQuery)
	}
	if _, found, _ := cache.Get(ctx, "foo"); !found {
		t.Fatalf("expected cache entry under key foo")
	}

	items, source, err = client.Lookup(ctx, "  Foo ")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if source != domain.LookupSourceCache || len(items) != 2 {
		t.Fatalf("expected cached items, got %d from %s", len(items), source)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one network call, got %d", hits.Load())
	}
}

func TestLookupSharedFetchSurvivesCancelledCaller(t *testing.T) {
	var hits atomic.Int32
	received := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case received <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, `[{"id": 10, "title": "Foo Fighters"}]`)
	}))
	defer server.Close()
	client, _ := newTestClient(t, server)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := client.Lookup(firstCtx, "foo")
		firstErr <- err
	}()
	<-received

	type outcome struct {
		items  []domain.Metadata
		source domain.LookupSource
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		items, source, err := client.Lookup(context.Background(), "foo")
		second <- outcome{items, source, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to stop with context.Canceled, got %v", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("waiting caller failed: %v", got.err)
	}
	if got.source != domain.LookupSourceRemote || len(got.items) != 1 {
		t.Fatalf("expected one remote item, got %d from %s", len(got.items), got.source)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single shared request, got %d", hits.Load())
	}
}

func TestSearchSkipsMalformedItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id": 1, "title": "Kept"}, "junk", {"title": "missing id"}, [1, 2]]`)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	items, err := client.Search(context.Background(), "kept")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].EntryID != "1" || items[0].Title != "Kept" {
		t.Fatalf("expected only the well-formed item, got %+v", items)
	}
}

func TestSearchNonListResponseIsFatal(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"error": "nope"}`)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	_, err := client.Search(context.Background(), "x")
	if !errors.Is(err, ErrRemoteFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry, got %d calls", hits.Load())
	}
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[{"id": 5, "title": "Third Time"}]`)
	}))
	defer server.Close()

	client, rec := newTestClient(t, server)
	items, err := client.Search(context.Background(), "third time")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Fatalf("expected 1s and 2s backoff, got %v", rec.delays)
	}
}

func TestSearchExhaustedRetriesIsTransient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	_, err := client.Search(context.Background(), "down")
	if !errors.Is(err, ErrRemoteTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestSearchHonoursRetryAfter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer server.Close()

	client, rec := newTestClient(t, server)
	if _, err := client.Search(context.Background(), "slow"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 3*time.Second {
		t.Fatalf("expected a single 3s wait, got %v", rec.delays)
	}
}

func TestSearchClientErrorIsFatal(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	_, err := client.Search(context.Background(), "bad")
	var status *StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
	if !errors.Is(err, ErrRemoteFatal) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry, got %d calls", hits.Load())
	}
}

func TestLookupDirectURLFetchesEntry(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entry" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotID = r.URL.Query().Get("id")
		_, _ = io.WriteString(w, `{"id": 4321, "title": "Direct Hit"}`)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	items, source, err := client.Lookup(context.Background(), "https://mangabaka.dev/series/4321/direct-hit")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if gotID != "4321" {
		t.Fatalf("expected entry id 4321, got %q", gotID)
	}
	if source != domain.LookupSourceRemote || len(items) != 1 || items[0].Title != "Direct Hit" {
		t.Fatalf("unexpected result %+v from %s", items, source)
	}
}

func TestEntryIDFromURL(t *testing.T) {
	client := NewClient(WithLogger(discardLogger()))
	cases := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"series path", "https://mangabaka.dev/series/123/title", "123", false},
		{"first numeric segment", "https://www.mangabaka.dev/9/10", "9", false},
		{"other host", "https://example.com/series/123", "", true},
		{"no id", "https://mangabaka.dev/series/title", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := client.EntryIDFromURL(tc.url)
			if tc.wantErr {
				if !errors.Is(err, ErrNotRemoteURL) {
					t.Fatalf("expected ErrNotRemoteURL, got %q, %v", got, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("EntryIDFromURL(%q) = %q, %v; want %q", tc.url, got, err, tc.want)
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("  HTTPS://mangabaka.dev/1") {
		t.Fatalf("expected https url to be detected")
	}
	if IsURL("Attack on Titan") {
		t.Fatalf("plain title detected as url")
	}
}
