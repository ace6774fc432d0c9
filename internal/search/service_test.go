package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/enrichment"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
)

type fakeRemote struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]domain.Metadata
	errs    map[string]error

	started chan string
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{results: map[string][]domain.Metadata{}, errs: map[string]error{}}
}

func (f *fakeRemote) Lookup(ctx context.Context, query string) ([]domain.Metadata, domain.LookupSource, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	items, err := f.results[query], f.errs[query]
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- query:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}
	if err != nil {
		return nil, domain.LookupSourceNone, err
	}
	if len(items) == 0 {
		return nil, domain.LookupSourceNone, nil
	}
	return items, domain.LookupSourceRemote, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCache struct {
	deleted []string
	cleared int
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeCache) Clear(context.Context) error {
	f.cleared++
	return nil
}

type fakeEnricher struct {
	ids []string
}

func (f *fakeEnricher) Fetch(_ context.Context, id string) (domain.Credits, error) {
	f.ids = append(f.ids, id)
	return domain.Credits{Writer: "Writer " + id}, nil
}

func newTestService(remoteLookup RemoteLookup, opts ...ServiceOption) *Service {
	engine := newTestEngine([]domain.CatalogRecord{
		active("1", "Attack on Titan"),
		merged("2", "AoT", "1"),
		active("3", "Vinland Saga"),
	})
	base := []ServiceOption{WithServiceLogger(discardLogger())}
	if remoteLookup != nil {
		base = append(base, WithRemote(remoteLookup))
	}
	return NewService(engine, append(base, opts...)...)
}

func TestLookupPrefersLocalMatches(t *testing.T) {
	fake := newFakeRemote()
	service := newTestService(fake)

	result, err := service.Lookup(context.Background(), domain.LookupRequest{Title: "  Attack on Titan "})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Source != domain.LookupSourceLocal || len(result.Items) != 1 {
		t.Fatalf("expected one local item, got %+v", result)
	}
	item := result.Items[0]
	if item.Title != "Attack on Titan" || item.Score != 100 || item.EntryID != "1" {
		t.Fatalf("unexpected item %+v", item)
	}
	if result.Query != "Attack on Titan" {
		t.Fatalf("expected trimmed query, got %q", result.Query)
	}
	if fake.callCount() != 0 {
		t.Fatalf("remote must not be called on a local hit")
	}
}

func TestLookupFallsBackToRemote(t *testing.T) {
	fake := newFakeRemote()
	fake.results["Berserk"] = []domain.Metadata{{Title: "Berserk", EntryID: "99"}}
	service := newTestService(fake)

	result, err := service.Lookup(context.Background(), domain.LookupRequest{Title: "Berserk"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Source != domain.LookupSourceRemote || len(result.Items) != 1 || result.Items[0].EntryID != "99" {
		t.Fatalf("expected remote item, got %+v", result)
	}
	if result.Items[0].Score != 0 {
		t.Fatalf("remote items carry no score, got %d", result.Items[0].Score)
	}
}

func TestLookupRemoteMiss(t *testing.T) {
	service := newTestService(newFakeRemote())
	result, err := service.Lookup(context.Background(), domain.LookupRequest{Title: "Nothing Like It"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Source != domain.LookupSourceNone || result.Items == nil || len(result.Items) != 0 {
		t.Fatalf("expected empty non-nil result, got %+v", result)
	}
}

func TestLookupLocalOnly(t *testing.T) {
	ctx := context.Background()

	fake := newFakeRemote()
	fake.results["Berserk"] = []domain.Metadata{{Title: "Berserk"}}
	service := newTestService(fake)
	result, err := service.Lookup(ctx, domain.LookupRequest{Title: "Berserk", LocalOnly: true})
	if err != nil || result.Source != domain.LookupSourceNone {
		t.Fatalf("expected none, got %+v / %v", result, err)
	}

	service = newTestService(fake, WithLocalOnly(true))
	if _, err := service.Lookup(ctx, domain.LookupRequest{Title: "Berserk"}); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := service.Lookup(ctx, domain.LookupRequest{Title: "https://mangabaka.dev/99"}); err != nil {
		t.Fatalf("Lookup url: %v", err)
	}
	if fake.callCount() != 0 {
		t.Fatalf("local-only lookups must not reach the remote, got %d calls", fake.callCount())
	}

	// No remote configured behaves as local-only.
	result, err = newTestService(nil).Lookup(ctx, domain.LookupRequest{Title: "Berserk"})
	if err != nil || result.Source != domain.LookupSourceNone {
		t.Fatalf("expected none without remote, got %+v / %v", result, err)
	}
}

func TestLookupURLGoesStraightToRemote(t *testing.T) {
	fake := newFakeRemote()
	url := "https://mangabaka.dev/1/attack-on-titan"
	fake.results[url] = []domain.Metadata{{Title: "Attack on Titan", EntryID: "1"}}
	service := newTestService(fake)

	result, err := service.Lookup(context.Background(), domain.LookupRequest{Title: url})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Source != domain.LookupSourceRemote || fake.callCount() != 1 {
		t.Fatalf("expected remote lookup for url, got %+v", result)
	}
}

func TestLookupRemoteErrors(t *testing.T) {
	fake := newFakeRemote()
	fake.errs["Broken"] = fmt.Errorf("search: %w", remote.ErrRemoteTransient)
	fake.errs["https://example.com/page"] = fmt.Errorf("%w: no numeric id", remote.ErrNotRemoteURL)
	service := newTestService(fake)
	ctx := context.Background()

	result, err := service.Lookup(ctx, domain.LookupRequest{Title: "Broken"})
	if !errors.Is(err, remote.ErrRemoteTransient) {
		t.Fatalf("expected wrapped transient error, got %v", err)
	}
	if result.Source != domain.LookupSourceNone {
		t.Fatalf("expected none on failure, got %s", result.Source)
	}

	result, err = service.Lookup(ctx, domain.LookupRequest{Title: "https://example.com/page"})
	if err != nil {
		t.Fatalf("foreign urls are a miss, not an error: %v", err)
	}
	if result.Source != domain.LookupSourceNone {
		t.Fatalf("expected none, got %s", result.Source)
	}
}

func TestLookupEmptyTitle(t *testing.T) {
	fake := newFakeRemote()
	service := newTestService(fake)
	result, err := service.Lookup(context.Background(), domain.LookupRequest{Title: "   "})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Source != domain.LookupSourceNone || len(result.Items) != 0 || fake.callCount() != 0 {
		t.Fatalf("expected untouched empty result, got %+v", result)
	}
}

func TestInvalidateCache(t *testing.T) {
	ctx := context.Background()
	if err := newTestService(nil).InvalidateCache(ctx, "foo"); !errors.Is(err, ErrCacheDisabled) {
		t.Fatalf("expected ErrCacheDisabled, got %v", err)
	}

	cache := &fakeCache{}
	service := newTestService(nil, WithCacheAdmin(cache))
	if err := service.InvalidateCache(ctx, "  Foo "); err != nil {
		t.Fatalf("InvalidateCache: %v", err)
	}
	if err := service.InvalidateCache(ctx, ""); err != nil {
		t.Fatalf("InvalidateCache: %v", err)
	}
	if len(cache.deleted) != 1 || cache.deleted[0] != "foo" || cache.cleared != 1 {
		t.Fatalf("unexpected cache calls %+v", cache)
	}
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()
	if _, err := newTestService(nil).Enrich(ctx, "1"); !errors.Is(err, ErrEnrichmentDisabled) {
		t.Fatalf("expected ErrEnrichmentDisabled, got %v", err)
	}

	enricher := &fakeEnricher{}
	service := newTestService(nil, WithEnricher(enricher))

	credits, err := service.Enrich(ctx, " 30002 ")
	if err != nil || credits.Writer != "Writer 30002" {
		t.Fatalf("unexpected credits %+v / %v", credits, err)
	}
	if _, err := service.Enrich(ctx, "https://mangabaka.dev/1, https://anilist.co/manga/53390/Shingeki-no-Kyojin"); err != nil {
		t.Fatalf("Enrich links: %v", err)
	}
	if len(enricher.ids) != 2 || enricher.ids[1] != "53390" {
		t.Fatalf("unexpected fetched ids %v", enricher.ids)
	}
	if _, err := service.Enrich(ctx, "https://mangabaka.dev/1"); !errors.Is(err, enrichment.ErrNoLink) {
		t.Fatalf("expected ErrNoLink, got %v", err)
	}
}

func TestBatchOutcomes(t *testing.T) {
	fake := newFakeRemote()
	fake.results["Berserk"] = []domain.Metadata{{Title: "Berserk"}}
	fake.errs["Broken"] = fmt.Errorf("search: %w", remote.ErrRemoteFatal)
	service := newTestService(fake)

	response := service.Batch(context.Background(), BatchRequest{
		Workers: 2,
		Items: []domain.BatchItem{
			{Title: "Attack on Titan"},
			{File: "/manga/[Group] berserk v01.cbz"},
			{File: "[Group] (2012).cbz"},
			{Title: "Unknown Series"},
			{Title: "Broken"},
		},
	})

	want := []domain.BatchOutcome{
		domain.BatchOutcomeMatched,
		domain.BatchOutcomeMatched,
		domain.BatchOutcomeInvalidTitle,
		domain.BatchOutcomeNoMatch,
		domain.BatchOutcomeNoMatch,
	}
	if len(response.Results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(response.Results))
	}
	for i, outcome := range want {
		if response.Results[i].Outcome != outcome {
			t.Fatalf("item %d: got %s, want %s", i, response.Results[i].Outcome, outcome)
		}
	}
	if response.Results[0].Source != domain.LookupSourceLocal || response.Results[1].Source != domain.LookupSourceRemote {
		t.Fatalf("unexpected sources %+v", response.Results[:2])
	}
	if response.Results[1].Title != "Berserk" {
		t.Fatalf("expected title from file name, got %q", response.Results[1].Title)
	}
	if response.Results[4].Error == "" {
		t.Fatalf("expected failure message on item 4")
	}
	if response.Matched != 2 || response.Failed != 3 || response.RunID == "" {
		t.Fatalf("unexpected summary %+v", response)
	}
}

func TestBatchLocalOnly(t *testing.T) {
	fake := newFakeRemote()
	fake.results["Berserk"] = []domain.Metadata{{Title: "Berserk"}}
	service := newTestService(fake)

	response := service.Batch(context.Background(), BatchRequest{
		LocalOnly: true,
		Items:     []domain.BatchItem{{Title: "Berserk"}, {Title: "Vinland Saga"}},
	})
	if response.Results[0].Outcome != domain.BatchOutcomeNoMatch || response.Results[1].Outcome != domain.BatchOutcomeMatched {
		t.Fatalf("unexpected outcomes %+v", response.Results)
	}
	if fake.callCount() != 0 {
		t.Fatalf("local-only batch reached the remote")
	}
}

func TestBatchCancellation(t *testing.T) {
	fake := newFakeRemote()
	fake.started = make(chan string, 8)
	fake.release = make(chan struct{})
	service := newTestService(fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.BatchResponse, 1)
	go func() {
		done <- service.Batch(ctx, BatchRequest{
			Workers: 1,
			Items:   []domain.BatchItem{{Title: "First"}, {Title: "Second"}, {Title: "Third"}},
		})
	}()

	select {
	case <-fake.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("first lookup never started")
	}
	cancel()
	close(fake.release)

	var response domain.BatchResponse
	select {
	case response = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("batch did not return after cancellation")
	}
	for i, result := range response.Results {
		if result.Outcome != domain.BatchOutcomeCancelled {
			t.Fatalf("item %d: expected cancelled, got %s", i, result.Outcome)
		}
	}
	if response.Matched != 0 || response.Failed != 3 {
		t.Fatalf("unexpected summary %+v", response)
	}
	if fake.callCount() < 1 {
		t.Fatalf("expected the started lookup to be recorded")
	}
}
