package remote

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

func TestFileCacheStoresAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_cache.json")
	ctx := context.Background()

	cache, err := OpenFileCache(path, WithCacheLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	items := []domain.Metadata{{Title: "Foo", EntryID: "7"}}
	if err := cache.Set(ctx, "  Foo ", items); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened, err := OpenFileCache(path, WithCacheLogger(discardLogger()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, found, err := reopened.Get(ctx, "foo")
	if err != nil || !found {
		t.Fatalf("expected hit after reload, found=%v err=%v", found, err)
	}
	if len(got) != 1 || got[0].EntryID != "7" {
		t.Fatalf("unexpected items: %+v", got)
	}
	if keys := reopened.Keys(); len(keys) != 1 || keys[0] != "foo" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestFileCacheCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cache, err := OpenFileCache(path, WithCacheLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cache.Len())
	}
}

func TestFileCacheEntryShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_cache.json")
	raw := map[string]json.RawMessage{
		"single": json.RawMessage(`{"Title":"One","entry_id":"1"}`),
		"list":   json.RawMessage(`[{"Title":"A"},{"Title":"B"}]`),
		"bogus":  json.RawMessage(`42`),
	}
	data, _ := json.Marshal(raw)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cache, err := OpenFileCache(path, WithCacheLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	single, found, _ := cache.Get(ctx, "single")
	if !found || len(single) != 1 || single[0].Title != "One" {
		t.Fatalf("expected single object to read as one item, got %+v found=%v", single, found)
	}
	list, found, _ := cache.Get(ctx, "list")
	if !found || len(list) != 2 {
		t.Fatalf("expected two items, got %+v", list)
	}
	if _, found, err := cache.Get(ctx, "bogus"); found || err != nil {
		t.Fatalf("expected corrupt entry to miss without error, found=%v err=%v", found, err)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected corrupt entry to be dropped, have %d entries", cache.Len())
	}
}

func TestFileCacheDeleteAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_cache.json")
	ctx := context.Background()
	cache, err := OpenFileCache(path, WithCacheLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = cache.Set(ctx, "a", []domain.Metadata{{Title: "A"}})
	_ = cache.Set(ctx, "b", []domain.Metadata{{Title: "B"}})

	if err := cache.Delete(ctx, "A"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := cache.Get(ctx, "a"); found {
		t.Fatalf("expected a to be gone")
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	reopened, _ := OpenFileCache(path, WithCacheLogger(discardLogger()))
	if reopened.Len() != 0 {
		t.Fatalf("expected cleared file, got %d entries", reopened.Len())
	}
}
