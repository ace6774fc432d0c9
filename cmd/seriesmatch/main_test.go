package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
)

type cliTestEnv struct {
	dir         string
	catalogPath string
	cachePath   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("REDIS_URL", "")
	t.Setenv("SCORING_CONFIG", "")
	t.Setenv("SEARCH_LOCAL_ONLY", "")

	dir := t.TempDir()
	env := &cliTestEnv{
		dir:         dir,
		catalogPath: filepath.Join(dir, "series.jsonl"),
		cachePath:   filepath.Join(dir, "api_cache.json"),
	}
	lines := strings.Join([]string{
		`{"id": 1, "title": "Attack on Titan", "state": "active", "year": "2009"}`,
		`{"id": 2, "title": "AoT", "state": "merged", "merged_with": 1}`,
		`{"id": 3, "title": "Berserk", "state": "active"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(env.catalogPath, []byte(lines), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return env
}

func (e *cliTestEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	base := []string{"--catalog", e.catalogPath, "--cache", e.cachePath, "--local-only", "--log-level", "error"}
	cmd.SetArgs(append(args, base...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSearchCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "", "search", "-o", "json", "aot")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var result domain.LookupResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if result.Source != domain.LookupSourceLocal || len(result.Items) != 1 || result.Items[0].EntryID != "1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSearchCommandTable(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "", "search", "--output", "table", "Attack", "on", "Titan")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, want := range []string{"Source: local", "Attack on Titan", "2009", "100"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out, _, err = env.run(t, "", "search", "-o", "table", "Nothing Similar")
	if err != nil || !strings.Contains(out, "No matches") {
		t.Fatalf("expected no matches, got %q / %v", out, err)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "", "search", "-o", "yaml", "berserk"); err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Fatalf("expected output format error, got %v", err)
	}
}

func TestMissingCatalog(t *testing.T) {
	env := setupCLITestEnv(t)
	env.catalogPath = filepath.Join(env.dir, "missing.jsonl")
	if _, _, err := env.run(t, "", "stats"); err == nil {
		t.Fatalf("expected error for missing catalog")
	}
}

func TestStatsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "", "stats", "-o", "json")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var payload struct {
		Catalog domain.CatalogStats `json:"catalog"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Catalog.Records != 3 || payload.Catalog.Canonical != 2 || payload.Catalog.Merged != 1 {
		t.Fatalf("unexpected stats %+v", payload.Catalog)
	}
}

func TestBatchCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	library := filepath.Join(env.dir, "library")
	if err := os.MkdirAll(filepath.Join(library, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"[Group] berserk v01.cbz", "nested/Attack_on_Titan_Vol_02.cbz", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(library, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	out, _, err := env.run(t, "", "batch", "-o", "json", "--workers", "2", library)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var response domain.BatchResponse
	if err := json.Unmarshal([]byte(out), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(response.Results) != 2 || response.Matched != 2 {
		t.Fatalf("unexpected batch response %+v", response)
	}

	if _, _, err := env.run(t, "", "batch", filepath.Join(env.dir, "nowhere")); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestCanonicalizeCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	input := strings.Join([]string{
		`{"id": 10, "title": "One", "state": "active"}`,
		`{"id": 11, "title": "Old One", "state": "merged", "merged_with": 10}`,
		`{"id": 12, "title": "Two", "state": "active"}`,
		`{broken`,
	}, "\n")

	out, errOut, err := env.run(t, input, "canonicalize")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two canonical records, got %q", out)
	}
	var first domain.CatalogRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil || first.ID != "10" {
		t.Fatalf("unexpected first record %+v / %v", first, err)
	}
	if !strings.Contains(errOut, "1 malformed") || !strings.Contains(errOut, "2 canonical") {
		t.Fatalf("unexpected summary %q", errOut)
	}

	out, _, err = env.run(t, "", "canonicalize", env.catalogPath)
	if err != nil || len(strings.Split(strings.TrimSpace(out), "\n")) != 2 {
		t.Fatalf("unexpected file canonicalization %q / %v", out, err)
	}
}

func TestCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	cache, err := remote.OpenFileCache(env.cachePath)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"berserk", "monster"} {
		if err := cache.Set(ctx, key, []domain.Metadata{{Title: key}}); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	out, _, err := env.run(t, "", "cache", "list", "-o", "json")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	var listing struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal([]byte(out), &listing); err != nil || len(listing.Keys) != 2 {
		t.Fatalf("unexpected listing %q / %v", out, err)
	}

	if out, _, err := env.run(t, "", "cache", "invalidate", "  Berserk "); err != nil || !strings.Contains(out, `"berserk"`) {
		t.Fatalf("unexpected invalidate output %q / %v", out, err)
	}
	out, _, _ = env.run(t, "", "cache", "list", "-o", "json")
	if err := json.Unmarshal([]byte(out), &listing); err != nil || len(listing.Keys) != 1 || listing.Keys[0] != "monster" {
		t.Fatalf("unexpected listing after invalidate %q / %v", out, err)
	}

	if out, _, err := env.run(t, "", "cache", "clear"); err != nil || !strings.Contains(out, "Cleared 1") {
		t.Fatalf("unexpected clear output %q / %v", out, err)
	}
	if _, _, err := env.run(t, "", "cache", "invalidate", " "); err == nil {
		t.Fatalf("expected error for blank query")
	}
}

func TestCollectBatchItemsSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Monster v03.cbr")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	items, err := collectBatchItems([]string{path})
	if err != nil || len(items) != 1 || items[0].File != path {
		t.Fatalf("unexpected items %+v / %v", items, err)
	}
}
