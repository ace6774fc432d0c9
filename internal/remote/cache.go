package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
)

// Cache stores remote results keyed by CacheKey. Entries never expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.Metadata, bool, error)
	Set(ctx context.Context, key string, items []domain.Metadata) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// CacheKey folds a query into its cache key.
func CacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// FileCache keeps the whole cache in memory and rewrites the JSON file on
// every change. A sibling lock file serializes writers across processes.
type FileCache struct {
	mu      sync.Mutex
	path    string
	lock    *flock.Flock
	entries map[string]json.RawMessage
	mirror  *RedisCache
	logger  *slog.Logger
}

type FileCacheOption func(*FileCache)

func WithCacheLogger(logger *slog.Logger) FileCacheOption {
	return func(c *FileCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRedisMirror writes every entry to Redis as well and consults it on
// local misses.
func WithRedisMirror(mirror *RedisCache) FileCacheOption {
	return func(c *FileCache) {
		c.mirror = mirror
	}
}

// OpenFileCache loads path. A missing file starts an empty cache; an
// unreadable one is logged and replaced on the next write.
func OpenFileCache(path string, opts ...FileCacheOption) (*FileCache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path is required")
	}
	cache := &FileCache{
		path:    path,
		lock:    flock.New(path + ".lock"),
		entries: make(map[string]json.RawMessage),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cache)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cache, nil
	case err != nil:
		return nil, fmt.Errorf("read response cache: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cache, nil
	}
	if err := json.Unmarshal(data, &cache.entries); err != nil {
		cache.logger.Error("response cache unreadable, starting empty",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		cache.entries = make(map[string]json.RawMessage)
	}
	return cache, nil
}

func (c *FileCache) Path() string { return c.path }

func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached keys in sorted order.
func (c *FileCache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (c *FileCache) Get(ctx context.Context, key string) ([]domain.Metadata, bool, error) {
	key = CacheKey(key)
	c.mu.Lock()
	raw, ok := c.entries[key]
	if ok {
		items, err := decodeCacheEntry(raw)
		if err != nil {
			// Dropped here; the next successful lookup overwrites the file.
			delete(c.entries, key)
			c.mu.Unlock()
			c.logger.Warn("response cache entry discarded",
				slog.String("kind", "cache_corrupt"),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			metrics.CacheMissesTotal.Inc()
			return nil, false, nil
		}
		c.mu.Unlock()
		metrics.CacheHitsTotal.Inc()
		return items, true, nil
	}
	c.mu.Unlock()

	if c.mirror != nil {
		items, found, err := c.mirror.Get(ctx, key)
		if err != nil {
			c.logger.Warn("redis cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if found {
			c.mu.Lock()
			if encoded, err := json.Marshal(items); err == nil {
				c.entries[key] = encoded
			}
			c.mu.Unlock()
			metrics.CacheHitsTotal.Inc()
			return items, true, nil
		}
	}
	metrics.CacheMissesTotal.Inc()
	return nil, false, nil
}

func (c *FileCache) Set(ctx context.Context, key string, items []domain.Metadata) error {
	key = CacheKey(key)
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	c.mu.Lock()
	c.entries[key] = encoded
	err = c.persistLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.mirror != nil {
		if err := c.mirror.Set(ctx, key, items); err != nil {
			c.logger.Warn("redis cache store failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *FileCache) Delete(ctx context.Context, key string) error {
	key = CacheKey(key)
	c.mu.Lock()
	delete(c.entries, key)
	err := c.persistLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.mirror != nil {
		return c.mirror.Delete(ctx, key)
	}
	return nil
}

func (c *FileCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]json.RawMessage)
	err := c.persistLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.mirror != nil {
		return c.mirror.Clear(ctx)
	}
	return nil
}

// persistLocked rewrites the cache file in full. c.mu must be held.
func (c *FileCache) persistLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response cache: %w", err)
	}
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock response cache: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write response cache: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write response cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write response cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace response cache: %w", err)
	}
	return nil
}

// decodeCacheEntry accepts a list of metadata objects or a single object.
func decodeCacheEntry(raw json.RawMessage) ([]domain.Metadata, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrCacheCorrupt
	}
	switch trimmed[0] {
	case '[':
		var items []domain.Metadata
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
		}
		return items, nil
	case '{':
		var item domain.Metadata
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
		}
		return []domain.Metadata{item}, nil
	default:
		return nil, ErrCacheCorrupt
	}
}
