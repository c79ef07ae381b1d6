package modelcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"iotml/internal/common/fsutil"
	"iotml/internal/engine"
	"iotml/internal/events"
)

// Cache is a bounded LRU of loaded models keyed by model id.
type Cache struct {
	root       string
	timeout    time.Duration
	production bool
	loader     Loader
	pub        events.Publisher
	log        zerolog.Logger
	group      *singleflight.Group

	mu         sync.Mutex
	maxSize    int
	ll         *list.List // front is most recently used
	index      map[string]*list.Element
	hits       uint64
	misses     uint64
	duplicates uint64
	evictions  uint64
}

type entry struct {
	id    string
	model engine.Model
}

// Stats is a consistent snapshot of the cache counters.
type Stats struct {
	CachedModels       int     `json:"cached_models"`
	MaxCacheSize       int     `json:"max_cache_size"`
	CacheHits          uint64  `json:"cache_hits"`
	CacheMisses        uint64  `json:"cache_misses"`
	DuplicateLoads     uint64  `json:"duplicate_loads"`
	Evictions          uint64  `json:"evictions"`
	HitRate            float64 `json:"hit_rate"`
	LoadTimeoutSeconds float64 `json:"load_timeout_seconds"`
}

// New creates the storage root if needed and returns an empty cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Root == "" {
		return nil, errors.New("modelcache: storage root is required")
	}
	root, err := fsutil.ExpandHome(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("modelcache: create root: %w", err)
	}
	root, err = fsutil.ResolveExisting(root)
	if err != nil {
		return nil, fmt.Errorf("modelcache: resolve root: %w", err)
	}
	c := &Cache{
		root:       root,
		timeout:    cfg.LoadTimeout,
		production: cfg.Production,
		loader:     cfg.Loader,
		pub:        events.OrNoop(cfg.Publisher),
		maxSize:    cfg.MaxSize,
		ll:         list.New(),
		index:      make(map[string]*list.Element),
	}
	if c.timeout <= 0 {
		c.timeout = defaultLoadTimeout
	}
	if c.maxSize <= 0 {
		c.maxSize = defaultMaxSize
	}
	if c.loader == nil {
		c.loader = openArtifact
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "modelcache").Logger()
	} else {
		c.log = zerolog.Nop()
	}
	if cfg.DedupeLoads {
		c.group = &singleflight.Group{}
	}
	c.log.Info().
		Int("max_cache_size", c.maxSize).
		Dur("load_timeout", c.timeout).
		Str("storage_root", c.root).
		Bool("dedupe_loads", cfg.DedupeLoads).
		Msg("model cache initialised")
	return c, nil
}

// Root returns the resolved storage root.
func (c *Cache) Root() string { return c.root }

// Get returns the cached model for modelID, loading it from path (or
// <root>/<modelID>.model when path is empty) on a miss. Relative paths are
// taken relative to the storage root.
func (c *Cache) Get(ctx context.Context, modelID string, kind engine.Kind, path string) (engine.Model, error) {
	if modelID == "" {
		return nil, &NotFoundError{}
	}
	if !kind.Valid() {
		return nil, &TypeMismatchError{ModelID: modelID, Want: kind}
	}
	resolved, err := c.resolve(modelID, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if el, ok := c.index[modelID]; ok {
		m := el.Value.(*entry).model
		if m.Kind() != kind {
			c.mu.Unlock()
			return nil, &TypeMismatchError{ModelID: modelID, Want: kind, Got: m.Kind()}
		}
		c.ll.MoveToFront(el)
		c.hits++
		c.mu.Unlock()
		lookupsTotal.WithLabelValues("hit").Inc()
		c.pub.Publish(events.Event{Name: "cache_hit", ModelID: modelID})
		return m, nil
	}
	c.misses++
	c.mu.Unlock()
	lookupsTotal.WithLabelValues("miss").Inc()

	loaded, err := c.load(ctx, modelID, kind, resolved)
	if err != nil {
		return nil, err
	}
	return c.insert(modelID, loaded), nil
}

// insert adds m unless another caller cached modelID first, in which case
// the cached model is returned and m is dropped.
func (c *Cache) insert(modelID string, m engine.Model) engine.Model {
	c.mu.Lock()
	if el, ok := c.index[modelID]; ok {
		c.ll.MoveToFront(el)
		cached := el.Value.(*entry).model
		if cached == m {
			c.mu.Unlock()
			return cached
		}
		c.duplicates++
		c.mu.Unlock()
		duplicateLoadsTotal.Inc()
		c.log.Debug().Str("model_id", modelID).Msg("duplicate load discarded")
		c.pub.Publish(events.Event{Name: "cache_duplicate_load", ModelID: modelID})
		return cached
	}
	c.index[modelID] = c.ll.PushFront(&entry{id: modelID, model: m})
	evicted := c.evictLocked()
	size := c.ll.Len()
	c.mu.Unlock()

	cachedModels.Set(float64(size))
	c.pub.Publish(events.Event{Name: "cache_load", ModelID: modelID, Fields: map[string]any{"kind": string(m.Kind())}})
	c.publishEvictions(evicted)
	return m
}

// evictLocked drops least recently used entries while the cache is over its
// bound. The caller must hold c.mu.
func (c *Cache) evictLocked() []string {
	var evicted []string
	for c.ll.Len() > c.maxSize {
		el := c.ll.Back()
		e := el.Value.(*entry)
		c.ll.Remove(el)
		delete(c.index, e.id)
		c.evictions++
		evicted = append(evicted, e.id)
	}
	return evicted
}

func (c *Cache) publishEvictions(ids []string) {
	for _, id := range ids {
		evictionsTotal.Inc()
		c.log.Debug().Str("model_id", id).Msg("evicted model from cache")
		c.pub.Publish(events.Event{Name: "cache_evict", ModelID: id})
	}
}

// Invalidate removes modelID and reports whether it was cached.
func (c *Cache) Invalidate(modelID string) bool {
	c.mu.Lock()
	el, ok := c.index[modelID]
	if ok {
		c.ll.Remove(el)
		delete(c.index, modelID)
	}
	size := c.ll.Len()
	c.mu.Unlock()
	if !ok {
		return false
	}
	cachedModels.Set(float64(size))
	c.log.Info().Str("model_id", modelID).Msg("invalidated model")
	c.pub.Publish(events.Event{Name: "cache_invalidate", ModelID: modelID})
	return true
}

// Clear empties the cache and returns how many models were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := c.ll.Len()
	c.ll.Init()
	c.index = make(map[string]*list.Element)
	c.mu.Unlock()
	cachedModels.Set(0)
	c.log.Info().Int("count", n).Msg("cleared model cache")
	c.pub.Publish(events.Event{Name: "cache_clear", Fields: map[string]any{"count": n}})
	return n
}

// SetMaxSize changes the bound and evicts down to it immediately.
func (c *Cache) SetMaxSize(n int) {
	if n <= 0 {
		n = defaultMaxSize
	}
	c.mu.Lock()
	c.maxSize = n
	evicted := c.evictLocked()
	size := c.ll.Len()
	c.mu.Unlock()
	cachedModels.Set(float64(size))
	c.publishEvictions(evicted)
}

// Contains reports whether modelID is cached without touching recency or
// counters.
func (c *Cache) Contains(modelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[modelID]
	return ok
}

// Keys returns cached ids from most to least recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).id)
	}
	return out
}

// Stats returns all counters from a single lock acquisition.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		CachedModels:       c.ll.Len(),
		MaxCacheSize:       c.maxSize,
		CacheHits:          c.hits,
		CacheMisses:        c.misses,
		DuplicateLoads:     c.duplicates,
		Evictions:          c.evictions,
		LoadTimeoutSeconds: c.timeout.Seconds(),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// resolve maps a caller path (or the derived default) to a symlink-resolved
// path strictly inside the storage root.
func (c *Cache) resolve(modelID, path string) (string, error) {
	if path == "" {
		path = engine.ArtifactPath(c.root, modelID)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(c.root, path)
	}
	resolved, err := fsutil.ResolveExisting(path)
	if err == nil && fsutil.Within(c.root, resolved) {
		return resolved, nil
	}
	c.log.Warn().Str("storage_root", c.root).Msg("path traversal attempt detected for model load")
	return "", &InvalidPathError{ModelID: modelID}
}
