package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/sarathi/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultOfflineMessage is the body of the synthetic offline payload.
	DefaultOfflineMessage = "ऑफ़लाइन हैं"

	defaultFetchConcurrency = 4
)

// Result is a served response and where it came from.
type Result struct {
	Response *domain.CachedResponse
	Source   domain.Source
	Mode     Mode
}

// Cache is a versioned cache of origin responses. Exactly one generation is
// live at a time; reads and write-backs only ever touch the live generation.
type Cache struct {
	store    domain.GenerationStore
	fetcher  domain.Fetcher
	strategy Strategy
	metrics  *Metrics
	logger   *slog.Logger

	offline     []byte
	concurrency int

	// mu orders activation (exclusive) against cache reads and write-backs
	// (shared), so a resolve never sees a half-switched live generation.
	mu sync.RWMutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithStrategy sets the serving strategy (default network-first).
func WithStrategy(s Strategy) Option {
	return func(c *Cache) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithOfflineMessage sets the message of the synthetic offline payload.
func WithOfflineMessage(msg string) Option {
	return func(c *Cache) {
		if msg != "" {
			c.offline = offlineBody(msg)
		}
	}
}

// WithMetrics records cache activity.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithFetchConcurrency bounds parallel asset fetches during Populate.
func WithFetchConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a Cache over store and fetcher.
func New(store domain.GenerationStore, fetcher domain.Fetcher, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:       store,
		fetcher:     fetcher,
		strategy:    Uniform(NetworkFirst),
		logger:      logger,
		offline:     offlineBody(DefaultOfflineMessage),
		concurrency: defaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func offlineBody(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

// Strategy returns the active serving strategy.
func (c *Cache) Strategy() Strategy {
	return c.strategy
}

// Live returns the live generation tag.
func (c *Cache) Live() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Live()
}

// Ready reports whether tag was fully populated and can be activated.
func (c *Cache) Ready(tag string) bool {
	return c.store.IsReady(tag)
}

// Generations returns every stored generation tag.
func (c *Cache) Generations() ([]string, error) {
	return c.store.Generations()
}

// Entries returns the request keys stored in the live generation.
func (c *Cache) Entries() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tag, ok := c.store.Live()
	if !ok {
		return nil, nil
	}
	return c.store.Keys(tag)
}

// Populate fetches every asset and stores them as generation tag. If any
// asset fails, nothing is stored and the generation can never be activated.
func (c *Cache) Populate(ctx context.Context, tag string, assets []string, onProgress domain.ProgressFunc) error {
	if tag == "" {
		return fmt.Errorf("generation tag is required")
	}

	var (
		mu      sync.Mutex
		entries = make(map[string]*domain.CachedResponse, len(assets))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, asset := range assets {
		g.Go(func() error {
			key, resp, err := c.fetchAsset(gctx, asset)
			if err != nil {
				return err
			}

			mu.Lock()
			entries[key] = resp
			loaded := len(entries)
			mu.Unlock()

			if onProgress != nil {
				onProgress(loaded, len(assets))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.metrics.populated(false)
		c.logger.Error("failed to populate generation", "error", err, "tag", tag)
		return err
	}

	if err := c.store.SaveGeneration(tag, entries); err != nil {
		c.metrics.populated(false)
		c.logger.Error("failed to save generation", "error", err, "tag", tag)
		return fmt.Errorf("failed to save generation %s: %w", tag, err)
	}

	c.metrics.populated(true)
	c.logger.Info("populated generation", "tag", tag, "assets", len(entries))
	return nil
}

// fetchAsset returns the asset under the same key Resolve looks it up by.
func (c *Cache) fetchAsset(ctx context.Context, asset string) (string, *domain.CachedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", domain.ErrAssetFetch, asset, err)
	}

	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", domain.ErrAssetFetch, asset, err)
	}
	if !resp.OK() {
		return "", nil, fmt.Errorf("%w: %s: status %d", domain.ErrAssetFetch, asset, resp.Status)
	}
	return RequestKey(req), resp, nil
}

// Activate makes tag live and deletes every other generation.
func (c *Cache) Activate(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted, err := c.store.Activate(tag)
	if err != nil {
		c.logger.Error("failed to activate generation", "error", err, "tag", tag)
		return err
	}

	c.metrics.activated(len(evicted))
	c.logger.Info("activated generation", "tag", tag, "evicted", evicted)
	return nil
}

// Resolve serves req according to the active strategy. It never fails:
// network trouble degrades to the stored copy or the offline payload.
func (c *Cache) Resolve(ctx context.Context, req *http.Request) Result {
	mode := c.strategy.ModeFor(req)

	var res Result
	switch mode {
	case CacheFirst:
		res = c.cacheFirst(ctx, req)
	default:
		mode = NetworkFirst
		res = c.networkFirst(ctx, req)
	}
	res.Mode = mode

	c.metrics.resolved(mode, string(res.Source))
	c.logger.Debug("resolved request", "key", RequestKey(req), "mode", mode, "source", res.Source)
	return res
}

func (c *Cache) networkFirst(ctx context.Context, req *http.Request) Result {
	resp, err := c.fetcher.Fetch(ctx, req)
	if err == nil {
		if cacheable(req) && resp.OK() {
			c.writeBack(RequestKey(req), resp)
		}
		return Result{Response: resp, Source: domain.SourceNetwork}
	}

	c.logger.Debug("network failed, falling back", "error", err, "key", RequestKey(req))

	if cacheable(req) {
		if cached, ok := c.lookup(RequestKey(req)); ok {
			return Result{Response: cached, Source: domain.SourceCache}
		}
	}
	return c.offlineResult()
}

func (c *Cache) cacheFirst(ctx context.Context, req *http.Request) Result {
	if cacheable(req) {
		if cached, ok := c.lookup(RequestKey(req)); ok {
			return Result{Response: cached, Source: domain.SourceCache}
		}
	}

	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		c.logger.Debug("network failed on cache miss", "error", err, "key", RequestKey(req))
		return c.offlineResult()
	}
	return Result{Response: resp, Source: domain.SourceNetwork}
}

func (c *Cache) lookup(key string) (*domain.CachedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tag, ok := c.store.Live()
	if !ok {
		return nil, false
	}
	return c.store.GetEntry(tag, key)
}

// writeBack replaces the stored copy in the live generation. Failures are
// logged only; the caller already has its response.
func (c *Cache) writeBack(key string, resp *domain.CachedResponse) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tag, ok := c.store.Live()
	if !ok {
		return
	}
	if err := c.store.PutEntry(tag, key, resp); err != nil {
		c.logger.Warn("failed to write back response", "error", err, "key", key, "tag", tag)
	}
}

func (c *Cache) offlineResult() Result {
	return Result{
		Response: &domain.CachedResponse{
			Status:   http.StatusServiceUnavailable,
			Header:   http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
			Body:     c.offline,
			StoredAt: time.Now().UTC(),
		},
		Source: domain.SourceOffline,
	}
}

// RequestKey identifies a request within a generation: the escaped path
// plus query, so /x%3Fy and /x?y stay distinct.
func RequestKey(req *http.Request) string {
	path := req.URL.EscapedPath()
	if req.URL.RawQuery == "" {
		return path
	}
	return path + "?" + req.URL.RawQuery
}

func cacheable(req *http.Request) bool {
	return req.Method == http.MethodGet || req.Method == ""
}
