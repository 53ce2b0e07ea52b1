package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/gin-gonic/gin"
)

// Store is a byte cache shared by the classifier client and the response middleware
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
}

// Key derives a stable cache key from a namespace and arbitrary input
func Key(namespace, input string) string {
	hash := sha256.Sum256([]byte(input))
	return namespace + ":" + hex.EncodeToString(hash[:])
}

// CacheItem represents a cached item with expiration
type CacheItem struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache provides thread-safe in-process caching with TTL
type Cache struct {
	mu    sync.RWMutex
	items map[string]*CacheItem
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a new cache with the specified TTL and starts the sweeper
func NewCache(ttl time.Duration) *Cache {
	cache := newCache(ttl, time.Now)
	go cache.cleanup(5 * time.Minute)
	return cache
}

func newCache(ttl time.Duration, now func() time.Time) *Cache {
	return &Cache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		now:   now,
		stop:  make(chan struct{}),
	}
}

// cleanup removes expired items periodically until Close
func (c *Cache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
		}
	}
}

// Close stops the background sweeper
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Get retrieves an item from the cache
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if c.now().After(item.ExpiresAt) {
		c.Delete(key)
		return nil, false
	}
	return item.Data, true
}

// Set stores an item in the cache
func (c *Cache) Set(_ context.Context, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem{
		Data:      data,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	totalItems := len(c.items)
	expiredItems := 0
	for _, item := range c.items {
		if now.After(item.ExpiresAt) {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Layered reads through a local cache to a shared one and fills the local
// cache on remote hits
type Layered struct {
	Local  Store
	Remote Store
}

// Get checks the local store first
func (l Layered) Get(ctx context.Context, key string) ([]byte, bool) {
	if data, ok := l.Local.Get(ctx, key); ok {
		return data, true
	}
	if l.Remote == nil {
		return nil, false
	}
	data, ok := l.Remote.Get(ctx, key)
	if ok {
		l.Local.Set(ctx, key, data)
	}
	return data, ok
}

// Set writes to both stores
func (l Layered) Set(ctx context.Context, key string, data []byte) {
	l.Local.Set(ctx, key, data)
	if l.Remote != nil {
		l.Remote.Set(ctx, key, data)
	}
}

// Middleware caches successful JSON responses of deterministic POST routes,
// keyed by route and request body
func Middleware(store Store, metrics *monitoring.Metrics, routes ...string) gin.HandlerFunc {
	cacheable := make(map[string]bool, len(routes))
	for _, r := range routes {
		cacheable[r] = true
	}

	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodPost || !cacheable[ctx.FullPath()] {
			ctx.Next()
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.Next()
			return
		}
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		cacheKey := Key("response", ctx.FullPath()+"\n"+string(body))

		if cachedData, found := store.Get(ctx.Request.Context(), cacheKey); found {
			slog.Debug("Cache hit", "key", cacheKey[:17]+"...")
			if metrics != nil {
				metrics.IncrementCacheHit()
			}
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", cachedData)
			ctx.Abort()
			return
		}

		if metrics != nil {
			metrics.IncrementCacheMiss()
		}

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Next()

		if wrapper.Status() == http.StatusOK {
			store.Set(ctx.Request.Context(), cacheKey, wrapper.body.Bytes())
		}
	}
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
