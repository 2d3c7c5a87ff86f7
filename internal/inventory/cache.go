package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/metrics"
	"github.com/FredZ6/cloud-project/pkg/redis"
)

type stockSnapshot struct {
	SkuID        string    `json:"sku_id"`
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StockCache is a read-through Redis cache over SKU stock rows. Every cache
// failure degrades to the database, never to the caller.
type StockCache struct {
	client  *redis.Client
	metrics *metrics.StockCacheMetrics
	logg    *logger.Logger
	enabled bool
	ttl     time.Duration
	prefix  string
}

func NewStockCache(client *redis.Client, cfg config.CacheConfig, m *metrics.StockCacheMetrics, logg *logger.Logger) *StockCache {
	return &StockCache{
		client:  client,
		metrics: m,
		logg:    logg,
		enabled: cfg.Enabled && client != nil,
		ttl:     cfg.TTL,
		prefix:  cfg.Prefix,
	}
}

// Get returns the cached snapshot for a SKU. The second return is false on
// miss, disabled cache, or any cache error.
func (c *StockCache) Get(ctx context.Context, skuID string) (*models.SkuStock, bool) {
	if c == nil || !c.enabled {
		return nil, false
	}

	raw, err := c.client.Get(ctx, c.client.StockKey(c.prefix, skuID))
	if errors.Is(err, redis.Nil) {
		c.metrics.IncMiss()
		return nil, false
	}
	if err != nil {
		c.metrics.IncFallback()
		c.warn(ctx, skuID, "stock cache read failed", err)
		return nil, false
	}

	var snapshot stockSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		// A corrupt entry would keep serving garbage until TTL; drop it now.
		c.Evict(ctx, skuID)
		c.metrics.IncFallback()
		c.warn(ctx, skuID, "stock cache entry corrupt, evicted", err)
		return nil, false
	}

	c.metrics.IncHit()
	return &models.SkuStock{
		SkuID:        snapshot.SkuID,
		AvailableQty: snapshot.AvailableQty,
		ReservedQty:  snapshot.ReservedQty,
		UpdatedAt:    snapshot.UpdatedAt,
	}, true
}

// Put stores a snapshot with the configured TTL. Failures are logged only.
func (c *StockCache) Put(ctx context.Context, stock *models.SkuStock) {
	if c == nil || !c.enabled || stock == nil {
		return
	}

	payload, err := json.Marshal(stockSnapshot{
		SkuID:        stock.SkuID,
		AvailableQty: stock.AvailableQty,
		ReservedQty:  stock.ReservedQty,
		UpdatedAt:    stock.UpdatedAt,
	})
	if err != nil {
		c.warn(ctx, stock.SkuID, "stock cache encode failed", err)
		return
	}

	if err := c.client.Set(ctx, c.client.StockKey(c.prefix, stock.SkuID), payload, c.ttl); err != nil {
		c.warn(ctx, stock.SkuID, "stock cache write failed", err)
		return
	}
	c.metrics.IncWrite()
}

// Evict drops cache entries after a stock mutation.
func (c *StockCache) Evict(ctx context.Context, skuIDs ...string) {
	if c == nil || !c.enabled || len(skuIDs) == 0 {
		return
	}

	keys := make([]string, 0, len(skuIDs))
	for _, skuID := range skuIDs {
		keys = append(keys, c.client.StockKey(c.prefix, skuID))
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		c.warn(ctx, skuIDs[0], "stock cache evict failed", err)
		return
	}
	c.metrics.IncEvict()
}

func (c *StockCache) warn(ctx context.Context, skuID, msg string, err error) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{"sku_id": skuID, "error": err.Error()})
	c.logg.Warn(logCtx, msg)
}
