package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const catalogKeyPrefix = "catalog:active:"

// CachedLookup keeps each tenant's active catalog in Redis for a short TTL.
// Cache faults are logged and fall through to the underlying lookup.
type CachedLookup struct {
	next   Lookup
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ Lookup = (*CachedLookup)(nil)

func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedLookup {
	if next == nil {
		panic("catalog: lookup required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedLookup{next: next, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedLookup) FindActiveByTenant(ctx context.Context, tenantID string) ([]Product, error) {
	if c.redis == nil {
		return c.next.FindActiveByTenant(ctx, tenantID)
	}
	key := catalogKeyPrefix + tenantID
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var products []Product
		if jsonErr := json.Unmarshal(data, &products); jsonErr == nil {
			return products, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("catalog cache read failed", "tenant_id", tenantID, "error", err)
	}

	products, err := c.next.FindActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(products); err == nil {
		if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", "tenant_id", tenantID, "error", err)
		}
	}
	return products, nil
}

// FindByID always reads through so stock checks see current quantities.
func (c *CachedLookup) FindByID(ctx context.Context, id string) (*Product, error) {
	return c.next.FindByID(ctx, id)
}

// Invalidate drops a tenant's cached catalog.
func (c *CachedLookup) Invalidate(ctx context.Context, tenantID string) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, catalogKeyPrefix+tenantID).Err()
}
