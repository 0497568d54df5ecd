package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const productCacheTTL = time.Minute

// CachedRepository is a read-through cache in front of a Repository.
// A nil redis client makes it a transparent passthrough, so deployments
// without Redis run unchanged.
type CachedRepository struct {
	inner Repository
	rdb   *redis.Client
}

func NewCachedRepository(inner Repository, rdb *redis.Client) *CachedRepository {
	return &CachedRepository{inner: inner, rdb: rdb}
}

var _ Repository = (*CachedRepository)(nil)

func (c *CachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	if c.rdb == nil {
		return c.inner.GetByID(ctx, id)
	}

	cacheKey := "product:" + id.String()
	if cached, err := c.rdb.Get(ctx, cacheKey).Result(); err == nil {
		var p Product
		if err := json.Unmarshal([]byte(cached), &p); err == nil {
			return &p, nil
		}
	}

	p, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, cacheKey, data, productCacheTTL).Err(); err != nil {
			log.Warn().Err(err).Str("product_id", id.String()).Msg("Failed to cache product")
		}
	}

	return p, nil
}

// ListByStore is not cached: the seller view needs live stock counts.
func (c *CachedRepository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]Product, error) {
	return c.inner.ListByStore(ctx, storeID)
}
