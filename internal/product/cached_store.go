package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var errCacheMiss = errors.New("cache miss")

// CachedStore is a read-through Redis cache in front of another Store.
// Unknown products are never cached.
type CachedStore struct {
	next        Store
	client      *redis.Client
	baseTTL     time.Duration
	loadTimeout time.Duration      // Bounds a shared load; it ignores caller cancellation
	sfg         singleflight.Group // Prevents cache stampede
}

func NewCachedStore(next Store, client *redis.Client) *CachedStore {
	return &CachedStore{
		next:        next,
		client:      client,
		baseTTL:     10 * time.Minute,
		loadTimeout: 5 * time.Second,
	}
}

func (c *CachedStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	ch := c.sfg.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		product, err := c.get(ctx, id)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, errCacheMiss) {
			slog.WarnContext(ctx, "product cache get failed", "product_id", id, "error", err)
		}

		product, err = c.next.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}

		if errSet := c.set(ctx, product); errSet != nil {
			slog.WarnContext(ctx, "product cache set failed", "product_id", id, "error", errSet)
		}
		return product, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.(*domain.Product), nil
}

// Invalidate drops the cached entry so the next read goes to the catalog.
func (c *CachedStore) Invalidate(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *CachedStore) get(ctx context.Context, id int64) (*domain.Product, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &product, nil
}

func (c *CachedStore) set(ctx context.Context, product *domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := c.client.Set(ctx, cacheKey(product.ID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}
