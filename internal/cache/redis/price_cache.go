package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each key's latest attested price is stored as a hash at
// "price:<Venue>:<ASSET>" with fields "price", "attested_at" (Unix
// nanoseconds) and "tx".
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A positive
// ttl expires entries that stop being refreshed.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(key string) string {
	return "price:" + key
}

func encodePrice(p domain.AttestedPrice) map[string]any {
	return map[string]any{
		"price":       strconv.FormatUint(p.Price, 10),
		"attested_at": strconv.FormatInt(p.AttestedAt.UnixNano(), 10),
		"tx":          p.TxHash,
	}
}

func decodePrice(vals map[string]string) (domain.AttestedPrice, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return domain.AttestedPrice{}, domain.ErrNotFound
	}
	price, err := strconv.ParseUint(priceStr, 10, 64)
	if err != nil {
		return domain.AttestedPrice{}, fmt.Errorf("parse price: %w", err)
	}

	tsStr, ok := vals["attested_at"]
	if !ok {
		return domain.AttestedPrice{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.AttestedPrice{}, fmt.Errorf("parse attested_at: %w", err)
	}

	return domain.AttestedPrice{
		Price:      price,
		AttestedAt: time.Unix(0, tsNano).UTC(),
		TxHash:     vals["tx"],
	}, nil
}

// SetPrice stores the latest attested price for key.
func (pc *PriceCache) SetPrice(ctx context.Context, key string, p domain.AttestedPrice) error {
	rk := priceKey(key)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, rk, encodePrice(p))
	if pc.ttl > 0 {
		pipe.Expire(ctx, rk, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", key, err)
	}
	return nil
}

// GetPrice retrieves the latest attested price for key.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, key string) (domain.AttestedPrice, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(key)).Result()
	if err != nil {
		return domain.AttestedPrice{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.AttestedPrice{}, domain.ErrNotFound
	}
	p, err := decodePrice(vals)
	if err != nil {
		return domain.AttestedPrice{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	return p, nil
}

// GetPrices retrieves the latest prices for multiple keys using a pipeline.
// Keys that do not exist are silently omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, keys []string) (map[string]domain.AttestedPrice, error) {
	if len(keys) == 0 {
		return map[string]domain.AttestedPrice{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(keys))
	for _, k := range keys {
		cmds[k] = pipe.HGetAll(ctx, priceKey(k))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]domain.AttestedPrice, len(keys))
	for k, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		p, err := decodePrice(vals)
		if err != nil {
			continue
		}
		result[k] = p
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
