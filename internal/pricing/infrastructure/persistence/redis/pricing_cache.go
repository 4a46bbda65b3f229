package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
)

// DefaultTTL 最新定价结果的默认缓存时间
const DefaultTTL = 15 * time.Minute

// PricingRedisCache 基于 Redis 的最新定价结果缓存
type PricingRedisCache struct {
	client       redis.UniversalClient
	resultPrefix string
	ttl          time.Duration
}

// NewPricingRedisCache 创建缓存，ttl 非正时使用 DefaultTTL
func NewPricingRedisCache(client redis.UniversalClient, ttl time.Duration) *PricingRedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PricingRedisCache{
		client:       client,
		resultPrefix: "pricing_result:",
		ttl:          ttl,
	}
}

var _ domain.PricingCache = (*PricingRedisCache)(nil)

func (c *PricingRedisCache) SetLatestPricingResult(ctx context.Context, result *domain.PricingResult) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.resultKey(result.Symbol), data, c.ttl).Err()
}

func (c *PricingRedisCache) GetLatestPricingResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	if symbol == "" {
		return nil, nil
	}
	data, err := c.client.Get(ctx, c.resultKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result domain.PricingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode cached pricing result for %s: %w", symbol, err)
	}
	return &result, nil
}

func (c *PricingRedisCache) Invalidate(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, c.resultKey(symbol)).Err()
}

func (c *PricingRedisCache) resultKey(symbol string) string {
	return fmt.Sprintf("%s%s", c.resultPrefix, symbol)
}
