// Package redis 最新定价结果缓存：可选的进程内 bigcache 一级缓存 + Redis 二级缓存
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/cache"
	"github.com/wyfcoding/optionpricing/pkg/logger"
)

const resultPrefix = "pricing_result:"

// PricingResultCache 实现 domain.PricingCache
type PricingResultCache struct {
	remote *cache.RedisCache
	local  *cache.LocalCache
	ttl    time.Duration
}

// NewPricingResultCache local 可为 nil
func NewPricingResultCache(remote *cache.RedisCache, local *cache.LocalCache, ttl time.Duration) *PricingResultCache {
	return &PricingResultCache{remote: remote, local: local, ttl: ttl}
}

// GetLatest 未命中返回 (nil, nil)；Redis 命中时回填一级缓存
func (c *PricingResultCache) GetLatest(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	if symbol == "" {
		return nil, nil
	}
	key := resultKey(symbol)

	if c.local != nil {
		if data, ok := c.local.Get(key); ok {
			var result domain.PricingResult
			if err := json.Unmarshal(data, &result); err == nil {
				return &result, nil
			}
			_ = c.local.Delete(key)
		}
	}

	data, err := c.remote.GetBytes(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	var result domain.PricingResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warn(ctx, "dropping undecodable cached pricing result", "key", key, "error", err)
		_ = c.remote.Delete(ctx, key)
		return nil, nil
	}
	if c.local != nil {
		_ = c.local.Set(key, data)
	}
	return &result, nil
}

// SetLatest 写入两级缓存
func (c *PricingResultCache) SetLatest(ctx context.Context, result *domain.PricingResult) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	key := resultKey(result.Symbol)
	if err := c.remote.Set(ctx, key, data, c.ttl); err != nil {
		return err
	}
	if c.local != nil {
		if err := c.local.Set(key, data); err != nil {
			logger.Warn(ctx, "local cache set failed", "key", key, "error", err)
		}
	}
	return nil
}

func resultKey(symbol string) string {
	return resultPrefix + symbol
}
