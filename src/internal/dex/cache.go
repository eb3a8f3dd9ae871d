package dex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VectorBits/econaudit/src/internal/economic"
)

// QuoteCache stores quote lists by key. Get reports ok=false on a miss.
type QuoteCache interface {
	Get(ctx context.Context, key string) ([]economic.MarketQuote, bool, error)
	Set(ctx context.Context, key string, quotes []economic.MarketQuote) error
}

func cacheKey(chain, token string) string {
	return fmt.Sprintf("quotes:%s:%s", strings.ToLower(chain), strings.ToLower(token))
}

// RedisCache is a QuoteCache whose entries expire after ttl.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: client, ttl: ttl}
}

var _ QuoteCache = (*RedisCache)(nil)

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]economic.MarketQuote, bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var quotes []economic.MarketQuote
	if err := json.Unmarshal([]byte(data), &quotes); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal quotes: %w", err)
	}
	return quotes, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, quotes []economic.MarketQuote) error {
	data, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("failed to marshal quotes: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
