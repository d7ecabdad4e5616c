package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"saaspos/backend/internal/domain"
)

type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReportCache(addr string, password string, db int, ttl time.Duration) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisReportCache{client: client, ttl: ttl}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) GetSalesSummary(ctx context.Context, key string) (*domain.SalesSummary, bool) {
	val, err := c.client.Get(ctx, "report:sales-summary:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Printf("[cache] WARN: sales summary get: %v", err)
		return nil, false
	}

	var summary domain.SalesSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false
	}
	return &summary, true
}

func (c *RedisReportCache) SetSalesSummary(ctx context.Context, key string, summary domain.SalesSummary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, "report:sales-summary:"+key, payload, c.ttl).Err(); err != nil {
		log.Printf("[cache] WARN: sales summary set: %v", err)
	}
}
