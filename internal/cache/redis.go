package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-price-alerts/internal/price"
	"crypto-price-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var _ price.Cache = (*RedisCache)(nil)

const (
	PricesKey = "crypto_prices"
	opTimeout = 2 * time.Second
)

// RedisCache keeps the latest snapshot under a single key with an expiry.
// Every failure degrades to a miss, the caller never sees a redis error.
type RedisCache struct {
	client *redis.Client
	key    string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, key: PricesKey}
}

// NewClient parses a redis:// url. The connection is lazy, an unreachable
// server only shows up as cache misses later on.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse REDIS_URL")
	}
	return redis.NewClient(opts), nil
}

// Ping reports "up" or the reason the server is down.
func (c *RedisCache) Ping(ctx context.Context) string {
	if c == nil || c.client == nil {
		return "disabled"
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Sprintf("down: %v", err)
	}
	return "up"
}

func (c *RedisCache) Put(ctx context.Context, snapshot types.PriceSnapshot, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Warnf("Redis cache update skipped: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		log.Warnf("Redis cache update skipped: %v", err)
	}
}

func (c *RedisCache) Get(ctx context.Context) (types.PriceSnapshot, bool) {
	if c == nil || c.client == nil {
		return types.PriceSnapshot{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return types.PriceSnapshot{}, false
	}
	if err != nil {
		log.Warnf("Redis not available, treating prices as uncached: %v", err)
		return types.PriceSnapshot{}, false
	}

	var snapshot types.PriceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.Warnf("Discarding unreadable cached prices: %v", err)
		return types.PriceSnapshot{}, false
	}
	return snapshot, true
}

func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
