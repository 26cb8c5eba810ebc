// Package cache wraps the optional redis instance used for price lookups
// and reminder de-duplication. A nil *Client is valid and behaves as an
// always-miss cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/config"
)

const (
	keyPrice    = "price:%s"
	keyReminder = "reminder:%s:%d"

	pingTimeout = 5 * time.Second
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type Client struct {
	rdb    *redis.Client
	script *redis.Script
	log    *zap.Logger
}

// New returns nil when no redis URL is configured.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.RedisURL)
	if raw == "" {
		log.Info("redis not configured, cache disabled")
		return nil, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	c := NewWithClient(redis.NewClient(opts), log)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			if err := c.rdb.Ping(pingCtx).Err(); err != nil {
				c.log.Warn("redis ping failed", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return c.rdb.Close()
		},
	})
	return c, nil
}

func NewWithClient(rdb *redis.Client, log *zap.Logger) *Client {
	if rdb == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		rdb:    rdb,
		script: redis.NewScript(releaseScript),
		log:    log.Named("cache"),
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Get reports ok=false on a miss.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if !c.Enabled() {
		return "", false, nil
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// MarkOnce sets key only if absent and returns a token for Release. first
// is false when another caller already holds the marker.
func (c *Client) MarkOnce(ctx context.Context, key string, ttl time.Duration) (token string, first bool, err error) {
	if !c.Enabled() {
		return "", false, errors.New("cache not configured")
	}
	if key == "" {
		return "", false, errors.New("cache key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("cache ttl must be positive")
	}
	token = uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release drops a marker taken by MarkOnce if it still carries token.
func (c *Client) Release(ctx context.Context, key, token string) error {
	if !c.Enabled() || key == "" || token == "" {
		return nil
	}
	return c.script.Run(ctx, c.rdb, []string{key}, token).Err()
}

// GetOrSet returns the cached JSON value for key or stores the result of
// load. Cache failures are logged and fall through to load.
func GetOrSet[T any](ctx context.Context, c *Client, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if !c.Enabled() {
		return load(ctx)
	}
	if raw, ok, err := c.Get(ctx, key); err != nil {
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
		c.log.Warn("cache value undecodable", zap.String("key", key))
	}

	val, err := load(ctx)
	if err != nil {
		return val, err
	}
	if payload, err := json.Marshal(val); err == nil {
		if err := c.Set(ctx, key, payload, ttl); err != nil {
			c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return val, nil
}

func PriceKey(priceID string) string {
	return fmt.Sprintf(keyPrice, strings.TrimSpace(priceID))
}

func ReminderKey(subscriptionID string, days int) string {
	return fmt.Sprintf(keyReminder, strings.TrimSpace(subscriptionID), days)
}
