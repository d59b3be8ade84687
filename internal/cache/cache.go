// Package cache provides a Redis-backed result cache for assessments. The
// cache is strictly best-effort: every failure degrades to a miss and the
// pipeline recomputes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/model"
)

const keyPrefix = "predict:"

// Config holds Redis connection settings.
type Config struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ResultCache caches finished assessments keyed by (address, deposit). A nil
// *ResultCache is valid and behaves as a permanent miss.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis. Returns nil (cache disabled) when cfg.Enabled is
// false or the address is empty.
func New(cfg Config) *ResultCache {
	if !cfg.Enabled || cfg.Addr == "" {
		return nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &ResultCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from the request identity.
func Key(address string, depositManwon float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.0f", address, depositManwon)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns a cached assessment, or nil on miss or any Redis failure.
func (c *ResultCache) Get(ctx context.Context, key string) *model.Assessment {
	if c == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Debug("cache: get failed", zap.Error(err))
		}
		return nil
	}
	var a model.Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		zap.L().Debug("cache: stale entry dropped", zap.Error(err))
		return nil
	}
	return &a
}

// Set stores an assessment. Failures are logged and swallowed.
func (c *ResultCache) Set(ctx context.Context, key string, a *model.Assessment) {
	if c == nil || a == nil {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		zap.L().Debug("cache: set failed", zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *ResultCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
