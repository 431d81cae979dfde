package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/amirasaad/carefund/pkg/cache"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/redis/go-redis/v9"
)

// RedisRuleCache implements cache.RuleCache using Redis, storing each table
// as JSON.
type RedisRuleCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisRuleCache creates a RedisRuleCache on an existing client.
func NewRedisRuleCache(client *redis.Client, prefix string, logger *slog.Logger) *RedisRuleCache {
	return &RedisRuleCache{client: client, prefix: prefix, logger: logger.With("cache", "redis")}
}

// NewRedisRuleCacheWithOptions creates a RedisRuleCache from redis.Options.
func NewRedisRuleCacheWithOptions(opt *redis.Options, prefix string, logger *slog.Logger) *RedisRuleCache {
	return NewRedisRuleCache(redis.NewClient(opt), prefix, logger)
}

func (r *RedisRuleCache) key(key string) string {
	return r.prefix + key
}

func (r *RedisRuleCache) Get(ctx context.Context, key string) (allocation.RuleSet, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis cache miss", "key", key)
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("Redis cache get error", "key", key, "error", err)
		return nil, false, err
	}
	var rules allocation.RuleSet
	if err := json.Unmarshal([]byte(val), &rules); err != nil {
		r.logger.Error("Redis cache unmarshal error", "key", key, "error", err)
		return nil, false, err
	}
	r.logger.Debug("Redis cache hit", "key", key, "rules", rules.String())
	return rules, true, nil
}

func (r *RedisRuleCache) Set(ctx context.Context, key string, rules allocation.RuleSet, ttl time.Duration) error {
	if rules == nil {
		rules = allocation.RuleSet{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		r.logger.Error("Redis cache marshal error", "key", key, "error", err)
		return err
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.logger.Error("Redis cache set error", "key", key, "error", err)
		return err
	}
	r.logger.Debug("Redis cache set", "key", key, "ttl", ttl)
	return nil
}

func (r *RedisRuleCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Error("Redis cache delete error", "key", key, "error", err)
		return err
	}
	return nil
}

var _ cache.RuleCache = (*RedisRuleCache)(nil)
