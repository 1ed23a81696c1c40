package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/open-builders/giveaway-engine/internal/common/config"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
)

// Open connects to a single Redis server, or to a cluster when
// REDIS_ADDRS lists several nodes, and pings it.
func Open(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	addrs := cfg.Redis.Addrs
	if len(addrs) == 0 {
		addrs = []string{cfg.RedisAddr()}
	}

	c := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to ping redis at %v: %w", addrs, err)
	}

	logger.Info().Strs("addrs", addrs).Int("db", cfg.Redis.DB).Msg("Redis client initialized")
	return c, nil
}
