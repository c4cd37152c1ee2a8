package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled is returned when REDIS_URL is not configured.
var ErrRedisDisabled = errors.New("redis: REDIS_URL not configured")

// NewRedisClient connects to Redis using REDIS_URL. Both URL form
// (redis://, rediss://) and bare host:port are accepted.
func NewRedisClient(ctx context.Context, cfg *Config) (redis.UniversalClient, error) {
	uri := strings.TrimSpace(cfg.RedisURL)
	if uri == "" {
		return nil, ErrRedisDisabled
	}

	var client *redis.Client
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		opt, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: uri})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
