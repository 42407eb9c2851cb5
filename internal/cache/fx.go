package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the string cache used by the settings store. Redis is used
// when REDIS_ADDR is set and reachable; otherwise caching stays in-process.
var Module = fx.Module("cache",
	fx.Provide(NewStringCache),
)

func NewStringCache(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Cache[string, string] {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Info("REDIS_ADDR not set, using in-process settings cache")
		return NewTTLCache[string, string]()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, using in-process settings cache", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return NewTTLCache[string, string]()
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("redis settings cache enabled", zap.String("addr", addr))
	return NewRedisCache(client, "noty:settings:", log)
}
