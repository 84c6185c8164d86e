package lock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storepulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(New),
)

// New picks Redis when REDIS_ADDR is set so several engine processes
// serialize on the same keys, and an in-process locker otherwise.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) KeyedLocker {
	addr := strings.TrimSpace(cfg.Lock.RedisAddr)
	if addr == "" {
		log.Info("score lock backend: in-process")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Lock.RedisPassword,
		DB:       cfg.Lock.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	log.Info("score lock backend: redis", zap.String("addr", addr))
	return NewRedisLocker(client, cfg.Lock.TTL, cfg.Lock.RetryInterval)
}
